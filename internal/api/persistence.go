package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rawblock/anonyengine/internal/db"
	"github.com/rawblock/anonyengine/internal/demo"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/result"
	"github.com/rawblock/anonyengine/pkg/models"
)

// envelopeFromResult builds the persistable snapshot of a finished run:
// every lattice node the search materialized, keyed by id, plus the
// winning node and the dataset shape needed to regenerate an equivalent
// dataset on load.
func envelopeFromResult(runID string, res *result.AnonymizationResult, params datasetParams) (db.RunEnvelope, error) {
	ms, ok := res.Lattice().(*lattice.MemSpace)
	if !ok {
		return db.RunEnvelope{}, fmt.Errorf("persistence requires a MemSpace-backed lattice, got %T", res.Lattice())
	}
	optimumID, haveOptimum := ms.GlobalOptimum()

	snapshot := ms.Snapshot()
	nodeState := make(map[string]db.NodeState, len(snapshot))
	for id, snap := range snapshot {
		nodeState[strconv.FormatInt(id, 10)] = db.NodeState{
			Properties:      snap.Properties,
			InformationLoss: scoreToFloat(snap.InformationLoss),
			LowerBound:      scoreToFloat(snap.LowerBound),
		}
	}

	return db.RunEnvelope{
		RunID:          runID,
		Heights:        ms.Heights(),
		OptimumID:      optimumID,
		HaveOptimum:    haveOptimum,
		NodeState:      nodeState,
		DurationMillis: res.DurationMillis(),
		Rows:           params.Rows,
		QIColumns:      params.QICols,
		Domain:         params.Domain,
		K:              params.K,
	}, nil
}

// resultFromEnvelope rehydrates a result from a persisted envelope: a
// fresh demo engine of the same dataset shape supplies the collaborators
// (checker, manager, config), and the envelope's node states are written
// directly into its solution space via MemSpace.Restore before being
// wrapped with result.FromState.
func resultFromEnvelope(env *db.RunEnvelope) *result.AnonymizationResult {
	engine := demo.NewEngine(env.Rows, env.QIColumns, env.Domain, env.K)
	ms := engine.Space

	for key, ns := range env.NodeState {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		vector := ms.FromInternal(ms.IndexOf(id))
		ms.TransformationFor(vector) // materialize the node so TransformationByID finds it
		ms.Restore(id, lattice.NodeSnapshot{
			Properties:      ns.Properties,
			InformationLoss: floatToScore(ns.InformationLoss),
			LowerBound:      floatToScore(ns.LowerBound),
		})
	}

	duration := time.Duration(env.DurationMillis) * time.Millisecond
	return result.FromState(ms, env.OptimumID, env.HaveOptimum, engine.Checker, engine.Metric, engine.Config, engine.Definition, engine.Manager, engine.QIColumns, duration)
}

func scoreToFloat(sc models.Score) *float64 {
	fs, ok := sc.(models.FloatScore)
	if !ok {
		return nil
	}
	v := float64(fs)
	return &v
}

func floatToScore(v *float64) models.Score {
	if v == nil {
		return nil
	}
	return models.FloatScore(*v)
}
