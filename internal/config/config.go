// Package config models the privacy configuration the engine searches
// against: the declared privacy models and the knobs (gsFactor, maxOutliers,
// minimal group size) local recoding reparameterizes per projection.
package config

import "github.com/rawblock/anonyengine/pkg/models"

// PrivacyModel is the external collaborator interface for a concrete
// privacy model (k-anonymity, l-diversity, t-closeness, differential
// privacy). The core only needs to know a model's name, whether it
// supports local recoding, and whether a given equivalence class
// satisfies it.
type PrivacyModel interface {
	Name() string
	SupportsLocalRecoding() bool
	Satisfied(stats models.EquivalenceClassStats) bool
}

// AnonymizationConfig is the privacy configuration for one anonymization
// run: the set of declared privacy models plus the generalization/
// suppression tradeoff and minimal-group-size knobs local recoding
// reparameterizes.
type AnonymizationConfig struct {
	models          []PrivacyModel
	gsFactor        float64 // NaN = leave configured
	maxOutliers     float64 // fraction in [0,1]; suppression budget
	minimalGroupSize int    // <=0 means unbounded (no floor)

	internal interface{} // opaque handle to a richer internal representation, if any
}

// New builds a config from its declared privacy models.
func New(privacyModels []PrivacyModel, maxOutliers float64, minimalGroupSize int) *AnonymizationConfig {
	return &AnonymizationConfig{
		models:           append([]PrivacyModel(nil), privacyModels...),
		gsFactor:         0.5,
		maxOutliers:      maxOutliers,
		minimalGroupSize: minimalGroupSize,
	}
}

// PrivacyModels returns the declared privacy models.
func (c *AnonymizationConfig) PrivacyModels() []PrivacyModel {
	return append([]PrivacyModel(nil), c.models...)
}

// GSFactor returns the configured generalization/suppression weight.
func (c *AnonymizationConfig) GSFactor() float64 { return c.gsFactor }

// SetGSFactor overrides the generalization/suppression weight. 0 favors
// suppression, 1 favors generalization, 0.5 is balanced.
func (c *AnonymizationConfig) SetGSFactor(v float64) { c.gsFactor = v }

// MaxOutliers returns the configured suppression budget as a fraction of
// rows, in [0,1].
func (c *AnonymizationConfig) MaxOutliers() float64 { return c.maxOutliers }

// SetMaxOutliers sets the suppression budget.
func (c *AnonymizationConfig) SetMaxOutliers(v float64) { c.maxOutliers = v }

// MinimalGroupSize returns the minimal equivalence-class size local
// recoding requires before it will attempt a refinement, or <=0 if
// unbounded.
func (c *AnonymizationConfig) MinimalGroupSize() int { return c.minimalGroupSize }

// InternalConfig exposes whatever opaque internal representation a fuller
// engine implementation would attach (e.g. a compiled constraint set for
// the lattice search). Not populated by this engine; kept so an external
// lattice-search collaborator has somewhere to stash one.
func (c *AnonymizationConfig) InternalConfig() interface{} { return c.internal }

// Clone returns an independent deep-ish copy (privacy models are shared by
// reference — they are stateless collaborators — but the numeric knobs are
// copied).
func (c *AnonymizationConfig) Clone() *AnonymizationConfig {
	return &AnonymizationConfig{
		models:           append([]PrivacyModel(nil), c.models...),
		gsFactor:         c.gsFactor,
		maxOutliers:      c.maxOutliers,
		minimalGroupSize: c.minimalGroupSize,
		internal:         c.internal,
	}
}

// SubsetFor returns a clone of c reparameterized for local recoding over
// rowSet: restricted to the rows it selects, with gsFactor overridden when
// it is not NaN. The RowSet itself is not stored on the config — it is the
// DataManager/DataDefinition projection that actually narrows the working
// set; the config clone only carries the numeric knobs.
func (c *AnonymizationConfig) SubsetFor(rowSetLen int, gsFactor float64) *AnonymizationConfig {
	clone := c.Clone()
	if !isNaN(gsFactor) {
		clone.gsFactor = gsFactor
	}
	return clone
}

func isNaN(f float64) bool { return f != f }
