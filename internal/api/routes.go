package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/anonyengine/internal/db"
	"github.com/rawblock/anonyengine/internal/demo"
	"github.com/rawblock/anonyengine/internal/lattice"
	"github.com/rawblock/anonyengine/internal/optimizer"
	"github.com/rawblock/anonyengine/internal/result"
)

// APIHandler holds the live collaborators HTTP handlers dispatch against:
// the persistence store, the websocket progress hub, and the in-memory
// registry of runs started this process's lifetime, keyed by run id.
type APIHandler struct {
	dbStore *db.PostgresStore
	wsHub   *Hub

	runs       map[string]*result.AnonymizationResult
	runParams  map[string]datasetParams
}

// datasetParams records the parameters a demo run's synthetic dataset was
// generated from, so a run reloaded from persisted state after a process
// restart (where the original in-memory dataset is gone) can rebuild an
// equivalently shaped one to attach the restored lattice scores to.
type datasetParams struct {
	Rows, QICols, Domain, K int
}

// SetupRouter wires the HTTP API, reusing the CORS/auth/rate-limit
// middleware stack verbatim from its Bitcoin-forensics origin — none of
// that layer is domain-specific.
func SetupRouter(dbStore *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dbStore:   dbStore,
		wsHub:     wsHub,
		runs:      make(map[string]*result.AnonymizationResult),
		runParams: make(map[string]datasetParams),
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.POST("/runs", handler.handleCreateRun)
		auth.GET("/runs/:runId/output/:nodeId", handler.handleGetOutput)
		auth.POST("/runs/:runId/optimize", handler.handleOptimize)
		auth.POST("/runs/:runId/optimize/iterative", handler.handleOptimizeIterative)
		auth.GET("/runs/:runId", handler.handleGetRun)
		auth.POST("/runs/:runId/load", handler.handleLoadRun)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCreateRun starts a new demo anonymization run from request
// parameters and registers it under a fresh run id. A full deployment
// would accept an uploaded dataset and schema instead of synthesizing one,
// so this endpoint exercises the same engine wiring the demo package uses
// for tests.
func (h *APIHandler) handleCreateRun(c *gin.Context) {
	var req struct {
		Rows   int `json:"rows"`
		QICols int `json:"qiColumns"`
		Domain int `json:"domain"`
		K      int `json:"k"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Rows <= 0 || req.QICols <= 0 || req.Domain <= 1 || req.K <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rows, qiColumns, domain and k must all be positive, domain > 1"})
		return
	}

	engine := demo.NewEngine(req.Rows, req.QICols, req.Domain, req.K)
	res, err := engine.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()
	h.runs[runID] = res
	h.runParams[runID] = datasetParams{Rows: req.Rows, QICols: req.QICols, Domain: req.Domain, K: req.K}

	if h.dbStore != nil {
		env, err := envelopeFromResult(runID, res, h.runParams[runID])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := h.dbStore.SaveRun(c.Request.Context(), env); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	optimum, optErr := res.GlobalOptimum()
	body := gin.H{"runId": runID, "durationMillis": res.DurationMillis(), "available": res.IsAvailable()}
	if optErr == nil {
		body["optimumId"] = optimum.ID()
		body["optimumLevel"] = optimum.Level()
	}
	if h.wsHub != nil {
		h.wsHub.Broadcast([]byte(`{"event":"run_created","runId":"` + runID + `"}`))
	}
	c.JSON(http.StatusCreated, body)
}

// handleLoadRun rehydrates a run from its persisted envelope rather than
// the in-process runs map, exercising the db.LoadRun/lattice.MemSpace
// Restore/result.FromState round-trip directly. The dataset itself is not
// persisted, only its shape and the lattice's property/score cells, so a
// loaded run attaches restored scores to a freshly regenerated dataset of
// the same shape rather than the exact bytes the original run searched.
func (h *APIHandler) handleLoadRun(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence store not configured"})
		return
	}
	runID := c.Param("runId")
	env, err := h.dbStore.LoadRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	res := resultFromEnvelope(env)
	h.runs[runID] = res
	h.runParams[runID] = datasetParams{Rows: env.Rows, QICols: env.QIColumns, Domain: env.Domain, K: env.K}

	body := gin.H{"runId": runID, "durationMillis": res.DurationMillis(), "available": res.IsAvailable()}
	if optimum, err := res.GlobalOptimum(); err == nil {
		body["optimumId"] = optimum.ID()
		body["optimumLevel"] = optimum.Level()
	}
	c.JSON(http.StatusOK, body)
}

func (h *APIHandler) lookupRun(c *gin.Context) (*result.AnonymizationResult, bool) {
	runID := c.Param("runId")
	res, ok := h.runs[runID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return nil, false
	}
	return res, true
}

func (h *APIHandler) lookupNode(c *gin.Context, res *result.AnonymizationResult) (*lattice.Transformation, bool) {
	nodeID, err := strconv.ParseInt(c.Param("nodeId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nodeId"})
		return nil, false
	}
	node, ok := res.Lattice().TransformationByID(nodeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown node id"})
		return nil, false
	}
	return node, true
}

func (h *APIHandler) handleGetOutput(c *gin.Context) {
	res, ok := h.lookupRun(c)
	if !ok {
		return
	}
	node, ok := h.lookupNode(c, res)
	if !ok {
		return
	}

	fork := c.Query("fork") == "true"
	var handle interface {
		RowCount() int
	}
	var err error
	if fork {
		handle, err = res.OutputFork(node)
	} else {
		handle, err = res.Output(node)
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rowCount": handle.RowCount()})
}

func (h *APIHandler) handleOptimize(c *gin.Context) {
	res, ok := h.lookupRun(c)
	if !ok {
		return
	}
	node, ok := h.lookupNode(c, res)
	if !ok {
		return
	}

	adapted, err := res.Optimize(node)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapted": adapted})
}

func (h *APIHandler) handleOptimizeIterative(c *gin.Context) {
	res, ok := h.lookupRun(c)
	if !ok {
		return
	}
	node, ok := h.lookupNode(c, res)
	if !ok {
		return
	}

	runID := c.Param("runId")
	listener := optimizer.ProgressListener(func(round, adaptedThisRound, totalAdapted int, progress float64) {
		if h.wsHub == nil {
			return
		}
		msg := `{"event":"optimize_progress","runId":"` + runID + `","round":` +
			strconv.Itoa(round) + `,"adapted":` + strconv.Itoa(totalAdapted) +
			`,"progress":` + strconv.FormatFloat(progress, 'f', 4, 64) + `}`
		h.wsHub.Broadcast([]byte(msg))
	})

	const defaultGSFactor = 0.0
	const defaultAdaptionFactor = 0.1
	total, err := res.OptimizeIterative(node, defaultGSFactor, 32, defaultAdaptionFactor, listener)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalAdapted": total})
}

func (h *APIHandler) handleGetRun(c *gin.Context) {
	res, ok := h.lookupRun(c)
	if !ok {
		return
	}
	body := gin.H{"available": res.IsAvailable(), "durationMillis": res.DurationMillis()}
	if optimum, err := res.GlobalOptimum(); err == nil {
		body["optimumId"] = optimum.ID()
		body["optimumLevel"] = optimum.Level()
	}
	c.JSON(http.StatusOK, body)
}
