package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdguard/crowdguard/internal/engine"
	"github.com/crowdguard/crowdguard/internal/logging"
	"github.com/crowdguard/crowdguard/internal/monitor"
	"github.com/crowdguard/crowdguard/internal/validation"
)

// -----------------------------------------------------------------------------
// Assessment
// -----------------------------------------------------------------------------

// AssessRequest is the body of POST /api/risk/assess
type AssessRequest struct {
	ProjectID       string `json:"projectId" binding:"required"`
	ChainID         int64  `json:"chainId"`
	ContractAddress string `json:"contractAddress"`
}

func (s *Server) assessHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidProjectID("projectId", req.ProjectID),
		validation.ValidContractAddress("contractAddress", req.ContractAddress),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	if req.ChainID <= 0 {
		req.ChainID = s.cfg.ChainID
	}

	// Resolve the contract on chain before spending a fetch on a dead address
	if s.chainClient != nil && req.ContractAddress != "" {
		verified, err := s.chainClient.VerifyContract(ctx, req.ContractAddress)
		if err != nil {
			logging.L(ctx).Warn("contract verification failed, continuing without it",
				"project_id", req.ProjectID,
				"error", err,
			)
		} else if !verified {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "contract_not_found",
				"message": "No contract code at the given address on this chain",
			})
			return
		}
	}

	result := s.engine.Assess(ctx, req.ProjectID, req.ChainID, req.ContractAddress)
	if result == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "assessment_unavailable",
			"message": "Insufficient data to assess this project right now. Retry later.",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchAssessRequest is the body of POST /api/risk/assess/batch
type BatchAssessRequest struct {
	Projects []engine.BatchRequest `json:"projects" binding:"required"`
}

func (s *Server) assessBatchHandler(c *gin.Context) {
	var req BatchAssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if len(req.Projects) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "empty_batch",
			"message": "Provide at least one project",
		})
		return
	}
	if len(req.Projects) > validation.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "batch_too_large",
			"message": "A batch may contain at most " + strconv.Itoa(validation.MaxBatchSize) + " projects",
		})
		return
	}
	for _, p := range req.Projects {
		if !validation.IsValidProjectID(p.ProjectID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_project_id",
				"message": "Malformed projectId in batch: " + validation.SanitizeString(p.ProjectID, 64),
			})
			return
		}
	}

	results := s.engine.AssessBatch(c.Request.Context(), req.Projects, s.cfg.BatchConcurrency)

	assessed := 0
	for _, r := range results {
		if r != nil {
			assessed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":  results,
		"count":    len(results),
		"assessed": assessed,
	})
}

// -----------------------------------------------------------------------------
// History and cache
// -----------------------------------------------------------------------------

func (s *Server) historyHandler(c *gin.Context) {
	projectID := c.Param("projectId")

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := s.engine.History(c.Request.Context(), projectID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load assessment history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load assessment history",
		})
		return
	}

	if rows == nil {
		rows = []engine.StoredAssessment{}
	}
	c.JSON(http.StatusOK, gin.H{
		"projectId":   projectID,
		"assessments": rows,
		"count":       len(rows),
	})
}

func (s *Server) invalidateCacheHandler(c *gin.Context) {
	projectID := c.Param("projectId")
	chainID := parseChainID(c.Query("chainId"), s.cfg.ChainID)

	s.engine.InvalidateProjectCache(projectID, chainID)

	c.JSON(http.StatusOK, gin.H{
		"projectId":   projectID,
		"invalidated": true,
	})
}

func (s *Server) cacheStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cache": s.engine.CacheStats(),
		"hub":   s.realtimeHub.Stats(),
	})
}

// -----------------------------------------------------------------------------
// Monitoring
// -----------------------------------------------------------------------------

// StartMonitoringRequest is the body of POST /api/risk/monitor/sessions
type StartMonitoringRequest struct {
	ProjectID  string `json:"projectId" binding:"required"`
	ChainID    int64  `json:"chainId"`
	IntervalMS int64  `json:"intervalMs"`
}

func (s *Server) startMonitoringHandler(c *gin.Context) {
	var req StartMonitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidProjectID(req.ProjectID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_project_id",
			"message": "projectId must be 1-128 characters of letters, digits, '-' or '_'",
		})
		return
	}

	interval := s.cfg.PollInterval
	if req.IntervalMS > 0 {
		interval = time.Duration(req.IntervalMS) * time.Millisecond
	}
	if interval < time.Second {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_interval",
			"message": "intervalMs must be at least 1000",
		})
		return
	}

	info := s.beginMonitoring(req.ProjectID, req.ChainID, interval)
	c.JSON(http.StatusCreated, info)
}

func (s *Server) stopMonitoringHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")

	info, ok := s.monitor.GetSession(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "No active session with that ID",
		})
		return
	}

	s.endMonitoring(sessionID, info.ProjectID)
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"stopped":   true,
	})
}

func (s *Server) listSessionsHandler(c *gin.Context) {
	ids := s.monitor.ActiveSessionIDs()
	sessions := make([]monitor.SessionInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := s.monitor.GetSession(id); ok {
			sessions = append(sessions, info)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) snapshotsHandler(c *gin.Context) {
	projectID := c.Param("projectId")

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	snapshots := s.monitor.GetRecentSnapshots(projectID, limit)
	if snapshots == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "project_not_monitored",
			"message": "No monitoring session exists for this project",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projectId": projectID,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// monitorStreamHandler serves GET /api/risk/monitor/stream as Server-Sent
// Events. It joins (or starts) the project's monitoring session, emits a
// session_started event, then relays snapshots and alerts until the client
// disconnects.
func (s *Server) monitorStreamHandler(c *gin.Context) {
	projectID := c.Query("projectId")
	if !validation.IsValidProjectID(projectID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_project_id",
			"message": "Provide a well-formed projectId query parameter",
		})
		return
	}
	chainID := parseChainID(c.Query("chainId"), s.cfg.ChainID)

	interval := s.cfg.PollInterval
	if v := c.Query("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= time.Second {
			interval = d
		}
	}

	info := s.beginMonitoring(projectID, chainID, interval)

	// Buffered relay; a stalled client drops events rather than blocking
	// the monitor's publish path.
	type sseEvent struct {
		name string
		data interface{}
	}
	events := make(chan sseEvent, 64)

	unsubSnapshot := s.monitor.OnSnapshot(projectID, func(snap monitor.Snapshot) {
		select {
		case events <- sseEvent{"snapshot", snap}:
		default:
		}
	})
	unsubAlert := s.monitor.OnAlert(projectID, func(alert monitor.Alert) {
		select {
		case events <- sseEvent{"alert", alert}:
		default:
		}
	})
	defer func() {
		unsubSnapshot()
		unsubAlert()
		s.endMonitoring(info.SessionID, projectID)
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("session_started", info)
	c.Writer.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev := <-events:
			c.SSEvent(ev.name, ev.data)
			c.Writer.Flush()
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": t.UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}

// beginMonitoring starts (or joins) a session and wires its events into the
// WebSocket hub the first time the project is monitored.
func (s *Server) beginMonitoring(projectID string, chainID int64, interval time.Duration) monitor.SessionInfo {
	info := s.monitor.StartMonitoring(projectID, chainID, interval)

	s.attachMu.Lock()
	if _, attached := s.hubDetach[projectID]; !attached {
		s.hubDetach[projectID] = s.realtimeHub.AttachMonitor(s.monitor, projectID)
	}
	s.attachMu.Unlock()

	s.realtimeHub.BroadcastSessionStarted(info)
	return info
}

// endMonitoring drops one subscriber and detaches the hub once the
// project's session is fully torn down.
func (s *Server) endMonitoring(sessionID, projectID string) {
	s.monitor.StopMonitoring(sessionID)

	if _, still := s.monitor.GetSessionByProject(projectID); still {
		return
	}
	s.attachMu.Lock()
	if detach, ok := s.hubDetach[projectID]; ok {
		detach()
		delete(s.hubDetach, projectID)
	}
	s.attachMu.Unlock()
}

// -----------------------------------------------------------------------------
// Contract verification
// -----------------------------------------------------------------------------

// VerifyContractRequest is the body of POST /api/risk/verify-contract
type VerifyContractRequest struct {
	ContractAddress string `json:"contractAddress" binding:"required"`
}

func (s *Server) verifyContractHandler(c *gin.Context) {
	if s.chainClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "verification_unavailable",
			"message": "No chain RPC endpoint configured",
		})
		return
	}

	var req VerifyContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidContractAddress(req.ContractAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "contractAddress must be a valid Ethereum address (0x + 40 hex chars)",
		})
		return
	}

	verified, err := s.chainClient.VerifyContract(c.Request.Context(), req.ContractAddress)
	if err != nil {
		logging.L(c.Request.Context()).Error("contract verification failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "verification_failed",
			"message": "Chain RPC did not answer",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contractAddress": req.ContractAddress,
		"chainId":         s.chainClient.ChainID(),
		"verified":        verified,
	})
}

func parseChainID(v string, fallback int64) int64 {
	if v == "" {
		return fallback
	}
	if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
		return id
	}
	return fallback
}
