package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okanzdmr/fraudgate/internal/audit"
	"github.com/okanzdmr/fraudgate/internal/decision"
	"github.com/okanzdmr/fraudgate/internal/feature"
	"github.com/okanzdmr/fraudgate/internal/logging"
	"github.com/okanzdmr/fraudgate/internal/pagination"
	"github.com/okanzdmr/fraudgate/internal/pipeline"
	"github.com/okanzdmr/fraudgate/internal/transaction"
)

// MaxBatchSize caps one batch scoring request.
const MaxBatchSize = 100

const defaultListLimit = 50

// -----------------------------------------------------------------------------
// Scoring
// -----------------------------------------------------------------------------

// scoreResponse is the wire shape of a released decision.
type scoreResponse struct {
	Decision         *decision.Decision `json:"decision"`
	State            pipeline.State     `json:"state"`
	AuditSequence    uint64             `json:"auditSequence,omitempty"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

func toScoreResponse(res *pipeline.Result) scoreResponse {
	out := scoreResponse{
		Decision:         res.Decision,
		State:            res.State,
		ProcessingTimeMs: res.Elapsed.Milliseconds(),
	}
	if res.AuditRecord != nil {
		out.AuditSequence = res.AuditRecord.Sequence
	}
	return out
}

func (s *Server) scoreHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var tx transaction.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}

	if errs := tx.Validate(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	result, err := s.orchestrator.Score(ctx, &tx)
	if err != nil {
		s.scoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, toScoreResponse(result))
}

// scoreError maps pipeline failures to HTTP statuses. An audit append
// failure withholds the decision entirely, so it surfaces as 503.
func (s *Server) scoreError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, feature.ErrFeatureUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "insufficient_history",
			"message": "No account history available and the pipeline is configured to reject such transactions",
		})
	case errors.Is(err, audit.ErrAppendFailed):
		logging.L(ctx).Error("decision withheld, audit append failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "audit_unavailable",
			"message": "The decision could not be recorded and was withheld",
		})
	default:
		logging.L(ctx).Error("scoring failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to score transaction",
		})
	}
}

type batchItem struct {
	Index   int            `json:"index"`
	Result  *scoreResponse `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details any            `json:"details,omitempty"`
}

func (s *Server) scoreBatchHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Transactions []transaction.Transaction `json:"transactions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be valid JSON",
		})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "empty_batch",
			"message": "transactions must contain at least one entry",
		})
		return
	}
	if len(req.Transactions) > MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "batch_too_large",
			"message": "a batch may contain at most " + strconv.Itoa(MaxBatchSize) + " transactions",
		})
		return
	}

	// Scored sequentially so audit records land in request order.
	items := make([]batchItem, 0, len(req.Transactions))
	scored := 0
	for i := range req.Transactions {
		tx := &req.Transactions[i]
		item := batchItem{Index: i}

		if errs := tx.Validate(); len(errs) > 0 {
			item.Error = "validation_failed"
			item.Details = errs
			items = append(items, item)
			continue
		}

		result, err := s.orchestrator.Score(ctx, tx)
		if err != nil {
			switch {
			case errors.Is(err, feature.ErrFeatureUnavailable):
				item.Error = "insufficient_history"
			case errors.Is(err, audit.ErrAppendFailed):
				item.Error = "audit_unavailable"
			default:
				logging.L(ctx).Error("batch scoring failed",
					"index", i,
					"transaction_id", tx.ID,
					"error", err,
				)
				item.Error = "internal_error"
			}
			items = append(items, item)
			continue
		}

		resp := toScoreResponse(result)
		item.Result = &resp
		scored++
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"results": items,
		"total":   len(items),
		"scored":  scored,
	})
}

// -----------------------------------------------------------------------------
// Audit trail
// -----------------------------------------------------------------------------

func (s *Server) auditLookupHandler(c *gin.Context) {
	ctx := c.Request.Context()
	transactionID := c.Param("transactionId")

	rec, err := s.ledger.ByTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No audit record exists for this transaction",
			})
			return
		}
		logging.L(ctx).Error("audit lookup failed", "transaction_id", transactionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load audit record",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (s *Server) auditListHandler(c *gin.Context) {
	ctx := c.Request.Context()

	afterSeq, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid",
		})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 200",
			})
			return
		}
	}

	// Fetch one extra record to detect whether a next page exists.
	records, err := s.ledger.List(ctx, afterSeq, limit+1)
	if err != nil {
		logging.L(ctx).Error("audit list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list audit records",
		})
		return
	}

	page, nextCursor, hasMore := pagination.ComputePage(records, limit, func(r *audit.Record) uint64 {
		return r.Sequence
	})

	c.JSON(http.StatusOK, gin.H{
		"records":    page,
		"count":      len(page),
		"nextCursor": nextCursor,
		"hasMore":    hasMore,
	})
}

func (s *Server) auditVerifyHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		From uint64 `json:"from"`
		To   uint64 `json:"to"`
	}
	// Body is optional; an empty request verifies the whole chain.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Request body must be valid JSON",
			})
			return
		}
	}

	result, err := s.ledger.VerifyChain(ctx, req.From, req.To)
	if err != nil {
		logging.L(ctx).Error("chain verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to verify audit chain",
		})
		return
	}

	if !result.Valid {
		logging.L(ctx).Error("audit chain integrity violation", "broken_at", result.BrokenAt)
		s.hub.BroadcastChainAlert(result.BrokenAt)
	}

	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------
// Stats & info
// -----------------------------------------------------------------------------

func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	lastSeq, err := s.ledger.LastSequence(ctx)
	if err != nil {
		logging.L(ctx).Warn("failed to read audit head", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"pipeline":     s.orchestrator.Stats(),
		"auditRecords": lastSeq,
		"realtime":     s.hub.Stats(),
		"updatedAt":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Fraudgate",
		"description": "Real-time transaction fraud scoring",
		"version":     "0.1.0",
		"endpoints": gin.H{
			"score":  "POST /v1/score",
			"batch":  "POST /v1/score/batch",
			"audit":  "GET /v1/audit/{transactionId}",
			"verify": "POST /v1/audit/verify",
			"stats":  "GET /v1/stats",
			"stream": "GET /ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Checks    []healthCheck `json:"checks,omitempty"`
	Timestamp string        `json:"timestamp"`
}

type healthCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make([]healthCheck, len(statuses))
	for i, st := range statuses {
		checks[i] = healthCheck{Name: st.Name, Healthy: st.Healthy, Detail: st.Detail}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
