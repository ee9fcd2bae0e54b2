package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/daily-advisor/internal/domain/advice"
	"github.com/yanqian/daily-advisor/pkg/util"
)

// Handler wires the HTTP transport to the advice service.
type Handler struct {
	adviceSvc advice.Service
	timezone  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler constructs the root HTTP handler. timezone is the default for
// slot queries without one.
func NewHandler(adviceSvc advice.Service, timezone *time.Location, logger *slog.Logger) *Handler {
	if timezone == nil {
		timezone = time.UTC
	}
	return &Handler{
		adviceSvc: adviceSvc,
		timezone:  timezone,
		logger:    logger.With("component", "http.handler"),
		now:       time.Now,
	}
}

// GetAdvice serves the daily advisory for a request bundle.
func (h *Handler) GetAdvice(c *gin.Context) {
	var req advice.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	res, err := h.adviceSvc.GetAdvice(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromDomainError(err, "advice_failed"))
		return
	}
	if res.IsStale {
		h.logger.Info("stale advice served", "user_id", req.UserID, "served_from", res.ServedFrom, "stale_days", res.StaleDays)
	}

	c.JSON(http.StatusOK, res)
}

// Supplement serves the once-per-slot supplementary tip.
func (h *Handler) Supplement(c *gin.Context) {
	var req advice.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	res, err := h.adviceSvc.Supplement(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromDomainError(err, "supplement_failed"))
		return
	}

	c.JSON(http.StatusOK, res)
}

// Slot reports the day slot for a moment, defaulting to now.
func (h *Handler) Slot(c *gin.Context) {
	loc, err := util.LoadLocation(c.Query("timezone"), h.timezone)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, advice.CodeInvalidInput, "timezone is not a valid IANA zone", err))
		return
	}

	at := h.now()
	if raw := strings.TrimSpace(c.Query("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, advice.CodeInvalidInput, "at must be an RFC3339 timestamp", err))
			return
		}
		at = parsed
	}
	at = at.In(loc)

	c.JSON(http.StatusOK, gin.H{
		"slot": advice.Classify(at),
		"at":   at.Format(time.RFC3339),
	})
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
