package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/fonfetch/models"
	"github.com/use-agent/fonfetch/portal"
)

// respondError maps an error to its HTTP status and writes the structured
// JSON error body.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var detail *models.ErrorDetail
	status := http.StatusInternalServerError

	if ae, ok := models.AsAcquisitionError(err); ok {
		detail = ae.ToDetail()
		status = mapKindToStatus(ae.Kind)
		slog.Warn("acquisition failed",
			"path", c.FullPath(),
			"kind", ae.Kind,
			"operation", ae.Operation,
			"correlationId", ae.CorrelationID,
			"error", err,
		)
	} else if errors.Is(err, portal.ErrInvalidInput) {
		detail = newDetail(models.ErrCodeInvalidInput, err.Error())
		status = http.StatusBadRequest
	} else {
		detail = newDetail(models.ErrCodeInternal, err.Error())
		slog.Error("unclassified failure", "path", c.FullPath(), "error", err)
	}

	c.JSON(status, models.Response{
		Success: false,
		Error:   detail,
		Timing:  timing,
	})
}

// respondNotFound writes a 404 for a fund the portal does not list.
func respondNotFound(c *gin.Context, code string, timing models.TimingInfo) {
	c.JSON(http.StatusNotFound, models.Response{
		Success: false,
		Error:   newDetail(models.ErrCodeNotFound, "fund not found: "+code),
		Timing:  timing,
	})
}

func newDetail(code, msg string) *models.ErrorDetail {
	return &models.ErrorDetail{Code: code, Message: msg, Timestamp: time.Now().UTC()}
}

// mapKindToStatus translates acquisition error kinds to HTTP status codes.
func mapKindToStatus(k models.ErrorKind) int {
	switch k {
	case models.KindNavigation, models.KindWafBlocked:
		return http.StatusServiceUnavailable // 503
	case models.KindTimeout:
		return http.StatusGatewayTimeout // 504
	case models.KindParse:
		return http.StatusUnprocessableEntity // 422
	case models.KindClient:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
