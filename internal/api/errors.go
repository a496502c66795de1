package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var ue *voucher.UpstreamError
	switch {
	case errors.Is(err, voucher.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, voucher.ErrConflict), errors.As(err, &ue):
		return http.StatusConflict
	case errors.Is(err, voucher.ErrTransactionFailed):
		return http.StatusBadGateway
	case errors.Is(err, voucher.ErrConfiguration), errors.Is(err, voucher.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("voucher request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
