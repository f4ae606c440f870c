package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"carbonledger/internal/infrastructure/lock"
	"carbonledger/internal/model"
	"carbonledger/internal/repository"
	"carbonledger/internal/service"
	"carbonledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// statusFor maps a service error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	var ve *service.ValidationError
	var ce *service.ConflictError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrInsufficientCredits),
		errors.Is(err, service.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.As(err, &ce),
		errors.Is(err, repository.ErrOptimisticLock),
		errors.Is(err, lock.ErrLockFailed):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		response.ServerError(c, "internal server error")
		return
	}
	response.Error(c, status, err.Error())
}
