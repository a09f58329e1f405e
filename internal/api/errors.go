package api

import (
	"errors"
	"strconv"

	"pantry-service/internal/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// respondError maps err to its HTTP status and writes the error envelope.
// Messages of client-side errors are passed through; everything else gets
// the public message for its code.
func (h *Handler) respondError(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := apperror.As(err)
	if typed == nil {
		typed = apperror.Wrap(apperror.CodeInternal, err, "unexpected error")
	}
	meta := apperror.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case apperror.CodeValidation,
		apperror.CodeInvalidMovement,
		apperror.CodeNotFound,
		apperror.CodeConflict,
		apperror.CodeStateConflict,
		apperror.CodeInsufficientStock:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := apiError{Code: string(typed.Code()), Message: msg}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	if meta.HTTPStatus >= 500 {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("error_code", string(typed.Code())),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, gin.H{"error": payload})
}

func badRequest(message string, err error) error {
	return apperror.Wrap(apperror.CodeValidation, err, message)
}

func parseID(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid id").With(name, raw)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation("invalid query parameter").With(name, raw)
	}
	return n, nil
}
