package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bike-storefront/internal/ctxmanage"
	"bike-storefront/internal/domain"
	"bike-storefront/internal/logkey"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	StatusCode int      `json:"statusCode"`
	Code       string   `json:"code,omitempty"`
	Data       any      `json:"data,omitempty"`
	Meta       any      `json:"meta,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

var statusByCode = map[string]int{
	domain.CodeNotFound:     http.StatusNotFound,
	domain.CodeBadRequest:   http.StatusBadRequest,
	domain.CodeConflict:     http.StatusConflict,
	domain.CodeUnavailable:  http.StatusServiceUnavailable,
	domain.CodeUnauthorized: http.StatusUnauthorized,
	domain.CodeForbidden:    http.StatusForbidden,
	domain.CodeInternal:     http.StatusInternalServerError,
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, StatusCode: status, Data: data})
}

func respondPage(c *gin.Context, message string, data, meta any, warnings []string) {
	c.JSON(http.StatusOK, envelope{
		Success:    true,
		Message:    message,
		StatusCode: http.StatusOK,
		Data:       data,
		Meta:       meta,
		Warnings:   warnings,
	})
}

func errorStatus(err error) (int, string) {
	code := domain.Classify(err)
	return statusByCode[code], code
}

// abortWithError renders err as a failure envelope. Internal errors are
// logged and replaced by a generic message.
func abortWithError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	var msg string
	if code == domain.CodeInternal {
		slog.Error("request failed",
			slog.String(logkey.TraceID, ctxmanage.TraceID(c.Request.Context())),
			slog.String(logkey.ERROR, err.Error()))
		msg = "Something went wrong"
	} else {
		msg = publicMessage(err)
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: msg, StatusCode: status, Code: code})
}

// publicMessage strips the sentinel prefix so clients see the detail only,
// e.g. "Order already Delivered".
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		domain.ErrTerminalState, domain.ErrUnauthorized, domain.ErrForbidden,
	} {
		if errors.Is(err, sentinel) {
			if _, rest, ok := strings.Cut(msg, sentinel.Error()+": "); ok {
				return rest
			}
		}
	}
	return msg
}
