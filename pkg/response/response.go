package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vielimo/service-booking/pkg/domain"
)

// ErrorBody is the error part of the JSON envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination details.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// Success writes a 200 envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes a 200 envelope with pagination metadata.
func Paginated(c *gin.Context, data interface{}, total int64, page, limit int) {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &Meta{Page: page, Limit: limit, Total: total, TotalPages: pages},
	})
}

// BadRequest writes a 400 envelope.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(c *gin.Context, message string) {
	abort(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden writes a 403 envelope.
func Forbidden(c *gin.Context, message string) {
	abort(c, http.StatusForbidden, "FORBIDDEN", message)
}

// Error maps err onto an HTTP status and writes the envelope.
func Error(c *gin.Context, err error) {
	var domErr *domain.DomainError
	if !errors.As(err, &domErr) {
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	abort(c, StatusFor(domErr), domErr.Code, domErr.Message)
}

// StatusFor returns the HTTP status for a domain error.
func StatusFor(err *domain.DomainError) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}
