package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kethan1/Blogger101-website/internal/apperr"
	"github.com/kethan1/Blogger101-website/internal/auth"
	"github.com/kethan1/Blogger101-website/internal/comments"
	"github.com/kethan1/Blogger101-website/internal/export"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errLoginRequired   = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Please login or sign up first", nil)
	errAlreadyLoggedIn = domainError(http.StatusConflict, "ALREADY_LOGGED_IN", "Already logged in", nil)
)

func invalidBody(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_BODY", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var conflict *apperr.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, "CONFLICT", err.Error(), map[string]string{"field": conflict.Field}
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return http.StatusGone, "EXPIRED_TOKEN", "This link has expired", nil
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusBadRequest, "INVALID_TOKEN", "This link is invalid", nil
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error(), nil
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_FAILURE", "A dependent service failed", nil
	case errors.Is(err, comments.ErrDanglingReference):
		return http.StatusInternalServerError, "DATA_INTEGRITY", "Stored comments are inconsistent", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}
