package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"whatsapp-helpdesk/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Count int64  `json:"count,omitempty"`
}

// respond writes data as JSON with the given status.
func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var inUse *services.StatusInUseError
	switch {
	case errors.As(err, &inUse):
		status = http.StatusConflict
		body.Count = inUse.Count
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidTransition), services.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrProvider):
		status = http.StatusBadGateway
	}

	logger := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	respond(w, r, status, body)
}

// decode reads a JSON body into v. Malformed input is a validation error.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if services.IsValidationError(err) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", services.ErrValidation, err)
	}
	return nil
}

// pageParams reads ?page= and ?limit=; invalid values fall back to defaults.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
