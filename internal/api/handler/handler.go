// Package handler holds the HTTP handlers behind the v1 API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kiranshivaraju/matchscope/internal/api/response"
	"github.com/kiranshivaraju/matchscope/internal/engine"
	"github.com/kiranshivaraju/matchscope/internal/fixtures"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.ValidationError(w, err)
		return false
	}
	return true
}

// parseWhen accepts a calendar date or an RFC3339 timestamp.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// parseRange reads a from/to pair. Both are required and from must not come
// after to.
func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, errors.New("from and to are required")
	}
	from, err := parseWhen(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD or RFC3339")
	}
	to, err := parseWhen(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD or RFC3339")
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to, nil
}

// upstreamError maps failures of the analysis engine and the fixtures source
// onto gateway responses. Anything else is a 500.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "ENGINE_TIMEOUT",
			"The analysis engine did not answer in time", nil)
	case errors.Is(err, engine.ErrUnreachable), errors.Is(err, engine.ErrBadResponse):
		response.Error(w, http.StatusBadGateway, "ENGINE_UNAVAILABLE",
			"The analysis engine is not available", nil)
	case errors.Is(err, fixtures.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "FIXTURES_TIMEOUT",
			"The fixtures source did not answer in time", nil)
	case errors.Is(err, fixtures.ErrUnreachable), errors.Is(err, fixtures.ErrBadResponse):
		response.Error(w, http.StatusBadGateway, "FIXTURES_UNAVAILABLE",
			"The fixtures source is not available", nil)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
