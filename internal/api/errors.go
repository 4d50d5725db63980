package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sightline/pkg/model"
)

type errorBody struct {
	Error        string      `json:"error"`
	Kind         string      `json:"kind"`
	Bounds       *[4]float64 `json:"bounds,omitempty"`
	PathLength   int         `json:"pathLength,omitempty"`
	StationCount int         `json:"stationCount,omitempty"`
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	var e *model.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case model.KindInvalidInput, model.KindGridGeneration:
		return http.StatusBadRequest
	case model.KindVisibilityAnalysis:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Kind: model.KindUnknown.String()}

	var e *model.Error
	if errors.As(err, &e) {
		body.Kind = e.Kind.String()
		body.PathLength = e.PathLength
		body.StationCount = e.StationCount
		if e.Bounds != nil {
			body.Bounds = &[4]float64{e.Bounds.Min[0], e.Bounds.Min[1], e.Bounds.Max[0], e.Bounds.Max[1]}
		}
	}
	if status >= 500 {
		slog.Warn("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func badRequest(w http.ResponseWriter, op, msg string) {
	writeError(w, model.InputError(op, msg))
}
