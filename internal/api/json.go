package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"slotbook/internal/booking"
)

// Problem represents an RFC7807 problem details response body, extended
// with the booking error code and class.
type Problem struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Code     string         `json:"code,omitempty"`
	Class    string         `json:"class,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

var classStatus = map[booking.Class]int{
	booking.ClassValidation:    http.StatusBadRequest,
	booking.ClassInventory:     http.StatusConflict,
	booking.ClassFeasibility:   http.StatusConflict,
	booking.ClassDataIntegrity: http.StatusInternalServerError,
	booking.ClassConcurrency:   http.StatusServiceUnavailable,
}

var classTitle = map[booking.Class]string{
	booking.ClassValidation:    "Invalid request",
	booking.ClassInventory:     "Products unavailable",
	booking.ClassFeasibility:   "Slot unavailable",
	booking.ClassDataIntegrity: "Reference data incomplete",
	booking.ClassConcurrency:   "Try again",
}

// writeError renders booking errors with their code; anything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		if errors.Is(err, booking.ErrOrderNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
			return
		}
		s.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
		return
	}
	status, ok := classStatus[be.Class()]
	if !ok {
		status = http.StatusInternalServerError
	}
	if be.Class() == booking.ClassConcurrency {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "urn:slotbook:problem:" + strings.ToLower(strings.ReplaceAll(string(be.Code), "_", "-")),
		Title:    classTitle[be.Class()],
		Status:   status,
		Detail:   be.Message,
		Instance: r.URL.Path,
		Code:     string(be.Code),
		Class:    string(be.Class()),
		Errors:   be.Detail,
	})
}

const maxBodyBytes = 64 << 10

// decodeStrict decodes one JSON object rejecting unknown fields and trailing data.
func decodeStrict(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON: trailing data after object")
	}
	return nil
}
