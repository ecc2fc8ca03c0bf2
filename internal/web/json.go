package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// GeofenceRequest is the body of POST /geofences and PUT /geofences/{id}.
// enabled, notify_on_entry and notify_on_exit default to true.
type GeofenceRequest struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Center        geofence.Coordinate `json:"center"`
	Radius        float64             `json:"radius"`
	Priority      int                 `json:"priority"`
	Enabled       *bool               `json:"enabled"`
	NotifyOnEntry *bool               `json:"notify_on_entry"`
	NotifyOnExit  *bool               `json:"notify_on_exit"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Geofence converts the request. A non-empty id overrides the body id.
func (r GeofenceRequest) Geofence(id string) geofence.Geofence {
	if id == "" {
		id = r.ID
	}
	return geofence.Geofence{
		ID:            id,
		Name:          r.Name,
		Center:        r.Center,
		Radius:        r.Radius,
		Priority:      r.Priority,
		Enabled:       boolOr(r.Enabled, true),
		NotifyOnEntry: boolOr(r.NotifyOnEntry, true),
		NotifyOnExit:  boolOr(r.NotifyOnExit, true),
	}
}

// GeofenceResponse is one geofence with its presence state.
type GeofenceResponse struct {
	geofence.Geofence
	Status   geofence.Status `json:"status"`
	Snoozing bool            `json:"snoozing"`
}

// GeofencesResponse is the body of GET /geofences.
type GeofencesResponse struct {
	Geofences []GeofenceResponse `json:"geofences"`
}

// SnoozeRequest is the body of POST /geofences/{id}/snooze.
type SnoozeRequest struct {
	Minutes int `json:"minutes"`
}

// LogsResponse is the body of GET /logs, newest entry first.
type LogsResponse struct {
	Logs []eventlog.Entry `json:"logs"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
