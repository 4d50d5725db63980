package api

import (
	"net/http"
	"strconv"

	"sightline/pkg/model"
	"sightline/pkg/store"
)

// StationHandler serves stored ground stations.
type StationHandler struct {
	store store.StationStore
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(st store.StationStore) *StationHandler {
	return &StationHandler{store: st}
}

// HandleList handles GET /api/stations
func (h *StationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListStations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Station{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /api/stations/{id}
func (h *StationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := h.store.GetStation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if st == nil {
		http.Error(w, "station not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleSave handles POST /api/stations and PUT /api/stations/{id}
func (h *StationHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var st model.Station
	if !decode(w, r, "save station", &st) {
		return
	}
	if r.PathValue("id") != "" {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		st.ID = id
	}
	if !st.Role.Valid() {
		badRequest(w, "save station", "unknown role "+strconv.Quote(string(st.Role)))
		return
	}
	if st.Base.Lat < -90 || st.Base.Lat > 90 || st.Base.Lon < -180 || st.Base.Lon > 180 {
		badRequest(w, "save station", "position out of range")
		return
	}
	if err := h.store.SaveStation(r.Context(), &st); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleDelete handles DELETE /api/stations/{id}
func (h *StationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteStation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlightPathHandler serves stored flight paths.
type FlightPathHandler struct {
	store store.FlightPathStore
}

// NewFlightPathHandler creates a new FlightPathHandler.
func NewFlightPathHandler(st store.FlightPathStore) *FlightPathHandler {
	return &FlightPathHandler{store: st}
}

// HandleList handles GET /api/flightpaths
func (h *FlightPathHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListFlightPaths(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []model.FlightPath{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /api/flightpaths/{id}
func (h *FlightPathHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fp, err := h.store.GetFlightPath(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if fp == nil {
		http.Error(w, "flight path not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// HandleSave handles POST /api/flightpaths
func (h *FlightPathHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var fp model.FlightPath
	if !decode(w, r, "save flight path", &fp) {
		return
	}
	if len(fp.Waypoints) < 2 {
		writeError(w, &model.Error{
			Kind:       model.KindInvalidInput,
			Op:         "save flight path",
			Msg:        "at least two waypoints are required",
			PathLength: len(fp.Waypoints),
		})
		return
	}
	if err := h.store.SaveFlightPath(r.Context(), &fp); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// HandleDelete handles DELETE /api/flightpaths/{id}
func (h *FlightPathHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteFlightPath(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

