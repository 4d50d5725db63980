package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"sightline/pkg/model"
	"sightline/pkg/store"
	"sightline/pkg/terrain"
	"sightline/pkg/visibility"
)

// Engine is the analysis surface the handlers need.
type Engine interface {
	AnalyzeStation(ctx context.Context, st model.Station, gridSize float64, progress visibility.Progress) (model.GridResult, error)
	AnalyzeFlightPath(ctx context.Context, path model.FlightPath, gridSize, rangeM float64, progress visibility.Progress) (model.GridResult, error)
	AnalyzeMerged(ctx context.Context, stations []model.Station, gridSize float64, progress visibility.Progress) (model.GridResult, error)
	AnalyzeFlightPathVisibility(ctx context.Context, path model.FlightPath, stations []model.Station, progress visibility.Progress) (model.PathResult, error)
	CheckStationToStation(ctx context.Context, a, b model.Station) (model.StationLOSResult, error)
	GetLOSProfile(ctx context.Context, a, b model.Station) ([]model.LOSProfilePoint, error)
	ElevationAt(ctx context.Context, p orb.Point) (float64, error)
}

// AnalysisHandler serves the analysis and line-of-sight endpoints. Stations
// and flight paths may be sent inline or referenced by stored ID.
type AnalysisHandler struct {
	engine   Engine
	stations store.StationStore
	paths    store.FlightPathStore
	hub      *ProgressHub
}

// NewAnalysisHandler creates a handler. The stores and hub may be nil.
func NewAnalysisHandler(engine Engine, stations store.StationStore, paths store.FlightPathStore, hub *ProgressHub) *AnalysisHandler {
	return &AnalysisHandler{engine: engine, stations: stations, paths: paths, hub: hub}
}

type gridResponse struct {
	RunID string                     `json:"runId"`
	Cells *geojson.FeatureCollection `json:"cells"`
	Stats model.AnalysisStats        `json:"stats"`
}

type pathResponse struct {
	RunID    string                     `json:"runId"`
	Segments *geojson.FeatureCollection `json:"segments"`
	Stats    model.FlightPathStats      `json:"stats"`
}

type stationRequest struct {
	RunID     string         `json:"runId"`
	Station   *model.Station `json:"station"`
	StationID int64          `json:"stationId"`
	GridSize  float64        `json:"gridSize"`
}

type flightPathRequest struct {
	RunID    string            `json:"runId"`
	Path     *model.FlightPath `json:"path"`
	PathID   int64             `json:"pathId"`
	GridSize float64           `json:"gridSize"`
	Range    float64           `json:"range"`
}

type mergedRequest struct {
	RunID      string          `json:"runId"`
	Stations   []model.Station `json:"stations"`
	StationIDs []int64         `json:"stationIds"`
	GridSize   float64         `json:"gridSize"`
}

type pathVisibilityRequest struct {
	RunID      string            `json:"runId"`
	Path       *model.FlightPath `json:"path"`
	PathID     int64             `json:"pathId"`
	Stations   []model.Station   `json:"stations"`
	StationIDs []int64           `json:"stationIds"`
}

type pairRequest struct {
	A   *model.Station `json:"a"`
	B   *model.Station `json:"b"`
	AID int64          `json:"aId"`
	BID int64          `json:"bId"`
}

type profileResponse struct {
	Profile     []model.LOSProfilePoint `json:"profile"`
	Clear       bool                    `json:"clear"`
	Obstruction *[2]int                 `json:"obstruction,omitempty"`
}

// HandleStation handles POST /api/analysis/station
func (h *AnalysisHandler) HandleStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if !decode(w, r, "station analysis", &req) {
		return
	}
	st, err := h.station(r.Context(), "station analysis", req.Station, req.StationID)
	if err != nil {
		writeError(w, err)
		return
	}

	runID := h.runID(req.RunID)
	res, err := h.engine.AnalyzeStation(r.Context(), st, req.GridSize, h.progress(runID))
	h.done(runID, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gridResponse{RunID: runID, Cells: cellsToGeoJSON(res.Cells), Stats: res.Stats})
}

// HandleFlightPath handles POST /api/analysis/flightpath
func (h *AnalysisHandler) HandleFlightPath(w http.ResponseWriter, r *http.Request) {
	var req flightPathRequest
	if !decode(w, r, "flight path analysis", &req) {
		return
	}
	path, err := h.path(r.Context(), "flight path analysis", req.Path, req.PathID)
	if err != nil {
		writeError(w, err)
		return
	}

	runID := h.runID(req.RunID)
	res, err := h.engine.AnalyzeFlightPath(r.Context(), path, req.GridSize, req.Range, h.progress(runID))
	h.done(runID, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gridResponse{RunID: runID, Cells: cellsToGeoJSON(res.Cells), Stats: res.Stats})
}

// HandleMerged handles POST /api/analysis/merged
func (h *AnalysisHandler) HandleMerged(w http.ResponseWriter, r *http.Request) {
	var req mergedRequest
	if !decode(w, r, "merged analysis", &req) {
		return
	}
	stations, err := h.stationList(r.Context(), "merged analysis", req.Stations, req.StationIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	runID := h.runID(req.RunID)
	res, err := h.engine.AnalyzeMerged(r.Context(), stations, req.GridSize, h.progress(runID))
	h.done(runID, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gridResponse{RunID: runID, Cells: cellsToGeoJSON(res.Cells), Stats: res.Stats})
}

// HandlePathVisibility handles POST /api/analysis/flightpath/visibility
func (h *AnalysisHandler) HandlePathVisibility(w http.ResponseWriter, r *http.Request) {
	const op = "flight path visibility"
	var req pathVisibilityRequest
	if !decode(w, r, op, &req) {
		return
	}
	path, err := h.path(r.Context(), op, req.Path, req.PathID)
	if err != nil {
		writeError(w, err)
		return
	}
	stations, err := h.stationList(r.Context(), op, req.Stations, req.StationIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	runID := h.runID(req.RunID)
	res, err := h.engine.AnalyzeFlightPathVisibility(r.Context(), path, stations, h.progress(runID))
	h.done(runID, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pathResponse{RunID: runID, Segments: segmentsToGeoJSON(res.Segments), Stats: res.Stats})
}

// HandleLOSCheck handles POST /api/los/check
func (h *AnalysisHandler) HandleLOSCheck(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.pair(w, r, "station LOS")
	if !ok {
		return
	}
	res, err := h.engine.CheckStationToStation(r.Context(), a, b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLOSProfile handles POST /api/los/profile
func (h *AnalysisHandler) HandleLOSProfile(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.pair(w, r, "LOS profile")
	if !ok {
		return
	}
	profile, err := h.engine.GetLOSProfile(r.Context(), a, b)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := profileResponse{Profile: profile, Clear: true}
	if start, end, found := terrain.FindObstructedSpan(profile); found {
		resp.Clear = false
		resp.Obstruction = &[2]int{start, end}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleElevation handles GET /api/elevation?lat=..&lon=..
func (h *AnalysisHandler) HandleElevation(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		badRequest(w, "elevation", "lat and lon query parameters are required")
		return
	}
	elev, err := h.engine.ElevationAt(r.Context(), orb.Point{lon, lat})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Kind: model.KindUnknown.String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"lat": lat, "lon": lon, "elevation": elev})
}

func decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, op, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (h *AnalysisHandler) runID(requested string) string {
	if requested != "" {
		return requested
	}
	return uuid.New().String()
}

func (h *AnalysisHandler) progress(runID string) visibility.Progress {
	if h.hub == nil {
		return nil
	}
	return func(stage string, pct float64) {
		h.hub.Publish(ProgressEvent{RunID: runID, Stage: stage, Percent: pct})
	}
}

func (h *AnalysisHandler) done(runID string, err error) {
	ev := ProgressEvent{RunID: runID, Stage: "done", Percent: 100, Done: true}
	if err != nil {
		ev.Error = err.Error()
	}
	h.hub.Publish(ev)
}

func (h *AnalysisHandler) station(ctx context.Context, op string, inline *model.Station, id int64) (model.Station, error) {
	if inline != nil {
		return *inline, nil
	}
	if id == 0 {
		return model.Station{}, model.InputError(op, "station or stationId is required")
	}
	if h.stations == nil {
		return model.Station{}, model.InputError(op, "stored stations are not available")
	}
	st, err := h.stations.GetStation(ctx, id)
	if err != nil {
		return model.Station{}, err
	}
	if st == nil {
		return model.Station{}, model.InputError(op, "station "+strconv.FormatInt(id, 10)+" not found")
	}
	return *st, nil
}

func (h *AnalysisHandler) stationList(ctx context.Context, op string, inline []model.Station, ids []int64) ([]model.Station, error) {
	out := append([]model.Station(nil), inline...)
	for _, id := range ids {
		st, err := h.station(ctx, op, nil, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (h *AnalysisHandler) path(ctx context.Context, op string, inline *model.FlightPath, id int64) (model.FlightPath, error) {
	if inline != nil {
		return *inline, nil
	}
	if id == 0 {
		return model.FlightPath{}, model.InputError(op, "path or pathId is required")
	}
	if h.paths == nil {
		return model.FlightPath{}, model.InputError(op, "stored flight paths are not available")
	}
	fp, err := h.paths.GetFlightPath(ctx, id)
	if err != nil {
		return model.FlightPath{}, err
	}
	if fp == nil {
		return model.FlightPath{}, model.InputError(op, "flight path "+strconv.FormatInt(id, 10)+" not found")
	}
	return *fp, nil
}

func (h *AnalysisHandler) pair(w http.ResponseWriter, r *http.Request, op string) (model.Station, model.Station, bool) {
	var req pairRequest
	if !decode(w, r, op, &req) {
		return model.Station{}, model.Station{}, false
	}
	a, err := h.station(r.Context(), op, req.A, req.AID)
	if err != nil {
		writeError(w, err)
		return model.Station{}, model.Station{}, false
	}
	b, err := h.station(r.Context(), op, req.B, req.BID)
	if err != nil {
		writeError(w, err)
		return model.Station{}, model.Station{}, false
	}
	return a, b, true
}
