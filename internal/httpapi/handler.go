package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lief/clock-service/internal/geo"
	"lief/clock-service/internal/models"
	"lief/clock-service/internal/report"
	"lief/clock-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store  store.Store
	sensor geo.Sensor
	opts   Options
}

type Options struct {
	OpenSessionFetchLimit int
	HistoryLimit          int
	LocationPollInterval  time.Duration
	DashboardRefresh      time.Duration
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.Store, sensor geo.Sensor, options Options) *Handler {
	if options.OpenSessionFetchLimit <= 0 {
		options.OpenSessionFetchLimit = 10
	}
	if options.HistoryLimit <= 0 {
		options.HistoryLimit = 20
	}
	if options.LocationPollInterval <= 0 {
		options.LocationPollInterval = 30 * time.Second
	}
	if options.DashboardRefresh <= 0 {
		options.DashboardRefresh = 5 * time.Minute
	}
	return &Handler{store: store, sensor: sensor, opts: options}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/signup", h.handleSignUp)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/clock-in", h.handleClockIn)
	mux.HandleFunc("/clock-out", h.handleClockOut)
	mux.HandleFunc("/api/sessions/open", h.handleOpenSession)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/perimeters", h.handlePerimeters)
	mux.HandleFunc("/api/perimeters/", h.handlePerimeterDelete)
	mux.HandleFunc("/api/location/status", h.handleLocationStatus)
	mux.HandleFunc("/api/client-config", h.handleClientConfig)
	mux.HandleFunc("/api/reports/summary", h.handleReportSummary)
	mux.HandleFunc("/api/reports/daily", h.handleReportDaily)
	mux.HandleFunc("/api/reports/staff", h.handleReportStaff)
	mux.HandleFunc("/api/reports/export", h.handleReportExport)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt string      `json:"expires_at"`
	User      models.User `json:"user"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Role = strings.TrimSpace(req.Role)

	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email, password, and display_name are required")
		return
	}
	if req.Role != models.RoleManager && req.Role != models.RoleWorker {
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be manager or worker")
		return
	}

	user, session, err := h.store.SignUp(r.Context(), store.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken", "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		SessionID: session.SessionID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      user,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, session, err := h.store.Login(r.Context(), store.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		SessionID: session.SessionID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      user,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type clockInRequest struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Note string   `json:"note"`
}

func (h *Handler) handleClockIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireRole(w, r, models.RoleWorker)
	if !ok {
		return
	}

	var req clockInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "location_unavailable", "a device location is required to clock in")
		return
	}
	point := geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	if !validCoordinates(point) {
		writeError(w, http.StatusBadRequest, "invalid_request", "lat must be in [-90,90] and lng in [-180,180]")
		return
	}

	perimeters, err := h.store.ListPerimeters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	classification := geo.Classify(point, perimeters)
	switch classification.Status {
	case geo.StatusWithin:
	case geo.StatusIndeterminate:
		writeError(w, http.StatusConflict, "perimeter_violation", "no perimeters are configured; clock-in is unavailable")
		return
	default:
		writeError(w, http.StatusConflict, "perimeter_violation", "you cannot clock in outside the designated perimeter")
		return
	}

	record, err := h.store.ClockIn(r.Context(), store.ClockInInput{
		WorkerID:   user.UserID,
		WorkerName: displayName(user),
		Lat:        point.Lat,
		Lng:        point.Lng,
		Note:       strings.TrimSpace(req.Note),
		ClockInAt:  time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrOpenSessionExists) {
			writeError(w, http.StatusConflict, "already_clocked_in", "an open session already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

type clockOutRequest struct {
	ClockOutLat  *float64 `json:"clock_out_lat"`
	ClockOutLng  *float64 `json:"clock_out_lng"`
	ClockOutNote string   `json:"clock_out_note"`
}

type clockOutResponse struct {
	Success bool               `json:"success"`
	Record  models.ClockRecord `json:"record"`
}

func (h *Handler) handleClockOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireRole(w, r, models.RoleWorker)
	if !ok {
		return
	}

	recordID := strings.TrimSpace(r.URL.Query().Get("id"))
	if recordID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing record id")
		return
	}
	if !isValidUUID(recordID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return
	}

	var req clockOutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.store.ClockOut(r.Context(), store.ClockOutInput{
		RecordID:   recordID,
		WorkerID:   user.UserID,
		Lat:        req.ClockOutLat,
		Lng:        req.ClockOutLng,
		Note:       strings.TrimSpace(req.ClockOutNote),
		ClockOutAt: time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			writeError(w, http.StatusNotFound, "record_not_found", "clock record not found")
		case errors.Is(err, store.ErrRecordClosed):
			writeError(w, http.StatusConflict, "record_closed", "clock record is already closed")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, clockOutResponse{Success: true, Record: record})
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireRole(w, r, models.RoleWorker)
	if !ok {
		return
	}

	record, found, err := h.store.FindOpenSession(r.Context(), user.UserID, startOfDay(time.Now()), h.opts.OpenSessionFetchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireRole(w, r, models.RoleWorker)
	if !ok {
		return
	}

	limit := h.opts.HistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	records, err := h.store.History(r.Context(), user.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type createPerimeterRequest struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	RadiusKm  *float64 `json:"radius_km"`
}

func (h *Handler) handlePerimeters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := userFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		perimeters, err := h.store.ListPerimeters(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if perimeters == nil {
			perimeters = []models.Perimeter{}
		}
		writeJSON(w, http.StatusOK, perimeters)
	case http.MethodPost:
		if _, ok := requireRole(w, r, models.RoleManager); !ok {
			return
		}
		var req createPerimeterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.Latitude == nil || req.Longitude == nil || req.RadiusKm == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "name, latitude, longitude, and radius_km are required")
			return
		}
		if !validCoordinates(geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}) {
			writeError(w, http.StatusBadRequest, "invalid_request", "latitude must be in [-90,90] and longitude in [-180,180]")
			return
		}
		if *req.RadiusKm <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "radius_km must be positive")
			return
		}

		perimeter, err := h.store.CreatePerimeter(r.Context(), store.CreatePerimeterInput{
			Name:      req.Name,
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			RadiusKm:  *req.RadiusKm,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, perimeter)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePerimeterDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleManager); !ok {
		return
	}

	perimeterID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/perimeters/"), "/")
	if !isValidUUID(perimeterID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "perimeter id must be a UUID")
		return
	}

	if err := h.store.DeletePerimeter(r.Context(), perimeterID); err != nil {
		if errors.Is(err, store.ErrPerimeterNotFound) {
			writeError(w, http.StatusNotFound, "perimeter_not_found", "perimeter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type locationStatusResponse struct {
	Status    geo.Status `json:"status"`
	Point     *geo.Point `json:"point,omitempty"`
	Perimeter string     `json:"perimeter,omitempty"`
}

func (h *Handler) handleLocationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleWorker); !ok {
		return
	}

	point, ok := pointFromQuery(r)
	if !ok {
		if h.sensor == nil {
			writeJSON(w, http.StatusOK, locationStatusResponse{Status: "unavailable"})
			return
		}
		sampled, err := h.sensor.Sample(r.Context())
		if err != nil {
			writeJSON(w, http.StatusOK, locationStatusResponse{Status: "unavailable"})
			return
		}
		point = sampled
	}
	if !validCoordinates(point) {
		writeError(w, http.StatusBadRequest, "invalid_request", "lat must be in [-90,90] and lng in [-180,180]")
		return
	}

	perimeters, err := h.store.ListPerimeters(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	classification := geo.Classify(point, perimeters)
	resp := locationStatusResponse{Status: classification.Status, Point: &point}
	if classification.Matched != nil {
		resp.Perimeter = classification.Matched.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

type clientConfigResponse struct {
	LocationPollSeconds     int `json:"location_poll_seconds"`
	DashboardRefreshSeconds int `json:"dashboard_refresh_seconds"`
	HistoryLimit            int `json:"history_limit"`
}

// handleClientConfig tells clients how often to poll location and refresh the
// dashboard, so the cadence is tuned server-side.
func (h *Handler) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := userFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, clientConfigResponse{
		LocationPollSeconds:     int(h.opts.LocationPollInterval / time.Second),
		DashboardRefreshSeconds: int(h.opts.DashboardRefresh / time.Second),
		HistoryLimit:            h.opts.HistoryLimit,
	})
}

type reportSummaryResponse struct {
	ActiveCount      int     `json:"active_count"`
	TotalHoursToday  float64 `json:"total_hours_today"`
	AvgHoursPerShift float64 `json:"avg_hours_per_shift"`
}

func (h *Handler) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleManager); !ok {
		return
	}

	now := time.Now()
	records, err := h.store.SnapshotRecords(r.Context(), startOfDay(now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, reportSummaryResponse{
		ActiveCount:      report.ActiveCount(records),
		TotalHoursToday:  report.TotalHoursToday(records, now),
		AvgHoursPerShift: report.AvgHoursPerShift(records, now),
	})
}

type reportDailyResponse struct {
	ClockIns []report.DayBucket `json:"clock_ins"`
	AvgHours []report.DayBucket `json:"avg_hours"`
}

func (h *Handler) handleReportDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleManager); !ok {
		return
	}
	days, ok := daysParam(w, r, 7)
	if !ok {
		return
	}

	now := time.Now()
	records, err := h.store.SnapshotRecords(r.Context(), startOfDay(now.AddDate(0, 0, -(days-1))))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, reportDailyResponse{
		ClockIns: report.DailySeries(records, now, days),
		AvgHours: report.DailyAvgHoursSeries(records, now, days),
	})
}

func (h *Handler) handleReportStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleManager); !ok {
		return
	}
	days, ok := daysParam(w, r, 7)
	if !ok {
		return
	}

	topN := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("top")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "top must be a positive integer")
			return
		}
		topN = parsed
	}

	now := time.Now()
	records, err := h.store.SnapshotRecords(r.Context(), now.AddDate(0, 0, -days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	staff := report.TopStaffByHours(records, now, days, topN)
	if staff == nil {
		staff = []report.StaffHours{}
	}
	writeJSON(w, http.StatusOK, staff)
}

func (h *Handler) handleReportExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleManager); !ok {
		return
	}
	days, ok := daysParam(w, r, 7)
	if !ok {
		return
	}

	records, err := h.store.SnapshotRecords(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=shifts.csv")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"record_id", "worker_name", "clock_in_at", "clock_out_at", "duration"})
	for _, record := range records {
		clockOut := ""
		if record.ClockOutAt != nil {
			clockOut = record.ClockOutAt.Format(time.RFC3339)
		}
		_ = writer.Write([]string{
			record.RecordID,
			record.WorkerName,
			record.ClockInAt.Format(time.RFC3339),
			clockOut,
			report.FormatDuration(record),
		})
	}
	writer.Flush()
}

func daysParam(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("days"))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 || parsed > 31 {
		writeError(w, http.StatusBadRequest, "invalid_request", "days must be between 1 and 31")
		return 0, false
	}
	return parsed, true
}

func pointFromQuery(r *http.Request) (geo.Point, bool) {
	latRaw := strings.TrimSpace(r.URL.Query().Get("lat"))
	lngRaw := strings.TrimSpace(r.URL.Query().Get("lng"))
	if latRaw == "" || lngRaw == "" {
		return geo.Point{}, false
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return geo.Point{}, false
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lng: lng}, true
}

func validCoordinates(p geo.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func displayName(user models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Email
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
