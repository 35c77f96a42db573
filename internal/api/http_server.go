package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/config"
	"venuebook/internal/export"
	"venuebook/internal/identity"
	"venuebook/internal/metrics"
	"venuebook/internal/models"
	"venuebook/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes      = 1 << 20
	requestIDHeader   = "X-Request-ID"
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	unmatchedEndpoint = "unmatched"
)

// Services are the application services exposed by both transports.
type Services struct {
	Bookings *service.BookingService
	Users    *service.UserService
	Auth     *Authenticator
	Venues   []config.VenueInfo
	// Ready reports whether dependencies such as the database are reachable.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the booking workflow as a JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	log    zerolog.Logger
	now    func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, log: zerolog.Nop(), now: time.Now}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /readyz", srv.handleReady)
	mux.HandleFunc("GET /api/v1/venues", srv.handleVenues)

	mux.Handle("POST /api/v1/bookings", srv.authed(srv.handleSubmit))
	mux.Handle("GET /api/v1/bookings", srv.authed(srv.handleListMine))
	mux.Handle("GET /api/v1/bookings/{id}", srv.authed(srv.handleGet))
	mux.Handle("GET /api/v1/availability", srv.authed(srv.handleAvailability))
	mux.Handle("GET /api/v1/notifications", srv.authed(srv.handleNotifications))
	mux.Handle("POST /api/v1/notifications/{id}/read", srv.authed(srv.handleMarkRead))
	mux.Handle("GET /api/v1/me", srv.authed(srv.handleProfile))
	mux.Handle("PUT /api/v1/me/telegram", srv.authed(srv.handleLinkTelegram))

	mux.Handle("GET /api/v1/admin/bookings", srv.authed(srv.handleListAll))
	mux.Handle("POST /api/v1/admin/bookings/{id}/decision", srv.authed(srv.handleDecide))
	mux.Handle("GET /api/v1/admin/stats", srv.authed(srv.handleStats))
	mux.Handle("GET /api/v1/admin/export", srv.authed(srv.handleExport))
	mux.Handle("GET /api/v1/admin/users", srv.authed(srv.handleListUsers))
	mux.Handle("PUT /api/v1/admin/users/{id}/role", srv.authed(srv.handleSetRole))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type principalHandler func(w http.ResponseWriter, r *http.Request, p identity.Principal)

// authed resolves the bearer token before calling next.
func (s *HTTPServer) authed(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Auth == nil {
			s.writeServiceError(w, r, identity.ErrUnauthenticated, internalErrorMessage)
			return
		}
		p, err := s.svc.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.writeServiceError(w, r, err, internalErrorMessage)
			return
		}
		next(w, r.WithContext(identity.WithPrincipal(r.Context(), p)), p)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type venueView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
}

func (s *HTTPServer) handleVenues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"venues": venueCatalogue(s.svc.Venues)})
}

// venueCatalogue lists every venue, filling in details from the configured
// catalogue entries.
func venueCatalogue(overrides []config.VenueInfo) []venueView {
	byID := make(map[string]config.VenueInfo, len(overrides))
	for _, v := range overrides {
		if id, ok := models.ParseVenue(v.ID); ok {
			byID[id] = v
		}
	}

	out := make([]venueView, 0, len(models.Venues))
	for _, id := range models.Venues {
		view := venueView{ID: id, Name: models.FacilityName(id)}
		if o, ok := byID[id]; ok {
			if o.Name != "" {
				view.Name = o.Name
			}
			view.Description = o.Description
			view.Capacity = o.Capacity
		}
		out = append(out, view)
	}
	return out
}

// submitBody accepts participants as either a JSON string or number.
type submitBody struct {
	Venue               string          `json:"venue"`
	Date                string          `json:"date"`
	StartTime           string          `json:"startTime"`
	EndTime             string          `json:"endTime"`
	Purpose             string          `json:"purpose"`
	Participants        json.RawMessage `json:"participants"`
	SpecialRequirements string          `json:"specialRequirements"`
}

func (b submitBody) request() booking.Request {
	return booking.Request{
		Venue:               b.Venue,
		Date:                b.Date,
		StartTime:           b.StartTime,
		EndTime:             b.EndTime,
		Purpose:             b.Purpose,
		Participants:        rawScalar(b.Participants),
		SpecialRequirements: b.SpecialRequirements,
	}
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	var body submitBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	b, err := s.svc.Bookings.Submit(r.Context(), p, body.request())
	if err != nil {
		s.writeServiceError(w, r, err, service.SubmitFailureMessage)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": service.SubmitSuccessMessage,
		"booking": b,
	})
}

func (s *HTTPServer) handleListMine(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	bookings, err := s.svc.Bookings.ListMine(r.Context(), p, r.URL.Query().Get("q"))
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	b, err := s.svc.Bookings.Get(r.Context(), p, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request, _ identity.Principal) {
	q := r.URL.Query()
	conflicts, err := s.svc.Bookings.CheckAvailability(r.Context(), q.Get("venue"), q.Get("date"), q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available": len(conflicts) == 0,
		"conflicts": conflicts,
	})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := s.svc.Bookings.Notifications(r.Context(), p, unread)
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	if err := s.svc.Bookings.MarkNotificationRead(r.Context(), p, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	u, err := s.svc.Users.Profile(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *HTTPServer) handleLinkTelegram(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	var body struct {
		ChatID int64 `json:"chatId"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if err := s.svc.Users.LinkTelegram(r.Context(), p, body.ChatID); err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) (booking.Filter, bool) {
	status, ok := booking.ParseStatusFilter(r.URL.Query().Get("status"))
	if !ok {
		return booking.Filter{}, false
	}
	return booking.Filter{Status: status, Search: r.URL.Query().Get("q")}, true
}

func (s *HTTPServer) handleListAll(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	f, ok := parseFilter(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid status filter"})
		return
	}
	bookings, err := s.svc.Bookings.ListAll(r.Context(), p, f)
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleDecide(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	var body struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	b, err := s.svc.Bookings.Decide(r.Context(), p, r.PathValue("id"), body.Decision, body.Reason)
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	counts, err := s.svc.Bookings.Stats(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	f, ok := parseFilter(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid status filter"})
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Bookings.Export(r.Context(), p, f, &buf); err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	users, err := s.svc.Users.ListUsers(r.Context(), p)
	if err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleSetRole(w http.ResponseWriter, r *http.Request, p identity.Principal) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if err := s.svc.Users.SetRole(r.Context(), p, r.PathValue("id"), strings.TrimSpace(body.Role)); err != nil {
		s.writeServiceError(w, r, err, internalErrorMessage)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code, body := httpStatus(err, fallback)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", w.Header().Get(requestIDHeader)).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, code, body)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = unmatchedEndpoint
		}
		metrics.IncHTTP(endpoint)
		metrics.ObserveRequest("http", endpoint, start)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
