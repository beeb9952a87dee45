package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cgmanager/internal/api"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
	"cgmanager/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	svc    *api.Service
	hub    *eventHub

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, svc *api.Service, hub *eventHub, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api"),
		svc:    svc,
		hub:    hub,
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/channels", s.handleChannels)
	mux.HandleFunc("GET /api/channels/{id}", s.handleChannel)
	mux.HandleFunc("POST /api/channels/{id}/effects", s.handleCreateEffect)

	mux.HandleFunc("GET /api/effects", s.handleEffects)
	mux.HandleFunc("GET /api/effects/{id}", s.handleEffect)
	mux.HandleFunc("DELETE /api/effects/{id}", s.handleDeleteEffect)
	mux.HandleFunc("POST /api/effects/{id}/activate", s.handleActivateEffect)
	mux.HandleFunc("POST /api/effects/{id}/deactivate", s.handleDeactivateEffect)
	mux.HandleFunc("POST /api/effects/{id}/update", s.handleUpdateTemplate)
	mux.HandleFunc("POST /api/effects/{id}/invoke", s.handleInvokeTemplate)

	mux.HandleFunc("POST /api/amcp", s.handleCommand)

	mux.HandleFunc("GET /api/media", s.handleMedia)
	mux.HandleFunc("POST /api/media/refresh", s.handleRefreshMedia)

	mux.HandleFunc("GET /api/routes", s.handleRoutes)
	mux.HandleFunc("POST /api/routes", s.handleCreateRoute)
	mux.HandleFunc("POST /api/routes/{id}/enable", s.handleEnableRoute)
	mux.HandleFunc("POST /api/routes/{id}/disable", s.handleDisableRoute)
	mux.HandleFunc("DELETE /api/routes/{id}", s.handleDeleteRoute)

	if s.hub != nil {
		mux.HandleFunc("GET /api/events", s.hub.serveWS)
	}
	return s.withRequestID(mux)
}

// withRequestID tags every request with a correlation id, honouring one
// supplied by the caller.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that "+s.bind+" is free and restart the daemon"))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleChannels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Channels())
}

func (s *apiServer) handleChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelID(w, r)
	if !ok {
		return
	}
	ch, err := s.svc.Channel(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ch)
}

func (s *apiServer) handleCreateEffect(w http.ResponseWriter, r *http.Request) {
	id, ok := s.channelID(w, r)
	if !ok {
		return
	}
	var req api.CreateEffectRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := services.WithChannel(r.Context(), id)
	effect, err := s.svc.CreateEffect(ctx, id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, effect)
}

func (s *apiServer) handleEffects(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Effects())
}

func (s *apiServer) handleEffect(w http.ResponseWriter, r *http.Request) {
	effect, err := s.svc.GetEffect(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, effect)
}

func (s *apiServer) handleDeleteEffect(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteEffect(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleActivateEffect(w http.ResponseWriter, r *http.Request) {
	effect, err := s.svc.ActivateEffect(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, effect)
}

func (s *apiServer) handleDeactivateEffect(w http.ResponseWriter, r *http.Request) {
	effect, err := s.svc.DeactivateEffect(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, effect)
}

func (s *apiServer) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req api.TemplateUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.UpdateTemplate(r.Context(), r.PathValue("id"), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleInvokeTemplate(w http.ResponseWriter, r *http.Request) {
	var req api.TemplateInvokeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.InvokeTemplate(r.Context(), r.PathValue("id"), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req api.CommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.Send(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := media.ListFilter{
		Type:   strings.TrimSpace(query.Get("type")),
		Prefix: strings.TrimSpace(query.Get("prefix")),
	}
	resp, err := s.svc.Media(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRefreshMedia(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RefreshMedia(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleRoutes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Routes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req api.RouteRequest
	if !s.decode(w, r, &req) {
		return
	}
	route, err := s.svc.CreateRoute(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, route)
}

func (s *apiServer) handleEnableRoute(w http.ResponseWriter, r *http.Request) {
	route, err := s.svc.EnableRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

func (s *apiServer) handleDisableRoute(w http.ResponseWriter, r *http.Request) {
	route, err := s.svc.DisableRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

func (s *apiServer) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteRoute(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) channelID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "channel", fmt.Sprintf("invalid channel id %q", raw), nil))
		return 0, false
	}
	return id, true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "decode", "invalid request body", err))
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		s.logger.Warn("encode response failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_encode_failed"),
			logging.String(logging.FieldImpact, "client received a truncated response"),
			logging.String(logging.FieldErrorHint, "retry the request"))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logger, "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
			logging.String(logging.FieldImpact, "request was not applied"))
	} else {
		logger.Debug("api request rejected",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}
