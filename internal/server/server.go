// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeranaias/tabchat/internal/config"
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/session"
	"github.com/jeranaias/tabchat/internal/tabs"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the loopback listen address.
	DefaultAddr = "127.0.0.1:8787"

	// maxPayloadBytes bounds action request bodies.
	maxPayloadBytes = 1 << 20
)

// Action names accepted by the boundary.
const (
	ActionGetModels       = "getModels"
	ActionCheckConnection = "checkConnection"
	ActionGetTabs         = "getTabs"
	ActionQuery           = "query"
	ActionQueryStream     = "queryStream"
	ActionSelectModel     = "selectModel"
	ActionGetHistory      = "getHistory"
	ActionClearHistory    = "clearHistory"
	ActionGetStatus       = "getStatus"
)

var (
	errUnknownAction = errors.New("unknown action")
	errBadPayload    = errors.New("invalid payload")
)

// ============================================================================
// RESULT
// ============================================================================

// Result is the tagged outcome every action returns.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(data any) Result {
	return Result{Success: true, Data: data}
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// ModelsData is the getModels payload.
type ModelsData struct {
	Models   []ollama.ModelDescriptor `json:"models"`
	Selected string                   `json:"selected,omitempty"`
}

// ConnectionData is the checkConnection payload.
type ConnectionData struct {
	Connected bool `json:"connected"`
}

// QueryPayload is the request body of query and queryStream. When
// MentionedTabs is omitted, @"Title" references in Query are resolved against
// the session's tab snapshot.
type QueryPayload struct {
	Query              string     `json:"query"`
	Model              string     `json:"model,omitempty"`
	IncludePageContent bool       `json:"includePageContent,omitempty"`
	MentionedTabs      []tabs.Tab `json:"mentionedTabs,omitempty"`
	MessageID          string     `json:"messageId,omitempty"`
}

// SelectModelPayload is the request body of selectModel.
type SelectModelPayload struct {
	Model string `json:"model"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	OllamaStatus string `json:"ollama_status"`
	SessionID    string `json:"session_id"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes an Orchestrator over HTTP, SSE and WebSocket.
type Server struct {
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
	addr    string
	version string

	router   *http.ServeMux
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	auth    *AuthConfig
	cors    *CORSConfig
	limiter *RateLimiter
	handler http.Handler
	server  *http.Server

	conns   sync.WaitGroup
	sockets map[*wsConn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuth sets the authentication configuration.
func WithAuth(config *AuthConfig) Option {
	return func(s *Server) { s.auth = config }
}

// WithCORS sets the CORS configuration.
func WithCORS(config *CORSConfig) Option {
	return func(s *Server) { s.cors = config }
}

// WithRateLimiter sets the per-client limiter. nil disables limiting.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(s *Server) { s.limiter = limiter }
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// New creates a Server for orch listening on addr. An empty addr uses
// DefaultAddr.
func New(orch *orchestrator.Orchestrator, addr string, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		orch:    orch,
		logger:  zap.NewNop(),
		addr:    addr,
		version: "dev",
		router:  http.NewServeMux(),
		auth:    DefaultAuthConfig(),
		cors:    DefaultCORSConfig(),
		limiter: DefaultRateLimiter(),
		sockets: make(map[*wsConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()
	s.rebuild()
	return s
}

// FromConfig builds the auth, CORS and limiter options for cfg.
func FromConfig(cfg config.ServerConfig) []Option {
	opts := []Option{
		WithAuth(TokenAuthConfig(cfg.AuthToken)),
		WithCORS(DefaultCORSConfig().WithOrigins(cfg.AllowedOrigins...)),
		WithRateLimiter(nil),
	}
	if cfg.RateLimit > 0 {
		opts[2] = WithRateLimiter(NewRateLimiter(cfg.RateLimit, cfg.RateBurst))
	}
	return opts
}

// UpdateConfig applies a reloaded server configuration. The listen address
// is not changed.
func (s *Server) UpdateConfig(cfg config.ServerConfig) {
	s.mu.Lock()
	for _, opt := range FromConfig(cfg) {
		opt(s)
	}
	s.mu.Unlock()
	s.rebuild()
	s.logger.Info("server configuration reloaded",
		zap.Bool("auth", cfg.AuthToken != ""),
		zap.Float64("rate_limit", cfg.RateLimit))
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// rebuild assembles the middleware chain from the current configuration.
func (s *Server) rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		AuthMiddleware(s.auth, s.logger),
	}
	if s.limiter.Enabled() {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter, s.logger))
	}
	s.handler = Chain(middlewares...)(s.router)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	h.ServeHTTP(w, r)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cors.isOriginAllowed(origin)
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /v1/actions/{action}", s.handleAction)
	s.router.HandleFunc("GET /v1/ws", s.handleWebSocket)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		SessionID: s.orch.State().ID(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.orch.CheckConnection(ctx) {
		health.OllamaStatus = "ok"
	} else {
		health.OllamaStatus = "unavailable"
		health.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, health)
}

// handleAction handles POST /v1/actions/{action}.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeResult(w, http.StatusBadRequest, failure("read request: "+err.Error()))
		return
	}

	if action == ActionQueryStream {
		s.handleQueryStream(w, r, payload)
		return
	}

	data, err := s.dispatch(r.Context(), action, payload)
	if err != nil {
		writeResult(w, statusFor(err), failure(err.Error()))
		return
	}
	writeResult(w, http.StatusOK, success(data))
}

// ============================================================================
// ACTIONS
// ============================================================================

// dispatch runs one non-streaming action.
func (s *Server) dispatch(ctx context.Context, action string, payload json.RawMessage) (any, error) {
	s.orch.State().Touch()

	switch action {
	case ActionGetModels:
		models, err := s.orch.RefreshModels(ctx)
		if err != nil {
			return nil, err
		}
		return ModelsData{Models: models, Selected: s.orch.State().SelectedModel()}, nil

	case ActionCheckConnection:
		return ConnectionData{Connected: s.orch.CheckConnection(ctx)}, nil

	case ActionGetTabs:
		return s.orch.RefreshTabs(ctx)

	case ActionQuery:
		q, _, err := s.parseQuery(payload)
		if err != nil {
			return nil, err
		}
		return s.orch.HandleQuery(ctx, q)

	case ActionSelectModel:
		var p SelectModelPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		if p.Model == "" {
			return nil, fmt.Errorf("%w: model is required", errBadPayload)
		}
		if err := s.orch.SelectModel(ctx, p.Model); err != nil {
			return nil, err
		}
		return SelectModelPayload{Model: p.Model}, nil

	case ActionGetHistory:
		return s.orch.State().History(), nil

	case ActionClearHistory:
		return nil, s.orch.ClearHistory(ctx)

	case ActionGetStatus:
		return s.orch.State().GetStatus(), nil
	}

	return nil, fmt.Errorf("%w: %q", errUnknownAction, action)
}

// parseQuery decodes a query payload into an orchestrator query and its
// message id.
func (s *Server) parseQuery(payload json.RawMessage) (orchestrator.Query, string, error) {
	var p QueryPayload
	if err := decodePayload(payload, &p); err != nil {
		return orchestrator.Query{}, "", err
	}
	if p.Query == "" {
		return orchestrator.Query{}, "", fmt.Errorf("%w: query is required", errBadPayload)
	}

	var q orchestrator.Query
	if len(p.MentionedTabs) > 0 {
		q = orchestrator.Query{
			Text:               p.Query,
			Model:              p.Model,
			IncludePageContent: p.IncludePageContent,
			MentionedTabs:      p.MentionedTabs,
		}
		if q.Model == "" {
			q.Model = s.orch.State().SelectedModel()
		}
	} else {
		q = s.orch.ParseQuery(p.Query, p.Model, p.IncludePageContent)
	}

	id := p.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	return q, id, nil
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// statusFor maps an action error to an HTTP status. The body is always a
// tagged failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, errBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrQueryInFlight), errors.Is(err, orchestrator.ErrStreamOpen):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoModel), errors.Is(err, session.ErrUnknownModel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrNoBrowser):
		return http.StatusServiceUnavailable
	case ollama.IsNotRunning(err), ollama.IsTimeout(err), ollama.IsModelNotFound(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// SSE STREAMING
// ============================================================================

// sseNotifier writes stream events as Server-Sent Events.
type sseNotifier struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (n *sseNotifier) Notify(ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(n.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	n.flusher.Flush()
	return nil
}

// handleQueryStream handles POST /v1/actions/queryStream. Rejections before
// the stream opens are tagged failures; everything after is an SSE event.
//
// RELIABILITY: generation continues when the client disconnects; only the
// notifications stop.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request, payload json.RawMessage) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeResult(w, http.StatusInternalServerError, failure("streaming not supported"))
		return
	}

	q, id, err := s.parseQuery(payload)
	if err != nil {
		writeResult(w, statusFor(err), failure(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Message-Id", id)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := context.WithoutCancel(r.Context())
	if _, err := s.orch.HandleStreamingQuery(ctx, q, id, &sseNotifier{w: w, flusher: flusher}); err != nil {
		s.logger.Info("stream query failed", zap.String("message_id", id), zap.Error(err))
	}
}

// ============================================================================
// WEBSOCKET
// ============================================================================

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSRequest is one request frame on /v1/ws.
type WSRequest struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSResponse answers a WSRequest. Stream events are pushed as
// orchestrator.Event frames carrying their own type.
type WSResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Result
}

// wsConn serializes writes to one WebSocket and remembers the streams it
// started.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex

	streamsMu sync.Mutex
	streams   map[string]struct{}
}

func (c *wsConn) own(messageID string, live bool) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	if c.streams == nil {
		c.streams = make(map[string]struct{})
	}
	if live {
		c.streams[messageID] = struct{}{}
	} else {
		delete(c.streams, messageID)
	}
}

func (c *wsConn) owned() []string {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	ids := make([]string, 0, len(c.streams))
	for id := range c.streams {
		ids = append(ids, id)
	}
	return ids
}

func (c *wsConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Notify implements orchestrator.Notifier.
func (c *wsConn) Notify(ev orchestrator.Event) error {
	return c.write(ev)
}

// handleWebSocket handles GET /v1/ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()

	ws := &wsConn{conn: conn}
	s.track(ws, true)
	ctx := context.WithoutCancel(r.Context())
	done := make(chan struct{})

	var pending sync.WaitGroup
	defer func() {
		close(done)
		if ids := ws.owned(); len(ids) > 0 {
			s.orch.State().CloseStreams(ids...)
			s.logger.Debug("websocket closed with live streams", zap.Strings("message_ids", ids))
		}
		pending.Wait()
		s.track(ws, false)
		conn.Close()
	}()

	conn.SetReadLimit(maxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	pending.Add(1)
	go func() {
		defer pending.Done()
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := ws.ping(); err != nil {
					return
				}
			}
		}
	}()

	s.logger.Debug("websocket connected", zap.String("ip", GetClientIP(r)))
	for {
		var req WSRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		pending.Add(1)
		go func(req WSRequest) {
			defer pending.Done()
			s.serveWS(ctx, ws, req)
		}(req)
	}
}

func (s *Server) track(ws *wsConn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.sockets[ws] = struct{}{}
	} else {
		delete(s.sockets, ws)
	}
}

// closeSockets sends a close frame to every WebSocket client, which ends
// their read loops.
func (s *Server) closeSockets() {
	s.mu.RLock()
	open := make([]*wsConn, 0, len(s.sockets))
	for ws := range s.sockets {
		open = append(open, ws)
	}
	s.mu.RUnlock()

	for _, ws := range open {
		ws.mu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.mu.Unlock()
		_ = ws.conn.SetReadDeadline(time.Now())
	}
}

// serveWS answers one WebSocket request.
func (s *Server) serveWS(ctx context.Context, ws *wsConn, req WSRequest) {
	reply := func(res Result) {
		if err := ws.write(WSResponse{ID: req.ID, Type: "result", Result: res}); err != nil {
			s.logger.Debug("websocket reply dropped", zap.String("id", req.ID), zap.Error(err))
		}
	}

	if req.Action != ActionQueryStream {
		data, err := s.dispatch(ctx, req.Action, req.Payload)
		if err != nil {
			reply(failure(err.Error()))
			return
		}
		reply(success(data))
		return
	}

	q, id, err := s.parseQuery(req.Payload)
	if err != nil {
		reply(failure(err.Error()))
		return
	}
	reply(success(map[string]string{"messageId": id}))
	ws.own(id, true)
	defer ws.own(id, false)
	if _, err := s.orch.HandleStreamingQuery(ctx, q, id, ws); err != nil {
		s.logger.Info("stream query failed", zap.String("message_id", id), zap.Error(err))
	}
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server started", zap.String("addr", ln.Addr().String()), zap.String("version", s.version))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, closes WebSocket sessions and waits
// for their in-flight work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	var err error
	if srv != nil {
		s.logger.Info("server shutting down")
		err = srv.Shutdown(ctx)
	}
	s.closeSockets()
	defer s.orch.State().CloseAllStreams()

	waited := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult writes a tagged result.
func writeResult(w http.ResponseWriter, status int, res Result) {
	writeJSON(w, status, res)
}
