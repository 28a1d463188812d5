// Package http implements the HTTP/WebSocket transport.
//
// It exposes a REST API for whole-project and single-text generation and a
// WebSocket endpoint that streams lines as they are emitted. Each WebSocket
// connection owns one orchestrator, so a new request on a connection
// supersedes the run in flight.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/voicestudio/docs" // registers the OpenAPI document
	"github.com/nadzzz/voicestudio/internal/message"
	"github.com/nadzzz/voicestudio/internal/orchestrator"
	"github.com/nadzzz/voicestudio/internal/transport"
)

const maxBody = 10 << 20

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port     int
	svc      *transport.Service
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new HTTP transport on the given port.
func New(port int, svc *transport.Service) *Transport {
	return &Transport{
		port: port,
		svc:  svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the API routes.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/generate", t.handleGenerate)
	mux.HandleFunc("POST /v1/speak", t.handleSpeak)
	mux.HandleFunc("GET /v1/backends", t.handleBackends)
	mux.HandleFunc("GET /v1/generate/ws", t.handleGenerateWS)

	// Swagger UI, served from the registered OpenAPI doc.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server.
func (t *Transport) Listen(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// handleGenerate generates a whole project.
//
// @Summary     Generate a project
// @Description Synthesizes every dialogue line of a project, or a single text, and returns the lines
// @Description in segment and dialogue order. Blank lines are returned as skipped with no audio.
// @Tags        generate
// @Accept      json
// @Produce     json
// @Param       request  body      message.GenerateRequest   true  "Project (import format) or text, plus optional settings overrides"
// @Success     200      {object}  message.GenerateResponse  "Ordered line results with base64 audio"
// @Failure     400      {object}  message.Error             "Invalid request or empty project"
// @Failure     502      {object}  message.Error             "Remote synthesis service error"
// @Failure     503      {object}  message.Error             "No synthesis backend available"
// @Router      /v1/generate [post]
func (t *Transport) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req message.GenerateRequest
	if !decode(w, r, &req) {
		return
	}

	o := t.svc.Orchestrator()
	resp := message.GenerateResponse{Lines: []message.Line{}}
	err := t.svc.Generate(r.Context(), o, req, func(l orchestrator.Line) error {
		resp.Lines = append(resp.Lines, message.FromLine(l))
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_, resp.RunID = o.Status()
	writeJSON(w, http.StatusOK, resp)
}

// handleSpeak synthesizes a single text and returns the audio.
//
// @Summary     Speak a single text
// @Tags        generate
// @Accept      json
// @Produce     audio/wav
// @Param       request  body      message.SpeakRequest  true  "Text, optional voice and settings overrides"
// @Success     200      {file}    binary                "Synthesized audio"
// @Failure     400      {object}  message.Error         "Empty text or invalid settings"
// @Failure     502      {object}  message.Error         "Remote synthesis service error"
// @Failure     503      {object}  message.Error         "No synthesis backend available"
// @Router      /v1/speak [post]
func (t *Transport) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req message.SpeakRequest
	if !decode(w, r, &req) {
		return
	}
	line, err := t.svc.Speak(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	ct := line.ContentType
	if ct == "" {
		ct = "audio/wav"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Voicestudio-Backend", line.Backend)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(line.Audio)
}

// handleBackends reports the selector state of every backend.
//
// @Summary     Backend availability
// @Tags        backends
// @Produce     json
// @Success     200  {array}  selector.Status
// @Router      /v1/backends [get]
func (t *Transport) handleBackends(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, t.svc.Backends.Snapshot())
}

// handleGenerateWS streams generation results over a WebSocket.
//
// @Summary     Stream a generation
// @Description Each client message is a generate request ({"type":"generate", ...}), "cancel" or "ping".
// @Description Lines are sent as {"type":"line"} events in source order, followed by "done", "error"
// @Description or "superseded" when a newer request on the same connection replaces the run.
// @Tags        generate
// @Router      /v1/generate/ws [get]
func (t *Transport) handleGenerateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	s := &socket{conn: conn, svc: t.svc, orch: t.svc.Orchestrator()}
	s.serve(r.Context())
}

type socket struct {
	conn *websocket.Conn
	svc  *transport.Service
	orch *orchestrator.Orchestrator

	// pending holds the next request; a newer one replaces it.
	pending chan queued
	writeMu sync.Mutex

	mu   sync.Mutex
	seq  uint64                  // sequence of the latest submitted request
	stop context.CancelCauseFunc // cancels the admitted request
}

type queued struct {
	req message.GenerateRequest
	seq uint64
}

func (s *socket) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.pending = make(chan queued, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()
	defer func() {
		cancel()
		s.interrupt()
		wg.Wait()
		_ = s.conn.Close()
	}()

	logger := slog.With("remote", s.conn.RemoteAddr().String())
	logger.Info("websocket connection established")

	for {
		var req message.SocketRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			} else {
				logger.Info("websocket connection closed")
			}
			return
		}

		switch req.Type {
		case message.RequestPing:
			_ = s.send(message.Event{Type: message.EventPong})
		case message.RequestCancel:
			s.interrupt()
		case message.RequestGenerate, "":
			s.submit(req.GenerateRequest)
		default:
			_ = s.send(message.Event{Type: message.EventError, Error: "unknown message type: " + req.Type})
		}
	}
}

// submit supersedes the active run and queues req behind it.
func (s *socket) submit(req message.GenerateRequest) {
	q := queued{req: req, seq: s.interruptNext()}
	for {
		select {
		case s.pending <- q:
			return
		case <-s.pending:
			_ = s.send(message.Event{Type: message.EventSuperseded})
		}
	}
}

// interrupt supersedes the admitted request, whether or not its run has
// started yet.
func (s *socket) interrupt() {
	s.mu.Lock()
	if s.stop != nil {
		s.stop(orchestrator.ErrSuperseded)
		s.stop = nil
	}
	s.mu.Unlock()
	s.orch.Cancel()
}

// interruptNext is interrupt plus a new request sequence number.
func (s *socket) interruptNext() uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	s.interrupt()
	return seq
}

// admit returns the context to run q under, or false when a newer request
// was submitted after q was queued.
func (s *socket) admit(ctx context.Context, q queued) (context.Context, context.CancelCauseFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.seq != s.seq {
		return nil, nil, false
	}
	rctx, stop := context.WithCancelCause(ctx)
	s.stop = stop
	return rctx, stop, true
}

// work runs queued requests one at a time, in arrival order.
func (s *socket) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-s.pending:
			rctx, stop, ok := s.admit(ctx, q)
			if !ok {
				_ = s.send(message.Event{Type: message.EventSuperseded})
				continue
			}
			s.generate(rctx, q.req)
			stop(nil)
		}
	}
}

func (s *socket) generate(ctx context.Context, req message.GenerateRequest) {
	var runID string
	emitted := 0
	err := s.svc.Generate(ctx, s.orch, req, func(l orchestrator.Line) error {
		runID = l.RunID
		line := message.FromLine(l)
		emitted++
		return s.send(message.Event{Type: message.EventLine, RunID: runID, Line: &line})
	})

	switch {
	case err == nil:
		_ = s.send(message.Event{Type: message.EventDone, RunID: runID, Lines: emitted})
	case errors.Is(err, orchestrator.ErrSuperseded):
		_ = s.send(message.Event{Type: message.EventSuperseded, RunID: runID})
	default:
		_ = s.send(message.Event{Type: message.EventError, RunID: runID, Error: err.Error()})
	}
}

func (s *socket) send(evt message.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(evt); err != nil {
		slog.Debug("websocket send failed", "error", err)
		return err
	}
	return nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, message.Error{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch transport.Classify(err) {
	case transport.KindInvalid:
		status = http.StatusBadRequest
	case transport.KindUnavailable:
		status = http.StatusServiceUnavailable
	case transport.KindUpstream:
		status = http.StatusBadGateway
	case transport.KindCancelled:
		status = http.StatusConflict
	default:
		slog.Error("generation failed", "error", err)
	}
	writeJSON(w, status, message.Error{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
