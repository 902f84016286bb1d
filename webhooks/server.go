package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-turns/core"
)

const defaultMaxBodyBytes = int64(1 << 20)

type ServerConfig struct {
	// Path the platform posts deliveries to and the install flow lives on.
	Path         string
	MaxBodyBytes int64
}

// Server adapts a Dispatcher to net/http.
type Server struct {
	dispatcher   *Dispatcher
	maxBodyBytes int64
	mux          *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
}

func NewServer(dispatcher *Dispatcher, cfg ServerConfig) *Server {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "/"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	s := &Server{
		dispatcher:   dispatcher,
		maxBodyBytes: maxBody,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc(path, s.handleDelivery)
	return s
}

func (s *Server) Start(addr string, handler http.Handler) error {
	if handler == nil {
		handler = s.mux
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()
	return httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer != nil {
		return httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	defer func() { _ = r.Body.Close() }()
	if err != nil {
		writeError(w, http.StatusBadRequest, core.ErrorBadInput, "failed to read request body")
		return
	}
	if int64(len(body)) > s.maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, core.ErrorBadInput, "request body too large")
		return
	}

	res, handleErr := s.dispatcher.Handle(r.Context(), core.InboundRequest{
		Method:  r.Method,
		Headers: flattenHeader(r.Header),
		Query:   flattenHeader(r.URL.Query()),
		Body:    body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		},
	})
	if handleErr != nil && len(res.Body) == 0 {
		status, textCode, message := res.StatusCode, core.ErrorInternal, handleErr.Error()
		var rich *goerrors.Error
		if goerrors.As(handleErr, &rich) {
			textCode, message = rich.TextCode, rich.Message
			if status == 0 {
				status = rich.Code
			}
		}
		writeError(w, status, textCode, message)
		return
	}
	writeResponse(w, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeResponse(w http.ResponseWriter, res core.Response) {
	for key, value := range res.Headers {
		w.Header().Set(key, value)
	}
	if len(res.Body) > 0 && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	status := res.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(res.Body) > 0 {
		_, _ = w.Write(res.Body)
	}
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, textCode, message string) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{TextCode: textCode, Message: message}})
}

func flattenHeader(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, items := range values {
		if len(items) > 0 {
			out[key] = items[0]
		}
	}
	return out
}
