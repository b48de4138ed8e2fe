// Package server is the development server: it serves the output root,
// injects the live-reload client into HTML pages and hosts the reload
// WebSocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mailwright/mailwright/internal/config"
	"github.com/mailwright/mailwright/internal/logging"
	"github.com/mailwright/mailwright/internal/version"
	"github.com/mailwright/mailwright/internal/websocket"
)

// ReloadPath is where browsers connect for reload notifications.
const ReloadPath = "/__mailwright/ws"

const shutdownTimeout = 5 * time.Second

// Server serves the built emails with live reload.
type Server struct {
	config  config.ServerConfig
	root    string
	hub     *websocket.Hub
	logger  logging.Logger
	started time.Time

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        string
	ready       chan struct{}
}

// New creates a server for cfg's output root. The hub receives the reload
// connections and is shut down together with the server.
func New(cfg *config.Config, hub *websocket.Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		config: cfg.Server,
		root:   cfg.Paths.Output,
		hub:    hub,
		logger: logger.WithComponent("server"),
		ready:  make(chan struct{}),
	}
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ReloadPath, s.hub.HandleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleFiles)
	return s.addMiddleware(mux)
}

// Start listens and serves until ctx is canceled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMutex.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.started = time.Now()
	s.serverMutex.Unlock()
	close(s.ready)

	url := "http://" + s.Addr()
	s.logger.Info(ctx, "Serving emails", "url", url, "root", s.root)
	if s.config.Open {
		go s.openBrowser(ctx, url)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the address the server listens on, empty before Start.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Shutdown closes the reload hub and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down server")

	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, err, "Closing reload connections")
	}

	s.serverMutex.RLock()
	srv := s.httpServer
	s.serverMutex.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	urlPath := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.root, filepath.FromSlash(urlPath))

	info, err := os.Stat(name)
	if err == nil && info.IsDir() {
		index := filepath.Join(name, "index.html")
		if _, ierr := os.Stat(index); ierr == nil {
			s.serveHTML(w, r, index)
			return
		}
		if urlPath == "/" {
			s.serveIndex(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if strings.EqualFold(filepath.Ext(name), ".html") || strings.EqualFold(filepath.Ext(name), ".htm") {
		s.serveHTML(w, r, name)
		return
	}
	http.ServeFile(w, r, name)
}

func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, name string) {
	data, err := os.ReadFile(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(InjectReloadScript(data)); err != nil {
		s.logger.Debug(r.Context(), "Writing page failed", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	pages, err := listPages(s.root)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Listing emails")
	}
	handler := newIndexHandler(emailIndex(pages))
	handler.ServeHTTP(w, r)
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := version.Get()
	s.serverMutex.RLock()
	started := s.started
	s.serverMutex.RUnlock()

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    info.Short(),
		"build_info": info,
		"root":       s.root,
		"clients":    s.hub.ConnectedClients(),
	}
	if !started.IsZero() {
		health["uptime_seconds"] = int64(time.Since(started).Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Debug(r.Context(), "Encoding health response failed", "error", err)
	}
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		s.logger.Warn(ctx, nil, "Refusing to open non-HTTP URL", "url", url)
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
	}
}
