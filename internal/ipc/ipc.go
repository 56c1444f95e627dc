// Package ipc serves the daemon's local control surface over a Unix
// domain socket, adapted from pkg/server's struct-holds-deps,
// Start/Shutdown lifecycle and one-handler-per-route dispatch shape,
// with HTTP/WebSocket replaced by newline-delimited JSON framing
// (spec.md §4.5 "Local control surface").
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/nstogner/lore/internal/store"
)

// Request is one line of client input: {"cmd":"status","args":{...}}.
type Request struct {
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response is one line of server output.
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Handler answers one command's args with a response payload or an error.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Server is the daemon's local control surface.
type Server struct {
	socketPath string
	store      store.Store
	log        *slog.Logger

	ln net.Listener

	mu       sync.Mutex
	handlers map[string]Handler

	// Shutdown is invoked synchronously by the "shutdown" command's
	// default handler, before the response is written. Wired by the
	// daemon to its own cancellation path.
	Shutdown func(ctx context.Context) error
	// ReloadConfig is invoked by "reload-config"; may be nil.
	ReloadConfig func(ctx context.Context) error
	// IngestNow is invoked by "ingest-now"; may be nil.
	IngestNow func(ctx context.Context) error
}

// New builds a Server listening at socketPath once Start is called.
// Registers the status/stats/shutdown/reload-config/ingest-now
// commands named in spec.md §4.5; additional commands can be added
// via Handle before Start.
func New(socketPath string, st store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		socketPath: socketPath,
		store:      st,
		log:        log,
		handlers:   make(map[string]Handler),
	}
	s.Handle("status", s.handleStatus)
	s.Handle("stats", s.handleStats)
	s.Handle("shutdown", s.handleShutdown)
	s.Handle("reload-config", s.handleReloadConfig)
	s.Handle("ingest-now", s.handleIngestNow)
	return s
}

// Handle registers a command handler, overwriting any existing one.
func (s *Server) Handle(cmd string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[cmd] = h
}

// Start binds the Unix socket and serves connections until ctx is
// cancelled. Removes any stale socket file left by a prior unclean
// shutdown before binding.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.ln = ln
	s.log.Info("ipc: listening", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	if s.ln != nil {
		s.ln.Close()
	}
	return os.RemoveAll(s.socketPath)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), 1<<20)
	enc := json.NewEncoder(conn)

	for sc.Scan() {
		var req Request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			enc.Encode(Response{OK: false, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		s.mu.Lock()
		h, ok := s.handlers[req.Cmd]
		s.mu.Unlock()
		if !ok {
			enc.Encode(Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)})
			continue
		}

		data, err := h(ctx, req.Args)
		if err != nil {
			enc.Encode(Response{OK: false, Error: err.Error()})
			continue
		}
		enc.Encode(Response{OK: true, Data: data})
	}
}

func (s *Server) handleStatus(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return map[string]interface{}{
		"running": true,
		"stats":   stats,
	}, nil
}

func (s *Server) handleStats(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

func (s *Server) handleShutdown(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	if s.Shutdown == nil {
		return nil, errors.New("shutdown not wired")
	}
	if err := s.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"status": "shutting down"}, nil
}

func (s *Server) handleReloadConfig(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	if s.ReloadConfig == nil {
		return nil, errors.New("reload-config not wired")
	}
	if err := s.ReloadConfig(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"status": "reloaded"}, nil
}

func (s *Server) handleIngestNow(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	if s.IngestNow == nil {
		return nil, errors.New("ingest-now not wired")
	}
	if err := s.IngestNow(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"status": "ingested"}, nil
}
