package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/tsurube/tsurube/internal/stats"
	"github.com/tsurube/tsurube/internal/store"
)

type Config struct {
	ListenAddr  string
	BucketCount int
	Version     string
	Verbose     bool
	Logger      *slog.Logger
}

type Server struct {
	cfg     Config
	store   *store.Store
	stats   *stats.Counters
	version string

	mu        sync.RWMutex
	listener  net.Listener
	readyCh   chan struct{}
	readyOnce sync.Once
	closed    bool

	logger *slog.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	version := cfg.Version
	if version == "" {
		version = "0.0.0"
	}

	st := &stats.Counters{}
	return &Server{
		cfg:     cfg,
		store:   store.New(cfg.BucketCount, st),
		stats:   st,
		version: version,
		readyCh: make(chan struct{}),
		logger:  logger,
	}
}

func (s *Server) Ready() <-chan struct{} {
	return s.readyCh
}

func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })

	s.logf("listening on %s", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				s.logf("temporary accept error: %v", err)
				continue
			}
			s.logf("accept error: %v", err)
			return err
		}

		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) logf(format string, args ...any) {
	if !s.cfg.Verbose {
		return
	}
	s.logger.Info(fmt.Sprintf(format, args...))
}
