// Package server implements the reactor/worker-pool architecture that
// turns the cache package into a network service: accepting connections,
// parsing the wire protocol per session, and dispatching requests onto a
// small pool of worker goroutines.
package server

import (
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/binarycache/gomemd/cache"
)

// Server owns the listener, the cache and the worker pool for one running
// instance.
type Server struct {
	cfg     Config
	cache   *cache.Cache
	workers []*Worker
	reactor *Reactor
}

// New builds a Server from cfg but does not yet start accepting
// connections; call Run for that. The number of worker goroutines is
// exactly cfg.Threads (minimum 1). Run/Serve runs the reactor's accept loop
// on the calling goroutine, which also starts one control-drain goroutine
// and one reader goroutine per connection.
//
// A single-worker configuration needs no lock on the cache at all: every
// cache access happens inside that one worker's dispatch goroutine (see
// worker.go), so the lock would only ever be uncontended. Configurations
// with more than one worker enable the cache's lock since multiple
// goroutines then call into it concurrently.
func New(cfg Config) *Server {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.CacheMB <= 0 {
		cfg.CacheMB = DefaultConfig().CacheMB
	}

	maxBytes := uint64(cfg.CacheMB) * 1024 * 1024
	threadSafe := cfg.Threads > 1
	c := cache.New(maxBytes, threadSafe, func(key, _ interface{}) {
		log.Debug().Interface("key", key).Msg("evicted")
	})

	workers := make([]*Worker, cfg.Threads)
	for i := range workers {
		workers[i] = NewWorker(i)
	}

	return &Server{cfg: cfg, cache: c, workers: workers}
}

// Run listens on the configured address and blocks serving connections
// until the listener fails or is closed.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ListenAddr, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve runs the reactor loop over an already-open listener, blocking
// until it fails or is closed. Split out from Run so tests can bind an
// ephemeral port themselves and still reach the listener's address before
// Serve blocks.
func (s *Server) Serve(ln net.Listener) error {
	s.reactor = NewReactor(ln, s.workers, s.cache, s.cfg.MaxConns)
	log.Info().
		Str("addr", ln.Addr().String()).
		Int("threads", s.cfg.Threads).
		Int("cache_mb", s.cfg.CacheMB).
		Msg("server listening")

	return s.reactor.Run()
}

// Addr returns the listener's bound address; valid only after Run has
// started listening. Used by tests to connect to an ephemeral port.
func (s *Server) Addr() net.Addr {
	if s.reactor == nil {
		return nil
	}
	return s.reactor.listener.Addr()
}

// Cache exposes the underlying cache, mainly for tests and metrics.
func (s *Server) Cache() *cache.Cache { return s.cache }
