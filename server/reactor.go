package server

import (
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/binarycache/gomemd/cache"
)

// controlRecord is what a session sends on the control channel to resume a
// paced write. The reactor turns each one into a WorkCtl item on exactly
// the worker that already owns the session, which is why the record names
// both: write-resume signals route through this shared channel rather than
// landing directly on a worker's queue.
type controlRecord struct {
	session *Session
	worker  *Worker
}

// Reactor accepts connections, assigns each to a worker in round-robin
// order, and drains the shared control channel. It never parses protocol
// bytes itself: one reader goroutine per connection (pump) reads them,
// using an ordinary blocking read instead of a non-blocking poll loop, and
// the session parses them on its worker.
type Reactor struct {
	listener net.Listener
	rr       *RoundRobin
	cache    *cache.Cache
	ctl      chan controlRecord

	maxConns int
	active   int64
}

// NewReactor builds a reactor over listener, dispatching accepted
// connections across workers. maxConns <= 0 means unbounded.
func NewReactor(listener net.Listener, workers []*Worker, c *cache.Cache, maxConns int) *Reactor {
	return &Reactor{
		listener: listener,
		rr:       NewRoundRobin(workers),
		cache:    c,
		ctl:      make(chan controlRecord, controlChanSize),
		maxConns: maxConns,
	}
}

// Run accepts connections until the listener is closed or Accept fails.
func (r *Reactor) Run() error {
	go r.drainControl()

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.handleNewConnection(conn)
	}
}

func (r *Reactor) handleNewConnection(conn net.Conn) {
	if r.maxConns > 0 && atomic.LoadInt64(&r.active) >= int64(r.maxConns) {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("connection limit reached, rejecting")
		_ = conn.Close()
		return
	}
	atomic.AddInt64(&r.active, 1)

	w := r.rr.Next()
	s := NewSession(conn, r.cache, r.ctl)
	s.worker = w

	go r.pump(s, w)
}

// pump is the dedicated reader goroutine for one connection: it reads in
// bounded chunks and hands each chunk to the session's worker as a
// WorkRead item, preserving per-session order without blocking the worker
// on the read itself.
func (r *Reactor) pump(s *Session, w *Worker) {
	defer atomic.AddInt64(&r.active, -1)

	buf := make([]byte, ReadChunkSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			w.Push(WorkItem{Session: s, Kind: WorkRead, Data: chunk})
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("session read ended")
			}
			w.Push(WorkItem{Session: s, Kind: WorkClose})
			return
		}
	}
}

// drainControl converts each control record into a WorkCtl item on the
// worker that owns the session, one at a time, so concurrent write-resume
// signals across many sessions still interleave fairly through the shared
// channel rather than racing directly onto worker queues.
func (r *Reactor) drainControl() {
	for rec := range r.ctl {
		rec.worker.Push(WorkItem{Session: rec.session, Kind: WorkCtl})
	}
}
