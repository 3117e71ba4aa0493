package server

import "github.com/rs/zerolog/log"

// Worker owns one FIFO queue of WorkItems and the goroutine that drains it.
// Routing every item for a given session through the same worker's queue
// keeps that session's requests processed in order; routing different
// sessions across several workers is what lets the server use more than
// one goroutine's worth of CPU for request handling.
//
// A server configured for a single worker ends up with exactly one
// goroutine ever touching the cache: Push only ever sends onto a channel,
// and only run's goroutine receives from it, so cache access is serialized
// by construction and the cache can be built without its lock (see
// server.go) — reached through goroutine ownership rather than by fusing
// the reactor and worker onto one thread.
type Worker struct {
	id    int
	queue chan WorkItem
}

// NewWorker starts a worker with its own queue and dispatch goroutine.
func NewWorker(id int) *Worker {
	w := &Worker{id: id, queue: make(chan WorkItem, workerQueueSize)}
	go w.run()
	return w
}

// Push enqueues item for this worker. Blocks if the queue is momentarily
// full rather than dropping work (the queue is sized generously; see
// config.go).
func (w *Worker) Push(item WorkItem) {
	w.queue <- item
}

func (w *Worker) run() {
	for item := range w.queue {
		w.handle(item)
	}
}

func (w *Worker) handle(item WorkItem) {
	switch item.Kind {
	case WorkRead:
		if !item.Session.ProcessChunk(item.Data) {
			item.Session.Close()
		}
	case WorkCtl:
		item.Session.Control()
	case WorkClose:
		item.Session.Close()
	default:
		log.Error().Int("kind", int(item.Kind)).Msg("unknown work item kind")
	}
}
