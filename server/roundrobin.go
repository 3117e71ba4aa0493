package server

// RoundRobin assigns each newly accepted connection to a worker in
// rotation, spreading sessions evenly across whatever worker pool the
// server was configured with. Not safe for concurrent use: only the
// reactor goroutine calls Next.
type RoundRobin struct {
	workers []*Worker
	next    int
}

// NewRoundRobin returns a selector over workers. workers must be non-empty.
func NewRoundRobin(workers []*Worker) *RoundRobin {
	return &RoundRobin{workers: workers}
}

// Next returns the next worker in rotation.
func (r *RoundRobin) Next() *Worker {
	w := r.workers[r.next%len(r.workers)]
	r.next++
	return w
}
