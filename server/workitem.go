package server

// WorkKind identifies what a worker should do with a WorkItem: feed it
// freshly read bytes, resume a paced write, or tear the session down.
type WorkKind int

const (
	// WorkRead carries bytes freshly read off a session's connection.
	WorkRead WorkKind = iota
	// WorkCtl resumes a session's paced write after a control-channel
	// round trip, giving other sessions a turn on the worker's queue
	// between write chunks.
	WorkCtl
	// WorkClose tells the worker the session's connection is gone and it
	// should tear the session down.
	WorkClose
)

// WorkItem is the unit of work a worker's FIFO carries. Every item names
// the session it belongs to, so a single worker queue can interleave
// chunks from many connections without losing per-connection order.
type WorkItem struct {
	Session *Session
	Kind    WorkKind
	Data    []byte
}
