package server

import (
	"net"

	"github.com/rs/zerolog/log"

	"github.com/binarycache/gomemd/cache"
	"github.com/binarycache/gomemd/protocol"
)

// Session holds one connection's protocol state: the unparsed bytes
// received so far, and, while a response is larger than MaxWriteSize, the
// remainder still waiting to go out.
type Session struct {
	conn  net.Conn
	cache *cache.Cache

	worker *Worker
	ctl    chan<- controlRecord

	in []byte // bytes received but not yet parsed into a complete request

	out    []byte // pending response bytes, nil when idle
	outPos int
}

// NewSession wires a freshly accepted connection to the cache it serves
// and the control channel its worker uses to pace large writes.
func NewSession(conn net.Conn, c *cache.Cache, ctl chan<- controlRecord) *Session {
	return &Session{conn: conn, cache: c, ctl: ctl}
}

// writing reports whether a response write is still in flight.
func (s *Session) writing() bool { return s.out != nil }

// ProcessChunk is called by a worker for a WorkRead item: it appends freshly
// read bytes to the session's buffer, waits for a complete request, and
// dispatches it. A session handles exactly one request in flight at a
// time: bytes arriving while a response is still writing, a first byte
// that isn't the request magic, or a request buffer that grows past its
// own declared bodylen are all protocol violations, and ProcessChunk
// reports false for all three so the caller closes the connection. An
// empty data is ignored and reports true.
func (s *Session) ProcessChunk(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if s.writing() {
		return false
	}
	if len(s.in) == 0 && data[0] != protocol.MagicRequest {
		return false
	}

	s.in = append(s.in, data...)
	if len(s.in) < protocol.HeaderSize {
		return true
	}

	h := protocol.DecodeHeader(s.in)
	if status, ok := s.validateRequest(h); !ok {
		s.errorResponse(h, status)
		s.in = nil
		// EINVAL/UNKNOWN_COMMAND are recoverable, the connection stays
		// open for the next request; E2BIG leaves framing in an unknown
		// state and the session is closed.
		return status != protocol.StatusTooLarge
	}

	total := protocol.HeaderSize + int(h.BodyLen)
	switch {
	case len(s.in) < total:
		return true
	case len(s.in) > total:
		s.errorResponse(h, protocol.StatusInvalidArgs)
		s.in = nil
		return false
	}

	full := make([]byte, total)
	copy(full, s.in[:total])
	s.in = nil
	s.handleRequest(h, full)
	return true
}

// Control is invoked for a WorkCtl item: it resumes a paced write.
func (s *Session) Control() {
	s.continueWrite()
}

// handleRequest dispatches a validated, fully received request. full is
// the entire wire packet (24-byte header plus body) so handleSet can
// admit it into the cache without re-copying. validateRequest has already
// rejected any opcode other than GET/SET/DELETE, so every case here is
// reachable.
func (s *Session) handleRequest(h protocol.Header, full []byte) {
	switch h.Opcode {
	case protocol.OpGet:
		s.handleGet(h, full)
	case protocol.OpSet:
		s.handleSet(h, full)
	case protocol.OpDelete:
		s.handleDelete(h, full)
	}
}

func (s *Session) validateRequest(h protocol.Header) (protocol.Status, bool) {
	switch h.Opcode {
	case protocol.OpSet:
		return protocol.ValidateSet(h)
	case protocol.OpGet, protocol.OpDelete:
		return protocol.ValidateGetOrDelete(h)
	default:
		return protocol.StatusUnknownCommand, false
	}
}

// handleGet writes flags=0 in the response regardless of what the item was
// stored with: this wire contract never surfaces stored flags on read.
func (s *Session) handleGet(h protocol.Header, full []byte) {
	body := full[protocol.HeaderSize:]
	key := body[:h.KeyLen]
	value, _, _, ok := s.cache.GetValue(key)
	if !ok {
		s.errorResponse(h, protocol.StatusKeyNotFound)
		return
	}

	respBody := make([]byte, 4+len(value))
	copy(respBody[4:], value)

	header := protocol.EncodeResponseHeader(h, protocol.StatusSuccess, 4, 0, uint32(len(respBody)))
	s.beginWrite(append(header, respBody...))
}

// handleSet admits full — the 24-byte wire header plus extras/key/value —
// as the item's backing buffer, so the cache's per-entry memory
// accounting covers the whole received packet, not just its body.
func (s *Session) handleSet(h protocol.Header, full []byte) {
	extras := full[protocol.HeaderSize : protocol.HeaderSize+8]
	flags := getUint32(extras[:4])

	keyStart := protocol.HeaderSize + 8
	keyEnd := keyStart + int(h.KeyLen)
	item := cache.NewItem(full, full[protocol.HeaderSize:keyStart], full[keyStart:keyEnd], full[keyEnd:], flags, h.Cas)

	var err error
	if h.Cas != 0 {
		err = s.cache.Cas(item, h.Cas)
	} else {
		err = s.cache.Set(item)
	}

	switch err {
	case nil:
		s.respondEmpty(h, protocol.StatusSuccess)
	case cache.ErrKeyExists:
		s.errorResponse(h, protocol.StatusKeyExists)
	case cache.ErrTooLarge:
		s.errorResponse(h, protocol.StatusTooLarge)
	default:
		log.Error().Err(err).Msg("unexpected cache.Set error")
		s.errorResponse(h, protocol.StatusInvalidArgs)
	}
}

func (s *Session) handleDelete(h protocol.Header, full []byte) {
	body := full[protocol.HeaderSize:]
	key := body[:h.KeyLen]
	err := s.cache.Remove(key, h.Cas)
	switch err {
	case nil:
		s.respondEmpty(h, protocol.StatusSuccess)
	case cache.ErrKeyExists:
		s.errorResponse(h, protocol.StatusKeyExists)
	default:
		log.Error().Err(err).Msg("unexpected cache.Remove error")
		s.errorResponse(h, protocol.StatusInvalidArgs)
	}
}

// respondEmpty builds a bodyless success/error response. Every response
// reuses the request's opaque and cas verbatim (EncodeResponseHeader's
// job), so there is nothing else to fill in here.
func (s *Session) respondEmpty(req protocol.Header, status protocol.Status) {
	header := protocol.EncodeResponseHeader(req, status, 0, 0, 0)
	s.beginWrite(header)
}

// errorResponse builds a header carrying the failing status with a
// plain-text reason string as the body.
func (s *Session) errorResponse(req protocol.Header, status protocol.Status) {
	reason := protocol.ErrorText(status)
	header := protocol.EncodeResponseHeader(req, status, 0, 0, uint32(len(reason)))
	s.beginWrite(append(header, reason...))
}

// beginWrite starts writing resp, pacing it across MaxWriteSize chunks if
// it's larger than that.
func (s *Session) beginWrite(resp []byte) {
	s.out = resp
	s.outPos = 0
	s.continueWrite()
}

// continueWrite writes up to MaxWriteSize more bytes of the pending
// response. If bytes remain afterwards, it hands a write-resume record to
// the control channel instead of looping itself, so the worker's FIFO gets
// a turn for other sessions before this one writes again.
func (s *Session) continueWrite() {
	if s.out == nil {
		return
	}

	end := s.outPos + MaxWriteSize
	if end > len(s.out) {
		end = len(s.out)
	}

	n, err := s.socketWrite(s.out[s.outPos:end])
	s.outPos += n
	if err != nil {
		log.Error().Err(err).Msg("session write failed")
		s.Close()
		return
	}

	if s.outPos >= len(s.out) {
		s.out = nil
		s.outPos = 0
		return
	}

	s.ctl <- controlRecord{session: s, worker: s.worker}
}

func (s *Session) socketWrite(buf []byte) (int, error) {
	return s.conn.Write(buf)
}

// Close tears down the session's connection. Safe to call more than once.
func (s *Session) Close() {
	_ = s.conn.Close()
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
