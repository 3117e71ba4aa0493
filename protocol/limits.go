package protocol

// Wire-level limits on key and value size.
const (
	MaxKeyLen   = 250
	MaxValueLen = 1024 * 1024 // 1 MiB
)

// ValidateSet checks a SET request header's framing. ok is false alongside
// the status to return on the wire.
func ValidateSet(h Header) (status Status, ok bool) {
	if h.ExtLen != 8 || h.KeyLen == 0 || h.BodyLen < uint32(h.KeyLen)+8 || h.KeyLen > MaxKeyLen {
		return StatusInvalidArgs, false
	}
	if h.BodyLen > MaxValueLen+uint32(h.KeyLen)+8 {
		return StatusTooLarge, false
	}
	return StatusSuccess, true
}

// ValidateGetOrDelete checks a GET/DELETE request header: extlen must be
// zero, a key must be present, and bodylen must equal keylen exactly
// (no extras, no value).
func ValidateGetOrDelete(h Header) (status Status, ok bool) {
	if h.ExtLen != 0 || h.KeyLen == 0 || h.BodyLen != uint32(h.KeyLen) {
		return StatusInvalidArgs, false
	}
	return StatusSuccess, true
}
