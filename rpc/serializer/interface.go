package serializer

import (
	"io"

	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize encodes a single Message into one complete frame.
	// It fails with ErrMessageTooLarge if a length or count does not fit its field
	// and with ErrTextEncoding if an Ok/Error message is not valid UTF-8.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize reads exactly one frame from r.
	// It returns io.EOF unchanged if r ends before the first byte of a frame.
	// Any other malformed input fails with ErrMalformedProtocol or ErrTextEncoding.
	Deserialize(r io.Reader) (common.Message, error)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrMalformedProtocol is returned for unknown tags, truncated frames and oversized tokens
	ErrMalformedProtocol = errors.New("malformed protocol")
	// ErrTextEncoding is returned when a text field is not valid UTF-8
	ErrTextEncoding = errors.New("invalid text encoding")
	// ErrMessageTooLarge is returned when a message cannot be represented on the wire
	ErrMessageTooLarge = errors.New("message too large")
)
