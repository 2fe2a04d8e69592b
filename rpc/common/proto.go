package common

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is a single, fully buffered protocol frame. It is either a command
// sent by a client or a response sent by the server. The set of
// implementations is closed: every concrete type lives in this file and the
// unexported marker method keeps other packages from adding new ones.
//
// A Message is immutable once constructed. Callers must not modify the
// slices they passed to a factory function after the message was built.
type Message interface {
	// Type returns the wire tag of the message.
	Type() MessageType
	isMessage()
}

// KV is a single key/value pair as carried by Write commands and Pairs responses.
type KV struct {
	Key   []byte
	Value []byte
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// WriteCmd stores every pair in order.
type WriteCmd struct {
	Pairs []KV
}

// ReadCmd looks up every key in order.
type ReadCmd struct {
	Keys [][]byte
}

// DeleteCmd removes every key in order.
type DeleteCmd struct {
	Keys [][]byte
}

// UseCmd attaches the named database and selects it for the connection.
type UseCmd struct {
	Name []byte
}

// CurrentDBCmd asks for the name of the selected database.
type CurrentDBCmd struct{}

// ListDBCmd asks for the names of all attached databases.
type ListDBCmd struct{}

// DetachCmd removes the named database from the registry.
type DetachCmd struct {
	Name []byte
}

// RangeCmd is one of the six range commands. Kind is the wire tag and
// decides where the scan starts, its direction and whether the boundary
// key is part of the result. Key is only used by the RangeFrom* kinds.
type RangeCmd struct {
	Kind     MessageType
	PageSize uint16
	Key      []byte
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// OkResp signals success with a human-readable message.
type OkResp struct {
	Message string
}

// ErrorResp signals a recoverable failure with a human-readable message.
type ErrorResp struct {
	Message string
}

// TokenResp carries a single token. An empty token means "none".
type TokenResp struct {
	Token []byte
}

// TokensResp carries a list of tokens. Empty entries mean "none" for their slot.
type TokensResp struct {
	Tokens [][]byte
}

// PairsResp carries an ordered list of key/value pairs.
type PairsResp struct {
	Pairs []KV
}

func (*WriteCmd) Type() MessageType     { return MsgTWrite }
func (*ReadCmd) Type() MessageType      { return MsgTRead }
func (*DeleteCmd) Type() MessageType    { return MsgTDelete }
func (*UseCmd) Type() MessageType       { return MsgTUse }
func (*CurrentDBCmd) Type() MessageType { return MsgTCurrentDB }
func (*ListDBCmd) Type() MessageType    { return MsgTListDB }
func (*DetachCmd) Type() MessageType    { return MsgTDetach }
func (m *RangeCmd) Type() MessageType   { return m.Kind }
func (*OkResp) Type() MessageType       { return MsgTOk }
func (*ErrorResp) Type() MessageType    { return MsgTError }
func (*TokenResp) Type() MessageType    { return MsgTToken }
func (*TokensResp) Type() MessageType   { return MsgTTokens }
func (*PairsResp) Type() MessageType    { return MsgTPairs }

func (*WriteCmd) isMessage()     {}
func (*ReadCmd) isMessage()      {}
func (*DeleteCmd) isMessage()    {}
func (*UseCmd) isMessage()       {}
func (*CurrentDBCmd) isMessage() {}
func (*ListDBCmd) isMessage()    {}
func (*DetachCmd) isMessage()    {}
func (*RangeCmd) isMessage()     {}
func (*OkResp) isMessage()       {}
func (*ErrorResp) isMessage()    {}
func (*TokenResp) isMessage()    {}
func (*TokensResp) isMessage()   {}
func (*PairsResp) isMessage()    {}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewWriteRequest creates a new Write request
func NewWriteRequest(pairs ...KV) *WriteCmd {
	return &WriteCmd{Pairs: normPairs(pairs)}
}

// NewReadRequest creates a new Read request
func NewReadRequest(keys ...[]byte) *ReadCmd {
	return &ReadCmd{Keys: normTokens(keys)}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(keys ...[]byte) *DeleteCmd {
	return &DeleteCmd{Keys: normTokens(keys)}
}

// NewUseRequest creates a new Use request
func NewUseRequest(name string) *UseCmd {
	return &UseCmd{Name: normToken([]byte(name))}
}

// NewCurrentDBRequest creates a new CurrentDb request
func NewCurrentDBRequest() *CurrentDBCmd {
	return &CurrentDBCmd{}
}

// NewListDBRequest creates a new ListDb request
func NewListDBRequest() *ListDBCmd {
	return &ListDBCmd{}
}

// NewDetachRequest creates a new Detach request
func NewDetachRequest(name string) *DetachCmd {
	return &DetachCmd{Name: normToken([]byte(name))}
}

// NewRangeBeginRequest creates a range request starting at the smallest key
func NewRangeBeginRequest(pageSize uint16) *RangeCmd {
	return &RangeCmd{Kind: MsgTRangeBegin, PageSize: pageSize}
}

// NewRangeEndRequest creates a range request starting at the largest key and walking backwards
func NewRangeEndRequest(pageSize uint16) *RangeCmd {
	return &RangeCmd{Kind: MsgTRangeEnd, PageSize: pageSize}
}

// NewRangeFromRequest creates a range request starting at key.
// desc selects the direction, exclusive drops a pair whose key equals key.
func NewRangeFromRequest(pageSize uint16, key []byte, desc, exclusive bool) *RangeCmd {
	var kind MessageType
	switch {
	case !desc && !exclusive:
		kind = MsgTRangeFromAsc
	case !desc && exclusive:
		kind = MsgTRangeFromAscEx
	case desc && !exclusive:
		kind = MsgTRangeFromDesc
	default:
		kind = MsgTRangeFromDescEx
	}
	return &RangeCmd{Kind: kind, PageSize: pageSize, Key: normToken(key)}
}

// NewOkResponse creates a new Ok response
func NewOkResponse(msg string) *OkResp {
	return &OkResp{Message: msg}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(msg string) *ErrorResp {
	return &ErrorResp{Message: msg}
}

// NewErrorResponsef creates a new Error response with a formatted message
func NewErrorResponsef(format string, args ...interface{}) *ErrorResp {
	return &ErrorResp{Message: fmt.Sprintf(format, args...)}
}

// NewTokenResponse creates a new Token response
func NewTokenResponse(token []byte) *TokenResp {
	return &TokenResp{Token: normToken(token)}
}

// NewTokensResponse creates a new Tokens response
func NewTokensResponse(tokens [][]byte) *TokensResp {
	return &TokensResp{Tokens: normTokens(tokens)}
}

// NewPairsResponse creates a new Pairs response
func NewPairsResponse(pairs []KV) *PairsResp {
	return &PairsResp{Pairs: normPairs(pairs)}
}

// The factories bring messages into the form the decoder produces: a missing
// token is an empty, non-nil slice and an empty list is nil. Elements of the
// given slices are normalised in place.

func normToken(t []byte) []byte {
	if t == nil {
		return []byte{}
	}
	return t
}

func normTokens(ts [][]byte) [][]byte {
	if len(ts) == 0 {
		return nil
	}
	for i := range ts {
		ts[i] = normToken(ts[i])
	}
	return ts
}

func normPairs(pairs []KV) []KV {
	if len(pairs) == 0 {
		return nil
	}
	for i := range pairs {
		pairs[i].Key = normToken(pairs[i].Key)
		pairs[i].Value = normToken(pairs[i].Value)
	}
	return pairs
}

// --------------------------------------------------------------------------
// Message Type
// --------------------------------------------------------------------------

// MessageType is the one byte tag at the start of every frame.
type MessageType uint8

// IsCommand reports whether the tag belongs to a command.
func (t MessageType) IsCommand() bool {
	switch t {
	case MsgTWrite, MsgTDelete, MsgTRead, MsgTUse, MsgTCurrentDB, MsgTListDB, MsgTDetach,
		MsgTRangeBegin, MsgTRangeEnd, MsgTRangeFromAsc, MsgTRangeFromAscEx, MsgTRangeFromDesc, MsgTRangeFromDescEx:
		return true
	}
	return false
}

// IsResponse reports whether the tag belongs to a response.
func (t MessageType) IsResponse() bool {
	switch t {
	case MsgTOk, MsgTError, MsgTToken, MsgTTokens, MsgTPairs:
		return true
	}
	return false
}

// IsRange reports whether the tag is one of the range commands.
func (t MessageType) IsRange() bool {
	return t >= MsgTRangeBegin && t <= MsgTRangeFromDescEx
}

// String returns a string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgTWrite:
		return "write"
	case MsgTDelete:
		return "delete"
	case MsgTRead:
		return "read"
	case MsgTUse:
		return "use"
	case MsgTCurrentDB:
		return "currentDb"
	case MsgTListDB:
		return "listDb"
	case MsgTDetach:
		return "detach"
	case MsgTRangeBegin:
		return "rangeBegin"
	case MsgTRangeEnd:
		return "rangeEnd"
	case MsgTRangeFromAsc:
		return "rangeFromAsc"
	case MsgTRangeFromAscEx:
		return "rangeFromAscEx"
	case MsgTRangeFromDesc:
		return "rangeFromDesc"
	case MsgTRangeFromDescEx:
		return "rangeFromDescEx"
	case MsgTOk:
		return "ok"
	case MsgTError:
		return "error"
	case MsgTToken:
		return "token"
	case MsgTTokens:
		return "tokens"
	case MsgTPairs:
		return "pairs"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// Database commands

	MsgTWrite     MessageType = 0x01 // Store key/value pairs
	MsgTDelete    MessageType = 0x02 // Delete keys
	MsgTRead      MessageType = 0x03 // Read keys
	MsgTUse       MessageType = 0x04 // Attach and select a database
	MsgTCurrentDB MessageType = 0x05 // Name of the selected database
	MsgTListDB    MessageType = 0x06 // Names of all attached databases
	MsgTDetach    MessageType = 0x07 // Remove a database from the registry

	// Range commands

	MsgTRangeBegin      MessageType = 0x31 // First n pairs ascending
	MsgTRangeEnd        MessageType = 0x32 // Last n pairs descending
	MsgTRangeFromAsc    MessageType = 0x33 // n pairs ascending from key, inclusive
	MsgTRangeFromAscEx  MessageType = 0x34 // n pairs ascending from key, exclusive
	MsgTRangeFromDesc   MessageType = 0x35 // n pairs descending from key, inclusive
	MsgTRangeFromDescEx MessageType = 0x36 // n pairs descending from key, exclusive

	// Responses

	MsgTOk     MessageType = 0x55 // Success with message
	MsgTError  MessageType = 0x56 // Failure with message
	MsgTToken  MessageType = 0x57 // Single token
	MsgTTokens MessageType = 0x58 // List of tokens
	MsgTPairs  MessageType = 0x59 // List of key/value pairs
)

// AllMessageTypes lists every tag of the protocol, commands first.
var AllMessageTypes = []MessageType{
	MsgTWrite, MsgTDelete, MsgTRead, MsgTUse, MsgTCurrentDB, MsgTListDB, MsgTDetach,
	MsgTRangeBegin, MsgTRangeEnd, MsgTRangeFromAsc, MsgTRangeFromAscEx, MsgTRangeFromDesc, MsgTRangeFromDescEx,
	MsgTOk, MsgTError, MsgTToken, MsgTTokens, MsgTPairs,
}
