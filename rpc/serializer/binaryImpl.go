package serializer

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// NewBinarySerializer creates a new serializer for the binary wire format.
// Token lengths are only bounded by the 4 byte length field.
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// NewBinarySerializerWithLimit creates a binary serializer whose decoder rejects
// tokens longer than maxTokenSize bytes. A value <= 0 disables the limit.
func NewBinarySerializerWithLimit(maxTokenSize int) IRPCSerializer {
	if maxTokenSize < 0 {
		maxTokenSize = 0
	}
	return &binarySerializerImpl{maxTokenSize: maxTokenSize}
}

// binarySerializerImpl implements IRPCSerializer.
//
// Frame layout: [1 byte tag][payload]. A token is a big endian u32 length
// followed by that many bytes, a count is a big endian u16.
type binarySerializerImpl struct {
	maxTokenSize int
}

const (
	tokenHeaderSize = 4
	countSize       = 2

	// readChunkSize is the largest token allocated in one piece before its bytes arrive
	readChunkSize = 64 << 10
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b *binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.Wrap(ErrMalformedProtocol, "nil message")
	}

	// Calculate total size needed, this also validates all field widths
	size, err := b.sizeBytes(msg)
	if err != nil {
		return nil, err
	}

	w := frameWriter{buf: make([]byte, 0, size)}
	w.buf = append(w.buf, byte(msg.Type()))

	switch m := msg.(type) {
	case *common.WriteCmd:
		w.count(len(m.Pairs))
		for _, kv := range m.Pairs {
			w.token(kv.Key)
			w.token(kv.Value)
		}
	case *common.ReadCmd:
		w.tokens(m.Keys)
	case *common.DeleteCmd:
		w.tokens(m.Keys)
	case *common.UseCmd:
		w.token(m.Name)
	case *common.DetachCmd:
		w.token(m.Name)
	case *common.CurrentDBCmd, *common.ListDBCmd:
		// tag only
	case *common.RangeCmd:
		w.u16(m.PageSize)
		if m.Kind != common.MsgTRangeBegin && m.Kind != common.MsgTRangeEnd {
			w.token(m.Key)
		}
	case *common.OkResp:
		w.token([]byte(m.Message))
	case *common.ErrorResp:
		w.token([]byte(m.Message))
	case *common.TokenResp:
		w.token(m.Token)
	case *common.TokensResp:
		w.tokens(m.Tokens)
	case *common.PairsResp:
		w.count(len(m.Pairs))
		for _, kv := range m.Pairs {
			w.token(kv.Key)
			w.token(kv.Value)
		}
	default:
		return nil, errors.Wrapf(ErrMalformedProtocol, "unsupported message %T", msg)
	}

	return w.buf, nil
}

func (b *binarySerializerImpl) Deserialize(r io.Reader) (common.Message, error) {
	d := frameReader{r: r, maxTokenSize: b.maxTokenSize}

	// Read message type, a clean EOF here means the peer is done
	tag, err := d.u8()
	if err != nil {
		if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	switch t := common.MessageType(tag); t {
	case common.MsgTWrite:
		pairs, err := d.pairs()
		if err != nil {
			return nil, err
		}
		return &common.WriteCmd{Pairs: pairs}, nil

	case common.MsgTRead:
		keys, err := d.tokens()
		if err != nil {
			return nil, err
		}
		return &common.ReadCmd{Keys: keys}, nil

	case common.MsgTDelete:
		keys, err := d.tokens()
		if err != nil {
			return nil, err
		}
		return &common.DeleteCmd{Keys: keys}, nil

	case common.MsgTUse:
		name, err := d.token()
		if err != nil {
			return nil, err
		}
		return &common.UseCmd{Name: name}, nil

	case common.MsgTDetach:
		name, err := d.token()
		if err != nil {
			return nil, err
		}
		return &common.DetachCmd{Name: name}, nil

	case common.MsgTCurrentDB:
		return &common.CurrentDBCmd{}, nil

	case common.MsgTListDB:
		return &common.ListDBCmd{}, nil

	case common.MsgTRangeBegin, common.MsgTRangeEnd:
		page, err := d.u16()
		if err != nil {
			return nil, err
		}
		return &common.RangeCmd{Kind: t, PageSize: page}, nil

	case common.MsgTRangeFromAsc, common.MsgTRangeFromAscEx, common.MsgTRangeFromDesc, common.MsgTRangeFromDescEx:
		page, err := d.u16()
		if err != nil {
			return nil, err
		}
		key, err := d.token()
		if err != nil {
			return nil, err
		}
		return &common.RangeCmd{Kind: t, PageSize: page, Key: key}, nil

	case common.MsgTOk:
		text, err := d.text()
		if err != nil {
			return nil, err
		}
		return &common.OkResp{Message: text}, nil

	case common.MsgTError:
		text, err := d.text()
		if err != nil {
			return nil, err
		}
		return &common.ErrorResp{Message: text}, nil

	case common.MsgTToken:
		token, err := d.token()
		if err != nil {
			return nil, err
		}
		return &common.TokenResp{Token: token}, nil

	case common.MsgTTokens:
		tokens, err := d.tokens()
		if err != nil {
			return nil, err
		}
		return &common.TokensResp{Tokens: tokens}, nil

	case common.MsgTPairs:
		pairs, err := d.pairs()
		if err != nil {
			return nil, err
		}
		return &common.PairsResp{Pairs: pairs}, nil

	default:
		return nil, errors.Wrapf(ErrMalformedProtocol, "unknown message tag 0x%02x", tag)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization and rejects
// every value that does not fit its field on the wire
func (b *binarySerializerImpl) sizeBytes(msg common.Message) (int, error) {
	// 1 byte for the tag
	size := 1

	tokenSize := func(t []byte) error {
		if uint64(len(t)) > math.MaxUint32 {
			return errors.Wrapf(ErrMessageTooLarge, "token of %d bytes", len(t))
		}
		size += tokenHeaderSize + len(t)
		return nil
	}
	countField := func(n int) error {
		if n > math.MaxUint16 {
			return errors.Wrapf(ErrMessageTooLarge, "count of %d entries", n)
		}
		size += countSize
		return nil
	}
	tokenList := func(ts [][]byte) error {
		if err := countField(len(ts)); err != nil {
			return err
		}
		for _, t := range ts {
			if err := tokenSize(t); err != nil {
				return err
			}
		}
		return nil
	}
	pairList := func(kvs []common.KV) error {
		if err := countField(len(kvs)); err != nil {
			return err
		}
		for _, kv := range kvs {
			if err := tokenSize(kv.Key); err != nil {
				return err
			}
			if err := tokenSize(kv.Value); err != nil {
				return err
			}
		}
		return nil
	}
	text := func(s string) error {
		if !utf8.ValidString(s) {
			return errors.Wrap(ErrTextEncoding, "message is not valid UTF-8")
		}
		return tokenSize([]byte(s))
	}

	var err error
	switch m := msg.(type) {
	case *common.WriteCmd:
		err = pairList(m.Pairs)
	case *common.ReadCmd:
		err = tokenList(m.Keys)
	case *common.DeleteCmd:
		err = tokenList(m.Keys)
	case *common.UseCmd:
		err = tokenSize(m.Name)
	case *common.DetachCmd:
		err = tokenSize(m.Name)
	case *common.CurrentDBCmd, *common.ListDBCmd:
	case *common.RangeCmd:
		switch m.Kind {
		case common.MsgTRangeBegin, common.MsgTRangeEnd:
			size += countSize
		case common.MsgTRangeFromAsc, common.MsgTRangeFromAscEx, common.MsgTRangeFromDesc, common.MsgTRangeFromDescEx:
			size += countSize
			err = tokenSize(m.Key)
		default:
			err = errors.Wrapf(ErrMalformedProtocol, "range command with kind %s", m.Kind)
		}
	case *common.OkResp:
		err = text(m.Message)
	case *common.ErrorResp:
		err = text(m.Message)
	case *common.TokenResp:
		err = tokenSize(m.Token)
	case *common.TokensResp:
		err = tokenList(m.Tokens)
	case *common.PairsResp:
		err = pairList(m.Pairs)
	}
	return size, err
}

// frameWriter appends fields to a preallocated buffer. All widths were
// validated by sizeBytes before writing starts.
type frameWriter struct {
	buf []byte
}

func (w *frameWriter) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *frameWriter) count(n int) {
	w.u16(uint16(n))
}

func (w *frameWriter) token(t []byte) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(t)))
	w.buf = append(w.buf, t...)
}

func (w *frameWriter) tokens(ts [][]byte) {
	w.count(len(ts))
	for _, t := range ts {
		w.token(t)
	}
}

// frameReader reads fields of a single frame from a stream
type frameReader struct {
	r            io.Reader
	maxTokenSize int
	scratch      [tokenHeaderSize]byte
}

// read fills p completely. A stream ending inside a frame is a protocol error
func (d *frameReader) read(p []byte) error {
	if _, err := io.ReadFull(d.r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errors.Mark(errors.Wrap(io.ErrUnexpectedEOF, "truncated frame"), ErrMalformedProtocol)
		}
		return err
	}
	return nil
}

func (d *frameReader) u8() (byte, error) {
	if _, err := io.ReadFull(d.r, d.scratch[:1]); err != nil {
		return 0, err
	}
	return d.scratch[0], nil
}

func (d *frameReader) u16() (uint16, error) {
	if err := d.read(d.scratch[:countSize]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d.scratch[:countSize]), nil
}

// token reads a length prefixed byte string. A zero length yields an empty, non-nil slice
func (d *frameReader) token() ([]byte, error) {
	if err := d.read(d.scratch[:tokenHeaderSize]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(d.scratch[:tokenHeaderSize])
	if n == 0 {
		return []byte{}, nil
	}
	if d.maxTokenSize > 0 && uint64(n) > uint64(d.maxTokenSize) {
		return nil, errors.Wrapf(ErrMalformedProtocol, "token of %d bytes exceeds limit of %d bytes", n, d.maxTokenSize)
	}
	if uint64(n) > uint64(math.MaxInt) {
		return nil, errors.Wrapf(ErrMalformedProtocol, "token of %d bytes", n)
	}

	if n <= readChunkSize {
		t := make([]byte, n)
		if err := d.read(t); err != nil {
			return nil, err
		}
		return t, nil
	}

	// large tokens grow with the bytes that arrive, not with the claimed length
	var buf bytes.Buffer
	buf.Grow(readChunkSize)
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Mark(errors.Wrap(io.ErrUnexpectedEOF, "truncated frame"), ErrMalformedProtocol)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// tokens reads a count followed by that many tokens. A zero count yields nil
func (d *frameReader) tokens() ([][]byte, error) {
	n, err := d.u16()
	if err != nil || n == 0 {
		return nil, err
	}
	ts := make([][]byte, n)
	for i := range ts {
		if ts[i], err = d.token(); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// pairs reads a pair count followed by alternating key and value tokens. A zero count yields nil
func (d *frameReader) pairs() ([]common.KV, error) {
	n, err := d.u16()
	if err != nil || n == 0 {
		return nil, err
	}
	kvs := make([]common.KV, n)
	for i := range kvs {
		if kvs[i].Key, err = d.token(); err != nil {
			return nil, err
		}
		if kvs[i].Value, err = d.token(); err != nil {
			return nil, err
		}
	}
	return kvs, nil
}

// text reads a token that must be valid UTF-8
func (d *frameReader) text() (string, error) {
	t, err := d.token()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(t) {
		return "", errors.Wrap(ErrTextEncoding, "message is not valid UTF-8")
	}
	return string(t), nil
}
