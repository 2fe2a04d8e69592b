package server

import (
	"bytes"
	"strings"
	"time"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/ValentinKolb/mKV/lib/registry"
	"github.com/ValentinKolb/mKV/lib/store"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// Response texts
const (
	msgOk             = "Ok."
	msgNoDBSelected   = "no db selected"
	msgUnknownCommand = "unknown command"
	msgLockFailed     = "get lock failed"
)

// session is the state of one connection: at most one selected database.
// It is driven by a single goroutine and needs no locking.
type session struct {
	remote   string
	registry *registry.Registry
	metrics  *serverMetrics
	selected *registry.Handle // nil until a successful Use
	onClose  func()
}

func newSession(remote string, reg *registry.Registry, m *serverMetrics, onClose func()) *session {
	return &session{
		remote:   remote,
		registry: reg,
		metrics:  m,
		onClose:  onClose,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ISession)
// --------------------------------------------------------------------------

func (s *session) Handle(req common.Message) common.Message {
	start := time.Now()
	resp := s.dispatch(req)
	s.metrics.observe(req.Type(), resp.Type(), start)
	return resp
}

func (s *session) Close() {
	if s.selected != nil {
		s.selected.Release()
		s.selected = nil
	}
	if s.onClose != nil {
		s.onClose()
	}
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// dispatch handles every command type. Responses sent as commands and
// unknown range kinds answer "unknown command".
func (s *session) dispatch(req common.Message) common.Message {
	switch m := req.(type) {
	case *common.UseCmd:
		return s.use(m)
	case *common.CurrentDBCmd:
		return s.currentDB()
	case *common.ListDBCmd:
		return common.NewTokensResponse(namesToTokens(s.registry.List()))
	case *common.DetachCmd:
		return s.detach(m)
	case *common.WriteCmd:
		return s.write(m)
	case *common.ReadCmd:
		return s.read(m)
	case *common.DeleteCmd:
		return s.delete(m)
	case *common.RangeCmd:
		return s.scan(m)
	default:
		return common.NewErrorResponse(msgUnknownCommand)
	}
}

func (s *session) use(m *common.UseCmd) common.Message {
	h, err := s.registry.Attach(string(m.Name))
	if err != nil {
		if errors.Is(err, registry.ErrClosed) {
			return errorResponse(msgLockFailed + ": " + err.Error())
		}
		return errorResponse(err.Error())
	}

	if s.selected != nil {
		s.selected.Release()
	}
	s.selected = h
	Logger.Debugf("%s selected database %s", s.remote, h.Name())
	return common.NewOkResponse(msgOk)
}

func (s *session) currentDB() common.Message {
	if s.selected == nil {
		return common.NewErrorResponse(msgNoDBSelected)
	}
	return common.NewTokenResponse([]byte(s.selected.Name()))
}

// detach removes name from the registry. The selection of this session is
// cleared if it is the detached database; other sessions keep their handles.
func (s *session) detach(m *common.DetachCmd) common.Message {
	name := string(m.Name)
	if s.selected != nil && s.selected.Name() == name {
		s.selected.Release()
		s.selected = nil
	}
	s.registry.Detach(name)
	return common.NewOkResponse(msgOk)
}

// write applies the pairs in order and stops at the first failure.
// Pairs written before the failure stay written.
func (s *session) write(m *common.WriteCmd) common.Message {
	if s.selected == nil {
		return common.NewErrorResponse(msgNoDBSelected)
	}
	for _, kv := range m.Pairs {
		if err := s.selected.Set(kv.Key, kv.Value); err != nil {
			return errorResponse(err.Error())
		}
	}
	return common.NewOkResponse(msgOk)
}

// read returns one token per key, an empty token for a missing key.
func (s *session) read(m *common.ReadCmd) common.Message {
	if s.selected == nil {
		return common.NewErrorResponse(msgNoDBSelected)
	}
	values := make([][]byte, 0, len(m.Keys))
	for _, key := range m.Keys {
		value, ok, err := s.selected.Get(key)
		if err != nil {
			return errorResponse(err.Error())
		}
		if !ok || value == nil {
			value = []byte{}
		}
		values = append(values, value)
	}
	return common.NewTokensResponse(values)
}

func (s *session) delete(m *common.DeleteCmd) common.Message {
	if s.selected == nil {
		return common.NewErrorResponse(msgNoDBSelected)
	}
	for _, key := range m.Keys {
		if err := s.selected.Delete(key); err != nil {
			return errorResponse(err.Error())
		}
	}
	return common.NewOkResponse(msgOk)
}

// scan serves the six range commands. An exclusive range pulls one extra
// pair so that dropping an exact match of the boundary key still leaves a
// full page.
func (s *session) scan(m *common.RangeCmd) common.Message {
	if s.selected == nil {
		return common.NewErrorResponse(msgNoDBSelected)
	}

	var (
		start     store.RangeStart
		direction = db.Forward
		exclusive bool
	)
	switch m.Kind {
	case common.MsgTRangeBegin:
		start = store.FromBeginning()
	case common.MsgTRangeEnd:
		start, direction = store.FromEnd(), db.Backward
	case common.MsgTRangeFromAsc:
		start = store.From(m.Key)
	case common.MsgTRangeFromAscEx:
		start, exclusive = store.From(m.Key), true
	case common.MsgTRangeFromDesc:
		start, direction = store.From(m.Key), db.Backward
	case common.MsgTRangeFromDescEx:
		start, direction, exclusive = store.From(m.Key), db.Backward, true
	default:
		return common.NewErrorResponse(msgUnknownCommand)
	}

	n := int(m.PageSize)
	limit := n
	if exclusive {
		limit++
	}

	pairs, err := store.Take(s.selected.Range(start, direction), limit)
	if err != nil {
		return errorResponse(err.Error())
	}
	if exclusive && len(pairs) > 0 && bytes.Equal(pairs[0].Key, m.Key) {
		pairs = pairs[1:]
	}
	if len(pairs) > n {
		pairs = pairs[:n]
	}

	kvs := make([]common.KV, len(pairs))
	for i, p := range pairs {
		kvs[i] = common.KV{Key: p.Key, Value: p.Value}
	}
	s.metrics.rangePairs.Update(float64(len(kvs)))
	return common.NewPairsResponse(kvs)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// errorResponse builds an Error response, replacing bytes that are not valid UTF-8
func errorResponse(msg string) *common.ErrorResp {
	return common.NewErrorResponse(strings.ToValidUTF8(msg, "\uFFFD"))
}

func namesToTokens(names []string) [][]byte {
	tokens := make([][]byte, len(names))
	for i, name := range names {
		tokens[i] = []byte(name)
	}
	return tokens
}
