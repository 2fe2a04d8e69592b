package server

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/ValentinKolb/mKV/lib/db/engines/lvldb"
	"github.com/ValentinKolb/mKV/lib/db/mocks"
	"github.com/ValentinKolb/mKV/lib/registry"
	"github.com/ValentinKolb/mKV/lib/store"
	"github.com/ValentinKolb/mKV/lib/store/lstore"
	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/cockroachdb/errors"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New("", lvldb.MemoryFactory())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func newTestSession(t *testing.T, reg *registry.Registry) *session {
	t.Helper()
	s := newSession(t.Name(), reg, newServerMetrics(), nil)
	t.Cleanup(s.Close)
	return s
}

func kv(k, v string) common.KV {
	return common.KV{Key: []byte(k), Value: []byte(v)}
}

func requireOk(t *testing.T, resp common.Message) {
	t.Helper()
	ok, isOk := resp.(*common.OkResp)
	require.True(t, isOk, "expected Ok, got %#v", resp)
	assert.Equal(t, msgOk, ok.Message)
}

func requireError(t *testing.T, resp common.Message, contains string) {
	t.Helper()
	e, isErr := resp.(*common.ErrorResp)
	require.True(t, isErr, "expected Error, got %#v", resp)
	assert.Contains(t, e.Message, contains)
}

func requireTokens(t *testing.T, resp common.Message) []string {
	t.Helper()
	tokens, ok := resp.(*common.TokensResp)
	require.True(t, ok, "expected Tokens, got %#v", resp)
	out := make([]string, len(tokens.Tokens))
	for i, tok := range tokens.Tokens {
		out[i] = string(tok)
	}
	return out
}

// requirePairs returns the pairs as "key=value"
func requirePairs(t *testing.T, resp common.Message) []string {
	t.Helper()
	pairs, ok := resp.(*common.PairsResp)
	require.True(t, ok, "expected Pairs, got %#v", resp)
	out := make([]string, len(pairs.Pairs))
	for i, p := range pairs.Pairs {
		out[i] = string(p.Key) + "=" + string(p.Value)
	}
	return out
}

// useWithKeys selects db and writes key[i]=value[i]
func useWithKeys(t *testing.T, s *session, name string, keys, values []string) {
	t.Helper()
	requireOk(t, s.Handle(common.NewUseRequest(name)))
	pairs := make([]common.KV, len(keys))
	for i := range keys {
		pairs[i] = kv(keys[i], values[i])
	}
	requireOk(t, s.Handle(common.NewWriteRequest(pairs...)))
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestNoDatabaseSelected(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))

	requests := []common.Message{
		common.NewWriteRequest(kv("k", "v")),
		common.NewReadRequest([]byte("k")),
		common.NewDeleteRequest([]byte("k")),
		common.NewCurrentDBRequest(),
		common.NewRangeBeginRequest(10),
		common.NewRangeEndRequest(10),
		common.NewRangeFromRequest(10, []byte("k"), false, false),
		common.NewRangeFromRequest(10, []byte("k"), false, true),
		common.NewRangeFromRequest(10, []byte("k"), true, false),
		common.NewRangeFromRequest(10, []byte("k"), true, true),
	}
	for _, req := range requests {
		t.Run(req.Type().String(), func(t *testing.T) {
			requireError(t, s.Handle(req), msgNoDBSelected)
		})
	}

	// ListDb works without a selection
	assert.Empty(t, requireTokens(t, s.Handle(common.NewListDBRequest())))
}

func TestUseAndCurrentDB(t *testing.T) {
	reg := newTestRegistry(t)
	s := newTestSession(t, reg)

	requireOk(t, s.Handle(common.NewUseRequest("users")))
	tok, ok := s.Handle(common.NewCurrentDBRequest()).(*common.TokenResp)
	require.True(t, ok)
	assert.Equal(t, "users", string(tok.Token))

	// switching releases the previous selection but keeps it attached
	requireOk(t, s.Handle(common.NewUseRequest("orders")))
	tok = s.Handle(common.NewCurrentDBRequest()).(*common.TokenResp)
	assert.Equal(t, "orders", string(tok.Token))
	assert.Equal(t, []string{"orders", "users"}, requireTokens(t, s.Handle(common.NewListDBRequest())))

	// using the same database twice is fine
	requireOk(t, s.Handle(common.NewUseRequest("orders")))
	assert.Equal(t, 2, reg.OpenCount())
}

func TestUseInvalidName(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))

	for _, name := range []string{"", "..", "a/b"} {
		requireError(t, s.Handle(common.NewUseRequest(name)), "invalid database name")
	}
	requireError(t, s.Handle(common.NewCurrentDBRequest()), msgNoDBSelected)
}

func TestUseAfterRegistryClosed(t *testing.T) {
	reg := newTestRegistry(t)
	s := newTestSession(t, reg)
	require.NoError(t, reg.Close())

	requireError(t, s.Handle(common.NewUseRequest("x")), "get lock failed: registry closed")
}

func TestWriteRead(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))
	requireOk(t, s.Handle(common.NewUseRequest("db")))

	requireOk(t, s.Handle(common.NewWriteRequest(kv("k1", "v1"), kv("k2", "v2"))))
	values := requireTokens(t, s.Handle(common.NewReadRequest([]byte("k1"), []byte("k2"), []byte("k3"))))
	assert.Equal(t, []string{"v1", "v2", ""}, values)

	// missing keys are empty tokens, not nil
	tokens := s.Handle(common.NewReadRequest([]byte("k3"))).(*common.TokensResp)
	require.Len(t, tokens.Tokens, 1)
	assert.NotNil(t, tokens.Tokens[0])
	assert.Empty(t, tokens.Tokens[0])

	// later pairs win
	requireOk(t, s.Handle(common.NewWriteRequest(kv("k1", "a"), kv("k1", "b"))))
	assert.Equal(t, []string{"b"}, requireTokens(t, s.Handle(common.NewReadRequest([]byte("k1")))))

	requireOk(t, s.Handle(common.NewDeleteRequest([]byte("k1"), []byte("missing"))))
	assert.Equal(t, []string{"", "v2"}, requireTokens(t, s.Handle(common.NewReadRequest([]byte("k1"), []byte("k2")))))
}

func TestEmptyBatches(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))
	requireOk(t, s.Handle(common.NewUseRequest("db")))

	requireOk(t, s.Handle(common.NewWriteRequest()))
	requireOk(t, s.Handle(common.NewDeleteRequest()))
	assert.Empty(t, requireTokens(t, s.Handle(common.NewReadRequest())))
}

func TestRange(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))
	useWithKeys(t, s, "db", []string{"a", "b", "c", "d"}, []string{"1", "2", "3", "4"})

	from := func(n uint16, key string, desc, ex bool) common.Message {
		return common.NewRangeFromRequest(n, []byte(key), desc, ex)
	}

	testCases := []struct {
		name string
		req  common.Message
		want []string
	}{
		{"begin", common.NewRangeBeginRequest(3), []string{"a=1", "b=2", "c=3"}},
		{"begin all", common.NewRangeBeginRequest(100), []string{"a=1", "b=2", "c=3", "d=4"}},
		{"end", common.NewRangeEndRequest(2), []string{"d=4", "c=3"}},
		{"asc inclusive", from(2, "b", false, false), []string{"b=2", "c=3"}},
		{"asc exclusive", from(2, "b", false, true), []string{"c=3", "d=4"}},
		{"asc exclusive absent key", from(2, "bb", false, true), []string{"c=3", "d=4"}},
		{"asc exclusive after last", from(2, "z", false, true), []string{}},
		{"asc exclusive before first", from(2, "0", false, true), []string{"a=1", "b=2"}},
		{"asc inclusive absent key", from(2, "bb", false, false), []string{"c=3", "d=4"}},
		{"desc inclusive", from(2, "c", true, false), []string{"c=3", "b=2"}},
		{"desc exclusive", from(2, "c", true, true), []string{"b=2", "a=1"}},
		{"desc exclusive absent key", from(2, "cc", true, true), []string{"c=3", "b=2"}},
		{"desc exclusive before first", from(2, "0", true, true), []string{}},
		{"desc from after last", from(10, "z", true, false), []string{"d=4", "c=3", "b=2", "a=1"}},
		{"zero page", common.NewRangeBeginRequest(0), []string{}},
		{"zero page exclusive", from(0, "a", false, true), []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, requirePairs(t, s.Handle(tc.req)))
		})
	}
}

func TestRangePagination(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))
	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	useWithKeys(t, s, "db", keys, keys)

	for _, pageSize := range []uint16{1, 2, 3, 5, 6} {
		t.Run(fmt.Sprintf("asc page %d", pageSize), func(t *testing.T) {
			var seen []string
			page := s.Handle(common.NewRangeBeginRequest(pageSize)).(*common.PairsResp)
			for len(page.Pairs) > 0 {
				require.LessOrEqual(t, len(page.Pairs), int(pageSize))
				for _, p := range page.Pairs {
					seen = append(seen, string(p.Key))
				}
				last := page.Pairs[len(page.Pairs)-1].Key
				page = s.Handle(common.NewRangeFromRequest(pageSize, last, false, true)).(*common.PairsResp)
			}
			assert.Equal(t, keys, seen)
		})

		t.Run(fmt.Sprintf("desc page %d", pageSize), func(t *testing.T) {
			var seen []string
			page := s.Handle(common.NewRangeEndRequest(pageSize)).(*common.PairsResp)
			for len(page.Pairs) > 0 {
				for _, p := range page.Pairs {
					seen = append(seen, string(p.Key))
				}
				last := page.Pairs[len(page.Pairs)-1].Key
				page = s.Handle(common.NewRangeFromRequest(pageSize, last, true, true)).(*common.PairsResp)
			}
			assert.Equal(t, []string{"k5", "k4", "k3", "k2", "k1"}, seen)
		})
	}
}

func TestDetach(t *testing.T) {
	reg := newTestRegistry(t)
	first := newTestSession(t, reg)
	second := newTestSession(t, reg)

	useWithKeys(t, first, "x", []string{"k"}, []string{"v"})
	requireOk(t, second.Handle(common.NewUseRequest("y")))

	// detaching another database keeps the own selection
	requireOk(t, first.Handle(common.NewDetachRequest("y")))
	tok := first.Handle(common.NewCurrentDBRequest()).(*common.TokenResp)
	assert.Equal(t, "x", string(tok.Token))

	// the second session still works on its detached handle
	requireOk(t, second.Handle(common.NewWriteRequest(kv("a", "b"))))
	assert.Equal(t, []string{"b"}, requireTokens(t, second.Handle(common.NewReadRequest([]byte("a")))))

	// detaching the own database clears the selection
	requireOk(t, first.Handle(common.NewDetachRequest("x")))
	requireError(t, first.Handle(common.NewCurrentDBRequest()), msgNoDBSelected)
	requireError(t, first.Handle(common.NewReadRequest([]byte("k"))), msgNoDBSelected)
	assert.Empty(t, requireTokens(t, first.Handle(common.NewListDBRequest())))

	// detaching something unknown is not an error
	requireOk(t, first.Handle(common.NewDetachRequest("nope")))
}

func TestDetachWhileSelectedElsewhere(t *testing.T) {
	reg := newTestRegistry(t)
	holder := newTestSession(t, reg)
	detacher := newTestSession(t, reg)
	third := newTestSession(t, reg)

	useWithKeys(t, holder, "x", []string{"k"}, []string{"v"})
	requireOk(t, detacher.Handle(common.NewDetachRequest("x")))
	assert.Empty(t, requireTokens(t, detacher.Handle(common.NewListDBRequest())))

	// the holder's handle stays valid
	requireOk(t, holder.Handle(common.NewWriteRequest(kv("k2", "v2"))))
	assert.Equal(t, []string{"v", "v2"}, requireTokens(t, holder.Handle(common.NewReadRequest([]byte("k"), []byte("k2")))))

	// a fresh Use re-attaches the database with all its data
	requireOk(t, third.Handle(common.NewUseRequest("x")))
	assert.Equal(t, []string{"x"}, requireTokens(t, third.Handle(common.NewListDBRequest())))
	assert.Equal(t, []string{"v", "v2"}, requireTokens(t, third.Handle(common.NewReadRequest([]byte("k"), []byte("k2")))))
	assert.Equal(t, 1, reg.OpenCount())
}

func TestCloseReleasesSelection(t *testing.T) {
	reg := newTestRegistry(t)
	s := newSession("test", reg, newServerMetrics(), nil)

	requireOk(t, s.Handle(common.NewUseRequest("x")))
	reg.Detach("x")
	assert.Equal(t, 1, reg.OpenCount())

	s.Close()
	assert.Equal(t, 0, reg.OpenCount())
}

func TestEveryCommandIsDispatched(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))
	requireOk(t, s.Handle(common.NewUseRequest("db")))

	commands := map[common.MessageType]common.Message{
		common.MsgTWrite:           common.NewWriteRequest(kv("k", "v")),
		common.MsgTDelete:          common.NewDeleteRequest([]byte("k")),
		common.MsgTRead:            common.NewReadRequest([]byte("k")),
		common.MsgTUse:             common.NewUseRequest("db"),
		common.MsgTCurrentDB:       common.NewCurrentDBRequest(),
		common.MsgTListDB:          common.NewListDBRequest(),
		common.MsgTDetach:          common.NewDetachRequest("other"),
		common.MsgTRangeBegin:      common.NewRangeBeginRequest(1),
		common.MsgTRangeEnd:        common.NewRangeEndRequest(1),
		common.MsgTRangeFromAsc:    common.NewRangeFromRequest(1, []byte("k"), false, false),
		common.MsgTRangeFromAscEx:  common.NewRangeFromRequest(1, []byte("k"), false, true),
		common.MsgTRangeFromDesc:   common.NewRangeFromRequest(1, []byte("k"), true, false),
		common.MsgTRangeFromDescEx: common.NewRangeFromRequest(1, []byte("k"), true, true),
	}

	for _, typ := range common.AllMessageTypes {
		if !typ.IsCommand() {
			continue
		}
		req, ok := commands[typ]
		require.True(t, ok, "no test command for %s", typ)
		require.Equal(t, typ, req.Type())

		resp := s.Handle(req)
		if e, isErr := resp.(*common.ErrorResp); isErr {
			assert.NotEqual(t, msgUnknownCommand, e.Message, "%s is not dispatched", typ)
		}
	}
}

func TestResponsesAsCommands(t *testing.T) {
	s := newTestSession(t, newTestRegistry(t))

	responses := []common.Message{
		common.NewOkResponse("hi"),
		common.NewErrorResponse("boom"),
		common.NewTokenResponse([]byte("t")),
		common.NewTokensResponse(nil),
		common.NewPairsResponse(nil),
	}
	for _, resp := range responses {
		requireError(t, s.Handle(resp), msgUnknownCommand)
	}
	requireError(t, s.Handle(&common.RangeCmd{Kind: common.MsgTOk}), msgNoDBSelected)
	requireOk(t, s.Handle(common.NewUseRequest("db")))
	requireError(t, s.Handle(&common.RangeCmd{Kind: common.MsgTOk}), msgUnknownCommand)
}

// --------------------------------------------------------------------------
// Storage failures
// --------------------------------------------------------------------------

func newMockSession(t *testing.T) (*session, *mocks.MockKVDB, *mocks.MockIterator) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockDB := mocks.NewMockKVDB(ctrl)
	mockIt := mocks.NewMockIterator(ctrl)
	mockDB.EXPECT().Close().Return(nil).AnyTimes()

	reg, err := registry.NewWithOpener("", func(name, _ string) (store.IStore, error) {
		return lstore.NewLocalStore(name, mockDB), nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	s := newTestSession(t, reg)
	requireOk(t, s.Handle(common.NewUseRequest("mock")))
	return s, mockDB, mockIt
}

func TestWriteStopsAtFirstFailure(t *testing.T) {
	s, mockDB, _ := newMockSession(t)

	gomock.InOrder(
		mockDB.EXPECT().Set([]byte("k1"), []byte("v1")).Return(nil),
		mockDB.EXPECT().Set([]byte("k2"), []byte("v2")).Return(errors.New("disk full")),
	)
	// k3 must never be written

	resp := s.Handle(common.NewWriteRequest(kv("k1", "v1"), kv("k2", "v2"), kv("k3", "v3")))
	requireError(t, resp, "disk full")

	// the session is still usable
	tok := s.Handle(common.NewCurrentDBRequest()).(*common.TokenResp)
	assert.Equal(t, "mock", string(tok.Token))
}

func TestReadAndDeleteFailures(t *testing.T) {
	s, mockDB, _ := newMockSession(t)

	mockDB.EXPECT().Get([]byte("a")).Return([]byte("1"), true, nil)
	mockDB.EXPECT().Get([]byte("b")).Return(nil, false, errors.New("corrupted block"))
	requireError(t, s.Handle(common.NewReadRequest([]byte("a"), []byte("b"), []byte("c"))), "corrupted block")

	mockDB.EXPECT().Delete([]byte("a")).Return(errors.New("read-only"))
	requireError(t, s.Handle(common.NewDeleteRequest([]byte("a"), []byte("b"))), "read-only")
}

func TestRangeFailure(t *testing.T) {
	s, mockDB, mockIt := newMockSession(t)

	mockDB.EXPECT().NewIterator(db.ModeFrom([]byte("k"), db.Forward)).Return(mockIt)
	gomock.InOrder(
		mockIt.EXPECT().Next().Return(true),
		mockIt.EXPECT().Next().Return(false),
	)
	mockIt.EXPECT().Key().Return([]byte("k"))
	mockIt.EXPECT().Value().Return([]byte("v"))
	mockIt.EXPECT().Error().Return(errors.New("io error"))
	mockIt.EXPECT().Release().AnyTimes()

	requireError(t, s.Handle(common.NewRangeFromRequest(5, []byte("k"), false, true)), "io error")
}

func TestExclusiveRangePullsOneExtra(t *testing.T) {
	s, mockDB, mockIt := newMockSession(t)

	// a page of 2 that starts on the boundary key needs exactly 3 pulls
	mockDB.EXPECT().NewIterator(db.ModeFrom([]byte("b"), db.Forward)).Return(mockIt)
	mockIt.EXPECT().Next().Return(true).Times(3)
	gomock.InOrder(
		mockIt.EXPECT().Key().Return([]byte("b")),
		mockIt.EXPECT().Key().Return([]byte("c")),
		mockIt.EXPECT().Key().Return([]byte("d")),
	)
	mockIt.EXPECT().Value().Return([]byte("v")).Times(3)
	mockIt.EXPECT().Error().Return(nil).AnyTimes()
	mockIt.EXPECT().Release().AnyTimes()

	assert.Equal(t, []string{"c=v", "d=v"}, requirePairs(t, s.Handle(common.NewRangeFromRequest(2, []byte("b"), false, true))))
}
