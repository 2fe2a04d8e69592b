package lstore

import (
	"testing"

	"github.com/ValentinKolb/mKV/lib/db"
	"github.com/ValentinKolb/mKV/lib/db/engines/lvldb"
	"github.com/ValentinKolb/mKV/lib/db/mocks"
	"github.com/ValentinKolb/mKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T, keys ...string) store.IStore {
	t.Helper()
	s, err := Open("test", "", lvldb.MemoryFactory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, k := range keys {
		require.NoError(t, s.Set([]byte(k), []byte("v"+k)))
	}
	return s
}

func pairKeys(pairs []store.Pair) []string {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = string(p.Key)
	}
	return keys
}

func TestPointOperations(t *testing.T) {
	s := newMemoryStore(t)
	assert.Equal(t, "test", s.Name())

	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	value, ok, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, s.Delete([]byte("k")))
	_, ok, err = s.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, db.ImplMemory, info.DbType)
}

func TestRange(t *testing.T) {
	s := newMemoryStore(t, "a", "b", "c", "d")

	testCases := []struct {
		name      string
		start     store.RangeStart
		direction db.Direction
		n         int
		want      []string
	}{
		{"beginning", store.FromBeginning(), db.Forward, 2, []string{"a", "b"}},
		{"end", store.FromEnd(), db.Backward, 3, []string{"d", "c", "b"}},
		{"from key asc", store.From([]byte("b")), db.Forward, 2, []string{"b", "c"}},
		{"from key desc", store.From([]byte("c")), db.Backward, 10, []string{"c", "b", "a"}},
		{"from absent key", store.From([]byte("bb")), db.Forward, 10, []string{"c", "d"}},
		{"zero page", store.FromBeginning(), db.Forward, 0, []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pairs, err := store.Take(s.Range(tc.start, tc.direction), tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.want, pairKeys(pairs))
			for _, p := range pairs {
				assert.Equal(t, "v"+string(p.Key), string(p.Value))
			}
		})
	}
}

func TestTakeStopsPulling(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockDB := mocks.NewMockKVDB(ctrl)
	mockIt := mocks.NewMockIterator(ctrl)

	mockDB.EXPECT().NewIterator(db.ModeStart()).Return(mockIt)
	mockIt.EXPECT().Next().Return(true).Times(2)
	mockIt.EXPECT().Key().Return([]byte("k")).Times(2)
	mockIt.EXPECT().Value().Return([]byte("v")).Times(2)
	mockIt.EXPECT().Release()

	s := NewLocalStore("mock", mockDB)
	pairs, err := store.Take(s.Range(store.FromBeginning(), db.Forward), 2)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestEngineErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockDB := mocks.NewMockKVDB(ctrl)
	mockIt := mocks.NewMockIterator(ctrl)
	boom := errors.New("disk on fire")

	mockDB.EXPECT().Set(gomock.Any(), gomock.Any()).Return(boom)
	mockDB.EXPECT().Get(gomock.Any()).Return(nil, false, boom)
	mockDB.EXPECT().Delete(gomock.Any()).Return(boom)
	mockDB.EXPECT().NewIterator(gomock.Any()).Return(mockIt)
	mockIt.EXPECT().Next().Return(false)
	mockIt.EXPECT().Error().Return(boom)
	mockIt.EXPECT().Release()

	s := NewLocalStore("mock", mockDB)
	err := s.Set([]byte("k"), []byte("v"))
	assert.True(t, store.HasCode(err, store.RetCInternalError), "set: %v", err)
	assert.Contains(t, err.Error(), "disk on fire")

	_, _, err = s.Get([]byte("k"))
	assert.True(t, store.HasCode(err, store.RetCInternalError), "get: %v", err)

	err = s.Delete([]byte("k"))
	assert.True(t, store.HasCode(err, store.RetCInternalError), "delete: %v", err)

	_, err = store.Take(s.Range(store.From([]byte("k")), db.Backward), 5)
	assert.True(t, store.HasCode(err, store.RetCInternalError), "range: %v", err)
}

func TestClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockDB := mocks.NewMockKVDB(ctrl)
	mockDB.EXPECT().Close().Return(nil).Times(1)

	s := NewLocalStore("mock", mockDB)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, store.HasCode(s.Set([]byte("k"), nil), store.RetCClosed))
	_, _, err := s.Get([]byte("k"))
	assert.True(t, store.HasCode(err, store.RetCClosed))
	_, err = store.Take(s.Range(store.FromBeginning(), db.Forward), 1)
	assert.True(t, store.HasCode(err, store.RetCClosed))
}

func TestInvalidRangeStart(t *testing.T) {
	s := newMemoryStore(t, "a")

	_, err := store.Take(s.Range(store.RangeStart{Origin: db.Origin(42)}, db.Forward), 1)
	assert.True(t, store.HasCode(err, store.RetCInvalidOperation), "origin: %v", err)

	_, err = store.Take(s.Range(store.From([]byte("a")), db.Direction(7)), 1)
	assert.True(t, store.HasCode(err, store.RetCInvalidOperation), "direction: %v", err)

	// the store is still usable and closable afterwards
	pairs, err := store.Take(s.Range(store.FromBeginning(), db.Forward), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, pairKeys(pairs))
	require.NoError(t, s.Close())
}

func TestOpenFailure(t *testing.T) {
	factory := func(string) (db.KVDB, error) { return nil, errors.New("permission denied") }

	_, err := Open("x", "/nope", factory)
	assert.True(t, store.HasCode(err, store.RetCOpenFailed))
	assert.Contains(t, err.Error(), "permission denied")
}
