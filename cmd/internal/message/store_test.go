package message

import (
	"cmp"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"chitchat/cmd/internal/ids"
	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behavior every Store backend must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("persist assigns id and timestamp", func(t *testing.T) {
		st := newStore(t)
		now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

		m, err := st.Persist(context.Background(), PersistInput{SenderID: "alice", RecipientID: "bob", Text: "  hi  ", Now: now})
		require.NoError(t, err)

		assert.True(t, ids.IsULID(m.ID))
		assert.Equal(t, "hi", m.Text)
		assert.Equal(t, now.Truncate(time.Microsecond), m.CreatedAt)
		assert.Nil(t, m.Media)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		for _, in := range []PersistInput{
			{SenderID: "", RecipientID: "bob", Text: "x"},
			{SenderID: "alice", RecipientID: "", Text: "x"},
			{SenderID: "alice", RecipientID: "alice", Text: "x"},
			{SenderID: "alice", RecipientID: "bob", Text: "   "},
		} {
			_, err := st.Persist(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
		}

		_, err := st.History(ctx, "alice", "", HistoryQuery{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("history is per pair and ordered", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		var want []string
		for i, in := range []PersistInput{
			{SenderID: "alice", RecipientID: "bob", Text: "1"},
			{SenderID: "bob", RecipientID: "alice", Text: "2"},
			{SenderID: "alice", RecipientID: "carol", Text: "other pair"},
			{SenderID: "alice", RecipientID: "bob", Media: &v1.Media{URL: "/media/x.png", ContentType: "image/png", Size: 3}},
		} {
			in.Now = base.Add(time.Duration(i) * time.Second)
			m, err := st.Persist(ctx, in)
			require.NoError(t, err)
			if in.RecipientID != "carol" {
				want = append(want, m.ID)
			}
		}

		got, err := st.History(ctx, "bob", "alice", HistoryQuery{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, m := range got {
			assert.Equal(t, want[i], m.ID)
		}
		require.NotNil(t, got[2].Media)
		assert.Equal(t, "image/png", got[2].Media.ContentType)
		assert.Equal(t, int64(3), got[2].Media.Size)
	})

	t.Run("history limit keeps the newest", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		var all []string
		for i := 0; i < 5; i++ {
			m, err := st.Persist(ctx, PersistInput{SenderID: "alice", RecipientID: "bob", Text: "m", Now: base.Add(time.Duration(i) * time.Second)})
			require.NoError(t, err)
			all = append(all, m.ID)
		}

		got, err := st.History(ctx, "alice", "bob", HistoryQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, all[3], got[0].ID)
		assert.Equal(t, all[4], got[1].ID)
	})
}

func TestInMemoryStore(t *testing.T) {
	storeContract(t, func(*testing.T) Store { return NewInMemoryStore() })
}

func TestInMemoryStore_ConcurrentPersistKeepsIDOrder(t *testing.T) {
	st := NewInMemoryStore()
	const n = 64

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Persist(context.Background(), PersistInput{SenderID: "alice", RecipientID: "bob", Text: "hi"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.History(context.Background(), "alice", "bob", HistoryQuery{Limit: n})
	require.NoError(t, err)
	require.Len(t, got, n)
	assert.True(t, slices.IsSortedFunc(got, func(a, b v1.Message) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	}))
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		st, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "db", "chitchat.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}

func TestHistoryLimit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit, historyLimit(HistoryQuery{}))
	assert.Equal(t, 10, historyLimit(HistoryQuery{Limit: 10}))
	assert.Equal(t, maxHistoryLimit, historyLimit(HistoryQuery{Limit: 10_000}))
}
