package store

import (
	"testing"

	"github.com/and161185/bookbazaar/internal/model"
	"github.com/stretchr/testify/require"
)

func TestFavorites_Toggle(t *testing.T) {
	t.Parallel()
	f := NewFavorites()
	require.True(t, f.Toggle(book(1, 1)))
	require.True(t, f.Contains(1))
	require.False(t, f.Toggle(book(1, 1)))
	require.False(t, f.Contains(1))
	require.Equal(t, 0, f.Len())
}

func TestFavorites_RollbackRestores(t *testing.T) {
	t.Parallel()
	f := NewFavorites()
	op, added := f.BeginToggle(book(1, 1))
	require.True(t, added)
	require.True(t, f.Rollback(op))
	require.False(t, f.Contains(1))

	f.Toggle(book(2, 1))
	op, added = f.BeginToggle(book(2, 1))
	require.False(t, added)
	f.Rollback(op)
	require.True(t, f.Contains(2))
}

func TestFavorites_RollbackAfterExternalChangeIsNoop(t *testing.T) {
	t.Parallel()
	f := NewFavorites()
	op, _ := f.BeginToggle(book(1, 1))
	f.ReplaceAll(nil) // server says not a favorite
	f.Rollback(op)
	require.False(t, f.Contains(1))
}

func TestFavorites_CommitAndViews(t *testing.T) {
	t.Parallel()
	f := NewFavorites()
	op, _ := f.BeginToggle(book(3, 1))
	require.True(t, f.Commit(op))
	require.False(t, f.Rollback(op))
	f.Toggle(book(1, 1))

	require.Equal(t, []int{3, 1}, f.IDs())
	require.Len(t, f.Items(), 2)
}

func TestFavorites_ReplaceAllDropsDuplicates(t *testing.T) {
	t.Parallel()
	f := NewFavorites()
	f.Toggle(book(9, 1))
	f.ReplaceAll([]model.Book{book(1, 1), book(2, 1), book(1, 1)})
	require.Equal(t, []int{1, 2}, f.IDs())
}

func TestFavorites_ReplaceAllIfVersion(t *testing.T) {
	t.Parallel()
	f := NewFavorites()
	v := f.Version()
	f.Toggle(book(1, 1))
	require.False(t, f.ReplaceAllIfVersion(v, nil), "local toggle since v")
	require.True(t, f.Contains(1))

	v = f.Version()
	require.True(t, f.ReplaceAllIfVersion(v, []model.Book{book(2, 1)}))
	require.Equal(t, []int{2}, f.IDs())
}
