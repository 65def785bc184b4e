package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	value := []byte("reserve")
	require.NoError(t, db.Put([]byte("a"), value))
	value[0] = 'X'
	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("reserve"), got)

	require.NoError(t, db.WriteBatch(map[string][]byte{
		"a": nil,
		"b": []byte("obligation"),
		"c": []byte("market"),
	}))
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("obligation"), got)

	require.NoError(t, db.Delete([]byte("c")))
	_, err = db.Get([]byte("c"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lending.db")
	db, err := NewLevelDB(path)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Close())

	reopened, err := NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("obligation"), got)
}
