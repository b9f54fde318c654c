package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	j := NewFileJournal(path)

	_, ok, err := j.Load()
	require.NoError(t, err)
	require.False(t, ok)

	rec := Record{Authenticated: true, PfmDirty: false, UnsupportedFlash: false, Bypass: true, Attempts: 7}
	require.NoError(t, j.Commit(rec))

	got, ok, err := j.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestRecordEncodeDecode(t *testing.T) {
	rec := Record{Authenticated: true, PfmDirty: true, UnsupportedFlash: true, Bypass: true, Attempts: 0xBEEF}
	buf := rec.encode()
	require.Len(t, buf, recordSize)

	got, err := decode(buf)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	var buf [recordSize]byte
	_, err := decode(buf)
	require.Error(t, err)
}

func TestMemJournal(t *testing.T) {
	j := NewMemJournal()
	_, ok, err := j.Load()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, j.Commit(Record{Attempts: 1}))
	got, ok, err := j.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(1), got.Attempts)
}
