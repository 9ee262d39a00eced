package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestAppendTurnKeepsOrder(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AppendTurn(User, "hi"))
	require.NoError(t, s.AppendTurn(Assistant, "hello"))
	require.NoError(t, s.AppendTurn(User, ""))

	assert.Equal(t, []Turn{
		{Speaker: User, Message: "hi"},
		{Speaker: Assistant, Message: "hello"},
		{Speaker: User, Message: ""},
	}, s.History())
}

func TestAppendTurnRejectsEmptySpeaker(t *testing.T) {
	s := New(nil)
	assert.ErrorIs(t, s.AppendTurn("", "x"), ErrEmptySpeaker)
	assert.Equal(t, 0, s.Len())
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AppendTurn(User, "hi"))
	h := s.History()
	h[0].Message = "changed"
	assert.Equal(t, "hi", s.History()[0].Message)
}

func TestClear(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AppendTurn(User, "hi"))
	s.SetPendingInput("queued")
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.HasPendingInput())
}

func TestPendingInputConsumedOnce(t *testing.T) {
	s := New(nil)
	_, ok := s.ConsumePendingInput()
	assert.False(t, ok)

	s.SetPendingInput("first")
	s.SetPendingInput("second")
	v, ok := s.ConsumePendingInput()
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok = s.ConsumePendingInput()
	assert.False(t, ok)
	assert.False(t, s.HasPendingInput())
}

func TestPendingEmptyStringIsStillAValue(t *testing.T) {
	s := New(nil)
	s.SetPendingInput("")
	v, ok := s.ConsumePendingInput()
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestStats(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AppendTurn(User, "a"))
	require.NoError(t, s.AppendTurn(Assistant, "b"))
	require.NoError(t, s.AppendTurn(User, "c"))
	assert.Equal(t, Stats{Total: 3, User: 2}, s.Stats())
}

func TestExport(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AppendTurn(User, "hi"))
	require.NoError(t, s.AppendTurn(Assistant, "hello"))

	got := s.Export(fixedNow)
	want := "SecureGuard AI Conversation - 20250314_092653\n\n" +
		"user: hi\n\n" +
		"assistant: hello\n\n"
	assert.Equal(t, want, got)

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	assert.Equal(t, []string{
		"SecureGuard AI Conversation - 20250314_092653",
		"",
		"user: hi",
		"",
		"assistant: hello",
		"",
	}, lines)

	// Export must not mutate the history.
	assert.Equal(t, 2, s.Len())
}

func TestExportEmptyHistory(t *testing.T) {
	s := New(nil)
	assert.Equal(t, "SecureGuard AI Conversation - 20250314_092653\n\n", s.Export(fixedNow))
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "secureguard_chat_20250314_092653.txt", ExportFilename(fixedNow))
}

func TestWriteExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	s := New(nil)

	_, err := s.WriteExport(dir, fixedNow)
	assert.ErrorIs(t, err, ErrNothingToExport)

	require.NoError(t, s.AppendTurn(User, "hi"))
	require.NoError(t, s.AppendTurn(Assistant, "hello"))
	path, err := s.WriteExport(dir, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "secureguard_chat_20250314_092653.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.Export(fixedNow), string(data))
}
