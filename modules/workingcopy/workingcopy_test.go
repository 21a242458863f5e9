package workingcopy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/conflicts"
	"github.com/strata-scm/strata/modules/merge"
	"github.com/strata-scm/strata/modules/plumbing"
)

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		mode EOLMode
		want string
	}{
		{"none_keeps_crlf", "a\r\nb\r\n", EOLNone, "a\r\nb\r\n"},
		{"input_converts_crlf", "a\r\nb\r\n", EOLInput, "a\nb\n"},
		{"input_converts_bare_cr", "a\rb\r", EOLInput, "a\nb\n"},
		{"input_output_converts", "a\r\nb\n", EOLInputOutput, "a\nb\n"},
		{"mixed", "a\r\nb\nc\r", EOLInput, "a\nb\nc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(NormalizeInput([]byte(tt.in), tt.mode)))
		})
	}
}

func TestBinaryFilesAreNeverConverted(t *testing.T) {
	binary := []byte("a\r\nb\x00c\r\n")
	assert.Equal(t, binary, NormalizeInput(binary, EOLInputOutput))
	assert.Equal(t, binary, ConvertOutput(binary, EOLInputOutput, "\r\n"))
}

func TestConvertOutput(t *testing.T) {
	stored := []byte("a\nb\n")
	assert.Equal(t, "a\r\nb\r\n", string(ConvertOutput(stored, EOLInputOutput, "\r\n")))
	// input mode performs no conversion on the way out.
	assert.Equal(t, "a\nb\n", string(ConvertOutput(stored, EOLInput, "\r\n")))
}

func TestEOLRoundTripWithConflictMarkers(t *testing.T) {
	// Conflict markers are stored with LF; checkout converts marker
	// lines together with content, and snapshot converts them back.
	m := merge.New("ours\n", "base\n", "theirs\n")
	materialized, markerLen := conflicts.Materialize(m, nil)
	checkedOut := ConvertOutput([]byte(materialized), EOLInputOutput, "\r\n")
	assert.Contains(t, string(checkedOut), strings.Repeat("<", markerLen)+" Conflict 1 of 1\r\n")

	snapshotted := NormalizeInput(checkedOut, EOLInputOutput)
	assert.Equal(t, materialized, string(snapshotted))
	parsed := conflicts.Parse(string(snapshotted), markerLen)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, []string{"ours\n", "theirs\n"}, parsed.Adds())
}

func TestLargeFileGuard(t *testing.T) {
	assert.True(t, LargeFileGuardSkips(100, 10, true, false))
	assert.False(t, LargeFileGuardSkips(100, 10, false, false), "tracked files always snapshot")
	assert.False(t, LargeFileGuardSkips(100, 10, true, true), "explicit tracking overrides")
	assert.False(t, LargeFileGuardSkips(100, 0, true, false), "zero means unlimited")
	assert.False(t, LargeFileGuardSkips(5, 10, true, false))
}

func TestTreeStatePersistsMarkerLen(t *testing.T) {
	dir := t.TempDir()
	ts, err := LoadTreeState(dir, time.Second)
	require.NoError(t, err)
	ts.WorkingCopyCommit = plumbing.HashOf([]byte("wc"))
	ts.Files["conflicted.txt"] = FileState{Size: 10, ConflictMarkerLen: 9}
	require.NoError(t, ts.Save())

	ts2, err := LoadTreeState(dir, time.Second)
	require.NoError(t, err)
	defer ts2.Unlock() // nolint
	assert.Equal(t, 9, ts2.Files["conflicted.txt"].ConflictMarkerLen)
	assert.Equal(t, plumbing.HashOf([]byte("wc")), ts2.WorkingCopyCommit)
}

func TestTreeStateLockExcludes(t *testing.T) {
	dir := t.TempDir()
	ts, err := LoadTreeState(dir, time.Second)
	require.NoError(t, err)
	defer ts.Unlock() // nolint

	_, err = LoadTreeState(dir, 50*time.Millisecond)
	assert.Error(t, err)
}
