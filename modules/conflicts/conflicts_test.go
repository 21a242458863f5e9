package conflicts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-scm/strata/modules/merge"
)

func TestMaterializeResolved(t *testing.T) {
	text, markerLen := Materialize(merge.Resolved("a\nb\n"), nil)
	assert.Equal(t, "a\nb\n", text)
	assert.Equal(t, MinMarkerLen, markerLen)
}

func TestThreeWayRoundTrip(t *testing.T) {
	base := "x\ny\nz\n"
	side1 := "x\nY\nz\n"
	side2 := "x\ny\nZ\n"
	m := merge.New(side1, base, side2)

	text, markerLen := Materialize(m, nil)
	assert.GreaterOrEqual(t, markerLen, 7)
	assert.Contains(t, text, strings.Repeat("<", markerLen)+" Conflict 1 of 1")
	assert.Contains(t, text, "+Y\n")
	assert.Contains(t, text, "Z\n")
	assert.True(t, strings.HasPrefix(text, "x\n"))

	parsed := Parse(text, markerLen)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, []string{side1, side2}, parsed.Adds())
	assert.Equal(t, []string{base}, parsed.Removes())
}

func TestBothSidesSameChangeResolves(t *testing.T) {
	m := merge.New("a\nB\n", "a\nb\n", "a\nB\n")
	text, _ := Materialize(m, nil)
	assert.Equal(t, "a\nB\n", text)
}

func TestSnapshotStyleRoundTrip(t *testing.T) {
	m := merge.New("1\n", "2\n", "3\n")
	text, markerLen := Materialize(m, &MaterializeOptions{Style: StyleSnapshot})
	assert.Contains(t, text, strings.Repeat("+", markerLen)+" Contents of side #1")
	assert.Contains(t, text, strings.Repeat("-", markerLen)+" Contents of base")

	parsed := Parse(text, markerLen)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, []string{"1\n", "3\n"}, parsed.Adds())
	assert.Equal(t, []string{"2\n"}, parsed.Removes())
}

func TestGitStyleRoundTrip(t *testing.T) {
	m := merge.New("ours\n", "base\n", "theirs\n")
	text, markerLen := Materialize(m, &MaterializeOptions{Style: StyleGit})
	assert.Contains(t, text, strings.Repeat("|", markerLen)+" Base")
	assert.Contains(t, text, strings.Repeat("=", markerLen))

	parsed := Parse(text, markerLen)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, []string{"ours\n", "theirs\n"}, parsed.Adds())
}

func TestGitStyleFallsBackForManySides(t *testing.T) {
	m := merge.New("a\n", "b\n", "c\n", "d\n", "e\n")
	text, markerLen := Materialize(m, &MaterializeOptions{Style: StyleGit})
	assert.Contains(t, text, strings.Repeat("%", markerLen)+" Changes from base #1")
	parsed := Parse(text, markerLen)
	assert.Equal(t, 5, parsed.Len())
}

func TestMarkerLengthGrowsPastContent(t *testing.T) {
	side1 := strings.Repeat("<", 12) + " not a marker\n"
	m := merge.New(side1, "base\n", "other\n")
	text, markerLen := Materialize(m, nil)
	assert.Equal(t, 13, markerLen)

	parsed := Parse(text, markerLen)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, side1, parsed.Adds()[0])
}

func TestParsePlainContent(t *testing.T) {
	parsed := Parse("just\nlines\n", MinMarkerLen)
	body, ok := parsed.AsResolved()
	require.True(t, ok)
	assert.Equal(t, "just\nlines\n", body)
}

func TestParseMalformedMarkerStaysLiteral(t *testing.T) {
	content := strings.Repeat("<", 7) + " Conflict 1 of 1\nno end marker\n"
	parsed := Parse(content, MinMarkerLen)
	body, ok := parsed.AsResolved()
	require.True(t, ok)
	assert.Equal(t, content, body)
}

func TestRequiredMarkerLen(t *testing.T) {
	assert.Equal(t, 7, RequiredMarkerLen(merge.Resolved("plain\n")))
	assert.Equal(t, 10, RequiredMarkerLen(merge.Resolved(strings.Repeat("=", 9)+"\n")))
}

func TestFileDeletedOnOneSide(t *testing.T) {
	m := merge.New("", "x\ny\nz\n", "x\ny\nZ\n")
	text, markerLen := Materialize(m, nil)
	parsed := Parse(text, markerLen)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, "", parsed.Adds()[0])
	assert.Equal(t, "x\ny\nZ\n", parsed.Adds()[1])
}
