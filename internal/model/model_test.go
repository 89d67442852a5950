package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShift() Shift {
	return Shift{
		Title:    DefaultTitle,
		Start:    time.Date(2025, 11, 4, 14, 30, 0, 0, time.Local),
		End:      time.Date(2025, 11, 4, 19, 45, 0, 0, time.Local),
		Location: "Shibuya",
	}
}

func TestUIDDeterministic(t *testing.T) {
	s := testShift()
	require.Equal(t, s.UID(), s.UID())

	// Identity is a function of (start, end, location) only.
	other := s
	other.Title = "something else"
	other.Memo = "note"
	assert.Equal(t, s.UID(), other.UID())
}

func TestUIDShape(t *testing.T) {
	uid := testShift().UID()
	assert.Regexp(t, `^shift-20251104-1430-1945-[0-9a-f]{8}$`, uid)
}

func TestUIDDiffersPerField(t *testing.T) {
	base := testShift()

	byStart := base
	byStart.Start = byStart.Start.Add(time.Minute)
	byEnd := base
	byEnd.End = byEnd.End.Add(time.Minute)
	byLocation := base
	byLocation.Location = "Shinjuku"

	seen := map[string]struct{}{}
	for _, s := range []Shift{base, byStart, byEnd, byLocation} {
		seen[s.UID()] = struct{}{}
	}
	assert.Len(t, seen, 4)
}
