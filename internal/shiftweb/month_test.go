package shiftweb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentWindow(t *testing.T) {
	now := time.Date(2025, 11, 15, 10, 0, 0, 0, time.Local)
	assert.Equal(t,
		[]YearMonth{{2025, 11}, {2025, 12}},
		CurrentWindow(now))
}

func TestCurrentWindowDecemberRollsOver(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 0, 0, 0, time.Local)
	assert.Equal(t,
		[]YearMonth{{2025, 12}, {2026, 1}},
		CurrentWindow(now))
}

func TestYearMonthString(t *testing.T) {
	assert.Equal(t, "2025-03", YearMonth{2025, 3}.String())
}

func TestMonthRange(t *testing.T) {
	now := time.Date(2025, 11, 1, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		from    string
		to      string
		want    []YearMonth
		wantErr bool
	}{
		{name: "default window", want: []YearMonth{{2025, 11}, {2025, 12}}},
		{name: "explicit range", from: "2025-01", to: "2025-03",
			want: []YearMonth{{2025, 1}, {2025, 2}, {2025, 3}}},
		{name: "single month", from: "2025-06", to: "2025-06",
			want: []YearMonth{{2025, 6}}},
		{name: "from only extends one month", from: "2025-06",
			want: []YearMonth{{2025, 6}, {2025, 7}}},
		{name: "to only starts now", to: "2025-12",
			want: []YearMonth{{2025, 11}, {2025, 12}}},
		{name: "inverted range", from: "2025-05", to: "2025-01", wantErr: true},
		{name: "too wide", from: "2024-01", to: "2025-06", wantErr: true},
		{name: "garbage from", from: "banana", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MonthRange(tt.from, tt.to, now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYearMonthAddAcrossYears(t *testing.T) {
	assert.Equal(t, YearMonth{2026, 2}, YearMonth{2025, 12}.Add(2))
	assert.Equal(t, YearMonth{2025, 11}, YearMonth{2026, 1}.Add(-2))
}
