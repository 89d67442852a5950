package markup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(heading string, rows ...string) string {
	body := `<html><body>`
	if heading != "" {
		body += `<h3 class="btn-block">` + heading + `</h3>`
	}
	body += `<table id="shiftTable"><tr><th>日付</th><th>店舗</th><th>時間</th></tr>`
	for _, r := range rows {
		body += r
	}
	return body + `</table></body></html>`
}

func row(date, shop, clock string) string {
	return fmt.Sprintf(
		`<tr><td class="shiftDate">%s</td><td class="shiftMisName">%s</td><td class="shiftTime">%s</td></tr>`,
		date, shop, clock)
}

func TestExtractWorkedRow(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("11/4(火)", "Shibuya", "●14:30-19:45")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)

	s := shifts[0]
	assert.Equal(t, time.Date(2025, 11, 4, 14, 30, 0, 0, time.Local), s.Start)
	assert.Equal(t, time.Date(2025, 11, 4, 19, 45, 0, 0, time.Local), s.End)
	assert.Equal(t, "Shibuya", s.Location)
	assert.Equal(t, "バイト", s.Title)
	assert.Empty(t, s.Memo)
}

func TestExtractSkipsOffDays(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("11/4(火)", "Shibuya", "×"),
		row("11/5(水)", "Shibuya", "●9:00-17:00"),
		row("11/6(木)", "Shibuya", "休み希望")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 5, shifts[0].Start.Day())
}

func TestExtractOnlyOffDays(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("11/4(火)", "Shibuya", "×")))
	require.NoError(t, err)
	assert.Empty(t, shifts)
}

func TestExtractSkipsIncompleteRows(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		`<tr><td class="shiftDate">11/4(火)</td><td class="shiftTime">●14:30-19:45</td></tr>`,
		row("11/5(水)", "Shibuya", "●10:00-15:00")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 5, shifts[0].Start.Day())
}

func TestExtractMissingTable(t *testing.T) {
	e := NewExtractor(Rules{})
	_, err := e.Extract(`<html><body><h3 class="btn-block">2025年11月の確定シフト</h3></body></html>`)
	var serr *StructureError
	require.ErrorAs(t, err, &serr)
}

func TestExtractMalformedWorkedRowAborts(t *testing.T) {
	e := NewExtractor(Rules{})
	tests := []struct {
		name string
		rows []string
	}{
		{"bad clock", []string{row("11/4(火)", "Shibuya", "●25:99-19:45")}},
		{"bad date", []string{row("notadate", "Shibuya", "●14:30-19:45")}},
		{"month out of range", []string{row("13/4(火)", "Shibuya", "●14:30-19:45")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(page("2025年11月の確定シフト", tt.rows...))
			var derr *DateParseError
			require.ErrorAs(t, err, &derr)
		})
	}
}

func TestExtractHeadingResolvesYear(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2024年2月の確定シフト",
		row("2/29(木)", "Shibuya", "●8:00-12:00")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 2024, shifts[0].Start.Year())
}

func TestExtractHeadingFallback(t *testing.T) {
	e := NewExtractor(Rules{})
	e.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local) }

	shifts, err := e.Extract(page("シフト一覧",
		row("3/20(金)", "Shibuya", "●9:00-17:00")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 2026, shifts[0].Start.Year())
}

func TestExtractRowMonthWins(t *testing.T) {
	// Around month boundaries the table can carry rows from the next
	// month; the row's own month is used even when it disagrees with
	// the heading.
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("12/1(月)", "Shibuya", "●9:00-17:00")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, time.December, shifts[0].Start.Month())
	assert.Equal(t, 2025, shifts[0].Start.Year())
}

func TestExtractCrossMidnightRollsToNextDay(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("11/4(火)", "Shibuya", "●22:00-6:00")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, time.Date(2025, 11, 4, 22, 0, 0, 0, time.Local), shifts[0].Start)
	assert.Equal(t, time.Date(2025, 11, 5, 6, 0, 0, 0, time.Local), shifts[0].End)
}

func TestExtractDateCellWithTrailingNote(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("11/4(火)未通知", "Shibuya", "●14:30-19:45")))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 4, shifts[0].Start.Day())
}

func TestExtractDocumentOrder(t *testing.T) {
	e := NewExtractor(Rules{})
	shifts, err := e.Extract(page("2025年11月の確定シフト",
		row("11/10(月)", "Shibuya", "●9:00-17:00"),
		row("11/4(火)", "Ikebukuro", "●14:30-19:45")))
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	// Document order, not chronological.
	assert.Equal(t, 10, shifts[0].Start.Day())
	assert.Equal(t, 4, shifts[1].Start.Day())
}

func TestExtractCustomRules(t *testing.T) {
	e := NewExtractor(Rules{
		TableID:      "scheduleGrid",
		WorkedMarker: "○",
		Title:        "勤務",
	})
	html := `<html><body><h3 class="btn-block">2025年11月</h3>` +
		`<table id="scheduleGrid"><tr><th></th><th></th><th></th></tr>` +
		row("11/4(火)", "Ueno", "○10:00-18:00") +
		`</table></body></html>`
	shifts, err := e.Extract(html)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, "勤務", shifts[0].Title)
	assert.Equal(t, "Ueno", shifts[0].Location)
}
