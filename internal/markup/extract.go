package markup

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"shiftsync/internal/config"
	appLog "shiftsync/internal/log"
	"shiftsync/internal/model"
)

// Rules describes the structural markers of one schedule page format.
// All values are explicit so two source formats (or a test fixture) can
// coexist; DefaultRules matches the known site.
type Rules struct {
	// HeadingSelector locates the element whose text embeds "YYYY年M月".
	HeadingSelector string
	// TableID is the id of the shift table.
	TableID string
	// DateClass, ShopClass, TimeClass are the td classes of the three
	// data cells of each row.
	DateClass string
	ShopClass string
	TimeClass string
	// WorkedMarker flags a time cell carrying a real shift; a cell
	// without it (for example one showing only OffMarker) is skipped.
	WorkedMarker string
	OffMarker    string
	// Title is the summary given to every extracted shift.
	Title string
}

// DefaultRules returns the rules for the known site format.
func DefaultRules() Rules {
	return RulesFromConfig(config.DefaultConfig().Source)
}

// RulesFromConfig builds Rules from the source section of the config.
func RulesFromConfig(src config.SourceConfig) Rules {
	return Rules{
		HeadingSelector: src.HeadingSelector,
		TableID:         src.TableID,
		DateClass:       src.DateClass,
		ShopClass:       src.ShopClass,
		TimeClass:       src.TimeClass,
		WorkedMarker:    src.WorkedMarker,
		OffMarker:       src.OffMarker,
		Title:           model.DefaultTitle,
	}
}

// The page grammar, as named-capture patterns. Field extraction below
// goes through these exclusively so malformed input surfaces as typed
// errors instead of index panics.
var (
	headingPattern = regexp.MustCompile(`(?P<year>\d{4})年(?P<month>\d{1,2})月`)
	datePattern    = regexp.MustCompile(`^(?P<month>\d{1,2})/(?P<day>\d{1,2})$`)
	clockPattern   = regexp.MustCompile(`^(?P<hour>\d{1,2}):(?P<minute>\d{2})$`)
)

// Extractor turns one month's schedule page into shift records.
type Extractor struct {
	rules Rules

	// now is the clock used for the heading fallback; overridable in tests.
	now func() time.Time
}

// NewExtractor builds an Extractor for the given rules. Zero-value
// rule fields fall back to DefaultRules.
func NewExtractor(rules Rules) *Extractor {
	def := DefaultRules()
	if rules.HeadingSelector == "" {
		rules.HeadingSelector = def.HeadingSelector
	}
	if rules.TableID == "" {
		rules.TableID = def.TableID
	}
	if rules.DateClass == "" {
		rules.DateClass = def.DateClass
	}
	if rules.ShopClass == "" {
		rules.ShopClass = def.ShopClass
	}
	if rules.TimeClass == "" {
		rules.TimeClass = def.TimeClass
	}
	if rules.WorkedMarker == "" {
		rules.WorkedMarker = def.WorkedMarker
	}
	if rules.OffMarker == "" {
		rules.OffMarker = def.OffMarker
	}
	if rules.Title == "" {
		rules.Title = def.Title
	}
	return &Extractor{rules: rules, now: time.Now}
}

// Extract parses a full schedule page into shifts in document order.
//
// The year comes from the page heading ("2025年11月の確定シフト");
// if the heading is absent or unmatched, the current real year/month is
// assumed. Each row's own month/day is used as-is, even when the month
// disagrees with the heading (the source does this around month
// boundaries; we preserve it rather than second-guess the site).
//
// An end clock time at or before the start clock time is taken to mean
// the shift runs past midnight and ends the following day.
func (e *Extractor) Extract(html string) ([]model.Shift, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("markup: parse document: %w", err)
	}

	year, month := e.headingYearMonth(doc)

	table := doc.Find("table#" + e.rules.TableID)
	if table.Length() == 0 {
		return nil, &StructureError{Missing: "table#" + e.rules.TableID}
	}

	var (
		shifts  []model.Shift
		rowErr  error
		skipped int
	)
	table.Find("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if i == 0 {
			return true // header row
		}
		dateCell := tr.Find("td." + e.rules.DateClass)
		shopCell := tr.Find("td." + e.rules.ShopClass)
		timeCell := tr.Find("td." + e.rules.TimeClass)
		if dateCell.Length() == 0 || shopCell.Length() == 0 || timeCell.Length() == 0 {
			skipped++
			return true
		}

		timeText := strings.TrimSpace(timeCell.Text())
		if !strings.Contains(timeText, e.rules.WorkedMarker) || !strings.Contains(timeText, "-") {
			// Off days ("×") and anything else without a range.
			skipped++
			return true
		}

		startClock, endClock, err := e.splitTimeRange(timeText)
		if err != nil {
			rowErr = err
			return false
		}

		m, d, err := e.splitDate(strings.TrimSpace(dateCell.Text()))
		if err != nil {
			rowErr = err
			return false
		}

		start, err := combine(year, m, d, startClock)
		if err != nil {
			rowErr = err
			return false
		}
		end, err := combine(year, m, d, endClock)
		if err != nil {
			rowErr = err
			return false
		}
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}

		shifts = append(shifts, model.Shift{
			Title:    e.rules.Title,
			Start:    start,
			End:      end,
			Location: strings.TrimSpace(shopCell.Text()),
			Memo:     "",
		})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	appLog.Info("markup extract completed",
		"year", year, "month", month,
		"shift_count", len(shifts), "skipped_rows", skipped)
	return shifts, nil
}

// headingYearMonth resolves the page's year/month context, falling back
// to the current real date when the heading is missing or unmatched.
func (e *Extractor) headingYearMonth(doc *goquery.Document) (int, int) {
	text := strings.TrimSpace(doc.Find(e.rules.HeadingSelector).First().Text())
	m := headingPattern.FindStringSubmatch(text)
	if m == nil {
		now := e.now()
		appLog.Warn("schedule heading missing or unmatched, assuming current month",
			"heading", text, "year", now.Year(), "month", int(now.Month()))
		return now.Year(), int(now.Month())
	}
	year, _ := strconv.Atoi(m[headingPattern.SubexpIndex("year")])
	month, _ := strconv.Atoi(m[headingPattern.SubexpIndex("month")])
	return year, month
}

// splitTimeRange turns "●14:30-19:45" into its two clock strings.
func (e *Extractor) splitTimeRange(text string) (string, string, error) {
	_, rangeText, ok := strings.Cut(text, e.rules.WorkedMarker)
	if !ok {
		return "", "", &DateParseError{Cell: "time", Text: text, Err: errors.New("worked marker not found")}
	}
	startClock, endClock, ok := strings.Cut(rangeText, "-")
	if !ok {
		return "", "", &DateParseError{Cell: "time", Text: text, Err: errors.New("missing range separator")}
	}
	return strings.TrimSpace(startClock), strings.TrimSpace(endClock), nil
}

// splitDate turns "11/4(火)未通知" into month and day. Everything from
// the day-of-week parenthetical onward is noise.
func (e *Extractor) splitDate(text string) (int, int, error) {
	main, _, _ := strings.Cut(text, "(")
	main = strings.TrimSpace(main)
	m := datePattern.FindStringSubmatch(main)
	if m == nil {
		return 0, 0, &DateParseError{Cell: "date", Text: text, Err: errors.New("expected M/D")}
	}
	month, _ := strconv.Atoi(m[datePattern.SubexpIndex("month")])
	day, _ := strconv.Atoi(m[datePattern.SubexpIndex("day")])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, &DateParseError{Cell: "date", Text: text, Err: errors.New("month or day out of range")}
	}
	return month, day, nil
}

// combine builds a local date-time from a resolved year, a row's
// month/day and an "HH:MM" clock string.
func combine(year, month, day int, clock string) (time.Time, error) {
	m := clockPattern.FindStringSubmatch(clock)
	if m == nil {
		return time.Time{}, &DateParseError{Cell: "time", Text: clock, Err: errors.New("expected HH:MM")}
	}
	hour, _ := strconv.Atoi(m[clockPattern.SubexpIndex("hour")])
	minute, _ := strconv.Atoi(m[clockPattern.SubexpIndex("minute")])
	if hour > 23 || minute > 59 {
		return time.Time{}, &DateParseError{Cell: "time", Text: clock, Err: errors.New("clock out of range")}
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local), nil
}
