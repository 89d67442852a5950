package shiftweb

import (
	"errors"
	"fmt"
	"time"
)

// maxRangeMonths bounds -from/-to ranges; the site only keeps a few
// months of history anyway.
const maxRangeMonths = 12

// YearMonth is one calendar month.
type YearMonth struct {
	Year  int
	Month int
}

// String renders the YYYY-MM form the site's date2 parameter expects.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// Add returns the month n steps later (n may be negative).
func (ym YearMonth) Add(n int) YearMonth {
	t := time.Date(ym.Year, time.Month(ym.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// Compare orders two months: -1, 0 or 1.
func (ym YearMonth) Compare(other YearMonth) int {
	a := ym.Year*12 + ym.Month
	b := other.Year*12 + other.Month
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, err
	}
	return YearMonth{Year: t.Year(), Month: int(t.Month())}, nil
}

// CurrentWindow returns the default sync window: the month containing
// now plus the following month.
func CurrentWindow(now time.Time) []YearMonth {
	cur := YearMonth{Year: now.Year(), Month: int(now.Month())}
	return []YearMonth{cur, cur.Add(1)}
}

// MonthRange expands -from/-to flags into an inclusive month list.
// Either bound may be empty: a lone from extends one month forward, a
// lone to starts at the current month, and both empty is the default
// window from CurrentWindow.
func MonthRange(fromStr, toStr string, now time.Time) ([]YearMonth, error) {
	cur := YearMonth{Year: now.Year(), Month: int(now.Month())}

	var from, to YearMonth
	var err error
	switch {
	case fromStr == "" && toStr == "":
		return CurrentWindow(now), nil
	case fromStr != "" && toStr != "":
		if from, err = ParseYearMonth(fromStr); err != nil {
			return nil, fmt.Errorf("invalid from month: %w", err)
		}
		if to, err = ParseYearMonth(toStr); err != nil {
			return nil, fmt.Errorf("invalid to month: %w", err)
		}
	case fromStr != "":
		if from, err = ParseYearMonth(fromStr); err != nil {
			return nil, fmt.Errorf("invalid from month: %w", err)
		}
		to = from.Add(1)
	default:
		if to, err = ParseYearMonth(toStr); err != nil {
			return nil, fmt.Errorf("invalid to month: %w", err)
		}
		from = cur
	}

	if from.Compare(to) > 0 {
		return nil, errors.New("from month is after to month")
	}

	var months []YearMonth
	for ym := from; ; ym = ym.Add(1) {
		months = append(months, ym)
		if ym.Compare(to) == 0 {
			break
		}
		if len(months) > maxRangeMonths {
			return nil, fmt.Errorf("month range too wide (max %d months)", maxRangeMonths)
		}
	}
	return months, nil
}
