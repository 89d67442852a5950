package markup

import "fmt"

// StructureError means the page is missing a structural landmark the
// extractor relies on (the shift table). It aborts the whole extraction:
// a page without the table is a format change, not an empty month.
type StructureError struct {
	Missing string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("markup: expected %s not found (source format may have changed)", e.Missing)
}

// DateParseError means a worked row carried date or time text the
// grammar could not parse. Extraction is all-or-nothing, so this aborts
// too; a partial shift list would silently lose shifts.
type DateParseError struct {
	Cell string // "date" or "time"
	Text string
	Err  error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("markup: unparsable %s cell %q: %v", e.Cell, e.Text, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }
