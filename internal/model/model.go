package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTitle is the event summary used when the source page does not
// carry one (it never does; the schedule table has no title column).
const DefaultTitle = "バイト"

// Shift represents one normalized work period extracted from the
// schedule page. Start/End are calendar-naive local date-times; End is
// strictly after Start for any shift produced by the extractor.
type Shift struct {
	Title    string
	Start    time.Time
	End      time.Time
	Location string
	Memo     string
}

// UID derives the deterministic identity of a shift from
// (Start, End, Location) only. Two shifts with equal values in those
// three fields map to the same UID across runs and processes, which is
// what makes the CalDAV upsert idempotent without querying the remote
// side first.
//
// Shape: shift-<yyyymmdd>-<hhmm>-<hhmm>-<8 hex chars of sha1>.
// The digest key includes both endpoints at minute granularity plus the
// location, so shifts sharing a start timestamp still diverge.
func (s Shift) UID() string {
	key := fmt.Sprintf("%s-%s-%s",
		s.Start.Format("20060102T1504"),
		s.End.Format("20060102T1504"),
		s.Location,
	)
	sum := sha1.Sum([]byte(key))
	digest := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("shift-%s-%s-%s-%s",
		s.Start.Format("20060102"),
		s.Start.Format("1504"),
		s.End.Format("1504"),
		digest,
	)
}
