// Package ics renders shift records as iCalendar documents, either one
// event per document (the form the CalDAV upsert PUTs) or all events in
// a single compound document (the form written to disk for inspection).
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"shiftsync/internal/model"
)

// ProductID identifies this tool in generated calendars.
const ProductID = "-//Inazumi Shift Sync//JP"

// dtLayout renders floating local date-times at second granularity,
// e.g. 20251104T143000. No timezone suffix: shifts are calendar-naive.
const dtLayout = "20060102T150405"

// EncodeEvent encodes a single shift (with its precomputed uid) as a
// complete one-event VCALENDAR document with CRLF line endings.
func EncodeEvent(s model.Shift, uid string) string {
	cal := newCalendar()
	addEvent(cal, s, uid)
	return cal.Serialize()
}

// EncodeCalendar encodes all shifts into one compound VCALENDAR.
// UIDs are derived per shift, so the output is stable across runs.
func EncodeCalendar(shifts []model.Shift) string {
	cal := newCalendar()
	for _, s := range shifts {
		addEvent(cal, s, s.UID())
	}
	return cal.Serialize()
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetVersion("2.0")
	return cal
}

func addEvent(cal *ical.Calendar, s model.Shift, uid string) {
	ev := cal.AddEvent(uid)
	ev.SetProperty(ical.ComponentPropertyDtStart, FormatDT(s.Start))
	ev.SetProperty(ical.ComponentPropertyDtEnd, FormatDT(s.End))

	title := s.Title
	if title == "" {
		title = model.DefaultTitle
	}
	ev.SetProperty(ical.ComponentPropertySummary, escapeText(title))
	if s.Location != "" {
		ev.SetProperty(ical.ComponentPropertyLocation, escapeText(s.Location))
	}
	if s.Memo != "" {
		ev.SetProperty(ical.ComponentPropertyDescription, escapeText(s.Memo))
	}
}

// escapeText applies RFC 5545 TEXT escaping. The library stores
// property values verbatim, so this has to happen before SetProperty.
func escapeText(text string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)
	return r.Replace(text)
}

// FormatDT renders a date-time the way event payloads do. Exposed for
// log lines and tests that need the exact wire form.
func FormatDT(t time.Time) string {
	return t.Format(dtLayout)
}
