package caldav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shiftsync/internal/ics"
	appLog "shiftsync/internal/log"
	"shiftsync/internal/model"
)

// EventError records one event upsert that did not succeed. A failing
// event never aborts the batch; it is reported here instead.
type EventError struct {
	UID    string `json:"uid"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Err    string `json:"error,omitempty"`
}

func (e EventError) Error() string {
	if e.Err != "" {
		return fmt.Sprintf("upsert %s: %s", e.URL, e.Err)
	}
	return fmt.Sprintf("upsert %s: status=%d body=%s", e.URL, e.Status, e.Body)
}

// Report summarizes one synchronization run.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Failures   []EventError `json:"failures,omitempty"`
}

// SyncShifts publishes each shift as an idempotent upsert against the
// calendar collection, strictly in input order, one write in flight at
// a time. Each shift is addressed by its content-derived UID, so a
// rerun overwrites the same resources instead of duplicating them.
// Shifts repeating a UID within the batch are written once.
//
// The collection address must be https; that is checked before any
// network activity. Per-event failures (non-2xx or transport errors)
// are recorded in the report and the batch continues.
func (c *Client) SyncShifts(ctx context.Context, calendarURL string, shifts []model.Shift) (*Report, error) {
	if !strings.HasPrefix(calendarURL, "https://") {
		return nil, fmt.Errorf("caldav: calendar URL must use https: %q", calendarURL)
	}

	report := &Report{StartedAt: time.Now(), Total: len(shifts)}
	seen := make(map[string]struct{}, len(shifts))

	for _, s := range shifts {
		uid := s.UID()
		if _, dup := seen[uid]; dup {
			report.Total--
			continue
		}
		seen[uid] = struct{}{}

		eventURL := EventURL(calendarURL, uid)
		payload := ics.EncodeEvent(s, uid)

		if evErr := c.putEvent(ctx, eventURL, payload); evErr != nil {
			evErr.UID = uid
			report.Failures = append(report.Failures, *evErr)
			appLog.Error("caldav upsert failed", evErr, "uid", uid)
			continue
		}
		report.Succeeded++
		appLog.Info("caldav upsert ok", "uid", uid, "url", eventURL)
	}

	report.FinishedAt = time.Now()
	appLog.Info("caldav sync finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", len(report.Failures))
	return report, nil
}

// putEvent performs one upsert write. Created, no-content and ok all
// count as success: the first covers creation, the others the
// idempotent overwrite of an existing resource at the same address.
func (c *Client) putEvent(ctx context.Context, eventURL, payload string) *EventError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, eventURL, strings.NewReader(payload))
	if err != nil {
		return &EventError{URL: eventURL, Err: err.Error()}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", contentTypeCalendar)

	resp, err := c.http.Do(req)
	if err != nil {
		return &EventError{URL: eventURL, Err: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return &EventError{
			URL:    eventURL,
			Status: resp.StatusCode,
			Body:   truncate(string(body), 200),
		}
	}
}
