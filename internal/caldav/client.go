// Package caldav speaks the small CalDAV subset this tool needs:
// PROPFIND discovery of the user's calendars, MKCALENDAR creation,
// and idempotent PUT upserts of individual event resources.
package caldav

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	appLog "shiftsync/internal/log"
)

const (
	contentTypeXML      = "application/xml; charset=utf-8"
	contentTypeCalendar = "text/calendar; charset=utf-8"

	// uidPrefix / icsSuffix define which resources in a collection are
	// considered ours. Cleanup never touches anything else.
	uidPrefix = "shift-"
	icsSuffix = ".ics"
)

// Calendar is one calendar collection exposed by the server.
type Calendar struct {
	Name string
	URL  string
}

// Client is a CalDAV client bound to one account.
type Client struct {
	http     *http.Client
	username string
	password string
}

// NewClient builds a Client with basic-auth credentials. The zero
// timeout of http.DefaultClient is never acceptable against a remote
// calendar host, so a bounded client is always used.
func NewClient(username, password string) *Client {
	return &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		username: username,
		password: password,
	}
}

// multistatus mirrors the DAV:multistatus response envelope, reduced to
// the properties this client ever requests.
type multistatus struct {
	XMLName   xml.Name   `xml:"multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href     string     `xml:"href"`
	Propstat []propstat `xml:"propstat"`
}

type propstat struct {
	Prop prop `xml:"prop"`
}

type prop struct {
	CurrentUserPrincipal href         `xml:"current-user-principal"`
	CalendarHomeSet      href         `xml:"calendar-home-set"`
	DisplayName          string       `xml:"displayname"`
	ResourceType         resourceType `xml:"resourcetype"`
}

type href struct {
	Href string `xml:"href"`
}

type resourceType struct {
	Calendar *struct{} `xml:"calendar"`
}

// propfind issues a PROPFIND and returns the body plus the final
// request URL (after redirects) for href resolution.
func (c *Client) propfind(ctx context.Context, target, body, depth string) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", target, strings.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", contentTypeXML)
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("caldav: PROPFIND %s: %w", target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Request.URL, err
	}
	if resp.StatusCode >= 400 {
		return nil, resp.Request.URL, fmt.Errorf("caldav: PROPFIND %s status=%d body=%s", target, resp.StatusCode, truncate(string(data), 200))
	}
	return data, resp.Request.URL, nil
}

// Discover resolves the account's calendar home and enumerates its
// calendar collections: current-user-principal, then calendar-home-set,
// then a Depth 1 listing filtered to calendar resources.
func (c *Client) Discover(ctx context.Context, baseURL string) (string, []Calendar, error) {
	principalURL, err := c.currentUserPrincipal(ctx, baseURL)
	if err != nil {
		return "", nil, err
	}
	homeURL, err := c.calendarHomeSet(ctx, principalURL)
	if err != nil {
		return "", nil, err
	}
	cals, err := c.ListCalendars(ctx, homeURL)
	if err != nil {
		return "", nil, err
	}
	return homeURL, cals, nil
}

func (c *Client) currentUserPrincipal(ctx context.Context, baseURL string) (string, error) {
	const body = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:current-user-principal/>
  </d:prop>
</d:propfind>
`
	data, base, err := c.propfind(ctx, baseURL, body, "0")
	if err != nil {
		return "", err
	}
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return "", fmt.Errorf("caldav: current-user-principal response: %w", err)
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			if h := ps.Prop.CurrentUserPrincipal.Href; h != "" {
				return resolveHref(base, h), nil
			}
		}
	}
	return "", errors.New("caldav: server did not report current-user-principal")
}

func (c *Client) calendarHomeSet(ctx context.Context, principalURL string) (string, error) {
	const body = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <c:calendar-home-set/>
  </d:prop>
</d:propfind>
`
	data, base, err := c.propfind(ctx, principalURL, body, "0")
	if err != nil {
		return "", err
	}
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return "", fmt.Errorf("caldav: calendar-home-set response: %w", err)
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			if h := ps.Prop.CalendarHomeSet.Href; h != "" {
				return resolveHref(base, h), nil
			}
		}
	}
	return "", errors.New("caldav: server did not report calendar-home-set")
}

// ListCalendars enumerates calendar collections directly under homeURL.
// Entries whose resourcetype lacks the calendar marker (the home
// collection itself, inbox/outbox, etc.) are dropped.
func (c *Client) ListCalendars(ctx context.Context, homeURL string) ([]Calendar, error) {
	const body = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>
`
	data, base, err := c.propfind(ctx, homeURL, body, "1")
	if err != nil {
		return nil, err
	}
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("caldav: calendar list response: %w", err)
	}

	var cals []Calendar
	for _, r := range ms.Responses {
		var p prop
		if len(r.Propstat) > 0 {
			p = r.Propstat[0].Prop
		}
		if p.ResourceType.Calendar == nil {
			continue
		}
		h := strings.TrimSpace(r.Href)
		if h == "" {
			continue
		}
		name := strings.TrimSpace(p.DisplayName)
		if name == "" {
			name = "(no name)"
		}
		cals = append(cals, Calendar{Name: name, URL: resolveHref(base, h)})
	}
	return cals, nil
}

// DisplayName fetches the displayname of a single collection.
func (c *Client) DisplayName(ctx context.Context, calendarURL string) (string, error) {
	const body = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:displayname/>
  </d:prop>
</d:propfind>
`
	data, _, err := c.propfind(ctx, calendarURL, body, "0")
	if err != nil {
		return "", err
	}
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return "", err
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			if ps.Prop.DisplayName != "" {
				return ps.Prop.DisplayName, nil
			}
		}
	}
	return "", nil
}

// mkcalendar is the MKCALENDAR request body: a calendar collection
// accepting VEVENT components.
type mkcalendar struct {
	XMLName xml.Name      `xml:"C:mkcalendar"`
	XmlnsD  string        `xml:"xmlns:D,attr"`
	XmlnsC  string        `xml:"xmlns:C,attr"`
	Set     mkcalendarSet `xml:"D:set"`
}

type mkcalendarSet struct {
	Prop mkcalendarProp `xml:"D:prop"`
}

type mkcalendarProp struct {
	DisplayName  string            `xml:"D:displayname"`
	ResourceType mkcalendarRType   `xml:"D:resourcetype"`
	Supported    mkcalendarCompSet `xml:"C:supported-calendar-component-set"`
}

type mkcalendarRType struct {
	Collection *struct{} `xml:"D:collection"`
	Calendar   *struct{} `xml:"C:calendar"`
}

type mkcalendarCompSet struct {
	Components []mkcalendarComp `xml:"C:comp"`
}

type mkcalendarComp struct {
	Name string `xml:"name,attr"`
}

// CreateCalendar creates a new VEVENT calendar collection at
// calendarURL with the given display name.
func (c *Client) CreateCalendar(ctx context.Context, calendarURL, displayName string) error {
	reqBody := mkcalendar{
		XmlnsD: "DAV:",
		XmlnsC: "urn:ietf:params:xml:ns:caldav",
		Set: mkcalendarSet{
			Prop: mkcalendarProp{
				DisplayName: displayName,
				ResourceType: mkcalendarRType{
					Collection: &struct{}{},
					Calendar:   &struct{}{},
				},
				Supported: mkcalendarCompSet{
					Components: []mkcalendarComp{{Name: "VEVENT"}},
				},
			},
		},
	}
	raw, err := xml.Marshal(reqBody)
	if err != nil {
		return err
	}
	body := append([]byte(xml.Header), raw...)

	req, err := http.NewRequestWithContext(ctx, "MKCALENDAR", calendarURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", contentTypeXML)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("caldav: MKCALENDAR %s: %w", calendarURL, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	appLog.Info("caldav mkcalendar", "url", calendarURL, "status", resp.StatusCode)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("caldav: MKCALENDAR status=%d body=%s", resp.StatusCode, truncate(string(respBody), 200))
	}
	return nil
}

// NewCollectionID returns a fresh random UUID usable as the path
// segment of a newly created calendar collection.
func NewCollectionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	h := hex.EncodeToString(b[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]), nil
}

// ListShiftEvents returns the UIDs of resources in the collection that
// this tool owns (shift-*.ics).
func (c *Client) ListShiftEvents(ctx context.Context, calendarURL string) ([]string, error) {
	const body = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
  </d:prop>
</d:propfind>
`
	data, base, err := c.propfind(ctx, calendarURL, body, "1")
	if err != nil {
		return nil, err
	}
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("caldav: collection listing response: %w", err)
	}

	var uids []string
	for _, r := range ms.Responses {
		h := strings.TrimSpace(r.Href)
		if h == "" {
			continue
		}
		var p prop
		if len(r.Propstat) > 0 {
			p = r.Propstat[0].Prop
		}
		if p.ResourceType.Calendar != nil {
			continue // the collection entry itself
		}
		name := path.Base(resolvePath(base, h))
		if !strings.HasPrefix(name, uidPrefix) || !strings.HasSuffix(name, icsSuffix) {
			continue
		}
		uids = append(uids, strings.TrimSuffix(name, icsSuffix))
	}
	return uids, nil
}

// DeleteEvent removes one event resource. 404 counts as success so a
// cleanup pass can be retried safely.
func (c *Client) DeleteEvent(ctx context.Context, calendarURL, uid string) error {
	eventURL := EventURL(calendarURL, uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, eventURL, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("caldav: DELETE %s: %w", eventURL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("caldav: DELETE %s status=%d body=%s", eventURL, resp.StatusCode, truncate(string(body), 200))
	}
}

// RemoveShiftEvents deletes every shift-*.ics in the collection,
// logging failures without aborting. Used when the user switches the
// target calendar.
func (c *Client) RemoveShiftEvents(ctx context.Context, calendarURL string) {
	uids, err := c.ListShiftEvents(ctx, calendarURL)
	if err != nil {
		appLog.Error("caldav list for cleanup failed", err, "url", calendarURL)
		return
	}
	if len(uids) == 0 {
		appLog.Info("caldav cleanup: no shift events found", "url", calendarURL)
		return
	}
	for _, uid := range uids {
		if err := c.DeleteEvent(ctx, calendarURL, uid); err != nil {
			appLog.Error("caldav cleanup delete failed", err, "uid", uid)
			continue
		}
		appLog.Info("caldav cleanup deleted", "uid", uid)
	}
}

// EventURL joins a collection address with an event uid.
func EventURL(calendarURL, uid string) string {
	return strings.TrimRight(calendarURL, "/") + "/" + uid + icsSuffix
}

// resolveHref resolves a possibly-relative DAV href against the final
// request URL of the response that carried it.
func resolveHref(base *url.URL, h string) string {
	u, err := url.Parse(h)
	if err != nil {
		return h
	}
	if u.IsAbs() {
		return u.String()
	}
	if base == nil {
		return h
	}
	return base.ResolveReference(u).String()
}

// resolvePath returns the path portion of a resolved href.
func resolvePath(base *url.URL, h string) string {
	resolved := resolveHref(base, h)
	if u, err := url.Parse(resolved); err == nil && u.Path != "" {
		return u.Path
	}
	return resolved
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
