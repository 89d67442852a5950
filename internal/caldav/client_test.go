package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// davServer fakes the discovery side of a CalDAV server.
func davServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if _, _, ok := r.BasicAuth(); !ok {
			http.Error(w, "auth", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)

		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/</d:href>
    <d:propstat><d:prop>
      <d:current-user-principal><d:href>/principal/42/</d:href></d:current-user-principal>
    </d:prop></d:propstat>
  </d:response>
</d:multistatus>`)
		case "/principal/42/":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/principal/42/</d:href>
    <d:propstat><d:prop>
      <c:calendar-home-set><d:href>%s/home/42/</d:href></c:calendar-home-set>
    </d:prop></d:propstat>
  </d:response>
</d:multistatus>`, srv.URL)
		case "/home/42/":
			fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/home/42/</d:href>
    <d:propstat><d:prop>
      <d:resourcetype><d:collection/></d:resourcetype>
    </d:prop></d:propstat>
  </d:response>
  <d:response>
    <d:href>/home/42/work/</d:href>
    <d:propstat><d:prop>
      <d:displayname>Work</d:displayname>
      <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
    </d:prop></d:propstat>
  </d:response>
  <d:response>
    <d:href>/home/42/inbox/</d:href>
    <d:propstat><d:prop>
      <d:displayname>Inbox</d:displayname>
      <d:resourcetype><d:collection/></d:resourcetype>
    </d:prop></d:propstat>
  </d:response>
</d:multistatus>`)
		case "/home/42/work/":
			fmt.Fprint(w, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/home/42/work/</d:href>
    <d:propstat><d:prop>
      <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
    </d:prop></d:propstat>
  </d:response>
  <d:response>
    <d:href>/home/42/work/shift-20251104-1430-1945-0a1b2c3d.ics</d:href>
    <d:propstat><d:prop><d:resourcetype/></d:prop></d:propstat>
  </d:response>
  <d:response>
    <d:href>/home/42/work/meeting.ics</d:href>
    <d:propstat><d:prop><d:resourcetype/></d:prop></d:propstat>
  </d:response>
</d:multistatus>`)
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func TestDiscover(t *testing.T) {
	srv := davServer(t)
	defer srv.Close()

	client := NewClient("user@example.com", "app-pass")
	home, cals, err := client.Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/home/42/", home)
	require.Len(t, cals, 1, "only resources typed as calendars survive the filter")
	assert.Equal(t, "Work", cals[0].Name)
	assert.Equal(t, srv.URL+"/home/42/work/", cals[0].URL)
}

func TestListShiftEvents(t *testing.T) {
	srv := davServer(t)
	defer srv.Close()

	client := NewClient("user@example.com", "app-pass")
	uids, err := client.ListShiftEvents(context.Background(), srv.URL+"/home/42/work/")
	require.NoError(t, err)

	// meeting.ics is not ours; the collection entry itself is skipped.
	assert.Equal(t, []string{"shift-20251104-1430-1945-0a1b2c3d"}, uids)
}

func TestDeleteEventTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient("user@example.com", "app-pass")
	err := client.DeleteEvent(context.Background(), srv.URL+"/cal/", "shift-x")
	assert.NoError(t, err)
}

func TestEventURL(t *testing.T) {
	assert.Equal(t,
		"https://caldav.example.com/cal/shift-1.ics",
		EventURL("https://caldav.example.com/cal/", "shift-1"))
	assert.Equal(t,
		"https://caldav.example.com/cal/shift-1.ics",
		EventURL("https://caldav.example.com/cal", "shift-1"))
}

func TestNewCollectionID(t *testing.T) {
	a, err := NewCollectionID()
	require.NoError(t, err)
	b, err := NewCollectionID()
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, a)
	assert.NotEqual(t, a, b)
}
