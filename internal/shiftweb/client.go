// Package shiftweb handles the authenticated session against the
// scheduling site and fetches raw schedule pages per month. It knows
// nothing about the page contents; internal/markup does the reading.
package shiftweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	appLog "shiftsync/internal/log"
)

const (
	loginPagePath = "/login.php"
	loginAPIPath  = "/cont/login/check_login.php"
	shiftPath     = "/shift.php"
)

// Client is a logged-in session against the scheduling site.
type Client struct {
	http    *http.Client
	baseURL string
}

// Login opens a session: it first hits the login page to obtain the
// session cookie, then posts the credentials to the login API the same
// way the site's own JavaScript does (the endpoint rejects requests
// without the XMLHttpRequest and Referer headers).
func Login(ctx context.Context, baseURL, id, password string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+loginPagePath+"?err=1", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shiftweb: login page: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	form := url.Values{
		"id":        {id},
		"password":  {password},
		"savelogin": {"1"},
	}
	// The login API takes the account id as a bare query string.
	apiURL := fmt.Sprintf("%s%s?%s", c.baseURL, loginAPIPath, url.QueryEscape(id))
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+loginPagePath+"?err=1")

	resp, err = c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shiftweb: login request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("shiftweb: login status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
	}
	appLog.Debug("shiftweb login ok", "status", resp.StatusCode)
	return c, nil
}

// FetchMonth retrieves the raw schedule page HTML for one month
// (shift.php?mod=look&date2=YYYY-MM).
func (c *Client) FetchMonth(ctx context.Context, ym YearMonth) (string, error) {
	date2 := ym.String()
	params := url.Values{
		"mod":   {"look"},
		"date2": {date2},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+shiftPath+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Referer", c.baseURL+shiftPath)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("shiftweb: fetch %s: %w", date2, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("shiftweb: fetch %s status=%d body=%s", date2, resp.StatusCode, truncate(string(body), 200))
	}
	appLog.Info("shiftweb page fetched", "month", date2, "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
