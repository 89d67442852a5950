package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"shiftsync/internal/caldav"
	"shiftsync/internal/config"
)

func nowLocal() time.Time { return time.Now() }

// runSetup performs the interactive first-run flow: collect both
// credentials into the keychain, discover the account's calendars and
// let the user pick (or create) the sync target, then persist the
// non-secret config.
func runSetup(ctx context.Context, cfgPath string) (*config.Config, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== shift-sync setup ===")

	webID, err := promptLine(reader, "Site login id: ")
	if err != nil {
		return nil, err
	}
	webPass, err := promptPassword("Site password: ")
	if err != nil {
		return nil, err
	}
	appleID, err := promptLine(reader, "Apple ID (iCloud email): ")
	if err != nil {
		return nil, err
	}
	appPass, err := promptPassword("iCloud app-specific password: ")
	if err != nil {
		return nil, err
	}

	if err := keyring.Set(keyringWebService, webID, webPass); err != nil {
		return nil, fmt.Errorf("store site password: %w", err)
	}
	if err := keyring.Set(keyringCalDAVService, appleID, appPass); err != nil {
		return nil, fmt.Errorf("store app password: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.ShiftWeb.ID = webID
	cfg.CalDAV.AppleID = appleID

	client := caldav.NewClient(appleID, appPass)
	selected, err := chooseCalendar(ctx, reader, client, cfg.CalDAV.BaseURL)
	if err != nil {
		return nil, err
	}
	cfg.CalDAV.CalendarURL = selected.URL

	if err := config.Save(cfgPath, cfg); err != nil {
		return nil, err
	}
	fmt.Printf("\nConfiguration saved: %s\n", cfgPath)
	return cfg, nil
}

// runChangeCalendar re-runs the calendar picker. When the target
// actually changes, the previous calendar is scrubbed of shift-*.ics
// resources first so the old events do not linger.
func runChangeCalendar(ctx context.Context, cfgPath string, cfg *config.Config) error {
	if cfg.CalDAV.AppleID == "" {
		return errors.New("no Apple ID configured; run -setup")
	}
	appPass, err := keyring.Get(keyringCalDAVService, cfg.CalDAV.AppleID)
	if err != nil || appPass == "" {
		return errors.New("calendar app password not found in keychain; run -setup")
	}

	client := caldav.NewClient(cfg.CalDAV.AppleID, appPass)

	if cfg.CalDAV.CalendarURL != "" {
		current := "(name unavailable)"
		if name, err := client.DisplayName(ctx, cfg.CalDAV.CalendarURL); err == nil && name != "" {
			current = name
		}
		fmt.Printf("Current calendar: %s (%s)\n\n", current, cfg.CalDAV.CalendarURL)
	} else {
		fmt.Println("Current calendar: (not set)")
	}

	reader := bufio.NewReader(os.Stdin)
	selected, err := chooseCalendar(ctx, reader, client, cfg.CalDAV.BaseURL)
	if err != nil {
		return err
	}

	switch {
	case cfg.CalDAV.CalendarURL == "" || selected.URL != cfg.CalDAV.CalendarURL:
		if cfg.CalDAV.CalendarURL != "" {
			fmt.Println("\nRemoving shift-*.ics from the previous calendar...")
			client.RemoveShiftEvents(ctx, cfg.CalDAV.CalendarURL)
		}
	default:
		fmt.Println("Same calendar selected; keeping existing events.")
	}

	cfg.CalDAV.CalendarURL = selected.URL
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("\nConfiguration saved: %s\n", cfgPath)
	return nil
}

// chooseCalendar discovers existing calendars and lets the user pick
// one, with entry 0 creating a fresh calendar collection.
func chooseCalendar(ctx context.Context, reader *bufio.Reader, client *caldav.Client, baseURL string) (caldav.Calendar, error) {
	fmt.Println("\nLooking up iCloud calendars...")
	homeURL, cals, err := client.Discover(ctx, baseURL)
	if err != nil {
		return caldav.Calendar{}, err
	}

	fmt.Println("\n=== Calendars ===")
	fmt.Println("[0] create a new calendar")
	if len(cals) == 0 {
		fmt.Println("  (no existing calendars)")
	}
	for i, cal := range cals {
		fmt.Printf("[%d] %s  ->  %s\n", i+1, cal.Name, cal.URL)
	}

	for {
		line, err := promptLine(reader, fmt.Sprintf("\nWhich calendar should receive shifts? [0-%d]: ", len(cals)))
		if err != nil {
			return caldav.Calendar{}, err
		}
		idx, err := strconv.Atoi(line)
		if err != nil || idx < 0 || idx > len(cals) {
			fmt.Println("Please enter a number from the list.")
			continue
		}
		if idx == 0 {
			cal, err := createCalendarFlow(ctx, reader, client, homeURL)
			if err != nil {
				fmt.Println("Calendar creation failed:", err)
				continue
			}
			return cal, nil
		}
		return cals[idx-1], nil
	}
}

func createCalendarFlow(ctx context.Context, reader *bufio.Reader, client *caldav.Client, homeURL string) (caldav.Calendar, error) {
	fmt.Print("Name for the new calendar (default: バイト): ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return caldav.Calendar{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "バイト"
	}

	id, err := caldav.NewCollectionID()
	if err != nil {
		return caldav.Calendar{}, fmt.Errorf("generate calendar id: %w", err)
	}
	calURL := strings.TrimRight(homeURL, "/") + "/" + id + "/"

	fmt.Printf("Creating calendar %s at %s\n", name, calURL)
	if err := client.CreateCalendar(ctx, calURL, name); err != nil {
		return caldav.Calendar{}, err
	}
	return caldav.Calendar{Name: name, URL: calURL}, nil
}

func promptLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("input must not be empty")
	}
	return line, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	pass := strings.TrimSpace(string(raw))
	if pass == "" {
		return "", errors.New("password must not be empty")
	}
	return pass, nil
}
