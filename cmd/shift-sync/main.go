package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/zalando/go-keyring"

	"shiftsync/internal/caldav"
	"shiftsync/internal/config"
	appLog "shiftsync/internal/log"
	"shiftsync/internal/markup"
	"shiftsync/internal/model"
	"shiftsync/internal/shiftweb"
	"shiftsync/internal/web"
)

const version = "v1.0.0"

// Keychain service names. The account key is the site login id or the
// Apple ID respectively.
const (
	keyringWebService    = "shift-sync-web"
	keyringCalDAVService = "shift-sync-icloud"
)

type flags struct {
	setup          bool
	changeCalendar bool
	list           bool
	showConfig     bool
	daemon         bool
	version        bool
	from           string
	to             string
	configPath     string
	logLevel       string
}

func main() {
	fl := parseFlags()

	if fl.version {
		fmt.Printf("shift-sync version %s\n", version)
		return
	}

	appLog.SetLevel(appLog.ParseLevel(fl.logLevel))
	if logPath, err := config.LogFilePath(); err == nil {
		if err := appLog.TeeToFile(logPath); err != nil {
			appLog.Warn("could not open log file", "path", logPath, "err", err)
		}
	}

	cfgPath := fl.configPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			fatal("cannot determine config path", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cfg *config.Config
	var err error
	switch {
	case fl.setup:
		cfg, err = runSetup(ctx, cfgPath)
		if err != nil {
			fatal("setup failed", err)
		}
	case fl.changeCalendar:
		cfg, err = config.Load(cfgPath)
		if err != nil {
			fatal("config load failed (run -setup first)", err)
		}
		if err := runChangeCalendar(ctx, cfgPath, cfg); err != nil {
			fatal("calendar change failed", err)
		}
		fmt.Println("Calendar changed; running a sync against the new calendar...")
	default:
		cfg, err = config.Load(cfgPath)
		if errors.Is(err, fs.ErrNotExist) {
			if fl.list || fl.showConfig || fl.daemon {
				fatal("not set up yet", errors.New("run shift-sync -setup first"))
			}
			cfg, err = runSetup(ctx, cfgPath)
		}
		if err != nil {
			fatal("config load failed (try -setup)", err)
		}
	}

	switch {
	case fl.showConfig:
		if err := runShowConfig(ctx, cfgPath, cfg); err != nil {
			fatal("show-config failed", err)
		}
	case fl.list:
		if err := runList(ctx, cfg, fl.from, fl.to); err != nil {
			fatal("list failed", err)
		}
	case fl.daemon:
		if err := runDaemon(ctx, cfg); err != nil {
			fatal("daemon failed", err)
		}
	default:
		extracted, report, err := runSync(ctx, cfg)
		if err != nil {
			fatal("sync failed", err)
		}
		fmt.Printf("Extracted %d shifts; synced %d, failed %d.\n",
			extracted, report.Succeeded, len(report.Failures))
		for _, f := range report.Failures {
			fmt.Printf("  failed: %s\n", f.Error())
		}
	}
}

func parseFlags() flags {
	var fl flags
	flag.BoolVar(&fl.setup, "setup", false, "Run interactive first-time setup")
	flag.BoolVar(&fl.changeCalendar, "change-calendar", false, "Pick a different target calendar, then sync")
	flag.BoolVar(&fl.list, "list", false, "Print extracted shifts without touching the calendar")
	flag.BoolVar(&fl.showConfig, "show-config", false, "Print the current configuration (no secrets)")
	flag.BoolVar(&fl.daemon, "daemon", false, "Keep running: sync on the configured cron schedule and serve status endpoints")
	flag.BoolVar(&fl.version, "version", false, "Print version and exit")
	flag.StringVar(&fl.from, "from", "", "First month to fetch (YYYY-MM, with -list)")
	flag.StringVar(&fl.to, "to", "", "Last month to fetch (YYYY-MM, with -list)")
	flag.StringVar(&fl.configPath, "config", "", "Config file path (default ~/.shift-sync/config.yaml)")
	flag.StringVar(&fl.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	modes := 0
	for _, b := range []bool{fl.setup, fl.changeCalendar, fl.list, fl.showConfig, fl.daemon, fl.version} {
		if b {
			modes++
		}
	}
	if modes > 1 {
		fmt.Fprintln(os.Stderr, "flags -setup, -change-calendar, -list, -show-config, -daemon and -version are mutually exclusive")
		flag.Usage()
		os.Exit(2)
	}
	if (fl.from != "" || fl.to != "") && !fl.list {
		fmt.Fprintln(os.Stderr, "-from and -to only apply together with -list")
		flag.Usage()
		os.Exit(2)
	}
	if flag.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "unexpected positional arguments")
		flag.Usage()
		os.Exit(2)
	}
	return fl
}

// fetchShifts logs in, pulls every month in the window and extracts the
// shifts. Any structural or parse error aborts the whole fetch.
func fetchShifts(ctx context.Context, cfg *config.Config, months []shiftweb.YearMonth) ([]model.Shift, error) {
	webPass, err := keyring.Get(keyringWebService, cfg.ShiftWeb.ID)
	if err != nil || webPass == "" {
		return nil, errors.New("site password not found in keychain; run -setup")
	}

	client, err := shiftweb.Login(ctx, cfg.ShiftWeb.BaseURL, cfg.ShiftWeb.ID, webPass)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	extractor := markup.NewExtractor(markup.RulesFromConfig(cfg.Source))

	var shifts []model.Shift
	for _, ym := range months {
		html, err := client.FetchMonth(ctx, ym)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", ym, err)
		}
		monthShifts, err := extractor.Extract(html)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", ym, err)
		}
		shifts = append(shifts, monthShifts...)
	}
	return shifts, nil
}

// runSync is the default mode: this month + next month, extract, upsert.
// The returned error reflects extraction/transport problems only;
// per-event failures live in the report.
func runSync(ctx context.Context, cfg *config.Config) (int, *caldav.Report, error) {
	shifts, err := fetchShifts(ctx, cfg, shiftweb.CurrentWindow(nowLocal()))
	if err != nil {
		return 0, nil, err
	}

	appPass, err := keyring.Get(keyringCalDAVService, cfg.CalDAV.AppleID)
	if err != nil || appPass == "" {
		return 0, nil, errors.New("calendar app password not found in keychain; run -setup")
	}

	client := caldav.NewClient(cfg.CalDAV.AppleID, appPass)
	report, err := client.SyncShifts(ctx, cfg.CalDAV.CalendarURL, shifts)
	if err != nil {
		return len(shifts), nil, err
	}
	return len(shifts), report, nil
}

func runList(ctx context.Context, cfg *config.Config, from, to string) error {
	months, err := shiftweb.MonthRange(from, to, nowLocal())
	if err != nil {
		return err
	}
	shifts, err := fetchShifts(ctx, cfg, months)
	if err != nil {
		return err
	}

	sort.Slice(shifts, func(i, j int) bool { return shifts[i].Start.Before(shifts[j].Start) })
	for _, s := range shifts {
		fmt.Printf("%s  %s-%s  %s\n",
			s.Start.Format("2006-01-02"),
			s.Start.Format("15:04"),
			s.End.Format("15:04"),
			s.Location)
	}
	fmt.Printf("%d shifts total\n", len(shifts))
	return nil
}

func runShowConfig(ctx context.Context, cfgPath string, cfg *config.Config) error {
	fmt.Printf("Site login id: %s\n", cfg.ShiftWeb.ID)
	fmt.Printf("Apple ID:      %s\n", cfg.CalDAV.AppleID)

	if cfg.CalDAV.CalendarURL == "" {
		fmt.Println("Calendar:      (not set)")
	} else {
		name := "(name unavailable)"
		if appPass, err := keyring.Get(keyringCalDAVService, cfg.CalDAV.AppleID); err == nil && appPass != "" {
			client := caldav.NewClient(cfg.CalDAV.AppleID, appPass)
			if n, err := client.DisplayName(ctx, cfg.CalDAV.CalendarURL); err == nil && n != "" {
				name = n
			}
		}
		fmt.Printf("Calendar:      %s (%s)\n", name, cfg.CalDAV.CalendarURL)
	}

	fmt.Printf("Config file:   %s\n", cfgPath)
	if logPath, err := config.LogFilePath(); err == nil {
		fmt.Printf("Log file:      %s\n", logPath)
	}
	return nil
}

// runDaemon keeps the process alive: an immediate sync, then syncs on
// the configured cron schedule, with the status server running until
// the context is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	statusSrv := web.NewServer(cfg)

	doSync := func() {
		extracted, report, err := runSync(ctx, cfg)
		if err != nil {
			appLog.Error("scheduled sync failed", err)
		}
		statusSrv.Record(extracted, report, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Refresh, doSync); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.Refresh, err)
	}

	httpSrv := &http.Server{Addr: cfg.Listen, Handler: statusSrv.Handler()}
	go func() {
		appLog.Info("status server listening", "listen", "http://"+cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("status server stopped", err)
		}
	}()

	doSync()
	c.Start()
	appLog.Info("daemon running", "refresh", cfg.Refresh)

	<-ctx.Done()
	appLog.Info("shutting down")
	c.Stop()
	return httpSrv.Shutdown(context.Background())
}

func fatal(msg string, err error) {
	appLog.Error(msg, err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
