package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default remote endpoints. Both can be overridden per config file so a
// second account or a test server can coexist with the real ones.
const (
	DefaultShiftWebBaseURL = "https://example-shift.com"
	DefaultCalDAVBaseURL   = "https://caldav.icloud.com/"
)

// ShiftWebConfig identifies the source scheduling site and the login id.
// The password lives in the OS keychain, never in this file.
type ShiftWebConfig struct {
	// BaseURL is the root of the scheduling site.
	BaseURL string `yaml:"base_url"`
	// ID is the login id for the site.
	ID string `yaml:"id"`
}

// SourceConfig captures the structural markers of the schedule page.
// They default to the known site format but stay configurable so the
// extractor is not welded to one HTML revision.
type SourceConfig struct {
	// HeadingSelector locates the element whose text carries "YYYY年M月".
	HeadingSelector string `yaml:"heading_selector"`
	// TableID is the id attribute of the shift table.
	TableID string `yaml:"table_id"`
	// DateClass, ShopClass and TimeClass are the td classes of the
	// three data cells in each row.
	DateClass string `yaml:"date_class"`
	ShopClass string `yaml:"shop_class"`
	TimeClass string `yaml:"time_class"`
	// WorkedMarker flags a time cell that carries an actual shift;
	// OffMarker is informational only (such cells are skipped).
	WorkedMarker string `yaml:"worked_marker"`
	OffMarker    string `yaml:"off_marker"`
}

// CalDAVConfig identifies the target calendar. The app password lives
// in the OS keychain.
type CalDAVConfig struct {
	// BaseURL is the CalDAV discovery root.
	BaseURL string `yaml:"base_url"`
	// AppleID is the account identifier used for basic auth.
	AppleID string `yaml:"apple_id"`
	// CalendarURL is the chosen calendar collection; filled by setup.
	CalendarURL string `yaml:"calendar_url"`
}

// BasicAuthConfig protects the daemon status endpoints when set.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	ShiftWeb ShiftWebConfig `yaml:"shiftweb"`
	Source   SourceConfig   `yaml:"source"`
	CalDAV   CalDAVConfig   `yaml:"caldav"`

	// Refresh is the cron schedule used by daemon mode.
	Refresh string `yaml:"refresh"`

	// Listen is the daemon status server address.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Auth on the status
	// server for everything except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		ShiftWeb: ShiftWebConfig{BaseURL: DefaultShiftWebBaseURL},
		Source: SourceConfig{
			HeadingSelector: "h3.btn-block",
			TableID:         "shiftTable",
			DateClass:       "shiftDate",
			ShopClass:       "shiftMisName",
			TimeClass:       "shiftTime",
			WorkedMarker:    "●",
			OffMarker:       "×",
		},
		CalDAV:   CalDAVConfig{BaseURL: DefaultCalDAVBaseURL},
		Refresh:  "0 7 * * *",
		Listen:   "127.0.0.1:8089",
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs from older versions still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.ShiftWeb.BaseURL == "" {
		c.ShiftWeb.BaseURL = def.ShiftWeb.BaseURL
	}
	if c.Source.HeadingSelector == "" {
		c.Source.HeadingSelector = def.Source.HeadingSelector
	}
	if c.Source.TableID == "" {
		c.Source.TableID = def.Source.TableID
	}
	if c.Source.DateClass == "" {
		c.Source.DateClass = def.Source.DateClass
	}
	if c.Source.ShopClass == "" {
		c.Source.ShopClass = def.Source.ShopClass
	}
	if c.Source.TimeClass == "" {
		c.Source.TimeClass = def.Source.TimeClass
	}
	if c.Source.WorkedMarker == "" {
		c.Source.WorkedMarker = def.Source.WorkedMarker
	}
	if c.Source.OffMarker == "" {
		c.Source.OffMarker = def.Source.OffMarker
	}
	if c.CalDAV.BaseURL == "" {
		c.CalDAV.BaseURL = def.CalDAV.BaseURL
	}
	if c.Refresh == "" {
		c.Refresh = def.Refresh
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Dir returns the per-user config directory (~/.shift-sync).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shift-sync"), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LogFilePath returns the default log file path inside the config dir.
func LogFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "shift-sync.log"), nil
}

// Load reads the YAML config at path. A missing file is reported via
// fs.ErrNotExist so the CLI can fall into first-run setup; any other
// read or YAML error is returned as-is.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".shift-sync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save for call sites that already
// hold a *Config.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
