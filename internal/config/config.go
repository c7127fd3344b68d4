package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ttcal/internal/model"
)

const (
	defaultListen           = "127.0.0.1:8080"
	defaultCoursesPath      = "courses_data.json"
	defaultEventsPath       = "events.json"
	defaultErrorsPath       = "pdftoics.errors"
	defaultStaleAfter       = 10
	defaultRefreshCron      = "*/10 * * * *"
	defaultProductID        = "M2 IF"
	defaultCalendarName     = "M2 IF timetable"
	defaultDownloadFilename = "M2IF.ics"
	defaultLogLevel         = "info"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the web front end.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// ReferenceYear anchors the day/month pairs of the timetable.
	ReferenceYear int `yaml:"reference_year" json:"reference_year"`

	// CoursesPath is the JSON course metadata file (CR00..CR17).
	CoursesPath string `yaml:"courses_path" json:"courses_path"`

	// EventsPath is where the extraction output (raw events JSON) lives.
	EventsPath string `yaml:"events_path" json:"events_path"`

	// ErrorsPath receives the extraction command's stderr.
	ErrorsPath string `yaml:"errors_path" json:"errors_path"`

	// ExtractCommand is the argv of the PDF extraction tool. Its stdout
	// becomes the events file. Empty disables regeneration.
	ExtractCommand []string `yaml:"extract_command" json:"extract_command"`

	// StaleAfterMinutes is the age after which the events file is
	// regenerated on the next request.
	StaleAfterMinutes int `yaml:"stale_after_minutes" json:"stale_after_minutes"`

	// RefreshCron is a cron-style schedule (e.g. "*/10 * * * *") for
	// background regeneration in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen is the HTTP listen address in serve mode.
	Listen string `yaml:"listen" json:"listen"`

	ProductID        string `yaml:"product_id" json:"product_id"`
	CalendarName     string `yaml:"calendar_name" json:"calendar_name"`
	DownloadFilename string `yaml:"download_filename" json:"download_filename"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		ReferenceYear:     model.DefaultReferenceYear,
		CoursesPath:       defaultCoursesPath,
		EventsPath:        defaultEventsPath,
		ErrorsPath:        defaultErrorsPath,
		ExtractCommand:    []string{},
		StaleAfterMinutes: defaultStaleAfter,
		RefreshCron:       defaultRefreshCron,
		Listen:            defaultListen,
		ProductID:         defaultProductID,
		CalendarName:      defaultCalendarName,
		DownloadFilename:  defaultDownloadFilename,
		LogLevel:          defaultLogLevel,
		BasicAuth:         nil,
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.ReferenceYear <= 0 {
		c.ReferenceYear = model.DefaultReferenceYear
	}
	if c.CoursesPath == "" {
		c.CoursesPath = defaultCoursesPath
	}
	if c.EventsPath == "" {
		c.EventsPath = defaultEventsPath
	}
	if c.ErrorsPath == "" {
		c.ErrorsPath = defaultErrorsPath
	}
	if c.ExtractCommand == nil {
		c.ExtractCommand = []string{}
	}
	if c.StaleAfterMinutes <= 0 {
		c.StaleAfterMinutes = defaultStaleAfter
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.ProductID == "" {
		c.ProductID = defaultProductID
	}
	if c.CalendarName == "" {
		c.CalendarName = defaultCalendarName
	}
	if c.DownloadFilename == "" {
		c.DownloadFilename = defaultDownloadFilename
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// StaleAfter is StaleAfterMinutes as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file in the same directory,
// then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ttcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
