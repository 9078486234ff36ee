// Package config reads settings from the environment and optional .env
// files. Command-line flags take their defaults from here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/roach88/baselinewatch/internal/catalog"
	"github.com/roach88/baselinewatch/internal/publish"
)

// Environment variables.
const (
	EnvDB           = "BASELINE_DB"
	EnvSource       = "BASELINE_SOURCE"
	EnvWebStatusURL = "BASELINE_WEBSTATUS_URL"
	EnvReleaseURL   = "BASELINE_RELEASE_URL"
	EnvRSSURL       = "BASELINE_RSS_URL"
	EnvLookbackDays = "BASELINE_LOOKBACK_DAYS"
	EnvSchedule     = "BASELINE_SCHEDULE"
	EnvDebug        = "BASELINE_DEBUG"
	EnvHealthAddr   = "BASELINE_HEALTH_ADDR"
	EnvDryRun       = "BASELINE_DRY_RUN"
	EnvBskyService  = "BSKY_SERVICE"
	EnvBskyHandle   = "BSKY_HANDLE"
	EnvBskyPassword = "BSKY_PASSWORD"
)

// Source kinds.
const (
	SourceWebStatus = "webstatus"
	SourceRelease   = "release"
	SourceRSS       = "rss"
)

// Defaults.
const (
	DefaultDB           = "baselinewatch.db"
	DefaultSchedule     = "0 * * * *"
	DefaultHealthAddr   = ":8080"
	DefaultLookbackDays = 1
)

// Config holds every setting.
type Config struct {
	DBPath       string
	Source       string
	WebStatusURL string
	ReleaseURL   string
	RSSURL       string
	LookbackDays int
	Schedule     string
	// Debug widens the query window to DebugWindow and enables debug logs.
	Debug      bool
	HealthAddr string
	DryRun     bool

	BskyService  string
	BskyHandle   string
	BskyPassword string
}

// Load reads the given .env files (".env" when none are named) into the
// process environment, without overriding variables already set, and
// then builds a Config from it. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	c := &Config{
		DBPath:       valueOr(getenv(EnvDB), DefaultDB),
		Source:       strings.ToLower(valueOr(getenv(EnvSource), SourceWebStatus)),
		WebStatusURL: valueOr(getenv(EnvWebStatusURL), catalog.DefaultWebStatusURL),
		ReleaseURL:   valueOr(getenv(EnvReleaseURL), catalog.DefaultReleaseURL),
		RSSURL:       getenv(EnvRSSURL),
		LookbackDays: DefaultLookbackDays,
		Schedule:     valueOr(getenv(EnvSchedule), DefaultSchedule),
		HealthAddr:   valueOr(getenv(EnvHealthAddr), DefaultHealthAddr),
		BskyService:  valueOr(getenv(EnvBskyService), publish.DefaultBlueskyService),
		BskyHandle:   getenv(EnvBskyHandle),
		BskyPassword: getenv(EnvBskyPassword),
	}

	var err error
	if v := getenv(EnvLookbackDays); v != "" {
		if c.LookbackDays, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvLookbackDays, err)
		}
	}
	if c.Debug, err = parseBool(getenv, EnvDebug); err != nil {
		return nil, err
	}
	if c.DryRun, err = parseBool(getenv, EnvDryRun); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks settings that FromEnv cannot fix with a default.
func (c *Config) Validate() error {
	var errs []error
	switch c.Source {
	case SourceWebStatus, SourceRelease:
	case SourceRSS:
		if c.RSSURL == "" {
			errs = append(errs, fmt.Errorf("%s is required for the rss source", EnvRSSURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q (want %s, %s or %s)", c.Source, SourceWebStatus, SourceRelease, SourceRSS))
	}
	if c.LookbackDays <= 0 {
		errs = append(errs, fmt.Errorf("lookback must be positive, got %d", c.LookbackDays))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	// Changes are recorded before they are posted; a live run without
	// credentials would mark them handled and post nothing.
	if !c.DryRun && (c.BskyHandle == "" || c.BskyPassword == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required unless %s is set", EnvBskyHandle, EnvBskyPassword, EnvDryRun))
	}
	return errors.Join(errs...)
}

// Window returns the query window for a run starting at now.
func (c *Config) Window(now time.Time) catalog.Window {
	if c.Debug {
		return catalog.DebugWindow
	}
	return catalog.Recent(now, time.Duration(c.LookbackDays)*24*time.Hour)
}

// NewSource builds the configured catalog source.
func (c *Config) NewSource(logger *slog.Logger) (catalog.Source, error) {
	switch c.Source {
	case SourceWebStatus:
		return &catalog.WebStatusSource{
			BaseURL: c.WebStatusURL,
			Window:  func() catalog.Window { return c.Window(time.Now()) },
			Logger:  logger,
		}, nil
	case SourceRelease:
		return &catalog.ReleaseSource{URL: c.ReleaseURL, BaselineOnly: true, Logger: logger}, nil
	case SourceRSS:
		return &catalog.RSSSource{URL: c.RSSURL, Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown source %q", c.Source)
}

// NewPublisher builds the publisher: a LogPublisher in dry-run mode, a
// BlueskyPublisher otherwise. Call Validate first.
func (c *Config) NewPublisher(logger *slog.Logger) publish.Publisher {
	if c.DryRun {
		return &publish.LogPublisher{Logger: logger}
	}
	return &publish.BlueskyPublisher{
		Service:  c.BskyService,
		Handle:   c.BskyHandle,
		Password: c.BskyPassword,
		Logger:   logger,
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(getenv func(string) string, key string) (bool, error) {
	v := getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
