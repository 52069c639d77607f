package config

import (
	"errors"
	"flag"
	"net"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// Config holds every recognized option. Security and cleanup settings mirror
// the deployment surface of the survey frontend: rate limiting and the
// fill-time check default on, Turnstile defaults off until a secret is set.
type Config struct {
	Addr      string
	DBUrl     string
	DataDir   string
	UploadDir string

	TokenSecret   string
	TokenTTL      time.Duration
	AdminUser     string
	AdminPassword string

	UploadMaxBytes int64

	// Rate limiting. The counter file is private to this process: a
	// multi-process deployment pointing at the same data dir is not safe
	// without an external lock.
	RateLimitEnabled     bool
	MaxSubmissionsPerDay int

	TimeCheckEnabled bool
	MinSubmitSeconds int

	TurnstileEnabled  bool
	TurnstileSecret   string
	TurnstileFailOpen bool

	CleanupEnabled      bool
	CleanupIntervalDays int
	CleanupRunHour      int
	OrphanFileHours     int

	Debug bool
}

func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", "0.0.0.0", "listen host name")
	var port uint
	flag.UintVar(&port, "port", 8080, "listen port number")
	flag.StringVar(&cfg.DBUrl, "db-url", "formgate.sqlite", "path to SQLite3 DB file")
	flag.StringVar(&cfg.DataDir, "data-dir", "data", "directory for the rate limit counter file")
	flag.StringVar(&cfg.UploadDir, "upload-dir", "uploads", "directory for uploaded images")
	var uploadMaxMB int
	flag.IntVar(&uploadMaxMB, "upload-max-mb", 10, "max upload size in MiB")

	flag.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for admin token encryption and decryption")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", 7200, "admin token TTL in seconds")
	flag.StringVar(&cfg.AdminUser, "admin-user", "", "create or update this admin account at startup")
	flag.StringVar(&cfg.AdminPassword, "admin-password", "", "password for -admin-user")

	flag.BoolVar(&cfg.RateLimitEnabled, "rate-limit", true, "enable per-IP daily submission limits")
	flag.IntVar(&cfg.MaxSubmissionsPerDay, "max-submissions-per-day", 2, "max submissions per IP per rolling 24h")
	flag.BoolVar(&cfg.TimeCheckEnabled, "time-check", true, "reject submissions filled faster than -min-submit-seconds")
	flag.IntVar(&cfg.MinSubmitSeconds, "min-submit-seconds", 10, "minimum plausible fill time in seconds")
	flag.BoolVar(&cfg.TurnstileEnabled, "turnstile", false, "verify Cloudflare Turnstile tokens on submission")
	flag.StringVar(&cfg.TurnstileSecret, "turnstile-secret", "", "Turnstile secret key")
	flag.BoolVar(&cfg.TurnstileFailOpen, "turnstile-fail-open", false, "let submissions through when the Turnstile service is unreachable")

	flag.BoolVar(&cfg.CleanupEnabled, "cleanup", true, "enable the periodic retention cleanup task")
	flag.IntVar(&cfg.CleanupIntervalDays, "cleanup-interval-days", 1, "days between cleanup runs")
	flag.IntVar(&cfg.CleanupRunHour, "cleanup-run-hour", 4, "local hour of day (0-23) to run cleanup")
	flag.IntVar(&cfg.OrphanFileHours, "orphan-file-hours", 24, "age in hours before an unreferenced upload is deleted")

	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	cfg.UploadMaxBytes = int64(uploadMaxMB) << 20

	err = cfg.validate()
	return
}

func (cfg Config) validate() error {
	if cfg.TokenSecret == "" {
		return errors.New("missing parameter -token-secret")
	}
	if (cfg.AdminUser == "") != (cfg.AdminPassword == "") {
		return errors.New("-admin-user and -admin-password must be given together")
	}
	if cfg.MaxSubmissionsPerDay <= 0 {
		return errors.New("-max-submissions-per-day must be positive")
	}
	if cfg.MinSubmitSeconds < 0 {
		return errors.New("-min-submit-seconds must not be negative")
	}
	if cfg.TurnstileEnabled && cfg.TurnstileSecret == "" {
		return errors.New("-turnstile requires -turnstile-secret")
	}
	if cfg.CleanupIntervalDays <= 0 {
		return errors.New("-cleanup-interval-days must be positive")
	}
	if cfg.CleanupRunHour < 0 || cfg.CleanupRunHour > 23 {
		return errors.New("-cleanup-run-hour must be between 0 and 23")
	}
	if cfg.OrphanFileHours <= 0 {
		return errors.New("-orphan-file-hours must be positive")
	}
	return nil
}

// MaxUploadsPerDay derives the upload ceiling from the submission limit:
// every allowed submission may carry at most 5 images.
func (cfg Config) MaxUploadsPerDay() int {
	return cfg.MaxSubmissionsPerDay * 5
}

// CounterFile is the path of the backing rate limit counter file.
func (cfg Config) CounterFile() string {
	return filepath.Join(cfg.DataDir, "rate_limit.json")
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
