// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the application configuration loaded from environment variables.
// The env tag names the variable each field is read from; validation errors
// report that name.
type Config struct {
	ListenAddr string `env:"CLUBSYNC_LISTEN_ADDR" validate:"required"`
	DBPath     string `env:"CLUBSYNC_DB_PATH" validate:"required"`

	// SecretKey encrypts stored Strava tokens: 32 bytes, hex-encoded.
	SecretKey string `env:"CLUBSYNC_SECRET_KEY" validate:"required,hexadecimal,len=64"`

	StravaClientID          string `env:"CLUBSYNC_STRAVA_CLIENT_ID" validate:"required"`
	StravaClientSecret      string `env:"CLUBSYNC_STRAVA_CLIENT_SECRET" validate:"required"`
	StravaRedirectURL       string `env:"CLUBSYNC_STRAVA_REDIRECT_URL" validate:"omitempty,url"`
	StravaAPIURL            string `env:"CLUBSYNC_STRAVA_API_URL" validate:"required,url"`
	StravaAuthURL           string `env:"CLUBSYNC_STRAVA_AUTH_URL" validate:"required,url"`
	StravaTokenURL          string `env:"CLUBSYNC_STRAVA_TOKEN_URL" validate:"required,url"`
	StravaRequestsPerMinute int    `env:"CLUBSYNC_STRAVA_REQUESTS_PER_MINUTE" validate:"min=1,max=600"`
	StravaPerPage           int    `env:"CLUBSYNC_STRAVA_PER_PAGE" validate:"min=1,max=200"`

	FetchActivityDetails bool          `env:"CLUBSYNC_FETCH_ACTIVITY_DETAILS"`
	ActivityTypes        []string      `env:"CLUBSYNC_ACTIVITY_TYPES"`
	TokenRefreshMargin   time.Duration `env:"CLUBSYNC_TOKEN_REFRESH_MARGIN" validate:"gt=0"`
	DefaultTimezone      string        `env:"CLUBSYNC_DEFAULT_TIMEZONE" validate:"required,timezone"`

	SweepInterval       time.Duration `env:"CLUBSYNC_SWEEP_INTERVAL" validate:"gte=0"`
	SweepTimeout        time.Duration `env:"CLUBSYNC_SWEEP_TIMEOUT" validate:"gte=0"`
	SweepConcurrency    int           `env:"CLUBSYNC_SWEEP_CONCURRENCY" validate:"min=1,max=10"`
	SweepMaxAttempts    int           `env:"CLUBSYNC_SWEEP_MAX_ATTEMPTS" validate:"min=1,max=10"`
	SweepRetryBaseDelay time.Duration `env:"CLUBSYNC_SWEEP_RETRY_BASE_DELAY" validate:"gt=0"`
	SweepMaxBackoff     time.Duration `env:"CLUBSYNC_SWEEP_MAX_BACKOFF" validate:"gtefield=SweepRetryBaseDelay"`

	// CronSecret guards the batch sync endpoint. Empty disables the endpoint.
	CronSecret     string `env:"CLUBSYNC_CRON_SECRET"`
	AllowDebugSync bool   `env:"CLUBSYNC_ALLOW_DEBUG_SYNC"`

	SessionJWTSecret  string `env:"CLUBSYNC_SESSION_JWT_SECRET"`
	SessionCookie     string `env:"CLUBSYNC_SESSION_COOKIE" validate:"required"`
	SessionBlobCookie string `env:"CLUBSYNC_SESSION_BLOB_COOKIE"`

	// ArchiveBucketURL is a gocloud.dev bucket URL. Empty disables archiving.
	ArchiveBucketURL     string `env:"CLUBSYNC_ARCHIVE_BUCKET_URL"`
	ArchivePublicBaseURL string `env:"CLUBSYNC_ARCHIVE_PUBLIC_BASE_URL" validate:"omitempty,url"`
}

// HasSessionSecret reports whether session tokens can be verified. Without a
// secret the member-facing endpoints answer 401.
func (c *Config) HasSessionSecret() bool {
	return c.SessionJWTSecret != ""
}

// Location returns the default member timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaults() *Config {
	return &Config{
		ListenAddr:              "127.0.0.1:8080",
		DBPath:                  "clubsync.db",
		StravaAPIURL:            "https://www.strava.com/api/v3",
		StravaAuthURL:           "https://www.strava.com/oauth/authorize",
		StravaTokenURL:          "https://www.strava.com/oauth/token",
		StravaRequestsPerMinute: 60,
		StravaPerPage:           200,
		ActivityTypes:           []string{"Run", "Walk"},
		TokenRefreshMargin:      60 * time.Second,
		DefaultTimezone:         "UTC",
		SweepInterval:           time.Hour,
		SweepTimeout:            10 * time.Minute,
		SweepConcurrency:        3,
		SweepMaxAttempts:        3,
		SweepRetryBaseDelay:     2 * time.Second,
		SweepMaxBackoff:         30 * time.Second,
		SessionCookie:           "sb-access-token",
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// CLUBSYNC_SECRET_KEY, CLUBSYNC_STRAVA_CLIENT_ID and CLUBSYNC_STRAVA_CLIENT_SECRET
// are required; everything else has a default. Unset variables keep the default,
// set-but-unparseable ones fail with the variable name in the error.
func Load() (*Config, error) {
	cfg := defaults()

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		key := field.Tag.Get("env")
		raw, ok := os.LookupEnv(key)
		if key == "" || !ok {
			continue
		}
		if err := setField(v.Field(i), raw); err != nil {
			return nil, fmt.Errorf("%s has invalid value %q: %w", key, raw, err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var durationType = reflect.TypeFor[time.Duration]()

func setField(f reflect.Value, raw string) error {
	switch {
	case f.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		f.SetInt(int64(d))
	case f.Kind() == reflect.String:
		f.SetString(strings.TrimSpace(raw))
	case f.Kind() == reflect.Int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		f.SetInt(int64(n))
	case f.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		f.SetBool(b)
	case f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String:
		f.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type %s", f.Type())
	}
	return nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q check (value %v)", fe.Field(), fe.Tag(), redact(fe)))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// redact hides secret values from error messages.
func redact(fe validator.FieldError) any {
	if strings.Contains(fe.Field(), "SECRET") {
		return "<redacted>"
	}
	return fe.Value()
}
