package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultCredentialsFile is read when no explicit path is given.
const DefaultCredentialsFile = "creds.txt"

const apiPrefix = "/api/ptaf/v4"

// Mode selects which tenants a run talks to.
type Mode string

const (
	ModeBackup  Mode = "backup"
	ModeRestore Mode = "restore"
	ModeBoth    Mode = "both"
)

// Failure policies for concurrent units.
const (
	OnFailureContinue = "continue"
	OnFailureAbort    = "abort"
)

// Missing reference policies for restore.
const (
	OnMissingSkip = "skip"
	OnMissingSend = "send"
)

// Tenant holds the connection details for one side of a migration.
type Tenant struct {
	Host     string `env:"HOST" validate:"required"`
	Username string `env:"USERNAME" validate:"required"`
	Password string `env:"PASSWORD" validate:"required"`
}

// BaseURL returns the API root for the tenant. Hosts given with an explicit
// scheme are used as-is, bare hosts get https.
func (t Tenant) BaseURL() string {
	host := strings.TrimRight(t.Host, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + apiPrefix
}

// UIURL returns the web console root for the tenant, used for informational links.
func (t Tenant) UIURL() string {
	return strings.TrimSuffix(t.BaseURL(), apiPrefix)
}

type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Prefix    string `env:"S3_PREFIX"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION"`
	AccessKey string `env:"S3_ACCESS_KEY" validate:"required_with=Bucket"`
	SecretKey string `env:"S3_SECRET_KEY" validate:"required_with=Bucket"`
}

type Config struct {
	// Source is the tenant a backup is taken from (BACKUP_*).
	Source Tenant
	// Destination is the tenant a backup is restored into (RESTORE_*).
	Destination Tenant

	BackupDir   string `env:"BACKUP_DIR" validate:"required"`
	LogLevel    string `env:"LOG_LEVEL"`
	Fingerprint string `env:"AUTH_FINGERPRINT" validate:"required"`

	TLSInsecure bool   `env:"TLS_INSECURE"`
	TLSCACert   string `env:"TLS_CA_CERT"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`
	HTTPRetries int           `env:"HTTP_RETRIES" validate:"min=1"`
	Concurrency int           `env:"CONCURRENCY" validate:"min=1"`

	OnFailure          string `env:"ON_FAILURE" validate:"oneof=continue abort"`
	OnMissingReference string `env:"ON_MISSING_REFERENCE" validate:"oneof=skip send"`

	MetricsAddr string `env:"METRICS_ADDR"`

	S3 S3Config
}

// Load reads KEY=VALUE pairs from the credentials file at path and overlays
// the process environment on top. A missing file is not an error when the
// environment carries everything needed; Validate reports what is absent.
func Load(path string) (*Config, error) {
	file := map[string]string{}
	if path != "" {
		values, err := godotenv.Read(path)
		switch {
		case err == nil:
			file = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read credentials file %s: %w", path, err)
		}
	}

	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v := strings.TrimSpace(file[key]); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Source: Tenant{
			Host:     get("BACKUP_HOST", ""),
			Username: get("BACKUP_USERNAME", ""),
			Password: get("BACKUP_PASSWORD", ""),
		},
		Destination: Tenant{
			Host:     get("RESTORE_HOST", ""),
			Username: get("RESTORE_USERNAME", ""),
			Password: get("RESTORE_PASSWORD", ""),
		},
		BackupDir:          get("BACKUP_DIR", "backup"),
		LogLevel:           get("LOG_LEVEL", "info"),
		Fingerprint:        get("AUTH_FINGERPRINT", "testuser"),
		TLSCACert:          get("TLS_CA_CERT", ""),
		OnFailure:          get("ON_FAILURE", OnFailureContinue),
		OnMissingReference: get("ON_MISSING_REFERENCE", OnMissingSkip),
		MetricsAddr:        get("METRICS_ADDR", ""),
		S3: S3Config{
			Bucket:    get("S3_BUCKET", ""),
			Prefix:    get("S3_PREFIX", "wafbackup"),
			Endpoint:  get("S3_ENDPOINT", ""),
			Region:    get("S3_REGION", "us-east-1"),
			AccessKey: get("S3_ACCESS_KEY", ""),
			SecretKey: get("S3_SECRET_KEY", ""),
		},
	}

	var err error
	if cfg.TLSInsecure, err = strconv.ParseBool(get("TLS_INSECURE", "true")); err != nil {
		return nil, fmt.Errorf("parse TLS_INSECURE: %w", err)
	}
	if cfg.HTTPTimeout, err = time.ParseDuration(get("HTTP_TIMEOUT", "60s")); err != nil {
		return nil, fmt.Errorf("parse HTTP_TIMEOUT: %w", err)
	}
	if cfg.HTTPRetries, err = strconv.Atoi(get("HTTP_RETRIES", "1")); err != nil {
		return nil, fmt.Errorf("parse HTTP_RETRIES: %w", err)
	}
	if cfg.Concurrency, err = strconv.Atoi(get("CONCURRENCY", "8")); err != nil {
		return nil, fmt.Errorf("parse CONCURRENCY: %w", err)
	}

	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks that every setting the given mode needs is present and sane.
// All problems are reported at once, keyed by their credentials file name.
func (c *Config) Validate(mode Mode) error {
	var problems []string

	collect := func(prefix string, err error) {
		if err == nil {
			return
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			problems = append(problems, err.Error())
			return
		}
		for _, fe := range verrs {
			problems = append(problems, describe(prefix+fe.Field(), fe))
		}
	}

	collect("", validate.StructExcept(c, "Source", "Destination", "S3"))

	if mode == ModeBackup || mode == ModeBoth {
		collect("BACKUP_", validate.Struct(c.Source))
		collect("", validate.Struct(c.S3))
	}
	if mode == ModeRestore || mode == ModeBoth {
		collect("RESTORE_", validate.Struct(c.Destination))
	}

	switch mode {
	case ModeBackup, ModeRestore, ModeBoth:
	default:
		problems = append(problems, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describe(key string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "required_with":
		return key + " is required when S3_BUCKET is set"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", key, fe.Tag(), fe.Param())
	}
}
