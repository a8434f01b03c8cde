package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by NewConfig when no files are given.
const DefaultEnvFile = ".env"

// Config contains server configuration parameters.
type Config struct {
	LogLevel  int    `env:"LOG_LEVEL" envDefault:"0"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	HTTP     HTTP     `envPrefix:"HTTP_"`
	Database Database `envPrefix:"DATABASE_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	JWT      JWT      `envPrefix:"JWT_"`
	Storage  Storage  `envPrefix:"MINIO_"`
	Browser  Browser  `envPrefix:"BROWSER_"`
	Project  Project  `envPrefix:"PROJECT_"`
	Session  Session  `envPrefix:"SESSION_"`
	Admin    Admin    `envPrefix:"ADMIN_"`
}

// HTTP contains web server parameters.
type HTTP struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	EnableHTTPS        bool          `env:"ENABLE_HTTPS" envDefault:"false"`
	CertFileName       string        `env:"CERT_FILE_NAME" envDefault:"cert.pem"`
	PrivateKeyFileName string        `env:"PRIVATE_KEY_FILE_NAME" envDefault:"key.pem"`
	ReadHeaderTimeout  time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	// WriteTimeout stays 0 by default so dashboard event streams are not cut.
	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
}

// Database contains database connection parameters. An empty DSN keeps
// registrations and accounts in memory.
type Database struct {
	DSN string `env:"DSN"`
	// MaxConns bounds the pool; each open dashboard holds one connection.
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"20"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"5m"`
}

// Redis holds session state and revoked tokens. An empty URL keeps them in memory.
type Redis struct {
	URL string `env:"URL"`
}

// JWT contains session token parameters.
type JWT struct {
	Secret string        `env:"SECRET,required,notEmpty"`
	TTL    time.Duration `env:"TTL" envDefault:"12h"`
}

// Storage contains object storage parameters. An empty endpoint disables
// export archiving.
type Storage struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"membership-exports"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Browser configures the Chrome instance used for PDF exports.
type Browser struct {
	ControlURL string `env:"CONTROL_URL"`
	Bin        string `env:"BIN"`
	Disabled   bool   `env:"DISABLED" envDefault:"false"`
}

// Project names the organization shown on pages and exports.
type Project struct {
	ID   string `env:"ID" envDefault:"rni"`
	Name string `env:"NAME" envDefault:"الهيئة الوطنية لأطر التربية والتكوين التجمعيين"`
}

// Session tunes per-browser state and dashboard subscriptions.
type Session struct {
	IdleTTL        time.Duration `env:"IDLE_TTL" envDefault:"30m"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
	RetryAfter     time.Duration `env:"RETRY_AFTER" envDefault:"10s"`
	SubmitTimeout  time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"1m"`
	RecordLimit    int           `env:"RECORD_LIMIT" envDefault:"0"`
}

// Admin is an account created with the admin role at startup when both
// fields are set.
type Admin struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

// Bootstrap reports whether an admin account should be provisioned at startup.
func (a Admin) Bootstrap() bool {
	return a.Email != "" && a.Password != ""
}

// NewConfig loads configuration from environment variables. Variables from
// envFiles (DefaultEnvFile when none are given) fill in what the environment
// does not set; missing files are skipped.
func NewConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
