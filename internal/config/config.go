package config

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string
	DBTimeout time.Duration
	// DBMaxOpenConns sizes the MySQL pool; 0 keeps the driver default of 30.
	DBMaxOpenConns int
	DBLogSQL       bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempTTLSecs int

	SMTP SMTPConfig
	// FrontendURL prefixes the deep links in notification emails.
	FrontendURL string
	// CompletionRecipient is emailed when the last approver signs off.
	CompletionRecipient string

	NotifyWorkers  int
	NotifyAttempts int
	NotifyBackoff  time.Duration

	ListLimit int

	Storage StorageConfig
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// StorageConfig points at an S3-compatible bucket for uploaded documents.
// An empty Endpoint disables uploads.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// Load reads the environment. Outside production a local .env file is
// loaded first; variables already set win.
func Load() *Config {
	if getenv("APP_ENV", "development") != "production" {
		_ = godotenv.Load()
	}

	c := &Config{
		Env:       getenv("APP_ENV", "development"),
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "deferrals"),
		MySQLUser: getenv("MYSQL_USER", "deferrals"),
		MySQLPass: getenv("MYSQL_PASS", "deferrals"),
		DBTimeout: time.Duration(getenvInt("DB_TIMEOUT_SECONDS", 5)) * time.Second,

		DBMaxOpenConns: getenvInt("DB_MAX_OPEN_CONNS", 0),
		DBLogSQL:       getenvBool("DB_LOG_SQL", false),

		RedisAddr:     getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),
		IdempTTLSecs:  getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			FromName: getenv("SMTP_FROM_NAME", "Deferral Desk"),
		},
		FrontendURL:         getenv("FRONTEND_URL", "http://localhost:3000"),
		CompletionRecipient: os.Getenv("COMPLETION_RECIPIENT"),

		NotifyWorkers:  getenvInt("NOTIFY_WORKERS", 2),
		NotifyAttempts: getenvInt("NOTIFY_ATTEMPTS", 3),
		NotifyBackoff:  time.Duration(getenvInt("NOTIFY_BACKOFF_MS", 1000)) * time.Millisecond,

		ListLimit: getenvInt("LIST_LIMIT", 500),

		Storage: StorageConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getenv("MINIO_BUCKET", "deferral-documents"),
			Region:    getenv("MINIO_REGION", "us-east-1"),
			UseSSL:    getenvBool("MINIO_USE_SSL", false),
			PublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		},
	}
	return c
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.DBTimeout <= 0 {
		return errors.New("DB_TIMEOUT_SECONDS must be positive")
	}
	if c.CompletionRecipient != "" {
		if _, err := mail.ParseAddress(c.CompletionRecipient); err != nil {
			return fmt.Errorf("invalid COMPLETION_RECIPIENT %q: %w", c.CompletionRecipient, err)
		}
	}
	if c.SMTP.From != "" {
		if _, err := mail.ParseAddress(c.SMTP.From); err != nil {
			return fmt.Errorf("invalid SMTP_FROM %q: %w", c.SMTP.From, err)
		}
	}
	if u, err := url.Parse(c.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid FRONTEND_URL %q", c.FrontendURL)
	}
	if c.Storage.Endpoint != "" && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "" || c.Storage.Bucket == "") {
		return errors.New("MINIO_ENDPOINT set without MINIO_ACCESS_KEY/SECRET_KEY/BUCKET")
	}
	if c.ListLimit < 0 {
		return errors.New("LIST_LIMIT must not be negative")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
