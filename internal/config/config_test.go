package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production") // skip .env lookup
	for _, k := range []string{"APP_PORT", "MYSQL_HOST", "DB_TIMEOUT_SECONDS", "NOTIFY_BACKOFF_MS", "MINIO_ENDPOINT", "LIST_LIMIT", "SMTP_FROM", "COMPLETION_RECIPIENT", "FRONTEND_URL"} {
		t.Setenv(k, "")
	}

	c := Load()
	if c.AppPort != "8080" || c.MySQLHost != "mysql" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.DBTimeout != 5*time.Second || c.NotifyBackoff != time.Second {
		t.Fatalf("timeouts = %v / %v", c.DBTimeout, c.NotifyBackoff)
	}
	if c.Storage.Endpoint != "" || c.Storage.Bucket != "deferral-documents" {
		t.Fatalf("storage = %+v", c.Storage)
	}
	if !c.IsProduction() {
		t.Fatalf("expected production env")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_TIMEOUT_SECONDS", "9")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("COMPLETION_RECIPIENT", "co-desk@example.com")

	c := Load()
	if c.DBTimeout != 9*time.Second || c.RedisDB != 3 {
		t.Fatalf("overrides not applied: timeout=%v db=%d", c.DBTimeout, c.RedisDB)
	}
	if c.NotifyWorkers != 2 {
		t.Fatalf("bad int should fall back to default, got %d", c.NotifyWorkers)
	}
	if !c.Storage.UseSSL || c.CompletionRecipient != "co-desk@example.com" {
		t.Fatalf("unexpected: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppPort:     "8080",
			MySQLHost:   "db",
			MySQLPort:   "3306",
			MySQLDB:     "d",
			MySQLUser:   "u",
			DBTimeout:   time.Second,
			FrontendURL: "https://desk.example.com",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.MySQLHost = "" }, "missing MySQL"},
		{"bad port", func(c *Config) { c.MySQLPort = "abc" }, "invalid MYSQL_PORT"},
		{"zero timeout", func(c *Config) { c.DBTimeout = 0 }, "DB_TIMEOUT_SECONDS"},
		{"bad recipient", func(c *Config) { c.CompletionRecipient = "not an email" }, "COMPLETION_RECIPIENT"},
		{"bad sender", func(c *Config) { c.SMTP.From = "@@" }, "SMTP_FROM"},
		{"relative frontend", func(c *Config) { c.FrontendURL = "/app" }, "FRONTEND_URL"},
		{"storage without keys", func(c *Config) { c.Storage = StorageConfig{Endpoint: "minio:9000", Bucket: "b"} }, "MINIO_ENDPOINT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestMySQLDSN(t *testing.T) {
	c := &Config{MySQLHost: "db", MySQLPort: "3306", MySQLDB: "deferrals", MySQLUser: "u", MySQLPass: "p"}
	want := "u:p@tcp(db:3306)/deferrals?multiStatements=true&parseTime=true&charset=utf8mb4,utf8"
	if got := c.MySQLDSN(); got != want {
		t.Fatalf("dsn = %s, want %s", got, want)
	}
}
