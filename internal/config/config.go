package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TZ_NAME must resolve in minimal containers

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode     string
	Timezone    string
	Location    *time.Location
	FrontendURL string
	BcryptCost  int
	Log         LogConfig
	Database    DatabaseConfig
	Mail        MailConfig
	Scheduler   SchedulerConfig
	Seed        SeedConfig
	Telemetry   TelemetryConfig
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string // mysql | postgres | sqlite
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SQLitePath      string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// MailConfig holds outbound email configuration.
// Brevo wins over SMTP; with neither configured mails are only logged.
type MailConfig struct {
	AssociationName string
	SenderName      string
	SenderEmail     string
	BrevoAPIKey     string
	BrevoBaseURL    string
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// SchedulerConfig holds the periodic maintenance jobs configuration.
// Specs accept cron expressions or "@every <duration>".
type SchedulerConfig struct {
	Enabled               bool
	SweepSpec             string
	DuesReminderSpec      string
	EventReminderSpec     string
	MonthlyReportSpec     string
	ReminderDays          int
	ReminderRatePerSecond float64
}

// SeedConfig holds the bootstrap administrator account
type SeedConfig struct {
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only
func FromEnv() (*Config, error) {
	var invalid []string

	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	tz := getEnv("TZ_NAME", "Africa/Abidjan")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		invalid = append(invalid, "TZ_NAME")
		loc = time.UTC
	}

	config := &Config{
		AppMode:     appMode,
		Timezone:    tz,
		Location:    loc,
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12, &invalid),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", defaultLogLevel(appMode)),
			Format: getEnv("LOG_FORMAT", defaultLogFormat(appMode)),
		},
		Database:  loadDatabaseConfig(appMode, &invalid),
		Mail:      loadMailConfig(&invalid),
		Scheduler: loadSchedulerConfig(&invalid),
		Seed: SeedConfig{
			AdminEmail:     getEnv("ADMIN_EMAIL", ""),
			AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
			AdminFirstName: getEnv("ADMIN_FIRST_NAME", "Admin"),
			AdminLastName:  getEnv("ADMIN_LAST_NAME", "Association"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "asso-manager"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	switch config.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		invalid = append(invalid, "DB_DRIVER")
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string, invalid *[]string) DatabaseConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))
	defaultPort := "3306"
	if driver == "postgres" {
		defaultPort = "5432"
	}

	return DatabaseConfig{
		Driver:          driver,
		Host:            getEnv(prefix+"DB_HOST", "localhost"),
		Port:            getEnv(prefix+"DB_PORT", defaultPort),
		User:            getEnv(prefix+"DB_USER", "root"),
		Password:        getEnv(prefix+"DB_PASS", ""),
		DBName:          getEnv(prefix+"DB_NAME", "association"),
		SQLitePath:      getEnv("SQLITE_PATH", "association.db"),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10, invalid),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100, invalid),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour, invalid),
	}
}

// loadMailConfig loads Brevo / SMTP settings
func loadMailConfig(invalid *[]string) MailConfig {
	return MailConfig{
		AssociationName: getEnv("ASSOCIATION_NAME", "Notre Association"),
		SenderName:      getEnv("MAIL_SENDER_NAME", "Association"),
		SenderEmail:     getEnv("MAIL_SENDER_EMAIL", "noreply@association.fr"),
		BrevoAPIKey:     getEnv("BREVO_API_KEY", ""),
		BrevoBaseURL:    getEnv("BREVO_BASE_URL", "https://api.brevo.com/v3"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvInt("SMTP_PORT", 587, invalid),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASS", ""),
		Timeout:         getEnvDuration("MAIL_TIMEOUT", 10*time.Second, invalid),
		BreakerFailures: uint32(getEnvInt("MAIL_BREAKER_FAILURES", 5, invalid)),
		BreakerCooldown: getEnvDuration("MAIL_BREAKER_COOLDOWN", time.Minute, invalid),
	}
}

// loadSchedulerConfig loads the cron specs of the maintenance jobs
func loadSchedulerConfig(invalid *[]string) SchedulerConfig {
	return SchedulerConfig{
		Enabled:               getEnvBool("SCHEDULER_ENABLED", true, invalid),
		SweepSpec:             getEnv("CRON_DUES_SWEEP", "0 2 * * *"),
		DuesReminderSpec:      getEnv("CRON_DUES_REMINDERS", "0 9 * * 1"),
		EventReminderSpec:     getEnv("CRON_EVENT_REMINDERS", "0 18 * * *"),
		MonthlyReportSpec:     getEnv("CRON_MONTHLY_REPORT", "0 8 1 * *"),
		ReminderDays:          getEnvInt("DUES_REMINDER_DAYS", 30, invalid),
		ReminderRatePerSecond: getEnvFloat("REMINDER_RATE_PER_SECOND", 5, invalid),
	}
}

func defaultLogLevel(mode string) string {
	if mode == "prod" {
		return "info"
	}
	return "debug"
}

func defaultLogFormat(mode string) string {
	if mode == "prod" {
		return "json"
	}
	return "text"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, invalid *[]string) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		*invalid = append(*invalid, key)
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64, invalid *[]string) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		*invalid = append(*invalid, key)
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool, invalid *[]string) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*invalid = append(*invalid, key)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration, invalid *[]string) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*invalid = append(*invalid, key)
		return defaultValue
	}
	return v
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}
