package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

const (
	DEFAULT_TYPING_TTL      = 5 * time.Second
	DEFAULT_TYPING_DEBOUNCE = 400 * time.Millisecond
	DEFAULT_HEARTBEAT_TTL   = 60 * time.Second
	DEFAULT_JOB_SHARE_TTL   = 7 * 24 * time.Hour
	DEFAULT_INVITE_TTL      = 7 * 24 * time.Hour
	DEFAULT_SWEEP_INTERVAL  = 30 * time.Second
	DEFAULT_MATCH_THRESHOLD = 60
	DEFAULT_HISTORY_LIMIT   = 50
	MAX_HISTORY_LIMIT       = 200
	MAX_MESSAGE_LENGTH      = 4000
	MAX_CREW_NAME_LENGTH    = 60
	DEFAULT_KAFKA_TOPIC     = "crew-events"
)

type Config struct {
	ApiEnv          string
	Port            string
	JwtSecret       string
	MaintenanceMode bool
	// Instances is the number of API replicas the deployment runs. Live streams
	// fan out in process, so only one is supported.
	Instances int

	StoreDriver       string
	FirebaseProjectID string
	SecretsDir        string
	RedisHost         string

	KafkaBroker string
	KafkaTopic  string
	KafkaGroup  string

	DatabaseDSN string

	AttachmentsBucket string
	AppURL            string
	MailFrom          string
	SentryDSN         string
	LogDir            string

	TypingTTL      time.Duration
	TypingDebounce time.Duration
	HeartbeatTTL   time.Duration
	JobShareTTL    time.Duration
	SweepInterval  time.Duration
}

// GetDSN builds the postgres connection string from DATABASE_* variables.
func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
}

// Load reads the process environment. Missing values fall back to defaults.
func Load() (*Config, error) {
	c := &Config{
		ApiEnv:            getenv("API_ENV", "local"),
		Port:              getenv("PORT", "9090"),
		JwtSecret:         os.Getenv("JWT_SECRET"),
		MaintenanceMode:   getbool("MAINTENANCE_MODE", false),
		Instances:         getint("API_INSTANCES", 1),
		StoreDriver:       getenv("STORE_DRIVER", "memory"),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		SecretsDir:        os.Getenv("SECRETS_DIR"),
		RedisHost:         os.Getenv("REDIS_HOST"),
		KafkaBroker:       os.Getenv("KAFKA_BROKER"),
		KafkaTopic:        getenv("KAFKA_TOPIC", DEFAULT_KAFKA_TOPIC),
		KafkaGroup:        getenv("KAFKA_GROUP", "crewcomms"),
		AttachmentsBucket: os.Getenv("S3_ATTACHMENTS_BUCKET"),
		AppURL:            getenv("APP_URL", "http://localhost:3000"),
		MailFrom:          getenv("MAIL_FROM", "noreply@crewcomms.app"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		LogDir:            getenv("LOG_DIR", "logs"),
		TypingTTL:         getduration("TYPING_TTL", DEFAULT_TYPING_TTL),
		TypingDebounce:    getduration("TYPING_DEBOUNCE", DEFAULT_TYPING_DEBOUNCE),
		HeartbeatTTL:      getduration("HEARTBEAT_TTL", DEFAULT_HEARTBEAT_TTL),
		JobShareTTL:       getduration("JOB_SHARE_TTL", DEFAULT_JOB_SHARE_TTL),
		SweepInterval:     getduration("SWEEP_INTERVAL", DEFAULT_SWEEP_INTERVAL),
	}
	if os.Getenv("DATABASE_HOST") != "" {
		c.DatabaseDSN = GetDSN()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.TypingTTL <= c.TypingDebounce {
		return errors.New("config: TYPING_TTL must be greater than TYPING_DEBOUNCE")
	}
	if c.HeartbeatTTL <= 0 || c.JobShareTTL <= 0 || c.SweepInterval <= 0 {
		return errors.New("config: durations must be positive")
	}
	if c.Instances != 1 {
		return fmt.Errorf("config: API_INSTANCES=%d is not supported; message, presence and notification streams are delivered in process, so run exactly one API instance", c.Instances)
	}
	switch c.StoreDriver {
	case "memory":
	case "firestore":
		if c.FirebaseProjectID == "" {
			return errors.New("config: FIREBASE_PROJECT_ID is required for the firestore store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.ApiEnv != "local" && c.ApiEnv != "test" && c.JwtSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	return nil
}

func (c *Config) IsProd() bool {
	return c.ApiEnv == "production"
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
