package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	pstrings "fintrail/pkg/platform/strings"
)

const devJWTSigningKey = "dev-secret-key-change-in-production"

// DefaultAuditExcludedPaths are operational endpoints that never produce
// audit records.
var DefaultAuditExcludedPaths = []string{
	"/health",
	"/health/ready",
	"/health/live",
	"/metrics",
	"/api/docs",
	"/api/redoc",
	"/api/openapi.json",
}

// Server is the process-wide configuration. It is built once by FromEnv and
// passed by value; nothing mutates it after startup.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	JWTSigningKey   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Database  Database
	Redis     Redis
	Kafka     Kafka
	Audit     Audit
	Retention Retention
	Residency Residency
	Security  Security
}

// Database configures the relational store. An empty URL selects the
// in-memory stores.
type Database struct {
	URL          string
	Driver       string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// Redis configures the token revocation store. An empty URL selects the
// in-memory revocation list.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional audit mirror. No brokers disables it.
type Kafka struct {
	Brokers    []string
	AuditTopic string
	Partitions int32
	Replicas   int16
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// Audit configures the request interceptor and the sink.
type Audit struct {
	Enabled          bool
	ExcludedPaths    []string
	BodyPreviewLimit int
	UserAgentLimit   int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Retention holds the data-minimization windows.
type Retention struct {
	Enabled bool
	// UserData is how long a soft-deleted user's data is kept before purge.
	UserData time.Duration
	// AuditLog is how long audit records are kept at all.
	AuditLog time.Duration
	// AuditAnonymizeAfter is the age at which actor email snapshots are scrubbed.
	AuditAnonymizeAfter time.Duration
	Schedule            string
}

// Residency tags are stamped onto every audit record and inventory entry.
type Residency struct {
	CloudProvider     string
	Region            string
	AvailabilityZone  string
	AvailabilityZones []string
}

type Security struct {
	EncryptionAtRest    bool
	MFARequiredForAdmin bool
}

// IsProduction reports whether the process runs with production settings.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables. A .env file in
// the working directory, if present, is loaded first without overriding
// variables already set.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	zones := splitList(getEnv("AVAILABILITY_ZONES", "us-east-1a,us-east-1b,us-east-1c"))
	defaultZone := ""
	if len(zones) > 0 {
		defaultZone = zones[0]
	}

	excluded := DefaultAuditExcludedPaths
	if raw := os.Getenv("AUDIT_EXCLUDED_PATHS"); raw != "" {
		excluded = pstrings.NormalizePaths(splitList(raw))
	}

	cfg := Server{
		Addr:            getEnv("FINTRAIL_ADDR", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", devJWTSigningKey),
		AccessTokenTTL:  time.Duration(getInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenTTL: days(getInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)),
		Database: Database{
			URL:          os.Getenv("DATABASE_URL"),
			Driver:       getEnv("DATABASE_DRIVER", "pgx"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLife:  30 * time.Minute,
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "fintrail.audit.records"),
			Partitions: int32(getInt("KAFKA_AUDIT_PARTITIONS", 3)),
			Replicas:   int16(getInt("KAFKA_AUDIT_REPLICAS", 1)),
		},
		Audit: Audit{
			Enabled:          getBool("ENABLE_AUDIT_LOGGING", true),
			ExcludedPaths:    excluded,
			BodyPreviewLimit: 1000,
			UserAgentLimit:   500,
			BreakerThreshold: getInt("AUDIT_BREAKER_THRESHOLD", 20),
			BreakerCooldown:  time.Duration(getInt("AUDIT_BREAKER_COOLDOWN_SECONDS", 30)) * time.Second,
		},
		Retention: Retention{
			Enabled:             getBool("ENABLE_DATA_MINIMIZATION", true),
			UserData:            days(getInt("DATA_RETENTION_DAYS", 2555)),
			AuditLog:            days(getInt("AUDIT_LOG_RETENTION_DAYS", 2555)),
			AuditAnonymizeAfter: days(getInt("AUDIT_ANONYMIZE_AFTER_DAYS", 365)),
			Schedule:            getEnv("RETENTION_SCHEDULE", "@daily"),
		},
		Residency: Residency{
			CloudProvider:     getEnv("CLOUD_PROVIDER", "aws"),
			Region:            getEnv("REGION", "us-east-1"),
			AvailabilityZone:  getEnv("AVAILABILITY_ZONE", defaultZone),
			AvailabilityZones: zones,
		},
		Security: Security{
			EncryptionAtRest:    getBool("ENCRYPTION_AT_REST", true),
			MFARequiredForAdmin: getBool("REQUIRE_MFA_FOR_ADMIN", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break retention or residency
// guarantees.
func (s Server) Validate() error {
	var errs []error
	if s.Retention.UserData <= 0 {
		errs = append(errs, errors.New("DATA_RETENTION_DAYS must be positive"))
	}
	if s.Retention.AuditLog <= 0 {
		errs = append(errs, errors.New("AUDIT_LOG_RETENTION_DAYS must be positive"))
	}
	if s.Retention.AuditAnonymizeAfter <= 0 {
		errs = append(errs, errors.New("AUDIT_ANONYMIZE_AFTER_DAYS must be positive"))
	}
	if s.Residency.CloudProvider == "" || s.Residency.Region == "" {
		errs = append(errs, errors.New("CLOUD_PROVIDER and REGION are required"))
	}
	if s.IsProduction() && s.JWTSigningKey == devJWTSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
	}
	if s.Database.URL != "" && s.Database.Driver != "pgx" && s.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", s.Database.Driver))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	return pstrings.SplitList(raw)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
