package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server        Server
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Collaborators CollaboratorConfig
	Scoring       ScoringConfig
	Fairness      FairnessConfig
	Log           LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// ReadTimeout bounds multipart uploads; WriteTimeout must outlast the
	// slowest collaborator chain of an evaluation.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
	RelayBatch    int
}

// CollaboratorConfig holds endpoints and resilience settings for the OCR,
// document-analysis and ML services.
type CollaboratorConfig struct {
	OCRURL           string
	MLURL            string
	AnalysisURL      string
	OCRTimeout       time.Duration
	AnalysisTimeout  time.Duration
	MLTimeout        time.Duration
	RequestsPerSec   float64
	Burst            int
	FailureThreshold int
	BreakerCooldown  time.Duration
}

type ScoringConfig struct {
	// Weights is the raw SCORING_WEIGHTS value, e.g. "IDENTITY=0.25,INCOME=0.25,TAX=0.25,BANK=0.25".
	Weights             string
	FanOutLimit         int
	SubmissionTTL       time.Duration
	MandatoryCategories []string
}

type FairnessConfig struct {
	ProtectedAttribute string
	CacheTTL           time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	p := envParser{errs: &errs}

	cfg := Config{
		Server: Server{
			Addr:          p.str("CREDIT_ENGINE_ADDR", ":8080"),
			JWTSigningKey: p.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     p.str("JWT_ISSUER", "credit-engine"),
			JWTAudience:   p.str("JWT_AUDIENCE", "credit-engine"),
			ReadTimeout:   p.duration("CREDIT_ENGINE_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:  p.duration("CREDIT_ENGINE_WRITE_TIMEOUT", 3*time.Minute),
		},
		Database: DatabaseConfig{
			URL:             p.str("DATABASE_URL", ""),
			MaxOpenConns:    p.int("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    p.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       p.list("KAFKA_BROKERS", nil),
			AuditTopic:    p.str("KAFKA_AUDIT_TOPIC", "credit.decisions.audit"),
			RelayInterval: p.duration("AUDIT_RELAY_INTERVAL", time.Second),
			RelayBatch:    p.int("AUDIT_RELAY_BATCH", 100),
		},
		Collaborators: CollaboratorConfig{
			OCRURL:           p.str("OCR_URL", "http://localhost:8001"),
			MLURL:            p.str("ML_URL", "http://localhost:8000"),
			AnalysisURL:      p.str("ANALYSIS_URL", ""),
			OCRTimeout:       p.duration("OCR_TIMEOUT", 10*time.Second),
			AnalysisTimeout:  p.duration("ANALYSIS_TIMEOUT", 60*time.Second),
			MLTimeout:        p.duration("ML_TIMEOUT", 30*time.Second),
			RequestsPerSec:   p.float("COLLABORATOR_RPS", 20),
			Burst:            p.int("COLLABORATOR_BURST", 10),
			FailureThreshold: p.int("COLLABORATOR_FAILURE_THRESHOLD", 5),
			BreakerCooldown:  p.duration("COLLABORATOR_BREAKER_COOLDOWN", 30*time.Second),
		},
		Scoring: ScoringConfig{
			Weights:             p.str("SCORING_WEIGHTS", ""),
			FanOutLimit:         p.int("SCORING_FANOUT_LIMIT", 4),
			SubmissionTTL:       p.duration("SUBMISSION_GUARD_TTL", 2*time.Minute),
			MandatoryCategories: p.list("MANDATORY_CATEGORIES", nil),
		},
		Fairness: FairnessConfig{
			ProtectedAttribute: p.str("FAIRNESS_PROTECTED_ATTRIBUTE", "gender"),
			CacheTTL:           p.duration("FAIRNESS_CACHE_TTL", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
	}
	if cfg.Collaborators.AnalysisURL == "" {
		cfg.Collaborators.AnalysisURL = cfg.Collaborators.MLURL
	}
	if cfg.Scoring.FanOutLimit < 1 {
		errs = append(errs, "SCORING_FANOUT_LIMIT must be at least 1")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

type envParser struct {
	errs *[]string
}

func (p envParser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p envParser) int(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (p envParser) float(key string, def float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (p envParser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func (p envParser) list(key string, def []string) []string {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
