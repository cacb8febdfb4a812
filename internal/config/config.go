package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/recoup/recoup/internal/domain/assignment"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	SyncBodyLimit  string        `mapstructure:"SYNC_BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`

	AuthSecret    string        `mapstructure:"AUTH_SECRET"`
	AuthIssuer    string        `mapstructure:"AUTH_ISSUER"`
	OwnerPassword string        `mapstructure:"OWNER_PASSWORD"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`

	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`
	MemberRef       string `mapstructure:"MEMBER_REF"`

	// Matching thresholds. Amount tolerances are fractions (0.01 = 1%),
	// date settings are whole days.
	MatchExactTolerance      float64 `mapstructure:"MATCH_EXACT_TOLERANCE"`
	MatchApproxTolerance     float64 `mapstructure:"MATCH_APPROX_TOLERANCE"`
	MatchExactScore          int     `mapstructure:"MATCH_EXACT_SCORE"`
	MatchApproxScore         int     `mapstructure:"MATCH_APPROX_SCORE"`
	MatchDateProximityDays   int     `mapstructure:"MATCH_DATE_PROXIMITY_DAYS"`
	MatchDateProximityBonus  int     `mapstructure:"MATCH_DATE_PROXIMITY_BONUS"`
	MatchDatePenaltyDays     int     `mapstructure:"MATCH_DATE_PENALTY_DAYS"`
	MatchDatePenalty         int     `mapstructure:"MATCH_DATE_PENALTY"`
	MatchMaxDateMismatchDays int     `mapstructure:"MATCH_MAX_DATE_MISMATCH_DAYS"`
	MatchProviderBonus       int     `mapstructure:"MATCH_PROVIDER_BONUS"`
	MatchMinScore            int     `mapstructure:"MATCH_MIN_SCORE"`

	// Proof document resolution for draft claims.
	ProofTolerance  float64 `mapstructure:"PROOF_TOLERANCE"`
	ProofWindowDays int     `mapstructure:"PROOF_WINDOW_DAYS"`

	// Scheduler. An interval of 0 disables the job.
	IngestInterval    time.Duration `mapstructure:"INGEST_INTERVAL"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	SubmitInterval    time.Duration `mapstructure:"SUBMIT_INTERVAL"`
	GenerationWindow  string        `mapstructure:"GENERATION_WINDOW"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	defaults := assignment.DefaultThresholds()
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("SYNC_BODY_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("DEFAULT_CURRENCY", "EUR")
	v.SetDefault("MEMBER_REF", "self")
	v.SetDefault("MATCH_EXACT_TOLERANCE", defaults.ExactAmountTolerance)
	v.SetDefault("MATCH_APPROX_TOLERANCE", defaults.ApproximateAmountTolerance)
	v.SetDefault("MATCH_EXACT_SCORE", defaults.ExactAmountScore)
	v.SetDefault("MATCH_APPROX_SCORE", defaults.ApproximateAmountScore)
	v.SetDefault("MATCH_DATE_PROXIMITY_DAYS", defaults.DateProximityDays)
	v.SetDefault("MATCH_DATE_PROXIMITY_BONUS", defaults.DateProximityBonus)
	v.SetDefault("MATCH_DATE_PENALTY_DAYS", defaults.DatePenaltyDays)
	v.SetDefault("MATCH_DATE_PENALTY", defaults.DatePenalty)
	v.SetDefault("MATCH_MAX_DATE_MISMATCH_DAYS", defaults.MaxDateMismatchDays)
	v.SetDefault("MATCH_PROVIDER_BONUS", defaults.ProviderMatchBonus)
	v.SetDefault("MATCH_MIN_SCORE", defaults.MinimumCandidateScore)
	v.SetDefault("PROOF_TOLERANCE", 0.01)
	v.SetDefault("PROOF_WINDOW_DAYS", 30)
	v.SetDefault("INGEST_INTERVAL", "1h")
	v.SetDefault("RECONCILE_INTERVAL", "30m")
	v.SetDefault("SUBMIT_INTERVAL", "0")
	v.SetDefault("GENERATION_WINDOW", "last_month")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("SYNC_BODY_LIMIT")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("CACHE_TTL")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("OWNER_PASSWORD")
	v.BindEnv("TOKEN_TTL")
	v.BindEnv("DEFAULT_CURRENCY")
	v.BindEnv("MEMBER_REF")
	v.BindEnv("MATCH_EXACT_TOLERANCE")
	v.BindEnv("MATCH_APPROX_TOLERANCE")
	v.BindEnv("MATCH_EXACT_SCORE")
	v.BindEnv("MATCH_APPROX_SCORE")
	v.BindEnv("MATCH_DATE_PROXIMITY_DAYS")
	v.BindEnv("MATCH_DATE_PROXIMITY_BONUS")
	v.BindEnv("MATCH_DATE_PENALTY_DAYS")
	v.BindEnv("MATCH_DATE_PENALTY")
	v.BindEnv("MATCH_MAX_DATE_MISMATCH_DAYS")
	v.BindEnv("MATCH_PROVIDER_BONUS")
	v.BindEnv("MATCH_MIN_SCORE")
	v.BindEnv("PROOF_TOLERANCE")
	v.BindEnv("PROOF_WINDOW_DAYS")
	v.BindEnv("INGEST_INTERVAL")
	v.BindEnv("RECONCILE_INTERVAL")
	v.BindEnv("SUBMIT_INTERVAL")
	v.BindEnv("GENERATION_WINDOW")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDevelopment() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests are not authenticated.")
		if cfg.DatabaseURL == "" {
			log.Println("WARNING: DATABASE_URL is empty — using the in-memory store.")
			log.Println("WARNING: All data is lost when the process exits.")
		}
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

// IsDevelopment returns true when the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MatchingThresholds assembles the scorer thresholds from configuration.
func (c *Config) MatchingThresholds() assignment.Thresholds {
	return assignment.Thresholds{
		ExactAmountTolerance:       c.MatchExactTolerance,
		ApproximateAmountTolerance: c.MatchApproxTolerance,
		ExactAmountScore:           c.MatchExactScore,
		ApproximateAmountScore:     c.MatchApproxScore,
		DateProximityDays:          c.MatchDateProximityDays,
		DateProximityBonus:         c.MatchDateProximityBonus,
		DatePenaltyDays:            c.MatchDatePenaltyDays,
		DatePenalty:                c.MatchDatePenalty,
		MaxDateMismatchDays:        c.MatchMaxDateMismatchDays,
		ProviderMatchBonus:         c.MatchProviderBonus,
		MinimumCandidateScore:      c.MatchMinScore,
	}
}

// Validate checks that the configuration is safe to run. Outside development
// a signing secret and owner password are required so the API never starts
// unauthenticated by accident.
func (c *Config) Validate() error {
	if !c.IsDevelopment() {
		if c.AuthSecret == "" {
			return fmt.Errorf("AUTH_SECRET is required when ENV is not development")
		}
		if len(c.AuthSecret) < 32 {
			return fmt.Errorf("AUTH_SECRET must be at least 32 characters, got %d", len(c.AuthSecret))
		}
		if c.OwnerPassword == "" {
			return fmt.Errorf("OWNER_PASSWORD is required when ENV is not development")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ENV is not development")
		}
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst)
	}

	if c.MatchExactTolerance < 0 || c.MatchApproxTolerance < 0 {
		return fmt.Errorf("matching tolerances must not be negative")
	}
	if c.MatchExactTolerance > c.MatchApproxTolerance {
		return fmt.Errorf("MATCH_EXACT_TOLERANCE (%v) must not exceed MATCH_APPROX_TOLERANCE (%v)",
			c.MatchExactTolerance, c.MatchApproxTolerance)
	}
	if c.MatchMinScore < 0 || c.MatchMinScore > 100 {
		return fmt.Errorf("MATCH_MIN_SCORE must be within [0,100], got %d", c.MatchMinScore)
	}

	switch c.GenerationWindow {
	case "forever", "last_month", "last_week":
	default:
		return fmt.Errorf("GENERATION_WINDOW must be \"forever\", \"last_month\", or \"last_week\", got %q",
			c.GenerationWindow)
	}

	if c.IngestInterval < 0 || c.ReconcileInterval < 0 || c.SubmitInterval < 0 {
		return fmt.Errorf("scheduler intervals must not be negative")
	}

	return nil
}
