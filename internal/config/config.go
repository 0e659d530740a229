package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string   `mapstructure:"PORT"`
	Env                  string   `mapstructure:"ENV"`
	DatabaseURL          string   `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer           string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string   `mapstructure:"AUTH_AUDIENCE"`
	SessionSigningKey    string   `mapstructure:"SESSION_SIGNING_KEY"`
	CORSOrigins          []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int      `mapstructure:"RATE_LIMIT_BURST"`
	GrantDefaultTTLHours int      `mapstructure:"GRANT_DEFAULT_TTL_HOURS"`
	BlobBackend          string   `mapstructure:"BLOB_BACKEND"`
	S3Bucket             string   `mapstructure:"S3_BUCKET"`
	S3Prefix             string   `mapstructure:"S3_PREFIX"`
	EmailBackend         string   `mapstructure:"EMAIL_BACKEND"`
	SESFromAddress       string   `mapstructure:"SES_FROM_ADDRESS"`
	SESFromName          string   `mapstructure:"SES_FROM_NAME"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("GRANT_DEFAULT_TTL_HOURS", 24)
	v.SetDefault("BLOB_BACKEND", "memory")
	v.SetDefault("EMAIL_BACKEND", "log")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("SESSION_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("GRANT_DEFAULT_TTL_HOURS")
	v.BindEnv("BLOB_BACKEND")
	v.BindEnv("S3_BUCKET")
	v.BindEnv("S3_PREFIX")
	v.BindEnv("EMAIL_BACKEND")
	v.BindEnv("SES_FROM_ADDRESS")
	v.BindEnv("SES_FROM_NAME")

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

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests act as an admin user.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// an auth issuer and a session signing key must be set: the signing key mints
// the act-as tokens used for account switching, and running without real JWT
// authentication would leave every patient record open.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
		}
		if c.SessionSigningKey == "" {
			return fmt.Errorf("SESSION_SIGNING_KEY is required when ENV=%q", c.Env)
		}
	}
	if len(c.SessionSigningKey) > 0 && len(c.SessionSigningKey) < 32 {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least 32 bytes, got %d", len(c.SessionSigningKey))
	}

	switch c.BlobBackend {
	case "memory":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND is \"s3\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"memory\" or \"s3\", got %q", c.BlobBackend)
	}

	switch c.EmailBackend {
	case "", "log":
	case "ses":
		if c.SESFromAddress == "" {
			return fmt.Errorf("SES_FROM_ADDRESS is required when EMAIL_BACKEND is \"ses\"")
		}
	default:
		return fmt.Errorf("EMAIL_BACKEND must be \"log\" or \"ses\", got %q", c.EmailBackend)
	}

	if c.GrantDefaultTTLHours <= 0 {
		return fmt.Errorf("GRANT_DEFAULT_TTL_HOURS must be positive, got %d", c.GrantDefaultTTLHours)
	}

	return nil
}
