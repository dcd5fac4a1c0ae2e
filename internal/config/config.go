package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthSecret   string
	AuthTokenTTL time.Duration
	BcryptCost   int

	// AllowClaimRoleFallback trusts the token's role when the user store
	// cannot be reached. Dev only.
	AllowClaimRoleFallback bool

	CORSOrigins []string

	RequireStarted      bool
	OpenAuthorSignup    bool
	DefaultPassingScore int

	LogLevel slog.Level

	AdminEmail    string
	AdminPassword string
}

// Load reads the given .env files, if present, into the environment without
// overriding variables that are already set, then builds the Config.
func Load(envFiles ...string) Config {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		HTTPAddr:               envOr("HTTP_ADDR", ":8080"),
		DBDriver:               envOr("DB_DRIVER", "sqlite"),
		DBDSN:                  envOr("DB_DSN", ""),
		AuthSecret:             envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AuthTokenTTL:           envDuration("AUTH_TOKEN_TTL", 8*time.Hour),
		BcryptCost:             envInt("BCRYPT_COST", 12),
		AllowClaimRoleFallback: envBool("ALLOW_CLAIM_ROLE_FALLBACK", false),
		CORSOrigins:            csvOr("CORS_ORIGINS", "http://localhost:3000"),
		RequireStarted:         envBool("REQUIRE_STARTED", false),
		OpenAuthorSignup:       envBool("OPEN_AUTHOR_SIGNUP", false),
		DefaultPassingScore:    envInt("DEFAULT_PASSING_SCORE", 70),
		LogLevel:               envLevel("LOG_LEVEL", slog.LevelInfo),
		AdminEmail:             os.Getenv("ADMIN_EMAIL"),
		AdminPassword:          os.Getenv("ADMIN_PASSWORD"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("90m") or a bare number of seconds.
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func envLevel(k string, def slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(os.Getenv(k))); err != nil {
		return def
	}
	return l
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
