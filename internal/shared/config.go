package shared

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	OpsAddr     string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	ApifyBase   string
	ApifyToken  string
	OracleBase  string
	OracleKey   string
	OracleModel string
	Workers     int
	ConfigPath  string
	CacheTTLSec int
}

func Load() Config {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		OpsAddr:     env("OPS_ADDR", ""),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/clinic_reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		ApifyBase:   env("APIFY_BASE_URL", "https://api.apify.com"),
		ApifyToken:  env("APIFY_TOKEN", ""),
		OracleBase:  env("ORACLE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		OracleKey:   env("ORACLE_API_KEY", ""),
		OracleModel: env("ORACLE_MODEL", "gemini-2.5-flash"),
		Workers:     atoi("PIPELINE_WORKERS", 8),
		ConfigPath:  env("PIPELINE_CONFIG", "config/pipeline.yaml"),
		CacheTTLSec: atoi("CACHE_TTL_SECONDS", 900),
	}
	if c.ApifyToken == "" {
		log.Warn().Msg("APIFY_TOKEN is empty")
	}
	if c.OracleKey == "" {
		log.Warn().Msg("ORACLE_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
