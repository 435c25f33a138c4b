package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             string
	Env              string // "dev" | "prod"
	MongoURI         string
	MongoDB          string
	WebhookSecret    string // shared signing secret ("whsec_..."); empty is fatal at startup
	AuthJWKSURL      string
	JWKSCacheSeconds int
	RedisAddr        string
	RabbitURL        string
	RateLimitPerMin  int
}

func Load() Config {
	return Config{
		Port:             getenv("APP_PORT", "8080"),
		Env:              getenv("APP_ENV", "dev"),
		MongoURI:         getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:          getenv("MONGO_DB", "qna_db"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"), // no default on purpose
		AuthJWKSURL:      getenv("AUTH_JWKS_URL", "http://localhost:8081/.well-known/jwks.json"),
		JWKSCacheSeconds: atoi(getenv("JWKS_CACHE_SECONDS", "300")),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RabbitURL:        getenv("RABBIT_URL", ""),
		RateLimitPerMin:  atoi(getenv("RATE_LIMIT_PER_MIN", "30")),
	}
}

func atoi(s string) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return 0
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
