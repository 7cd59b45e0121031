package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven configuration for both servers.
type Config struct {
	Addr     string
	FeedAddr string

	DocstoreDriver string
	DatabaseURL    string
	MongoURI       string
	MongoDatabase  string
	TxMaxAttempts  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
	AdminPassword     string

	AutoArchiveEnabled  bool
	AutoArchiveAfter    time.Duration
	AutoArchiveInterval time.Duration

	CORSOrigins       []string
	FeedRatePerMinute int

	// ShopLocation is the zone sales are grouped into days by.
	ShopLocation       *time.Location
	SeedCatalog        bool
	AllowResetProducts bool
}

// Load reads a .env file when present and then the environment.
// Unparseable values fall back to their defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not read .env: %v", err)
	}

	return Config{
		Addr:     str("HELADERIA_ADDR", ":8080"),
		FeedAddr: str("FEED_ADDR", ":8081"),

		DocstoreDriver: strings.ToLower(str("DOCSTORE_DRIVER", "memory")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MongoURI:       str("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  str("MONGO_DATABASE", "heladeria"),
		TxMaxAttempts:  integer("TX_MAX_ATTEMPTS", 5),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       integer("REDIS_DB", 0),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),

		AutoArchiveEnabled:  boolean("AUTO_ARCHIVE_ENABLED", false),
		AutoArchiveAfter:    duration("AUTO_ARCHIVE_AFTER", 24*time.Hour),
		AutoArchiveInterval: duration("AUTO_ARCHIVE_INTERVAL", time.Hour),

		CORSOrigins:       list("CORS_ORIGINS", []string{"*"}),
		FeedRatePerMinute: integer("FEED_RATE_PER_MINUTE", 30),

		ShopLocation:       location("SHOP_TIMEZONE", time.UTC),
		SeedCatalog:        boolean("SEED_CATALOG", true),
		AllowResetProducts: os.Getenv("ALLOW_RESET_PRODUCTS") == "1",
	}
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warning: %s=%q is not a number, using %d", key, v, def)
		return def
	}
	return n
}

func boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("warning: %s=%q is not a boolean, using %v", key, v, def)
		return def
	}
	return b
}

func duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("warning: %s=%q is not a positive duration, using %s", key, v, def)
		return def
	}
	return d
}

func location(key string, def *time.Location) *time.Location {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		log.Printf("warning: %s=%q is not a time zone, using %s", key, v, def)
		return def
	}
	return loc
}

func list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
