// Package config loads the core's environment and the modules directory's
// settings.json (§6.5) into a typed configuration value.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OAuthProvider holds the client credentials for one OAuth2 provider.
type OAuthProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Config is the fully resolved process configuration.
type Config struct {
	Port   string
	Secret string

	// PGURL, when set, is a full connection string and takes precedence
	// over the discrete DB* fields below.
	PGURL string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	OriginWhitelist []string

	ModulesDir string

	RateLimitRPM int

	OAuth map[string]OAuthProvider

	// LoadBalancing is the per-module desired instance count loaded from
	// <ModulesDir>/settings.json's "loadBalancing" object. Modules absent
	// from this map default to a single instance.
	LoadBalancing map[string]int
}

// Load reads the process environment and the modules directory's
// settings.json, applying defaults for anything unset. A missing
// settings.json is tolerated: every module simply defaults to one
// instance (§6.5, §4.2). A present but malformed settings.json is a
// fatal configuration error rather than a silent fallback.
func Load() (*Config, error) {
	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		return nil, fmt.Errorf("config: SECRET_KEY is required")
	}

	cfg := &Config{
		Port:   getEnv("PORT", "3000"),
		Secret: secret,

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "modplane"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "modplane"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ModulesDir: getEnv("MODULES_DIR", "./modules"),

		RateLimitRPM: getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 300),

		OAuth: map[string]OAuthProvider{
			"google": {
				ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
				ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
				RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
			},
			"discord": {
				ClientID:     os.Getenv("DISCORD_CLIENT_ID"),
				ClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
				RedirectURL:  os.Getenv("DISCORD_REDIRECT_URL"),
			},
		},
	}

	if pg := os.Getenv("PG_URL"); pg != "" {
		cfg.PGURL = pg
	}

	if originList := os.Getenv("ORIGIN_WHITELIST"); originList != "" {
		for _, o := range strings.Split(originList, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.OriginWhitelist = append(cfg.OriginWhitelist, o)
			}
		}
	}

	lb, err := loadSettings(cfg.ModulesDir)
	if err != nil {
		return nil, err
	}
	cfg.LoadBalancing = lb

	return cfg, nil
}

type settingsFile struct {
	LoadBalancing map[string]int `json:"loadBalancing"`
}

func loadSettings(modulesDir string) (map[string]int, error) {
	path := modulesDir + "/settings.json"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var sf settingsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if sf.LoadBalancing == nil {
		sf.LoadBalancing = map[string]int{}
	}
	return sf.LoadBalancing, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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
