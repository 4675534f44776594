package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"feedcache/internal/infrastructure/storage"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StoreBackend string `envconfig:"STORE_BACKEND" default:"sqlite"`
	StoreDSN     string `envconfig:"STORE_DSN" default:"feedcache.db"`

	RSSURL []string `envconfig:"RSS_URL"`

	FetchInterval int `envconfig:"FETCH_INTERVAL" default:"1800"`

	CacheMaxAgeDays int `envconfig:"CACHE_MAX_AGE_DAYS" default:"7"`

	FetchImagePreview bool `envconfig:"FETCH_IMAGE_PREVIEW" default:"false"`

	HTTPTimeout int `envconfig:"HTTP_TIMEOUT" default:"15"`
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	rssURLs := loadRSSURLs()
	if len(rssURLs) > 0 {
		cfg.RSSURL = rssURLs
	}

	if len(cfg.RSSURL) == 0 {
		return nil, errors.New("no RSS URLs configured. Please set RSS_URL or RSS_URL_1, RSS_URL_2, etc.")
	}

	if _, err := storage.ParseBackend(cfg.StoreBackend); err != nil {
		return nil, err
	}

	if cfg.FetchInterval <= 0 {
		return nil, fmt.Errorf("FETCH_INTERVAL must be positive, got %d", cfg.FetchInterval)
	}

	if cfg.CacheMaxAgeDays <= 0 {
		return nil, fmt.Errorf("CACHE_MAX_AGE_DAYS must be positive, got %d", cfg.CacheMaxAgeDays)
	}

	return &cfg, nil
}

// loadRSSURLs reads RSS_URL_1, RSS_URL_2, ... and stops at the first gap.
func loadRSSURLs() []string {
	var urls []string

	for i := 1; ; i++ {
		key := fmt.Sprintf("RSS_URL_%d", i)
		url := strings.TrimSpace(os.Getenv(key))
		if url == "" {
			break
		}
		urls = append(urls, url)
	}

	if len(urls) > 0 {
		return urls
	}

	return nil
}

func (c *Config) GetStoreBackend() storage.Backend {
	backend, _ := storage.ParseBackend(c.StoreBackend)
	return backend
}

func (c *Config) GetFetchInterval() time.Duration {
	return time.Duration(c.FetchInterval) * time.Second
}

func (c *Config) GetCacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeDays) * 24 * time.Hour
}

func (c *Config) GetHTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}
