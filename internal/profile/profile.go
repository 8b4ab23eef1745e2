package profile

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the matching service.
type Profile struct {
	// Server
	Mode    string // "prod", "dev", or "demo"
	Addr    string
	Port    int
	Version string

	// Item/Match store
	Driver string // "postgres" or "sqlite"
	DSN    string

	// Cache store (redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Embedding generator (OpenAI-compatible endpoints)
	EmbeddingAPIKey            string
	EmbeddingBaseURL           string
	EmbeddingImageModel        string // CLIP-style multimodal model, payload is an image URL
	EmbeddingTextClipModel     string // CLIP text tower
	EmbeddingTextSentenceModel string // sentence-transformer style model
	EmbeddingTimeout           time.Duration
	EmbeddingMaxConcurrency    int64

	// Matching behavior
	MatchThreshold     float64       // minimum hybrid similarity kept in results
	MatchResultTTL     time.Duration // result cache TTL
	EmbeddingCacheSize int           // live entries before the cache clears itself
	EmbeddingCacheTTL  time.Duration
	SweepLimit         int           // max items per collection per sweep run
	SweepStaleAfter    time.Duration // reprocess items older than this
	SweepPacing        time.Duration // delay between sweep items
}

// Defaults applied by Validate when a field is unset.
const (
	defaultMatchThreshold     = 0.75
	defaultMatchResultTTL     = 30 * time.Minute
	defaultEmbeddingCacheSize = 1000
	defaultEmbeddingCacheTTL  = time.Hour
	defaultSweepLimit         = 100
	defaultSweepStaleAfter    = 24 * time.Hour
	defaultSweepPacing        = 100 * time.Millisecond
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.RedisAddr = getEnvOrDefault("REFIND_REDIS_ADDR", p.RedisAddr)
	p.RedisPassword = getEnvOrDefault("REFIND_REDIS_PASSWORD", "")
	p.RedisDB = getEnvOrDefaultInt("REFIND_REDIS_DB", 0)

	p.EmbeddingAPIKey = getEnvOrDefault("REFIND_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("REFIND_EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")
	p.EmbeddingImageModel = getEnvOrDefault("REFIND_EMBEDDING_IMAGE_MODEL", "jina-clip-v2")
	p.EmbeddingTextClipModel = getEnvOrDefault("REFIND_EMBEDDING_TEXT_CLIP_MODEL", "jina-clip-v2")
	p.EmbeddingTextSentenceModel = getEnvOrDefault("REFIND_EMBEDDING_TEXT_SENTENCE_MODEL", "BAAI/bge-m3")
	p.EmbeddingTimeout = time.Duration(getEnvOrDefaultInt("REFIND_EMBEDDING_TIMEOUT_SECONDS", 30)) * time.Second
	p.EmbeddingMaxConcurrency = int64(getEnvOrDefaultInt("REFIND_EMBEDDING_MAX_CONCURRENCY", 4))

	if p.EmbeddingAPIKey == "" {
		slog.Warn("embedding API key is not configured; instant match and sweep will fail until set",
			"env", "REFIND_EMBEDDING_API_KEY")
	}
}

// Validate normalizes and checks the profile, applying defaults for unset
// tuning knobs.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" && p.Mode != "demo" {
		p.Mode = "demo"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port: %d", p.Port)
	}
	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver: %q", p.Driver)
	}
	if p.DSN == "" {
		return errors.New("dsn required")
	}

	if p.MatchThreshold <= 0 {
		p.MatchThreshold = defaultMatchThreshold
	}
	if p.MatchThreshold > 1 {
		return errors.Errorf("match threshold must be in [0,1]: %f", p.MatchThreshold)
	}
	if p.MatchResultTTL <= 0 {
		p.MatchResultTTL = defaultMatchResultTTL
	}
	if p.EmbeddingCacheSize <= 0 {
		p.EmbeddingCacheSize = defaultEmbeddingCacheSize
	}
	if p.EmbeddingCacheTTL <= 0 {
		p.EmbeddingCacheTTL = defaultEmbeddingCacheTTL
	}
	if p.SweepLimit <= 0 {
		p.SweepLimit = defaultSweepLimit
	}
	if p.SweepStaleAfter <= 0 {
		p.SweepStaleAfter = defaultSweepStaleAfter
	}
	if p.SweepPacing <= 0 {
		p.SweepPacing = defaultSweepPacing
	}
	return nil
}

// ListenAddress returns the host:port the HTTP server binds to.
func (p *Profile) ListenAddress() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}
