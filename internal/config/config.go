package config

import (
	_ "embed"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Embedding EmbeddingConfig
	Match     MatchConfig
	Image     ImageConfig
	Web       WebConfig
	LogLevel  string
}

type EmbeddingConfig struct {
	URL         string  // defaults to http://localhost:8000
	Dim         int     // expected descriptor length, defaults to 512
	MinDetScore float64 // faces below this detector score are ignored
}

type MatchConfig struct {
	Threshold    float64  `yaml:"threshold"`
	ReferenceDir string   `yaml:"reference_dir"`
	Extensions   []string `yaml:"extensions"`
	Concurrency  int      // workers used to describe reference images
}

type ImageConfig struct {
	FetchTimeout time.Duration
	UploadDir    string // temporary storage for uploaded images, always cleaned up
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins string // comma-separated CORS whitelist
}

// defaults mirrors the layout of defaults.yaml.
type defaults struct {
	Match     MatchConfig `yaml:"match"`
	Embedding struct {
		MinDetScore float64 `yaml:"min_det_score"`
	} `yaml:"embedding"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64, falling back to defaultVal.
// Negative values are allowed since confidences are not clamped; NaN and infinities are not.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			URL:         envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim:         envInt("EMBEDDING_DIM", 512),
			MinDetScore: envFloat("FACE_MIN_DET_SCORE", d.Embedding.MinDetScore),
		},
		Match: MatchConfig{
			Threshold:    envFloat("MATCH_THRESHOLD", d.Match.Threshold),
			ReferenceDir: envString("REFERENCE_DIR", d.Match.ReferenceDir),
			Extensions:   d.Match.Extensions,
			Concurrency:  envInt("MATCH_CONCURRENCY", 5),
		},
		Image: ImageConfig{
			FetchTimeout: time.Duration(envInt("IMAGE_FETCH_TIMEOUT", 30)) * time.Second,
			UploadDir:    envString("UPLOAD_DIR", filepath.Join(os.TempDir(), "face-matcher-uploads")),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 3000),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}
