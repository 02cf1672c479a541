package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Faces     FacesConfig     `yaml:"faces"`
	Matching  MatchingConfig  `yaml:"matching"`
	Log       LogConfig       `yaml:"log"`
	Camera    CameraConfig    `yaml:"camera"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Web       WebConfig       `yaml:"web"`
}

type FacesConfig struct {
	Dir string `yaml:"dir"` // root of the per-label embedding directories
	Dim int    `yaml:"dim"` // embedding length produced by the encoder
}

type MatchingConfig struct {
	Threshold float64 `yaml:"threshold"` // maximum Euclidean distance still counted as a match
}

type LogConfig struct {
	Path     string        `yaml:"path"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type CameraConfig struct {
	Device        int           `yaml:"device"`
	FPS           int           `yaml:"fps"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

type EmbeddingConfig struct {
	URL     string `yaml:"url"`      // defaults to http://localhost:8000
	MaxSize int    `yaml:"max_size"` // longest image side sent to the encoder
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL, mirror disabled when empty
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins besides localhost
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Faces: FacesConfig{
			Dir: "faces",
			Dim: 128,
		},
		Matching: MatchingConfig{
			Threshold: 0.6,
		},
		Log: LogConfig{
			Path:     "logs.csv",
			Cooldown: time.Hour,
		},
		Camera: CameraConfig{
			Device:        0,
			FPS:           24,
			FrameInterval: 10 * time.Millisecond,
		},
		Embedding: EmbeddingConfig{
			URL:     "http://localhost:8000",
			MaxSize: 1280,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("90s", "1h") and plain seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// loadFile decodes a YAML overlay on top of cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted env
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file named by
// FACE_LOGGER_CONFIG and finally the environment. Environment always wins.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("FACE_LOGGER_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Faces.Dir = envString("FACES_DIR", cfg.Faces.Dir)
	cfg.Faces.Dim = envInt("FACE_EMBEDDING_DIM", cfg.Faces.Dim)
	cfg.Matching.Threshold = envFloat("MATCH_THRESHOLD", cfg.Matching.Threshold)
	cfg.Log.Path = envString("LOG_FILE", cfg.Log.Path)
	cfg.Log.Cooldown = envDuration("LOG_COOLDOWN", cfg.Log.Cooldown)
	cfg.Camera.Device = envInt("CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Camera.FPS = envInt("CAMERA_FPS", cfg.Camera.FPS)
	cfg.Camera.FrameInterval = envDuration("FRAME_INTERVAL", cfg.Camera.FrameInterval)
	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.MaxSize = envInt("EMBEDDING_MAX_SIZE", cfg.Embedding.MaxSize)
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the recognition loop cannot run with.
func (c *Config) Validate() error {
	if c.Faces.Dir == "" {
		return fmt.Errorf("faces directory must not be empty")
	}
	if c.Faces.Dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Faces.Dim)
	}
	if c.Matching.Threshold <= 0 {
		return fmt.Errorf("match threshold must be positive, got %v", c.Matching.Threshold)
	}
	if c.Log.Path == "" {
		return fmt.Errorf("log file path must not be empty")
	}
	if c.Log.Cooldown < 0 {
		return fmt.Errorf("log cooldown must not be negative, got %s", c.Log.Cooldown)
	}
	if c.Camera.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %s", c.Camera.FrameInterval)
	}
	return nil
}
