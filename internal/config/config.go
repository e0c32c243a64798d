package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Data     DataConfig     `yaml:"data"`
	Detector DetectorConfig `yaml:"detector"`
	Model    ModelConfig    `yaml:"model"`
	Search   SearchConfig   `yaml:"search"`
	Database DatabaseConfig `yaml:"database"`
	Web      WebConfig      `yaml:"web"`
	LogLevel string         `yaml:"log_level"`
}

type DataConfig struct {
	Dir          string `yaml:"dir"`
	IndexFile    string `yaml:"index_file"`
	MetaFile     string `yaml:"meta_file"`
	DatasetDir   string `yaml:"dataset_dir"`
	PhotoBaseURL string `yaml:"photo_base_url"` // prefix for reference photo links (e.g. /static or https://cdn.example.com/celebs)

	IndexPath string `yaml:"-"` // resolved from Dir + IndexFile unless INDEX_PATH is set
	MetaPath  string `yaml:"-"` // resolved from Dir + MetaFile unless META_PATH is set
}

type DetectorConfig struct {
	Kind         string  `yaml:"kind"` // cascade, ssd or none
	CascadePath  string  `yaml:"cascade_path"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
	Confidence   float64 `yaml:"confidence"`
}

type ModelConfig struct {
	URL            string        `yaml:"url"` // model server base URL, empty means hash fallback
	EmbeddingDim   int           `yaml:"embedding_dim"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type SearchConfig struct {
	Mode           string  `yaml:"mode"` // exact or hnsw
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	Backend        string  `yaml:"backend"` // file or postgres
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins; empty allows same-origin only
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

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(s)
	}
	return defaultVal
}

// splitList splits a comma separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	cfg.resolvePaths("", "")
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Data.Dir = envString("DATA_DIR", cfg.Data.Dir)
	cfg.Data.DatasetDir = envString("DATASET_DIR", cfg.Data.DatasetDir)
	cfg.Data.PhotoBaseURL = envString("PHOTO_BASE_URL", cfg.Data.PhotoBaseURL)
	cfg.resolvePaths(os.Getenv("INDEX_PATH"), os.Getenv("META_PATH"))

	cfg.Detector.Kind = strings.ToLower(envString("DETECTOR", cfg.Detector.Kind))
	cfg.Detector.CascadePath = envString("CASCADE_PATH", cfg.Detector.CascadePath)

	cfg.Model.URL = envString("MODEL_URL", cfg.Model.URL)
	cfg.Model.EmbeddingDim = envInt("MODEL_EMBEDDING_DIM", cfg.Model.EmbeddingDim)
	cfg.Model.ProbeTimeout = envDuration("MODEL_PROBE_TIMEOUT", cfg.Model.ProbeTimeout)
	cfg.Model.RequestTimeout = envDuration("MODEL_REQUEST_TIMEOUT", cfg.Model.RequestTimeout)

	cfg.Search.Mode = strings.ToLower(envString("SEARCH_MODE", cfg.Search.Mode))
	cfg.Search.TopK = envInt("TOP_K", cfg.Search.TopK)
	cfg.Search.ScoreThreshold = envFloat("SCORE_THRESHOLD", cfg.Search.ScoreThreshold)
	cfg.Search.Backend = strings.ToLower(envString("INDEX_BACKEND", cfg.Search.Backend))

	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	if origins := envString("WEB_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Web.AllowedOrigins = splitList(origins)
	}

	cfg.LogLevel = strings.ToLower(envString("LOG_LEVEL", cfg.LogLevel))

	return cfg
}

// resolvePaths derives artifact paths from the data directory unless explicit
// paths are given.
func (c *Config) resolvePaths(indexPath, metaPath string) {
	c.Data.IndexPath = indexPath
	if c.Data.IndexPath == "" {
		c.Data.IndexPath = filepath.Join(c.Data.Dir, c.Data.IndexFile)
	}
	c.Data.MetaPath = metaPath
	if c.Data.MetaPath == "" {
		c.Data.MetaPath = filepath.Join(c.Data.Dir, c.Data.MetaFile)
	}
}

// UseModel reports whether a learned model server is configured.
func (c *ModelConfig) UseModel() bool {
	return c.URL != ""
}
