package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// DefaultDistanceThreshold is the fallback maximum distance for face matching
// when the model/metric pair is not listed in the embedded threshold table.
// Lower values = stricter matching.
const DefaultDistanceThreshold = 0.5

type Config struct {
	Server  ServerConfig
	Model   ModelConfig
	Match   MatchConfig
	Quality QualityConfig
	Store   StoreConfig
	Archive ArchiveConfig
	Models  ModelTable
}

type ServerConfig struct {
	Port           int
	Host           string
	RequestTimeout time.Duration // per-request budget for enroll/verify
	MaxUploadSize  int64         // multipart upload limit in bytes
	AdminAPIKey    string        // guards the identities admin routes; empty disables the check
	RateLimitRPS   float64       // per-client requests per second; <= 0 disables rate limiting
	RateLimitBurst int
	LogLevel       string
}

type ModelConfig struct {
	URL         string // model server base URL (e.g., http://localhost:5001)
	Name        string // embedding model name (sface, facenet, facenet512, arcface)
	Dim         int    // expected embedding dimension; 0 resolves from the model table
	Concurrency int    // max concurrent extraction requests to the model server
}

type MatchConfig struct {
	Metric    string  // cosine or l2
	Threshold float64 // explicit threshold override; 0 resolves from the model table
}

type QualityConfig struct {
	MaxImageSize    int     // longest edge before downscaling
	MinImageEdge    int     // reject images smaller than this on either edge
	MinFaceWidthPx  float64 // absolute minimum face width in pixels
	MinFaceWidthRel float64 // minimum face width relative to image width
	MinDetScore     float64 // minimum detector confidence for the primary face
	AmbiguityRatio  float64 // second face area ratio above which the subject is ambiguous
}

type StoreConfig struct {
	Backend      string // memory, postgres or mysql
	URL          string // PostgreSQL connection URL
	MaxOpenConns int
	MaxIdleConns int
	MysqlDSN     string // MySQL/MariaDB DSN (e.g., facegate:secret@tcp(mariadb:3306)/facegate)
	IndexPath    string // path to persist the identify index; empty rebuilds on startup
}

type ArchiveConfig struct {
	Backend        string // none, local or minio
	Dir            string // root directory for the local backend
	MinioEndpoint  string
	MinioBucket    string
	MinioAccessKey string
	MinioSecretKey string
	MinioPrefix    string
	MinioUseSSL    bool
}

// ModelTable holds per-model dimensions and decision thresholds,
// loaded from the embedded models.yaml.
type ModelTable struct {
	Models map[string]ModelEntry `yaml:"models"`
}

type ModelEntry struct {
	Dim        int                `yaml:"dim"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

// envStr reads an environment variable, returning the default when unset or empty.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
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

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
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

// envBool reads an environment variable as a boolean ("true", "1", "yes").
func envBool(key string, defaultVal bool) bool {
	s := strings.ToLower(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	return s == "true" || s == "1" || s == "yes"
}

func Load() *Config {
	var table ModelTable
	if err := yaml.Unmarshal(modelsYAML, &table); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Port:           envInt("PORT", 8080),
			Host:           envStr("HOST", "0.0.0.0"),
			RequestTimeout: time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxUploadSize:  int64(envInt("MAX_UPLOAD_SIZE_MB", 20)) << 20,
			AdminAPIKey:    os.Getenv("ADMIN_API_KEY"),
			RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst: envInt("RATE_LIMIT_BURST", 10),
			LogLevel:       envStr("LOG_LEVEL", "info"),
		},
		Model: ModelConfig{
			URL:         envStr("MODEL_SERVER_URL", "http://localhost:5001"),
			Name:        strings.ToLower(envStr("MODEL_NAME", "sface")),
			Dim:         envInt("EMBEDDING_DIM", 0),
			Concurrency: envInt("EXTRACT_CONCURRENCY", 4),
		},
		Match: MatchConfig{
			Metric:    strings.ToLower(envStr("DISTANCE_METRIC", "cosine")),
			Threshold: envFloat("MATCH_THRESHOLD", 0),
		},
		Quality: QualityConfig{
			MaxImageSize:    envInt("MAX_IMAGE_SIZE", 1920),
			MinImageEdge:    envInt("MIN_IMAGE_EDGE", 96),
			MinFaceWidthPx:  envFloat("MIN_FACE_WIDTH_PX", 35),
			MinFaceWidthRel: envFloat("MIN_FACE_WIDTH_REL", 0.01),
			MinDetScore:     envFloat("MIN_DET_SCORE", 0.5),
			AmbiguityRatio:  envFloat("AMBIGUITY_RATIO", 0.6),
		},
		Store: StoreConfig{
			Backend:      strings.ToLower(envStr("STORE_BACKEND", "memory")),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			MysqlDSN:     os.Getenv("MYSQL_DSN"),
			IndexPath:    os.Getenv("INDEX_PATH"),
		},
		Archive: ArchiveConfig{
			Backend:        strings.ToLower(envStr("ARCHIVE_BACKEND", "none")),
			Dir:            envStr("ARCHIVE_DIR", "./archive"),
			MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinioBucket:    os.Getenv("MINIO_BUCKET"),
			MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinioPrefix:    envStr("MINIO_PREFIX", "enrollments"),
			MinioUseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Models: table,
	}
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	switch c.Match.Metric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("unsupported DISTANCE_METRIC %q (expected cosine or l2)", c.Match.Metric)
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	case "mysql":
		if c.Store.MysqlDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the mysql store backend")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q (expected memory, postgres or mysql)", c.Store.Backend)
	}
	switch c.Archive.Backend {
	case "none", "local":
	case "minio":
		if c.Archive.MinioEndpoint == "" || c.Archive.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio archive backend")
		}
	default:
		return fmt.Errorf("unsupported ARCHIVE_BACKEND %q (expected none, local or minio)", c.Archive.Backend)
	}
	if c.Quality.AmbiguityRatio > 1 {
		return fmt.Errorf("AMBIGUITY_RATIO must be within (0, 1], got %v", c.Quality.AmbiguityRatio)
	}
	return nil
}

// ResolveThreshold returns the decision threshold for the active model and metric.
// An explicit MATCH_THRESHOLD wins over the embedded table; unknown pairs fall
// back to DefaultDistanceThreshold.
func (c *Config) ResolveThreshold() float64 {
	if c.Match.Threshold > 0 {
		return c.Match.Threshold
	}
	if entry, ok := c.Models.Models[c.Model.Name]; ok {
		if t, ok := entry.Thresholds[c.Match.Metric]; ok && t > 0 {
			return t
		}
	}
	return DefaultDistanceThreshold
}

// ResolveDim returns the expected embedding dimension for the active model.
// An explicit EMBEDDING_DIM wins over the table; 0 means accept whatever the
// model server reports.
func (c *Config) ResolveDim() int {
	if c.Model.Dim > 0 {
		return c.Model.Dim
	}
	if entry, ok := c.Models.Models[c.Model.Name]; ok {
		return entry.Dim
	}
	return 0
}
