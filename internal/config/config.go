package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Detection DetectionConfig `yaml:"detection"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Match     MatchConfig     `yaml:"match"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Web       WebConfig       `yaml:"web"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

type InferenceConfig struct {
	DetectorPath string `yaml:"detector_path"` // Haar cascade XML
	EmbedderPath string `yaml:"embedder_path"` // Torch face embedding network
	Instances    int    `yaml:"instances"`     // independent model copies, one per concurrent forward pass
	Disabled     bool   `yaml:"disabled"`      // skip loading and run without AI capability
}

type DetectionConfig struct {
	ScaleFactor  float64 `yaml:"scale_factor"`  // cascade scale step (default 1.3)
	MinNeighbors int     `yaml:"min_neighbors"` // overlapping detections required (default 5)
	MinSize      int     `yaml:"min_size"`      // minimum face side in pixels, 0 for no limit
	MaxPixels    int     `yaml:"max_pixels"`    // largest decoded image (width*height) accepted
}

type EmbeddingConfig struct {
	CropSize  int     `yaml:"crop_size"` // canonical square input (default 96)
	Scale     float64 `yaml:"scale"`     // pixel multiplier (default 1/255)
	Mean      float64 `yaml:"mean"`      // subtracted before scaling (default 0)
	SwapRB    bool    `yaml:"swap_rb"`
	Dimension int     `yaml:"dimension"` // descriptor length (default 128)
}

type MatchConfig struct {
	Threshold float64 `yaml:"threshold"` // strict L2 upper bound (default 0.8)
}

type PipelineConfig struct {
	Workers   int `yaml:"workers"`    // 0 means one worker per inference instance
	QueueSize int `yaml:"queue_size"` // pending tasks before submissions are rejected
}

type DatabaseConfig struct {
	Backend      string `yaml:"backend"`        // memory, postgres or sqlite
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
	SQLitePath   string `yaml:"sqlite_path"`
	DirectoryDSN string `yaml:"directory_dsn"` // MariaDB DSN of the host application's photo table (optional)
}

type StorageConfig struct {
	Backend      string `yaml:"backend"` // local or s3
	LocalDir     string `yaml:"local_dir"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"` // custom endpoint for MinIO and similar
	UsePathStyle bool   `yaml:"use_path_style"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS whitelist in addition to localhost
	SearchRate     float64  `yaml:"search_rate"`     // selfie searches per second per client
	SearchBurst    int      `yaml:"search_burst"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables notifications
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
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

// envFloat reads an environment variable as a positive float.
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

// envBool reads an environment variable as a boolean.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the configuration encoded in the embedded defaults.yaml.
func Defaults() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	cfg.Database.Backend = "memory"
	cfg.Database.MaxOpenConns = 25
	cfg.Database.MaxIdleConns = 5
	cfg.Database.SQLitePath = "selfie-finder.db"
	cfg.Storage.Backend = "local"
	cfg.Storage.LocalDir = "uploads"
	cfg.MQTT.ClientID = "selfie-finder"
	cfg.MQTT.Topic = "selfie-finder/ingested"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load builds the configuration from the embedded defaults, the optional YAML
// file named by CONFIG_FILE, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Inference.DetectorPath = envString("FACE_DETECTOR_PATH", c.Inference.DetectorPath)
	c.Inference.EmbedderPath = envString("FACE_EMBEDDER_PATH", c.Inference.EmbedderPath)
	c.Inference.Instances = envInt("INFERENCE_INSTANCES", c.Inference.Instances)
	c.Inference.Disabled = envBool("INFERENCE_DISABLED", c.Inference.Disabled)

	c.Detection.ScaleFactor = envFloat("DETECT_SCALE_FACTOR", c.Detection.ScaleFactor)
	c.Detection.MinNeighbors = envInt("DETECT_MIN_NEIGHBORS", c.Detection.MinNeighbors)
	c.Detection.MinSize = envInt("DETECT_MIN_SIZE", c.Detection.MinSize)
	c.Detection.MaxPixels = envInt("MAX_IMAGE_PIXELS", c.Detection.MaxPixels)

	c.Embedding.CropSize = envInt("EMBED_CROP_SIZE", c.Embedding.CropSize)
	c.Embedding.Scale = envFloat("EMBED_SCALE", c.Embedding.Scale)
	c.Embedding.Mean = envFloat("EMBED_MEAN", c.Embedding.Mean)
	c.Embedding.SwapRB = envBool("EMBED_SWAP_RB", c.Embedding.SwapRB)
	c.Embedding.Dimension = envInt("DESCRIPTOR_DIM", c.Embedding.Dimension)

	c.Match.Threshold = envFloat("MATCH_THRESHOLD", c.Match.Threshold)

	c.Pipeline.Workers = envInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.QueueSize = envInt("PIPELINE_QUEUE_SIZE", c.Pipeline.QueueSize)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.Backend = envString("DATABASE_BACKEND", c.Database.Backend)
	if os.Getenv("DATABASE_BACKEND") == "" && os.Getenv("DATABASE_URL") != "" {
		c.Database.Backend = "postgres"
	}
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.SQLitePath = envString("SQLITE_PATH", c.Database.SQLitePath)
	c.Database.DirectoryDSN = envString("DIRECTORY_DATABASE_URL", c.Database.DirectoryDSN)

	c.Storage.Backend = envString("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.LocalDir = envString("UPLOAD_FOLDER", c.Storage.LocalDir)
	c.Storage.Bucket = envString("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Prefix = envString("S3_PREFIX", c.Storage.Prefix)
	c.Storage.Region = envString("AWS_REGION", c.Storage.Region)
	c.Storage.Endpoint = envString("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.UsePathStyle = envBool("S3_USE_PATH_STYLE", c.Storage.UsePathStyle)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		c.Web.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Web.SearchRate = envFloat("SEARCH_RATE", c.Web.SearchRate)
	c.Web.SearchBurst = envInt("SEARCH_BURST", c.Web.SearchBurst)

	c.MQTT.Broker = envString("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = envString("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Topic = envString("MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.Username = envString("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = envString("MQTT_PASSWORD", c.MQTT.Password)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
}

// Validate rejects tunables that would make detection or matching meaningless.
func (c *Config) Validate() error {
	var errs []error
	if c.Detection.ScaleFactor <= 1 {
		errs = append(errs, fmt.Errorf("detection scale factor must be greater than 1, got %g", c.Detection.ScaleFactor))
	}
	if c.Detection.MinNeighbors < 0 {
		errs = append(errs, fmt.Errorf("detection min neighbors must not be negative, got %d", c.Detection.MinNeighbors))
	}
	if c.Detection.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("max image pixels must be positive, got %d", c.Detection.MaxPixels))
	}
	if c.Embedding.CropSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding crop size must be positive, got %d", c.Embedding.CropSize))
	}
	if c.Embedding.Scale <= 0 {
		errs = append(errs, fmt.Errorf("embedding scale must be positive, got %g", c.Embedding.Scale))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("descriptor dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Match.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("match threshold must be positive, got %g", c.Match.Threshold))
	}
	if c.Inference.Instances <= 0 {
		errs = append(errs, fmt.Errorf("inference instances must be positive, got %d", c.Inference.Instances))
	}
	if c.Pipeline.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline queue size must be positive, got %d", c.Pipeline.QueueSize))
	}
	switch c.Database.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database backend %q", c.Database.Backend))
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// PipelineWorkers returns the effective worker count.
func (c *Config) PipelineWorkers() int {
	if c.Pipeline.Workers > 0 {
		return c.Pipeline.Workers
	}
	return c.Inference.Instances
}
