package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath   string // uploaded sheet images
	MaxUploadBytes int64

	AuthSecret string
	TokenTTL   time.Duration

	CORSOrigins []string

	LogLevel  string
	LogFormat string // json|console

	Detector DetectorConfig

	// Detection cache; empty RedisAddr disables it.
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	DetectionCacheTTL time.Duration

	BatchParallelism int
}

type DetectorConfig struct {
	Engine        string // omr|tesseract
	Command       string
	Args          []string
	Timeout       time.Duration
	MaxOutput     int64
	TesseractLang string
}

func Default() Config {
	return Config{
		Mode:           ModeOffline,
		HTTPAddr:       ":8080",
		DBDriver:       "sqlite",
		BlobBasePath:   "./data",
		MaxUploadBytes: 10 << 20,
		AuthSecret:     "supersecret-dev-key",
		TokenTTL:       8 * time.Hour,
		CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		LogLevel:       "info",
		LogFormat:      "json",
		Detector: DetectorConfig{
			Engine:        "omr",
			Command:       "python3",
			Args:          []string{"python/omr.py"},
			Timeout:       60 * time.Second,
			MaxOutput:     1 << 20,
			TesseractLang: "eng",
		},
		DetectionCacheTTL: 24 * time.Hour,
		BatchParallelism:  4,
	}
}

// Load reads defaults, then the TOML file at path (if any), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		fc.apply(&cfg)
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	switch c.Detector.Engine {
	case "omr", "tesseract":
	default:
		return fmt.Errorf("unsupported detector engine %q", c.Detector.Engine)
	}
	if c.Detector.Timeout <= 0 {
		return fmt.Errorf("detector timeout must be positive")
	}
	if c.Detector.MaxOutput <= 0 {
		return fmt.Errorf("detector max output must be positive")
	}
	if c.BatchParallelism <= 0 {
		return fmt.Errorf("batch parallelism must be positive")
	}
	return nil
}

func applyEnv(c *Config) {
	c.Mode = Mode(envOr("MODE", string(c.Mode)))
	c.HTTPAddr = envOr("HTTP_ADDR", c.HTTPAddr)
	c.PublicURL = envOr("PUBLIC_URL", c.PublicURL)
	c.DBDriver = envOr("DB_DRIVER", c.DBDriver)
	c.DBDSN = envOr("DB_DSN", c.DBDSN)
	c.BlobBasePath = envOr("BLOB_BASE_PATH", c.BlobBasePath)
	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.AuthSecret = envOr("AUTH_HMAC_SECRET", c.AuthSecret)
	c.TokenTTL = envDuration("TOKEN_TTL", c.TokenTTL)
	c.CORSOrigins = csvOr("CORS_ORIGINS", c.CORSOrigins)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)

	c.Detector.Engine = envOr("DETECTOR_ENGINE", c.Detector.Engine)
	c.Detector.Command = envOr("DETECTOR_COMMAND", c.Detector.Command)
	c.Detector.Args = csvOr("DETECTOR_ARGS", c.Detector.Args)
	c.Detector.Timeout = envDuration("DETECTOR_TIMEOUT", c.Detector.Timeout)
	c.Detector.MaxOutput = envInt64("DETECTOR_MAX_OUTPUT", c.Detector.MaxOutput)
	c.Detector.TesseractLang = envOr("TESSERACT_LANG", c.Detector.TesseractLang)

	c.RedisAddr = envOr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envOr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = int(envInt64("REDIS_DB", int64(c.RedisDB)))
	c.DetectionCacheTTL = envDuration("DETECTION_CACHE_TTL", c.DetectionCacheTTL)
	c.BatchParallelism = int(envInt64("BATCH_PARALLELISM", int64(c.BatchParallelism)))
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt64(k string, def int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(k), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func csvOr(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return splitCSV(v)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
