package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig mirrors Config for TOML files. Nil fields leave the current value alone.
type FileConfig struct {
	Server   ServerSection   `toml:"server"`
	Database DatabaseSection `toml:"database"`
	Detector DetectorSection `toml:"detector"`
	Cache    CacheSection    `toml:"cache"`
	Log      LogSection      `toml:"log"`
}

type ServerSection struct {
	Mode             *string  `toml:"mode"`
	Addr             *string  `toml:"addr"`
	PublicURL        *string  `toml:"public-url"`
	BlobBasePath     *string  `toml:"blob-base-path"`
	MaxUploadBytes   *int64   `toml:"max-upload-bytes"`
	AuthSecret       *string  `toml:"auth-secret"`
	TokenTTL         *string  `toml:"token-ttl"`
	CORSOrigins      []string `toml:"cors-origins"`
	BatchParallelism *int     `toml:"batch-parallelism"`
}

type DatabaseSection struct {
	Driver *string `toml:"driver"`
	DSN    *string `toml:"dsn"`
}

type DetectorSection struct {
	Engine        *string  `toml:"engine"`
	Command       *string  `toml:"command"`
	Args          []string `toml:"args"`
	Timeout       *string  `toml:"timeout"`
	MaxOutput     *int64   `toml:"max-output"`
	TesseractLang *string  `toml:"tesseract-lang"`
}

type CacheSection struct {
	RedisAddr     *string `toml:"redis-addr"`
	RedisPassword *string `toml:"redis-password"`
	RedisDB       *int    `toml:"redis-db"`
	TTL           *string `toml:"ttl"`
}

type LogSection struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// LoadFile reads a TOML config from the given path. Missing file is not an error.
func LoadFile(path string) (FileConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return fc, nil
}

func (fc FileConfig) apply(c *Config) {
	s := fc.Server
	setString((*string)(&c.Mode), s.Mode)
	setString(&c.HTTPAddr, s.Addr)
	setString(&c.PublicURL, s.PublicURL)
	setString(&c.BlobBasePath, s.BlobBasePath)
	if s.MaxUploadBytes != nil {
		c.MaxUploadBytes = *s.MaxUploadBytes
	}
	setString(&c.AuthSecret, s.AuthSecret)
	setDuration(&c.TokenTTL, s.TokenTTL)
	if len(s.CORSOrigins) > 0 {
		c.CORSOrigins = s.CORSOrigins
	}
	if s.BatchParallelism != nil {
		c.BatchParallelism = *s.BatchParallelism
	}

	setString(&c.DBDriver, fc.Database.Driver)
	setString(&c.DBDSN, fc.Database.DSN)

	d := fc.Detector
	setString(&c.Detector.Engine, d.Engine)
	setString(&c.Detector.Command, d.Command)
	if d.Args != nil {
		c.Detector.Args = d.Args
	}
	setDuration(&c.Detector.Timeout, d.Timeout)
	if d.MaxOutput != nil {
		c.Detector.MaxOutput = *d.MaxOutput
	}
	setString(&c.Detector.TesseractLang, d.TesseractLang)

	setString(&c.RedisAddr, fc.Cache.RedisAddr)
	setString(&c.RedisPassword, fc.Cache.RedisPassword)
	if fc.Cache.RedisDB != nil {
		c.RedisDB = *fc.Cache.RedisDB
	}
	setDuration(&c.DetectionCacheTTL, fc.Cache.TTL)

	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// setDuration ignores unparsable values; Validate catches the ones that matter.
func setDuration(dst *time.Duration, v *string) {
	if v == nil {
		return
	}
	if d, err := time.ParseDuration(*v); err == nil {
		*dst = d
	}
}
