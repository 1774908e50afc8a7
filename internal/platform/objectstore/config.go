package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/flowq/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketResults string
	// ReadParallelism bounds concurrent object reads and sizes the idle
	// connection pool to match.
	ReadParallelism int
}

func ConfigFromEnv(src env.Source) (Config, error) {
	useSSL, err := src.Bool("minio.use_ssl", false)
	if err != nil {
		return Config{}, err
	}
	parallelism, err := src.Int("minio.read_parallelism", 8)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:        src.String("minio.endpoint", ""),
		AccessKey:       src.String("minio.access_key", "flowq"),
		SecretKey:       src.String("minio.secret_key", "flowqminio"),
		Region:          src.String("minio.region", "us-east-1"),
		UseSSL:          useSSL,
		BucketResults:   src.String("minio.bucket_results", "flowq-results"),
		ReadParallelism: parallelism,
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether an object store endpoint was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketResults) == "" {
		return errors.New("results bucket is required")
	}
	if c.ReadParallelism < 1 {
		return errors.New("read parallelism must be >= 1")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
