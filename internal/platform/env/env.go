package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const Prefix = "FLOWQ"

// Source resolves dotted setting keys. database.url is read from
// FLOWQ_DATABASE_URL first, then from the optional config file.
type Source struct {
	v *viper.Viper
}

// Load builds a source over the environment and, when path is set (or
// FLOWQ_CONFIG names a file), a YAML config file.
func Load(path string) (Source, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(Prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(Prefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Source{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return Source{v: v}, nil
}

// FromViper wraps an existing viper instance.
func FromViper(v *viper.Viper) Source {
	return Source{v: v}
}

// BindFlag makes an explicitly set flag override key.
func (s Source) BindFlag(key string, flag *pflag.Flag) error {
	if s.v == nil {
		return errors.New("env source not initialized")
	}
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return s.v.BindPFlag(key, flag)
}

// Name is the environment variable that overrides key.
func Name(key string) string {
	return Prefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func (s Source) lookup(key string) (string, bool) {
	if s.v == nil || !s.v.IsSet(key) {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprint(s.v.Get(key))), true
}

func (s Source) String(key string, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s Source) Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := s.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", Name(key), err)
		}
		return d, nil
	}
	return def, nil
}

func (s Source) Bool(key string, def bool) (bool, error) {
	if v, ok := s.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", Name(key), err)
		}
		return b, nil
	}
	return def, nil
}

func (s Source) Int(key string, def int) (int, error) {
	if v, ok := s.lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", Name(key), err)
		}
		return i, nil
	}
	return def, nil
}
