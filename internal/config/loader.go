// Package config provides a generic YAML + environment-variable configuration
// loader shared by every component, adapted from
// infrastructure/config/loader.go.
//
// Environment Variables and .env Files:
//
// Load automatically loads .env files before applying environment variable
// overrides, in priority order (higher overrides lower):
//
//  1. ENV_FILE (if set, loads only this file)
//  2. .env.local (if it exists, overrides .env)
//  3. .env (default)
//
// Example config struct:
//
//	type JobQueueConfig struct {
//	    PollInterval time.Duration `yaml:"poll_interval" env:"RATCHET_JOBQUEUE_POLL_INTERVAL"`
//	    BatchSize    int           `yaml:"batch_size" env:"RATCHET_JOBQUEUE_BATCH_SIZE"`
//	}
//
//	cfg, err := config.Load[JobQueueConfig]("config.yml")
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Defaultable is implemented by config structs that want Load to apply
// defaults before environment overrides.
type Defaultable interface {
	SetDefaults()
}

// Load reads a YAML file at path into T, then applies `env:"VAR"` overrides.
// If path is empty or does not exist, T's zero value (plus defaults, if it
// implements Defaultable) is used — every Ratchet component must run with
// sane defaults and no config file.
func Load[T any](path string) (*T, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	var cfg T
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if d, ok := any(&cfg).(Defaultable); ok {
		d.SetDefaults()
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// MustLoad is Load but exits the process on failure, for use during
// early startup before a logger exists to report the error otherwise.
func MustLoad[T any](path string) *T {
	cfg, err := Load[T](path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func applyEnvOverrides(cfg any) {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	applyEnvToStruct(v)
}

func applyEnvToStruct(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			applyEnvToStruct(field)
			continue
		}
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			applyEnvToStruct(field.Elem())
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envVal := os.Getenv(envTag)
		if envVal == "" {
			continue
		}
		setFieldFromString(field, envVal)
	}
}

func setFieldFromString(field reflect.Value, val string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			if d, err := time.ParseDuration(val); err == nil {
				field.SetInt(int64(d))
			}
		} else if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			field.SetUint(u)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Bool:
		field.SetBool(parseBool(val))
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(val, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// GetConfigPath returns the RATCHET_CONFIG_PATH env var or defaultPath.
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("RATCHET_CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}
