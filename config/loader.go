package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/eventkit/logger"
)

// FileSystem is the file access the loader needs. Tests swap it out.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

type osFS struct{}

func (osFS) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (osFS) LoadEnv(p string) error { return godotenv.Load(p) }

// Resolver locates the config and .env files of a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles are the files LoadConfig reads. Empty means none was found.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

var configNames = []string{"config.yaml", "config.yml"}

// ResolveFiles returns the explicit paths from opts, searching for the ones
// left empty. Directories are tried nearest first: cmd/<service>, then
// cmd/<short name>, each up to two levels above the working directory, then
// ./config and the working directory itself. The short name is the part
// after the last dash.
func (r *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	if files.ConfigFile == "" {
		files.ConfigFile = r.first(configDirs(serviceName), configNames)
	}
	if files.EnvFile == "" {
		files.EnvFile = r.first(envDirs(serviceName), []string{".env." + serviceName, ".env"})
	}
	return files
}

func (r *Resolver) first(dirs, names []string) string {
	for _, dir := range dirs {
		for _, name := range names {
			p := name
			if dir != "" {
				p = dir + "/" + name
			}
			if r.FileSystem.Exists(p) {
				return p
			}
		}
	}
	return ""
}

func shortName(serviceName string) string {
	if i := strings.LastIndex(serviceName, "-"); i != -1 {
		return serviceName[i+1:]
	}
	return serviceName
}

func serviceDirs(serviceName string, under ...string) []string {
	names := []string{serviceName}
	if short := shortName(serviceName); short != serviceName {
		names = append(names, short)
	}
	var dirs []string
	for _, base := range under {
		for _, up := range []string{".", "..", "../.."} {
			for _, n := range names {
				dirs = append(dirs, up+"/"+path.Join(base, n))
			}
		}
	}
	return dirs
}

func configDirs(serviceName string) []string {
	return append(serviceDirs(serviceName, "cmd"), "./config", "../config", ".")
}

func envDirs(serviceName string) []string {
	dirs := serviceDirs(serviceName, "cmd", "config")
	return append(dirs, "./config", "../config", "../../config", "", "..", "../..")
}

// LoaderConfig holds the loader's file system and optional explicit paths.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
}

// LoaderOption configures LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem replaces the OS file system.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile skips the search for the YAML file.
func WithConfigFile(p string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = p }
}

// WithEnvFile skips the search for the .env file.
func WithEnvFile(p string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = p }
}

// Config is implemented by configuration structs that embed ServiceConfig.
type Config interface {
	GetServiceConfig() *ServiceConfig
	ApplyDefaults()
	Validate() error
}

// Load reads, defaults and validates a configuration of type T. An empty
// name in the file falls back to serviceName.
func Load[T any, PT interface {
	*T
	Config
}](serviceName string, opts ...LoaderOption) (*T, error) {
	cfg := new(T)
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	c := PT(cfg)
	if svc := c.GetServiceConfig(); svc.Name == "" {
		svc.Name = serviceName
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig unmarshals the service's YAML file, overlaid with the process
// environment and the .env file, into cfg. Missing files are not an error.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: osFS{}}
	for _, opt := range opts {
		opt(&lc)
	}
	files := (&Resolver{FileSystem: lc.FileSystem}).ResolveFiles(serviceName, lc)

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			logger.Warn("Failed to read config file", logger.Fields("file", files.ConfigFile, logger.FieldError, err.Error()))
		}
	}

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			logger.Warn("Failed to load .env file", logger.Fields("file", files.EnvFile, logger.FieldError, err.Error()))
		}
	}
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config for %s: %w", serviceName, err)
	}
	return nil
}

// bindEnv sets every environment variable under each key it could stand for,
// so SOURCES_TOPICS_BUFFER reaches sources.topics_buffer as well as
// sources.topics.buffer.
func bindEnv(v *viper.Viper) {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		for _, k := range generateEnvKeyVariants(key) {
			v.Set(k, value)
		}
	}
}

// maxSplitParts bounds the exhaustive variants; longer keys only get the
// single-split forms.
const maxSplitParts = 5

// generateEnvKeyVariants lowercases key and joins its underscore separated
// parts with every mix of "." and "_".
//
//	LOGGING_LEVEL         -> logging_level, logging.level
//	TELEMETRY_SAMPLE_RATE -> telemetry_sample_rate, telemetry.sample_rate, ...
func generateEnvKeyVariants(key string) []string {
	parts := strings.Split(strings.ToLower(key), "_")
	if len(parts) == 1 {
		return parts
	}

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(strings.Join(parts, "_"))
	add(strings.Join(parts, "."))
	if len(parts) <= maxSplitParts {
		gaps := len(parts) - 1
		for mask := 0; mask < 1<<gaps; mask++ {
			var b strings.Builder
			b.WriteString(parts[0])
			for i := 1; i < len(parts); i++ {
				if mask&(1<<(i-1)) != 0 {
					b.WriteByte('.')
				} else {
					b.WriteByte('_')
				}
				b.WriteString(parts[i])
			}
			add(b.String())
		}
		return out
	}
	for i := 1; i < len(parts); i++ {
		add(strings.Join(parts[:i], ".") + "." + strings.Join(parts[i:], "_"))
		add(strings.Join(parts[:i], "_") + "." + strings.Join(parts[i:], "."))
	}
	return out
}
