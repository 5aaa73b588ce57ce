package fileloader

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/repoguard/repoguard/internal/config"
)

// envPrefix namespaces environment overrides, e.g. REPOGUARD_GITHUB_TOKEN
// maps to github.token.
const envPrefix = "REPOGUARD"

// FileLoader loads configuration from a YAML file on disk, layered over the
// built-in defaults, with environment variables taking final precedence.
// It implements the config.Loader interface.
type FileLoader struct {
	// path is the filesystem path to the configuration file. Empty means
	// defaults plus environment only.
	path string
}

// NewFileLoader creates a new FileLoader that will load configuration from the
// specified file path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load resolves the effective configuration: defaults, then the file (when a
// path was given), then environment overrides. It returns an error if the
// file cannot be read or parsed.
func (l *FileLoader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := config.Default()
	setDefaults(v, defaults)

	if l.path != "" {
		v.SetConfigFile(l.path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every leaf of the default config so AutomaticEnv can
// see the keys even when no file is present.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("web.api_host", d.Web.APIHost)
	v.SetDefault("web.debug_host", d.Web.DebugHost)
	v.SetDefault("web.read_timeout", d.Web.ReadTimeout)
	v.SetDefault("web.write_timeout", d.Web.WriteTimeout)
	v.SetDefault("web.idle_timeout", d.Web.IdleTimeout)
	v.SetDefault("web.shutdown_timeout", d.Web.ShutdownTimeout)

	v.SetDefault("admission.login.limit", d.Admission.Login.Limit)
	v.SetDefault("admission.login.window", d.Admission.Login.Window)
	v.SetDefault("admission.scan.limit", d.Admission.Scan.Limit)
	v.SetDefault("admission.scan.window", d.Admission.Scan.Window)

	v.SetDefault("github.token", d.GitHub.Token)
	v.SetDefault("github.base_url", d.GitHub.BaseURL)
	v.SetDefault("github.requests_per_second", d.GitHub.RequestsPerSecond)
	v.SetDefault("github.burst", d.GitHub.Burst)

	v.SetDefault("fetch.max_files", d.Fetch.MaxFiles)
	v.SetDefault("fetch.max_file_size", d.Fetch.MaxFileSize)
	v.SetDefault("fetch.concurrency", d.Fetch.Concurrency)

	v.SetDefault("rules.path", d.Rules.Path)

	v.SetDefault("scan.timeout", d.Scan.Timeout)
	v.SetDefault("scan.analyze_concurrency", d.Scan.AnalyzeConcurrency)
}
