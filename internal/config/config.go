package config

import "time"

// WebConfig bounds the HTTP listeners.
type WebConfig struct {
	APIHost         string        `yaml:"api_host" mapstructure:"api_host"`
	DebugHost       string        `yaml:"debug_host" mapstructure:"debug_host"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// ProfileConfig is one admission window: at most Limit requests per Window
// for a given subject.
type ProfileConfig struct {
	Limit  int           `yaml:"limit" mapstructure:"limit"`
	Window time.Duration `yaml:"window" mapstructure:"window"`
}

// AdmissionConfig carries the per-action admission profiles.
type AdmissionConfig struct {
	Login ProfileConfig `yaml:"login" mapstructure:"login"`
	Scan  ProfileConfig `yaml:"scan" mapstructure:"scan"`
}

// GitHubConfig configures the upstream hosting-provider client.
type GitHubConfig struct {
	// Token is the service-level fallback credential. A token supplied on
	// the scan request takes precedence over it.
	Token string `yaml:"token" mapstructure:"token"`

	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	// Empty means the public API.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// FetchConfig bounds content retrieval for a single scan.
type FetchConfig struct {
	MaxFiles    int   `yaml:"max_files" mapstructure:"max_files"`
	MaxFileSize int64 `yaml:"max_file_size" mapstructure:"max_file_size"`
	Concurrency int   `yaml:"concurrency" mapstructure:"concurrency"`
}

// RulesConfig locates the detection ruleset.
type RulesConfig struct {
	// Path points at a YAML ruleset file. Empty means the embedded defaults.
	Path string `yaml:"path" mapstructure:"path"`
}

// ScanConfig bounds scan execution.
type ScanConfig struct {
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	AnalyzeConcurrency int           `yaml:"analyze_concurrency" mapstructure:"analyze_concurrency"`
}

// Config is the top-level service configuration.
type Config struct {
	Web       WebConfig       `yaml:"web" mapstructure:"web"`
	Admission AdmissionConfig `yaml:"admission" mapstructure:"admission"`
	GitHub    GitHubConfig    `yaml:"github" mapstructure:"github"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Scan      ScanConfig      `yaml:"scan" mapstructure:"scan"`
}

// Default returns the configuration the service boots with when no file or
// environment overrides are present.
func Default() Config {
	return Config{
		Web: WebConfig{
			APIHost:         "0.0.0.0:8080",
			DebugHost:       "0.0.0.0:4000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    150 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Admission: AdmissionConfig{
			Login: ProfileConfig{Limit: 10, Window: time.Minute},
			Scan:  ProfileConfig{Limit: 5, Window: time.Minute},
		},
		GitHub: GitHubConfig{
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Fetch: FetchConfig{
			MaxFiles:    500,
			MaxFileSize: 1 << 20,
			Concurrency: 8,
		},
		Scan: ScanConfig{
			Timeout:            2 * time.Minute,
			AnalyzeConcurrency: 8,
		},
	}
}
