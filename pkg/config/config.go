// Package config provides the configuration of ntuple jobs. A single
// BaseConfig describes where containers live, how outputs are built, which
// filters apply and how the job is observed.
//
// Example usage:
//
//	cfg, err := config.Load("job.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Output.Provenance = true
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Every key can be overridden from the environment with the NTUPLE_ prefix,
// for example NTUPLE_STORAGE_BACKEND=s3.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/nebula-ntuple/pkg/compression"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/observability"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "NTUPLE"

// Output modes.
const (
	ModeFull   = "full"
	ModeFriend = "friend"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendMinio  = "minio"
	BackendGCS    = "gcs"
)

// BaseConfig is the complete configuration of an ntuple job.
type BaseConfig struct {
	// Name identifies the job in logs and traces
	Name string `yaml:"name" mapstructure:"name"`

	Output        OutputConfig        `yaml:"output" mapstructure:"output"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Filter        FilterConfig        `yaml:"filter" mapstructure:"filter"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// OutputConfig controls how the output container is built.
type OutputConfig struct {
	// Mode is "full" (clone the input tree and its bookkeeping) or "friend"
	Mode string `yaml:"mode" mapstructure:"mode"`
	// Tree names the input tree
	Tree string `yaml:"tree" mapstructure:"tree"`
	// FriendName names the tree of a friend output
	FriendName string `yaml:"friend_name" mapstructure:"friend_name"`
	// TreeCompression is the Arrow IPC body codec (none, lz4, zstd)
	TreeCompression string `yaml:"tree_compression" mapstructure:"tree_compression"`
	// ObjectCompression is the codec of opaque objects
	ObjectCompression string `yaml:"object_compression" mapstructure:"object_compression"`
	// Provenance copies MetaData and ParameterSets
	Provenance bool `yaml:"provenance" mapstructure:"provenance"`
	// FullClone copies all input rows up front
	FullClone bool `yaml:"full_clone" mapstructure:"full_clone"`
}

// StorageConfig selects the blob backend containers are stored in.
type StorageConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Root is the directory of the local backend
	Root            string `yaml:"root" mapstructure:"root"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey       string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey       string `yaml:"secret_key" mapstructure:"secret_key"`
	Secure          bool   `yaml:"secure" mapstructure:"secure"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// FilterConfig points at the optional branch selection and luminosity files.
type FilterConfig struct {
	BranchSelection string `yaml:"branch_selection" mapstructure:"branch_selection"`
	LumiJSON        string `yaml:"lumi_json" mapstructure:"lumi_json"`
}

// ObservabilityConfig contains logging, tracing and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
	LogEncoding string `yaml:"log_encoding" mapstructure:"log_encoding"`
	Development bool   `yaml:"development" mapstructure:"development"`
	// Tracing is the span exporter: none or stdout
	Tracing      string  `yaml:"tracing" mapstructure:"tracing"`
	SamplingRate float64 `yaml:"sampling_rate" mapstructure:"sampling_rate"`
	// MetricsFile receives a Prometheus text dump when the job ends
	MetricsFile string `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// NewBaseConfig creates a configuration with defaults that work for a local
// full-output job.
func NewBaseConfig(name string) *BaseConfig {
	return &BaseConfig{
		Name: name,
		Output: OutputConfig{
			Mode:              ModeFull,
			Tree:              "Events",
			FriendName:        "Friends",
			TreeCompression:   string(rowstore.TreeCompressionZstd),
			ObjectCompression: string(compression.Zstd),
		},
		Storage: StorageConfig{
			Backend: BackendLocal,
			Root:    ".",
			Secure:  true,
		},
		Observability: ObservabilityConfig{
			LogLevel:     "info",
			LogEncoding:  "console",
			Tracing:      "none",
			SamplingRate: 1.0,
		},
	}
}

// Validate checks required fields and value ranges.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	switch bc.Output.Mode {
	case ModeFull, ModeFriend:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "output.mode must be %q or %q, got %q", ModeFull, ModeFriend, bc.Output.Mode)
	}
	if bc.Output.Tree == "" {
		return errors.New(errors.ErrorTypeConfig, "output.tree is required")
	}
	if _, err := rowstore.ParseTreeCompression(bc.Output.TreeCompression); err != nil {
		return err
	}
	if _, err := compression.ParseAlgorithm(bc.Output.ObjectCompression); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "output.object_compression")
	}
	if err := bc.Storage.validate(); err != nil {
		return err
	}
	if !observability.ValidExporter(bc.Observability.Tracing) {
		return errors.Newf(errors.ErrorTypeConfig, "observability.tracing %q is not supported", bc.Observability.Tracing)
	}
	if r := bc.Observability.SamplingRate; r < 0 || r > 1 {
		return errors.Newf(errors.ErrorTypeConfig, "observability.sampling_rate must be in [0, 1], got %g", r)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Backend {
	case BackendLocal:
		if s.Root == "" {
			return errors.New(errors.ErrorTypeConfig, "storage.root is required for the local backend")
		}
	case BackendMemory:
	case BackendS3, BackendGCS:
		if s.Bucket == "" {
			return errors.Newf(errors.ErrorTypeConfig, "storage.bucket is required for the %s backend", s.Backend)
		}
	case BackendMinio:
		if s.Bucket == "" || s.Endpoint == "" {
			return errors.New(errors.ErrorTypeConfig, "storage.bucket and storage.endpoint are required for the minio backend")
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown storage backend %q", s.Backend)
	}
	return nil
}

// LoggerConfig returns the logger settings.
func (o ObservabilityConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       o.LogLevel,
		Development: o.Development,
		Encoding:    o.LogEncoding,
	}
}

// TracingConfig returns the tracer settings for a job named service.
func (o ObservabilityConfig) TracingConfig(service, version string) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()
	cfg.ServiceName = service
	cfg.ServiceVersion = version
	cfg.ExporterType = o.Tracing
	cfg.SamplingRate = o.SamplingRate
	return cfg
}

// Load reads a YAML or JSON configuration file on top of the defaults and
// applies NTUPLE_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*BaseConfig, error) {
	cfg := NewBaseConfig("ntuple")
	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "read config").WithDetail("path", path)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unmarshal config").WithDetail("path", path)
	}
	return cfg, nil
}

// setDefaults registers every key so that environment overrides apply even
// when the file omits it.
func setDefaults(v *viper.Viper, cfg *BaseConfig) {
	v.SetDefault("name", cfg.Name)

	v.SetDefault("output.mode", cfg.Output.Mode)
	v.SetDefault("output.tree", cfg.Output.Tree)
	v.SetDefault("output.friend_name", cfg.Output.FriendName)
	v.SetDefault("output.tree_compression", cfg.Output.TreeCompression)
	v.SetDefault("output.object_compression", cfg.Output.ObjectCompression)
	v.SetDefault("output.provenance", cfg.Output.Provenance)
	v.SetDefault("output.full_clone", cfg.Output.FullClone)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.root", cfg.Storage.Root)
	v.SetDefault("storage.bucket", cfg.Storage.Bucket)
	v.SetDefault("storage.prefix", cfg.Storage.Prefix)
	v.SetDefault("storage.region", cfg.Storage.Region)
	v.SetDefault("storage.endpoint", cfg.Storage.Endpoint)
	v.SetDefault("storage.access_key", cfg.Storage.AccessKey)
	v.SetDefault("storage.secret_key", cfg.Storage.SecretKey)
	v.SetDefault("storage.secure", cfg.Storage.Secure)
	v.SetDefault("storage.credentials_file", cfg.Storage.CredentialsFile)

	v.SetDefault("filter.branch_selection", cfg.Filter.BranchSelection)
	v.SetDefault("filter.lumi_json", cfg.Filter.LumiJSON)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_encoding", cfg.Observability.LogEncoding)
	v.SetDefault("observability.development", cfg.Observability.Development)
	v.SetDefault("observability.tracing", cfg.Observability.Tracing)
	v.SetDefault("observability.sampling_rate", cfg.Observability.SamplingRate)
	v.SetDefault("observability.metrics_file", cfg.Observability.MetricsFile)
}

// Save writes the configuration as YAML.
func (bc *BaseConfig) Save(path string) error {
	data, err := yaml.Marshal(bc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "write config").WithDetail("path", path)
	}
	return nil
}
