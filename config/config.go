package config

import (
	stderrors "errors"
	"math/bits"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/objmodel/errors"
)

const (
	configFileName = "objmodel"
	configFileType = "yaml"
	envPrefix      = "OBJMODEL"
)

// Config keys.
const (
	KeyAllocatorKind     = "allocator.kind"
	KeyAllocatorMaxBytes = "allocator.max_bytes"
	KeyAllocatorSlabSize = "allocator.slab_size"
	KeyAllocatorMaxSlabs = "allocator.max_slabs"
	KeyAllocatorGuest    = "allocator.guest"
	KeyEngineMemoryPages = "engine.memory_limit_pages"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyMetricsEnabled    = "metrics.enabled"
	KeyMetricsNamespace  = "metrics.namespace"
	KeyWorkers           = "workload.workers"
	KeyIterations        = "workload.iterations"
	KeyBlobSize          = "workload.blob_size"
)

// Allocator kinds.
const (
	AllocatorHeap   = "heap"
	AllocatorMmap   = "mmap"
	AllocatorLinear = "linear"
)

// Log formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// DefaultYAML is a commented configuration file holding the defaults.
const DefaultYAML = `# objmodel configuration

allocator:
  # heap, mmap (unix only) or linear (WebAssembly guest memory)
  kind: heap
  # 0 means no limit (heap only)
  max_bytes: 0
  # mmap slab size; a power of two between 64KB and 16MB
  slab_size: 1048576
  # 0 means no limit (mmap only)
  max_slabs: 0
  # path to a guest module exporting memory and cabi_realloc; empty uses
  # the built-in bump allocator (linear only)
  guest: ""

engine:
  # 0 keeps the runtime default
  memory_limit_pages: 0

log:
  level: info
  # auto, console or json; auto picks console on a terminal
  format: auto

metrics:
  enabled: false
  namespace: objmodel

workload:
  workers: 4
  iterations: 100
  blob_size: 256
`

// Validation errors.
var (
	ErrAllocatorUnknown    = stderrors.New("unknown allocator kind")
	ErrSlabSizeInvalid     = stderrors.New("slab size must be a power of two between 64KB and 16MB")
	ErrMaxSlabsInvalid     = stderrors.New("max slabs must not be negative")
	ErrMemoryLimitInvalid  = stderrors.New("memory limit must not exceed 65536 pages")
	ErrLogLevelUnknown     = stderrors.New("unknown log level")
	ErrLogFormatUnknown    = stderrors.New("unknown log format")
	ErrNamespaceEmpty      = stderrors.New("metrics namespace must not be empty")
	ErrWorkersInvalid      = stderrors.New("workers must be positive")
	ErrIterationsInvalid   = stderrors.New("iterations must be positive")
	ErrBlobSizeInvalid     = stderrors.New("blob size must be positive")
	ErrGuestWithoutLinear  = stderrors.New("guest module is only used by the linear allocator")
	ErrMaxBytesUnsupported = stderrors.New("max bytes is only enforced by the heap allocator")
)

// Config is the resolved configuration.
type Config struct {
	Allocator AllocatorConfig `mapstructure:"allocator" json:"allocator"`
	Engine    EngineConfig    `mapstructure:"engine" json:"engine"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics"`
	Workload  WorkloadConfig  `mapstructure:"workload" json:"workload"`
}

// AllocatorConfig selects and sizes the default allocator.
type AllocatorConfig struct {
	Kind     string `mapstructure:"kind" json:"kind"`
	MaxBytes uint64 `mapstructure:"max_bytes" json:"max_bytes"`
	SlabSize uint32 `mapstructure:"slab_size" json:"slab_size"`
	MaxSlabs int    `mapstructure:"max_slabs" json:"max_slabs"`
	Guest    string `mapstructure:"guest" json:"guest,omitempty"`
}

// EngineConfig configures the WebAssembly runtime behind linear allocators.
type EngineConfig struct {
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages" json:"memory_limit_pages"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// MetricsConfig enables allocator instrumentation.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	Namespace string `mapstructure:"namespace" json:"namespace"`
}

// WorkloadConfig sizes the run command's workload.
type WorkloadConfig struct {
	Workers    int    `mapstructure:"workers" json:"workers"`
	Iterations int    `mapstructure:"iterations" json:"iterations"`
	BlobSize   uint32 `mapstructure:"blob_size" json:"blob_size"`
}

// Loader resolves configuration from defaults, a YAML file, OBJMODEL_*
// environment variables, and bound flags, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with every key defaulted.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAllocatorKind, AllocatorHeap)
	v.SetDefault(KeyAllocatorMaxBytes, 0)
	v.SetDefault(KeyAllocatorSlabSize, 1<<20)
	v.SetDefault(KeyAllocatorMaxSlabs, 0)
	v.SetDefault(KeyAllocatorGuest, "")
	v.SetDefault(KeyEngineMemoryPages, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, FormatAuto)
	v.SetDefault(KeyMetricsEnabled, false)
	v.SetDefault(KeyMetricsNamespace, "objmodel")
	v.SetDefault(KeyWorkers, 4)
	v.SetDefault(KeyIterations, 100)
	v.SetDefault(KeyBlobSize, 256)
}

// BindFlag lets a command-line flag override key when the flag is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.NilPointer(errors.PhaseConfig, "flag for "+key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads path, or objmodel.yaml from the working directory when path is
// empty, and returns the validated configuration. A missing default file is
// not an error; a missing explicit path is.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName(configFileName)
		l.v.SetConfigType(configFileType)
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "read config")
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "validate config")
	}
	return &cfg, nil
}

// Used returns the config file that was read, or "" when defaults were used.
func (l *Loader) Used() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration with no flags bound.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Default returns the configuration with every key at its default.
func Default() *Config {
	var cfg Config
	if err := NewLoader().v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

var knownAllocators = map[string]bool{
	AllocatorHeap:   true,
	AllocatorMmap:   true,
	AllocatorLinear: true,
}

var knownFormats = map[string]bool{
	FormatAuto:    true,
	FormatConsole: true,
	FormatJSON:    true,
}

// Validate checks that the Config is well-formed. It returns one of this
// package's sentinel errors on failure.
func (c Config) Validate() error {
	if !knownAllocators[c.Allocator.Kind] {
		return ErrAllocatorUnknown
	}
	if s := c.Allocator.SlabSize; s < 1<<16 || s > 1<<24 || bits.OnesCount32(s) != 1 {
		return ErrSlabSizeInvalid
	}
	if c.Allocator.MaxSlabs < 0 {
		return ErrMaxSlabsInvalid
	}
	if c.Allocator.Guest != "" && c.Allocator.Kind != AllocatorLinear {
		return ErrGuestWithoutLinear
	}
	if c.Allocator.MaxBytes > 0 && c.Allocator.Kind != AllocatorHeap {
		return ErrMaxBytesUnsupported
	}
	if c.Engine.MemoryLimitPages > 65536 {
		return ErrMemoryLimitInvalid
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return ErrLogLevelUnknown
	}
	if !knownFormats[c.Log.Format] {
		return ErrLogFormatUnknown
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return ErrNamespaceEmpty
	}
	if c.Workload.Workers < 1 {
		return ErrWorkersInvalid
	}
	if c.Workload.Iterations < 1 {
		return ErrIterationsInvalid
	}
	if c.Workload.BlobSize == 0 {
		return ErrBlobSizeInvalid
	}
	return nil
}
