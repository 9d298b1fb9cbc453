package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port string `yaml:"port"`
	// DBURL empty means tables live in the in-memory executor.
	DBURL string `yaml:"dbUrl"`

	// Registry and audit persistence.
	StoreDriver   string `yaml:"storeDriver"` // postgres | sqlite | memory; empty picks by DBURL
	SQLitePath    string `yaml:"sqlitePath"`
	RegistryTable string `yaml:"registryTable"`
	AuditTable    string `yaml:"auditTable"`
	AuditBuffer   int    `yaml:"auditBuffer"`

	OpenAIAPIKey  string        `yaml:"openaiApiKey"`
	OpenAIBaseURL string        `yaml:"openaiBaseUrl"`
	OpenAIModel   string        `yaml:"openaiModel"`
	AITimeout     time.Duration `yaml:"aiTimeout"`

	ReferenceDir string `yaml:"referenceDir"`
}

func def() Config {
	return Config{
		Port:          "8080",
		SQLitePath:    "apiforge.db",
		RegistryTable: "api_registry",
		AuditTable:    "api_request_logs",
		AuditBuffer:   256,
		OpenAIModel:   "gpt-4o-mini",
		AITimeout:     30 * time.Second,
		ReferenceDir:  "reference",
	}
}

// field ties one setting to its file key (also the flag name) and env var.
type field struct {
	key   string
	env   string
	usage string
	ptr   func(*Config) any
}

var fields = []field{
	{"port", "APIFORGE_PORT", "HTTP port", func(c *Config) any { return &c.Port }},
	{"db-url", "APIFORGE_DB_URL", "PostgreSQL URL (empty = in-memory tables)", func(c *Config) any { return &c.DBURL }},
	{"store-driver", "APIFORGE_STORE_DRIVER", "registry/audit store: postgres, sqlite or memory", func(c *Config) any { return &c.StoreDriver }},
	{"sqlite-path", "APIFORGE_SQLITE_PATH", "SQLite file for the sqlite store driver", func(c *Config) any { return &c.SQLitePath }},
	{"registry-table", "APIFORGE_REGISTRY_TABLE", "table holding API records", func(c *Config) any { return &c.RegistryTable }},
	{"audit-table", "APIFORGE_AUDIT_TABLE", "table holding request logs", func(c *Config) any { return &c.AuditTable }},
	{"audit-buffer", "APIFORGE_AUDIT_BUFFER", "audit entries buffered before dropping", func(c *Config) any { return &c.AuditBuffer }},
	{"openai-api-key", "APIFORGE_OPENAI_API_KEY", "OpenAI API key", func(c *Config) any { return &c.OpenAIAPIKey }},
	{"openai-base-url", "APIFORGE_OPENAI_BASE_URL", "OpenAI-compatible base URL", func(c *Config) any { return &c.OpenAIBaseURL }},
	{"openai-model", "APIFORGE_OPENAI_MODEL", "chat model", func(c *Config) any { return &c.OpenAIModel }},
	{"ai-timeout", "APIFORGE_AI_TIMEOUT", "AI call timeout", func(c *Config) any { return &c.AITimeout }},
	{"reference-dir", "APIFORGE_REFERENCE_DIR", "directory of YAML type catalogs", func(c *Config) any { return &c.ReferenceDir }},
}

// loadFile reads YAML or JSON (JSON is valid YAML) over cfg. A missing file
// is not an error.
func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func set(p any, raw string) error {
	raw = strings.TrimSpace(raw)
	switch v := p.(type) {
	case *string:
		*v = raw
	case *int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*v = n
	case *time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*v = d
	}
	return nil
}

func applyEnv(cfg *Config) error {
	for _, f := range fields {
		v, ok := os.LookupEnv(f.env)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := set(f.ptr(cfg), v); err != nil {
			return fmt.Errorf("%s: %w", f.env, err)
		}
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	return nil
}

// Flags holds the command-line values; only flags the user set override
// file and environment.
type Flags struct {
	fs     *pflag.FlagSet
	values Config
}

// RegisterFlags adds one flag per setting to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: def()}
	for _, fd := range fields {
		switch p := fd.ptr(&f.values).(type) {
		case *string:
			fs.StringVar(p, fd.key, *p, fd.usage)
		case *int:
			fs.IntVar(p, fd.key, *p, fd.usage)
		case *time.Duration:
			fs.DurationVar(p, fd.key, *p, fd.usage)
		}
	}
	return f
}

func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	for _, fd := range fields {
		if !f.fs.Changed(fd.key) {
			continue
		}
		switch dst := fd.ptr(cfg).(type) {
		case *string:
			*dst = *fd.ptr(&f.values).(*string)
		case *int:
			*dst = *fd.ptr(&f.values).(*int)
		case *time.Duration:
			*dst = *fd.ptr(&f.values).(*time.Duration)
		}
	}
}

// Load layers defaults, the config file, APIFORGE_* env vars and flags, in
// that order, then validates the result.
func Load(path string, flags *Flags) (Config, error) {
	cfg := def()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	flags.apply(&cfg)
	return cfg, cfg.normalize()
}

func (c *Config) normalize() error {
	c.Port = strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	c.DBURL = strings.TrimSpace(c.DBURL)
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "" {
		c.StoreDriver = DriverMemory
		if c.DBURL != "" {
			c.StoreDriver = DriverPostgres
		}
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBURL == "" {
			return errors.New("storeDriver postgres needs dbUrl")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("storeDriver sqlite needs sqlitePath")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storeDriver %q", c.StoreDriver)
	}
	if c.AuditBuffer < 1 {
		c.AuditBuffer = 256
	}
	if c.AITimeout <= 0 {
		c.AITimeout = 30 * time.Second
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }
