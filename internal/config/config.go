// Package config loads the proxy's ProxyConfig document: server bind
// address, global logging level, and the ordered list of routes. Grounded on
// the teacher's internal/config/config.go (typed config struct, validation
// helpers), re-expressed as the YAML document section 3/6 calls for instead
// of the teacher's flat environment-variable loader.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/llmgatewayd/llmgatewayd/internal/dialect"
)

// LogLevel is the global logging verbosity.
type LogLevel string

const (
	LogOff         LogLevel = "OFF"
	LogHeadersOnly LogLevel = "HEADERS_ONLY"
	LogFull        LogLevel = "FULL"
)

// ServerConfig is the listener bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig is the global logging policy.
type LoggingConfig struct {
	Level      LogLevel `yaml:"level"`
	LogHeaders bool     `yaml:"logHeaders"`
	LogBodies  bool     `yaml:"logBodies"`
}

// NameValue is an ordered name/value pair, used wherever the data model calls
// for an "ordered mapping" (header add/force lists).
type NameValue struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// HeaderRule is the per-route header rewrite rule (section 4.2).
type HeaderRule struct {
	DropAll bool        `yaml:"dropAll"`
	Drop    []string    `yaml:"drop"`
	Add     []NameValue `yaml:"add"`
	Force   []NameValue `yaml:"force"`
}

// RegexSub is one ordered {pattern, replacement} body substitution.
type RegexSub struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// JSONPathOp is one ordered {op, path, value?} structural body edit.
type JSONPathOp struct {
	Op    string      `yaml:"op"` // ADD or REMOVE
	Path  string      `yaml:"path"`
	Value interface{} `yaml:"value,omitempty"`
}

// DirectionRules groups the regex and JSON-path edits for one direction
// (request or response) of a route's TransformRule.
type DirectionRules struct {
	Regex    []RegexSub   `yaml:"regex"`
	JSONPath []JSONPathOp `yaml:"jsonPath"`
}

// TransformRule is a route's independent request-side and response-side body
// edits.
type TransformRule struct {
	Request  DirectionRules `yaml:"request"`
	Response DirectionRules `yaml:"response"`
}

// Provider is a route's upstream target: dialect tag, base URL, target model
// name, and optional bearer key.
type Provider struct {
	Type        dialect.Dialect `yaml:"type"`
	BaseURL     string          `yaml:"baseUrl"`
	TargetModel string          `yaml:"targetModel"`
	APIKey      string          `yaml:"apiKey"`
}

// ClientPolicy is a route's upstream dispatch policy.
type ClientPolicy struct {
	TimeoutMS  int  `yaml:"timeoutMs"`
	MaxRetries int  `yaml:"maxRetries"`
	VerifySSL  bool `yaml:"verifySsl"`
}

// Route is one configured mapping from an incoming model name to a provider,
// transformation rules, and client policy. Routes are immutable for the
// process lifetime once loaded.
type Route struct {
	IncomingModel string        `yaml:"incomingModel"`
	Provider      Provider      `yaml:"provider"`
	Headers       HeaderRule    `yaml:"headers"`
	Transform     TransformRule `yaml:"transform"`
	Client        ClientPolicy  `yaml:"client"`
}

// ProxyConfig is the top-level configuration document.
type ProxyConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Routes  []Route       `yaml:"routes"`
}

// Load reads a YAML ProxyConfig document from path, substituting ${ENV_VAR}
// occurrences before parsing. A sibling .env file is sourced first (if
// present) so local development can populate those variables, mirroring the
// teacher's own use of godotenv in its CLI bootstrap; its absence is not an
// error.
func Load(path string) (*ProxyConfig, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	var cfg ProxyConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *ProxyConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogHeadersOnly
	}
	for i := range cfg.Routes {
		if cfg.Routes[i].Client.TimeoutMS == 0 {
			cfg.Routes[i].Client.TimeoutMS = 30000
		}
	}
}

// Validate enforces the ProxyConfig invariants from section 3: routes
// non-empty, each route's incomingModel and provider dialect/base URL
// non-blank.
func (c *ProxyConfig) Validate() error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("config: at least one route is required")
	}
	for i, r := range c.Routes {
		if r.IncomingModel == "" {
			return fmt.Errorf("config: route %d: incomingModel must not be blank", i)
		}
		if !r.Provider.Type.Valid() {
			return fmt.Errorf("config: route %d (%s): provider.type must be one of openai, anthropic, ollama", i, r.IncomingModel)
		}
		if r.Provider.BaseURL == "" {
			return fmt.Errorf("config: route %d (%s): provider.baseUrl must not be blank", i, r.IncomingModel)
		}
		if r.Client.MaxRetries < 0 {
			return fmt.Errorf("config: route %d (%s): client.maxRetries must be >= 0", i, r.IncomingModel)
		}
	}
	return nil
}
