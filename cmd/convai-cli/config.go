package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	defaultStartTimeout = 15 * time.Second
	defaultLogLevel     = "warn"
)

// cliConfig is resolved from, lowest precedence first: environment (after
// dotenv), the YAML file named by --config, explicit flags.
type cliConfig struct {
	GatewayURL       string            `yaml:"gateway_url"`
	APIKey           string            `yaml:"api_key"`
	AgentID          string            `yaml:"agent_id"`
	ExportDir        string            `yaml:"export_dir"`
	LogLevel         string            `yaml:"log_level"`
	StartTimeout     time.Duration     `yaml:"start_timeout"`
	DynamicVariables map[string]string `yaml:"dynamic_variables"`
}

type cliFlags struct {
	set *pflag.FlagSet

	configPath   string
	envFiles     []string
	gatewayURL   string
	apiKey       string
	agentID      string
	exportDir    string
	logLevel     string
	startTimeout time.Duration
}

func newCLIFlags(output io.Writer) *cliFlags {
	f := &cliFlags{set: pflag.NewFlagSet("convai-cli", pflag.ContinueOnError)}
	f.set.SetOutput(output)
	f.set.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	f.set.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	f.set.StringVar(&f.gatewayURL, "gateway-url", "", "convai-gateway base URL (env CONVAI_GATEWAY_URL)")
	f.set.StringVar(&f.apiKey, "api-key", "", "gateway API key (env CONVAI_GATEWAY_API_KEY)")
	f.set.StringVarP(&f.agentID, "agent", "a", "", "agent id (env ELEVENLABS_AGENT_ID)")
	f.set.StringVar(&f.exportDir, "export-dir", "", "directory for transcript exports")
	f.set.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.set.DurationVar(&f.startTimeout, "start-timeout", 0, "bound on credential exchange plus stream open")
	return f
}

// resolveConfig layers env, YAML and flags. readFile is os.ReadFile outside tests.
func resolveConfig(f *cliFlags, lookupEnv func(string) (string, bool), readFile func(string) ([]byte, error)) (cliConfig, error) {
	cfg := cliConfig{
		GatewayURL:   envValue(lookupEnv, "CONVAI_GATEWAY_URL"),
		APIKey:       envValue(lookupEnv, "CONVAI_GATEWAY_API_KEY"),
		AgentID:      envValue(lookupEnv, "ELEVENLABS_AGENT_ID"),
		ExportDir:    ".",
		LogLevel:     defaultLogLevel,
		StartTimeout: defaultStartTimeout,
	}

	path := f.configPath
	if path == "" {
		path = envValue(lookupEnv, "CONVAI_CLI_CONFIG")
	}
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return cliConfig{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cliConfig{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if f.set.Changed("gateway-url") {
		cfg.GatewayURL = f.gatewayURL
	}
	if f.set.Changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if f.set.Changed("agent") {
		cfg.AgentID = f.agentID
	}
	if f.set.Changed("export-dir") {
		cfg.ExportDir = f.exportDir
	}
	if f.set.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.set.Changed("start-timeout") {
		cfg.StartTimeout = f.startTimeout
	}

	cfg.GatewayURL = strings.TrimSpace(cfg.GatewayURL)
	cfg.AgentID = strings.TrimSpace(cfg.AgentID)
	return cfg, cfg.validate()
}

func decodeYAML(data []byte, cfg *cliConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c cliConfig) validate() error {
	if c.GatewayURL == "" {
		return errors.New("gateway url is required (--gateway-url, gateway_url or CONVAI_GATEWAY_URL)")
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gateway url must be an absolute http(s) URL, got %q", c.GatewayURL)
	}
	if c.AgentID == "" {
		return errors.New("agent id is required (--agent, agent_id or ELEVENLABS_AGENT_ID)")
	}
	if c.StartTimeout <= 0 {
		return errors.New("start timeout must be > 0")
	}
	return nil
}

func (c cliConfig) dynamicVariables() map[string]any {
	if len(c.DynamicVariables) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.DynamicVariables))
	for k, v := range c.DynamicVariables {
		out[k] = v
	}
	return out
}

func envValue(lookupEnv func(string) (string, bool), key string) string {
	v, _ := lookupEnv(key)
	return strings.TrimSpace(v)
}
