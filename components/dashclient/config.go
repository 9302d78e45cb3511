package dashclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
)

// Config carries everything the client needs to reach the analytics
// service and shape its local behavior.
type Config struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	LogLevel       string `mapstructure:"log_level"`
	TokenPath      string `mapstructure:"token_path"`
	DownloadDir    string `mapstructure:"download_dir"`
	Theme          string `mapstructure:"theme"`
}

// Timeout returns the request timeout as a duration.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

const configSchema = `{
	"type": "object",
	"required": ["base_url"],
	"properties": {
		"base_url": {"type": "string", "minLength": 1},
		"timeout_seconds": {"type": "integer", "minimum": 1},
		"log_level": {"enum": ["debug", "info", "warn", "error"]},
		"token_path": {"type": "string"},
		"download_dir": {"type": "string"},
		"theme": {"enum": ["dark", "light"]}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchemaCompiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.json", strings.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("dashclient: load config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("config.json")
	})
	return compiledSchema, schemaErr
}

// ValidateConfigMap checks raw settings against the config schema before
// they are bound to the Config struct.
func ValidateConfigMap(settings map[string]any) error {
	schema, err := configSchemaCompiled()
	if err != nil {
		return err
	}
	if err := schema.Validate(settings); err != nil {
		return fmt.Errorf("dashclient: configuration failed validation: %w", err)
	}
	return nil
}

// LoadConfig reads config.yml from dir (plus CHEMVIZ_* environment
// overrides), validates it, and binds it.
func LoadConfig(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("chemviz")
	v.AutomaticEnv()
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("theme", ThemeDark)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("dashclient: read config: %w", err)
	}
	if err := ValidateConfigMap(v.AllSettings()); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("dashclient: bind config: %w", err)
	}
	return cfg, nil
}
