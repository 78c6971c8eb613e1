package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitializeViper wires Viper to environment variables and the config
// file. It must run before LoadConfig().
func InitializeViper(cfgFile string) error {
	loadEnvFile()
	setupViper(cfgFile)
	setDefaults()
	readConfigFile()

	if err := bindEnvironmentVariables(); err != nil {
		return fmt.Errorf("failed to bind environment variables: %w", err)
	}

	setupDevelopmentLogging()
	return nil
}

// loadEnvFile loads .env if present.
func loadEnvFile() {
	_ = godotenv.Load()
}

// setupViper configures config file discovery and automatic env reads.
func setupViper(cfgFile string) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		return
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
}

// readConfigFile reads the config file if one exists. Missing files are
// fine, env vars and defaults cover everything.
func readConfigFile() {
	_ = viper.ReadInConfig()
}

// bindEnvironmentVariables binds env vars whose names do not follow the
// section_key convention.
func bindEnvironmentVariables() error {
	if err := bindAppEnvVars(); err != nil {
		return fmt.Errorf("failed to bind app env vars: %w", err)
	}
	if err := bindLLMEnvVars(); err != nil {
		return fmt.Errorf("failed to bind llm env vars: %w", err)
	}
	if err := bindElasticsearchEnvVars(); err != nil {
		return fmt.Errorf("failed to bind elasticsearch env vars: %w", err)
	}
	return nil
}

func bindAppEnvVars() error {
	if err := viper.BindEnv("app.environment", "APP_ENV"); err != nil {
		return fmt.Errorf("failed to bind APP_ENV: %w", err)
	}
	if err := viper.BindEnv("app.debug", "APP_DEBUG"); err != nil {
		return fmt.Errorf("failed to bind APP_DEBUG: %w", err)
	}
	if err := viper.BindEnv("logger.level", "LOG_LEVEL"); err != nil {
		return fmt.Errorf("failed to bind LOG_LEVEL: %w", err)
	}
	if err := viper.BindEnv("logger.encoding", "LOG_FORMAT"); err != nil {
		return fmt.Errorf("failed to bind LOG_FORMAT: %w", err)
	}
	return nil
}

func bindLLMEnvVars() error {
	// OPENAI_API_KEY is the conventional name, LLM_API_KEY the local one.
	if err := viper.BindEnv("llm.api_key", "LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return fmt.Errorf("failed to bind LLM_API_KEY: %w", err)
	}
	if err := viper.BindEnv("llm.base_url", "LLM_BASE_URL", "OPENAI_BASE_URL"); err != nil {
		return fmt.Errorf("failed to bind LLM_BASE_URL: %w", err)
	}
	if err := viper.BindEnv("llm.model", "LLM_MODEL"); err != nil {
		return fmt.Errorf("failed to bind LLM_MODEL: %w", err)
	}
	return nil
}

func bindElasticsearchEnvVars() error {
	if err := viper.BindEnv("elasticsearch.addresses", "ELASTICSEARCH_HOSTS", "ELASTICSEARCH_ADDRESSES"); err != nil {
		return fmt.Errorf("failed to bind Elasticsearch addresses: %w", err)
	}
	if err := viper.BindEnv("elasticsearch.password", "ELASTIC_PASSWORD", "ELASTICSEARCH_PASSWORD"); err != nil {
		return fmt.Errorf("failed to bind Elasticsearch password: %w", err)
	}
	if err := viper.BindEnv("elasticsearch.api_key", "ELASTICSEARCH_API_KEY"); err != nil {
		return fmt.Errorf("failed to bind Elasticsearch API key: %w", err)
	}
	if err := viper.BindEnv("elasticsearch.index_name", "ELASTICSEARCH_INDEX_NAME"); err != nil {
		return fmt.Errorf("failed to bind Elasticsearch index name: %w", err)
	}
	if err := viper.BindEnv("elasticsearch.insecure_skip_verify", "ELASTICSEARCH_SKIP_TLS"); err != nil {
		return fmt.Errorf("failed to bind Elasticsearch TLS skip verify: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values for sections Viper
// reads before LoadConfig applies struct-level defaults.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        "gointel",
		"version":     "1.0.0",
		"environment": "production",
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"encoding":     "json",
		"output_paths": []string{"stdout"},
		"enable_color": false,
		"caller":       false,
		"stacktrace":   false,
	})
}

// setupDevelopmentLogging separates debug level (APP_DEBUG) from
// development formatting (APP_ENV=development).
func setupDevelopmentLogging() {
	debugFlag := viper.GetBool("app.debug")
	isDev := viper.GetString("app.environment") == "development"

	if debugFlag {
		viper.Set("logger.level", "debug")
	}

	if isDev {
		viper.Set("logger.development", true)
		viper.Set("logger.enable_color", true)
		viper.Set("logger.caller", true)
		viper.Set("logger.stacktrace", true)
		viper.Set("logger.encoding", "console")
	}
}
