package common

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/logger"
)

// NewCommandDeps creates CommandDeps by loading config and creating the
// logger. validate, when non-nil, runs the command's config checks so a
// bad configuration fails before any phase starts.
func NewCommandDeps(validate func(*config.Config) error) (CommandDeps, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}

	if validate != nil {
		if validateErr := validate(cfg); validateErr != nil {
			return CommandDeps{}, fmt.Errorf("invalid configuration: %w", validateErr)
		}
	}

	log, err := createLogger()
	if err != nil {
		return CommandDeps{}, fmt.Errorf("create logger: %w", err)
	}

	deps := CommandDeps{
		Logger: log,
		Config: cfg,
	}

	if validateErr := deps.Validate(); validateErr != nil {
		return CommandDeps{}, fmt.Errorf("validate deps: %w", validateErr)
	}

	return deps, nil
}

// createLogger creates a logger instance from the Viper logger section.
func createLogger() (logger.Interface, error) {
	logLevel := viper.GetString("logger.level")
	if logLevel == "" {
		logLevel = "info"
	}
	logLevel = strings.ToLower(logLevel)
	// The --debug flag is bound after InitializeViper runs, so check it
	// here rather than relying on the level it may have set.
	if viper.GetBool("app.debug") {
		logLevel = "debug"
	}

	logCfg := &logger.Config{
		Level:       logger.Level(logLevel),
		Development: viper.GetBool("logger.development"),
		Encoding:    viper.GetString("logger.encoding"),
		OutputPaths: viper.GetStringSlice("logger.output_paths"),
		EnableColor: viper.GetBool("logger.enable_color"),
	}

	return logger.New(logCfg)
}
