package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blerelay/pkg/config"
)

// configureLogger creates a logger for a command. --log-level wins over
// --verbose, which wins over the configuration file.
func configureLogger(cmd *cobra.Command, cfg *config.Config, verboseFlagName string) (*logrus.Logger, error) {
	logLevel := cfg.Level()

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else if verboseFlagName != "" {
		if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
			logLevel = logrus.DebugLevel
		}
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}

// sessionHook tags every entry with the id of the current run.
type sessionHook struct {
	id string
}

func (h sessionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h sessionHook) Fire(e *logrus.Entry) error {
	e.Data["session"] = h.id
	return nil
}
