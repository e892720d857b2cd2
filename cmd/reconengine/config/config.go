// Package config builds component configurations from CLI flags and the
// optional viper config file.
package config

import (
	"github.com/shopspring/decimal"

	"trade-reconciliation-engine/internal/matcher"
	"trade-reconciliation-engine/pkg/logger"
)

// CreateMatcherConfig builds the scoring configuration, applying CLI
// overrides on top of the production defaults. Zero-valued overrides mean
// "keep the default". Validation happens at engine construction.
func CreateMatcherConfig(matchThreshold, confirmThreshold int, amountTolerance float64) *matcher.Config {
	cfg := matcher.DefaultConfig()

	if matchThreshold > 0 {
		cfg.MatchThreshold = matchThreshold
	}
	if confirmThreshold > 0 {
		cfg.ConfirmThreshold = confirmThreshold
	}
	if amountTolerance > 0 {
		cfg.AmountClosePercent = decimal.NewFromFloat(amountTolerance)
	}
	return cfg
}

// CreateLoggerConfig builds the logger configuration for a CLI run.
func CreateLoggerConfig(verbose bool, format string) *logger.Config {
	cfg := logger.DefaultConfig()
	if verbose {
		cfg.Level = logger.DebugLevel
	}
	if format != "" {
		cfg.Format = logger.Format(format)
	}
	return cfg
}
