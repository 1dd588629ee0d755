package logging

import (
	"fmt"
	"strings"

	"github.com/Dans-labs/laf-fabric/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity is the amount of progress output a run produces
type Verbosity int

const (
	Silent Verbosity = iota
	Error
	Warning
	Normal
	Detail
	Debug
)

var verbosityNames = []string{"SILENT", "ERROR", "WARNING", "NORMAL", "DETAIL", "DEBUG"}

func (v Verbosity) String() string {
	if int(v) < len(verbosityNames) && v >= 0 {
		return verbosityNames[v]
	}
	return fmt.Sprintf("VERBOSITY(%d)", int(v))
}

// ParseVerbosity parses a verbosity name, case insensitive. INFO is accepted
// as an alias of NORMAL and NOTHING as an alias of SILENT.
func ParseVerbosity(s string) (Verbosity, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "INFO":
		return Normal, nil
	case "NOTHING":
		return Silent, nil
	}
	for i, n := range verbosityNames {
		if n == name {
			return Verbosity(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown verbosity %q, expected one of %s", s, strings.Join(verbosityNames, ", "))
}

// NewLogger builds the process logger from the logging configuration
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = cfg.Format
	if cfg.Format == "console" {
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zcfg.Build()
}
