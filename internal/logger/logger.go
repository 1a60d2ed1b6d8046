// Package logger builds the zap logger used across novabuf.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level (e.g., "debug", "info", "warn", "error").
	Level string `mapstructure:"level"`
	// Format specifies the log output format ("json" or "console").
	Format string `mapstructure:"format"`
	// OutputFile specifies the file to write logs to. "stdout" or "stderr"
	// can be used to log to the console.
	OutputFile string `mapstructure:"output_file"`
}

// New creates a zap.Logger from config. An unknown level falls back to
// info. The returned close func syncs the logger and closes the log file
// when OutputFile names one; call it once on shutdown.
func New(config Config) (*zap.Logger, func() error, error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(config.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	out, err := openOutput(config.OutputFile)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(getEncoder(config.Format), zapcore.AddSync(out), logLevel)
	l := zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", "novabuf")))

	closeFn := func() error {
		err := l.Sync()
		if out == os.Stdout || out == os.Stderr {
			// Sync on a terminal fails with EINVAL on some platforms.
			return nil
		}
		return multierr.Append(err, out.Close())
	}
	return l, closeFn, nil
}

func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// openOutput maps "stdout", "stderr" or "" to the process streams and
// anything else to a file opened for append.
func openOutput(outputFile string) (*os.File, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open log file %s: %w", outputFile, err)
		}
		return file, nil
	}
}
