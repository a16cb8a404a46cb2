package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	logLevel    string
	encoding    string
	outputPaths []string
}

type Option func(o *options)

func WithLogLevel(lv string) Option {
	return Option(func(o *options) {
		o.logLevel = lv
	})
}

// WithEncoding json|console
func WithEncoding(enc string) Option {
	return Option(func(o *options) {
		o.encoding = enc
	})
}

func WithOutputPaths(paths ...string) Option {
	return Option(func(o *options) {
		o.outputPaths = paths
	})
}

func NewLogger(opts ...Option) (*zap.Logger, error) {
	options := options{
		logLevel:    "info",
		encoding:    "json",
		outputPaths: []string{"stderr"},
	}

	for _, e := range opts {
		e(&options)
	}

	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var al zap.AtomicLevel
	err := al.UnmarshalText([]byte(options.logLevel))
	if err != nil {
		return nil, fmt.Errorf("al.UnmarshalText: level=%s, %w", options.logLevel, err)
	}

	switch options.encoding {
	case "json", "console":
	default:
		return nil, fmt.Errorf("unknown encoding: %s", options.encoding)
	}

	zc := zap.Config{
		DisableCaller:     true,
		DisableStacktrace: true,
		Level:             al,
		Development:       false,
		Encoding:          options.encoding,
		EncoderConfig:     encConfig,
		OutputPaths:       options.outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
	}

	zl, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("zap.Build: %w", err)
	}
	return zl, nil
}

func Must(zl *zap.Logger, err error) *zap.Logger {
	if err != nil {
		panic(err)
	}
	return zl
}
