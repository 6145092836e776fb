package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON sugared logger tagged with the service name. An empty or
// unparsable level falls back to info.
func New(service, level string) (*zap.SugaredLogger, error) {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl.SetLevel(parsed)
		}
	}

	config := zap.NewProductionConfig()
	config.Level = lvl
	config.OutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	log, err := config.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}
