package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.SugaredLogger

// InitLogger logs to stderr with the console encoder. Unknown levels fall back
// to info.
func InitLogger(levelStr string) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if levelStr == "" {
		levelStr = "info"
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zap.InfoLevel
	}

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level)

	Log = zap.New(core, zap.AddCaller()).Sugar()
	Log.Debugf("Logger initialized at level: %s", level.String())
}

// Named returns a child of Log, or a no-op logger before InitLogger.
func Named(name string) *zap.SugaredLogger {
	if Log == nil {
		return zap.NewNop().Sugar()
	}
	return Log.Named(name)
}
