package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFmt = "2006/01/02 15:04:05.000"

type Config struct {
	App   string
	Level string
	// Mode "prod" adds rotated file cores under Dir.
	Mode string
	Dir  string
}

// New builds a zap logger writing to stdout, plus <app>.log and
// <app>_error.log in prod mode.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.App == "" {
		cfg.App = "crashgame"
	}

	lv := zap.NewAtomicLevel()
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if err := lv.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig(false)),
			zapcore.Lock(os.Stdout),
			lv,
		),
	}
	if cfg.Mode == "prod" {
		name := filepath.Join(cfg.Dir, cfg.App)
		cores = append(cores, fileCore(name+".log", lv))
		cores = append(cores, fileCore(name+"_error.log", zap.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func fileCore(file string, lv zapcore.LevelEnabler) zapcore.Core {
	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     10,
		Compress:   true,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig(true)),
		zapcore.AddSync(w),
		lv,
	)
}

func encoderConfig(file bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeFmt))
	}
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.ConsoleSeparator = " "
	if file {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}
