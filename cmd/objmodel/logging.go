package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/objmodel/config"
	"github.com/wippyai/objmodel/engine"
	"github.com/wippyai/objmodel/handle"
	"github.com/wippyai/objmodel/malloc"
	"github.com/wippyai/objmodel/object"
)

// newLogger builds a zap logger writing to w. The auto format picks the
// console encoder when w is a terminal and JSON otherwise.
func newLogger(cfg config.LogConfig, w *os.File) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := cfg.Format
	if format == config.FormatAuto {
		format = config.FormatJSON
		if w != nil && term.IsTerminal(int(w.Fd())) {
			format = config.FormatConsole
		}
	}

	var zc zap.Config
	if format == config.FormatConsole {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// installLogger routes the library package loggers through l.
func installLogger(l *zap.Logger) {
	object.SetLogger(l.Named("object"))
	malloc.SetLogger(l.Named("malloc"))
	engine.SetLogger(l.Named("engine"))
	handle.SetLogger(l.Named("handle"))
}
