// Package obslog wraps go.uber.org/zap the way the pack's bitechdev/pkg/logger
// does: a package-level sugared logger, a dev/prod Init switch, and leveled
// helpers that fall back to the standard log package if Init was never
// called, so importing neurobus without configuring logging still works.
package obslog

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
)

var logger *zap.SugaredLogger

// Init builds the process-wide logger. dev selects zap's development
// (console, caller-annotated) config over its production (JSON) config.
func Init(dev bool) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	built, err := cfg.Build()
	if err != nil {
		log.Print(err)
		return
	}
	logger = built.Sugar()
}

// SetLogger installs a pre-built sugared logger, bypassing Init. Useful
// when the host application already owns a zap logger.
func SetLogger(l *zap.SugaredLogger) {
	logger = l
}

func Info(template string, args ...any) {
	if logger == nil {
		log.Printf(template, args...)
		return
	}
	logger.Infow(fmt.Sprintf(template, args...), "pid", os.Getpid())
}

func Warn(template string, args ...any) {
	if logger == nil {
		log.Printf(template, args...)
		return
	}
	logger.Warnw(fmt.Sprintf(template, args...), "pid", os.Getpid())
}

func Error(template string, args ...any) {
	if logger == nil {
		log.Printf(template, args...)
		return
	}
	logger.Errorw(fmt.Sprintf(template, args...), "pid", os.Getpid())
}
