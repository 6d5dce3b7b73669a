package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/netlsr/lsrouted/config"
	"github.com/netlsr/lsrouted/daemon"
	"github.com/netlsr/lsrouted/installer"
	"github.com/netlsr/lsrouted/util/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Errorf("main", "configuration error: %v", err)
		return
	}

	if lvl, ok := parseLevel(cfg.LogLevel); ok {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("main", "unknown log level %q, leaving the default in place", cfg.LogLevel)
	}

	kernel, err := installer.NewNetlinkKernel()
	if err != nil {
		logger.Warnf("main", "route installer disabled, could not dial rtnetlink: %v", err)
		kernel = nil
	}

	d := daemon.New(cfg, kernel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for s := range sig {
			if s == syscall.SIGUSR1 {
				logger.Infof("main", "\n%s", d.DumpState())
				continue
			}
			cancel()
			return
		}
	}()

	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Errorf("main", "daemon exited: %v", err)
	}
}

func parseLevel(s string) (logger.Level, bool) {
	switch s {
	case "NONE":
		return logger.NONE, true
	case "WARN":
		return logger.WARN, true
	case "INFO":
		return logger.INFO, true
	case "DEBUG":
		return logger.DEBUG, true
	default:
		return 0, false
	}
}
