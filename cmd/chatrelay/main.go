package main

import (
	"context"
	"log"

	"chatrelay/internal/app"
	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	eff := config.BuildEffective(cfg, addrVal, dbVal, setFlags, envUsed)

	logger.InitWithLevel(cfg.Logging.Level)
	defer logger.Sync()

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(ctx, eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath)
	}
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server error", err, eff.DBPath)
	}
}
