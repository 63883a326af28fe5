package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zimyouth/regbot/core/bootstrap"
	coreconfig "github.com/zimyouth/regbot/core/config"
	"github.com/zimyouth/regbot/core/logger"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	if err := bootstrap.Run(ctx, cfg); err != nil {
		log.Fatalf("service failed: %v", err)
	}
}
