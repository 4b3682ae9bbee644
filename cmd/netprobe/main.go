// Command netprobe initializes the three network connections from a
// configuration file, prints their status as JSON and disconnects. It is
// the quickest way to check credentials and endpoint health from a shell.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/flarekit/flaresdk/config"
	"github.com/flarekit/flaresdk/network"
	"github.com/flarekit/flaresdk/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML configuration (empty: FLARE_* environment)")
		envFile    = flag.String("env", "", "Optional .env file loaded before reading the environment")
		timeout    = flag.Duration("timeout", 30*time.Second, "Overall probe timeout")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env (%s): %v", *envFile, err)
		}
	}

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sup, err := network.New(cfg, logger.New("netprobe", cfg.LogLevel))
	if err != nil {
		log.Fatalf("create supervisor: %v", err)
	}
	if err := sup.Initialize(ctx); err != nil {
		log.Fatalf("initialize network: %v", err)
	}
	defer func() {
		if err := sup.Disconnect(context.Background()); err != nil {
			log.Printf("disconnect: %v", err)
		}
	}()

	status := sup.GetConnectionStatus(ctx)
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		log.Fatalf("encode status: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
