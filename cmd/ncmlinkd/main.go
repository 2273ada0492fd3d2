// cmd/ncmlinkd/main.go
package main

import (
	"log"
	"os"

	"github.com/tamzrod/ncm-linkd/internal/app"
	"github.com/tamzrod/ncm-linkd/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: ncmlinkd <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	config.Normalize(cfg)

	// --------------------
	// Build + run until SIGINT/SIGTERM
	// --------------------

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	a.Run()
}
