// Command netsentryd is the network telemetry agent: it loads
// configuration, starts the collector/capture/alert pipeline, optionally
// serves the read-only REST API, and runs until a shutdown signal
// arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"netsentry/internal/agent"
	"netsentry/internal/api"
	"netsentry/internal/config"
	"netsentry/internal/query"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file (defaults built in if omitted)")
	storeRoot := flag.String("store", "data/netsentry", "root directory for evicted-flow and alert snapshot persistence")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("netsentryd: failed to load config %q: %v", *configPath, err)
		}
		cfg = loaded
	}

	a, err := agent.New(cfg, *storeRoot)
	if err != nil {
		log.Fatalf("netsentryd: failed to initialize agent: %v", err)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("netsentryd: failed to start agent: %v", err)
	}
	log.Println("netsentryd: agent started")

	var apiServer *api.Server
	if cfg.EnableAPI {
		view := query.NewView(a.Registry, a.Flows)
		handler := api.NewHandler(view, a.Registry)
		apiServer = api.NewServer(fmt.Sprintf(":%d", cfg.APIPort), handler)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil {
				log.Printf("netsentryd: api server stopped: %v", err)
			}
		}()
		log.Printf("netsentryd: api listening on port %d", cfg.APIPort)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("netsentryd: shutdown signal received")

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("netsentryd: api shutdown error: %v", err)
		}
		cancel()
	}

	a.Stop()
	log.Println("netsentryd: shutdown complete")
}
