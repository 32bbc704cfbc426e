package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/floodline-data/floodline/internal/api"
	"github.com/floodline-data/floodline/internal/config"
	"github.com/floodline-data/floodline/internal/httputil"
	"github.com/floodline-data/floodline/internal/raster"
	"github.com/floodline-data/floodline/internal/raster/remote"
	"github.com/floodline-data/floodline/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	devMode       = flag.Bool("dev", false, "Run against an in-process engine with synthetic scenes")
	engineURL     = flag.String("engine-url", "http://localhost:9090", "Raster engine base URL (ignored in dev mode)")
	engineTimeout = flag.Duration("engine-timeout", 120*time.Second, "Timeout for raster engine round trips")
	configPath    = flag.String("config", "", "Path to detection defaults JSON (optional)")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	defaults := config.EmptyDetectionParams()
	if *configPath != "" {
		var err error
		defaults, err = config.LoadDetectionParams(*configPath)
		if err != nil {
			log.Fatalf("Failed to load detection defaults: %v", err)
		}
		log.Printf("loaded detection defaults from %s", *configPath)
	}

	var engine raster.Engine
	if *devMode {
		log.Print("dev mode: serving synthetic scenes from an in-process engine")
		engine = devEngine()
	} else {
		client := httputil.NewStandardClient(&http.Client{Timeout: *engineTimeout})
		engine = remote.New(*engineURL, client)
		log.Printf("using raster engine at %s", *engineURL)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := api.NewServer(engine, api.Options{Defaults: defaults}).ServeMux()
	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("%s listening on %s", version.String(), *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
