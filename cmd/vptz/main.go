// Command vptz serves the virtual camera control API: site and region
// management, virtual PTZ transforms, lens calibration, and motor control
// of ONVIF cameras and Pelco-D serial heads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/virtual.ptz/internal/api"
	"github.com/banshee-data/virtual.ptz/internal/config"
	"github.com/banshee-data/virtual.ptz/internal/db"
	"github.com/banshee-data/virtual.ptz/internal/dewarp"
	"github.com/banshee-data/virtual.ptz/internal/httputil"
	"github.com/banshee-data/virtual.ptz/internal/monitor"
	"github.com/banshee-data/virtual.ptz/internal/ptz"
	"github.com/banshee-data/virtual.ptz/internal/timeutil"
	"github.com/banshee-data/virtual.ptz/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db-path", "vptz.db", "Path to the SQLite database")
	configPath  = flag.String("config", "", "Tuning config JSON file (built-in defaults when empty)")
	envFile     = flag.String("env-file", ".env", "Optional dotenv file read before applying VPTZ_* variables")
	noSeed      = flag.Bool("no-seed", false, "Do not create the default site on an empty database")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// envFlags maps environment variables onto the flags they default.
var envFlags = map[string]string{
	"listen":  "VPTZ_LISTEN",
	"db-path": "VPTZ_DB_PATH",
	"config":  "VPTZ_CONFIG",
}

// applyEnv sets every flag in envFlags that was not given on the command
// line from its environment variable, when that is non-empty.
func applyEnv(fset *flag.FlagSet, getenv func(string) string) error {
	explicit := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	for name, key := range envFlags {
		if explicit[name] {
			continue
		}
		if v := getenv(key); v != "" {
			if err := fset.Set(name, v); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// loadEnvFile reads path into the process environment. A missing file is
// only an error when it was asked for explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return err
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func flagSet(fset *flag.FlagSet, name string) bool {
	set := false
	fset.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("vptz", version.Current())
		return
	}

	if err := loadEnvFile(*envFile, flagSet(flag.CommandLine, "env-file")); err != nil {
		log.Fatalf("failed to load %s: %v", *envFile, err)
	}
	if err := applyEnv(flag.CommandLine, os.Getenv); err != nil {
		log.Fatalf("invalid environment: %v", err)
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if !*noSeed {
		seeded, err := store.SeedDefaultSite()
		if err != nil {
			log.Fatalf("failed to seed default site: %v", err)
		}
		if seeded {
			log.Print("created default site")
		}
	}

	clock := timeutil.RealClock{}
	connector := ptz.SchemeConnector{
		Network: ptz.NewONVIFConnector(
			httputil.NewClient(tuning.GetONVIFRequestTimeout()), clock, tuning.GetONVIFRequestTimeout()),
		Serial: ptz.NewPelcoConnector(nil),
	}
	controller := ptz.NewController(store, connector, tuning.PTZConfig(), clock)
	detector := dewarp.NewDetector(tuning.DetectorConfig(), clock)
	snapshots := httputil.NewClient(tuning.GetSnapshotTimeout())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(store, controller, detector, snapshots, tuning).ServeMux()
		store.AttachAdminRoutes(mux)
		controller.AttachAdminRoutes(mux)
		monitor.NewCharts(store).AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("vptz %s listening on %s", version.Current(), *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
