package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"chunkserve.dev/internal/config"
	"chunkserve.dev/internal/persistence/indexdb"
	persistlog "chunkserve.dev/internal/persistence/log"
	"chunkserve.dev/internal/server"
	"chunkserve.dev/internal/terrain"
	"chunkserve.dev/internal/transport/observer"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to chunkd.yaml (empty: built-in defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		seed       = flag.Int64("seed", 0, "world seed (overrides config when nonzero)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite batch index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[chunkd] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Listen = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *disableDB {
		cfg.DisableDB = true
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	gen := terrain.New(terrain.Params{
		Seed:            cfg.Seed,
		GroundLevel:     cfg.Terrain.GroundLevel,
		HeightAmp:       cfg.Terrain.HeightAmp,
		FeatureScale:    cfg.Terrain.FeatureScale,
		Octaves:         cfg.Terrain.Octaves,
		Lacunarity:      cfg.Terrain.Lacunarity,
		Persistence:     cfg.Terrain.Persistence,
		SoilDepth:       cfg.Terrain.SoilDepth,
		OrePocketGrid:   cfg.Terrain.OrePocketGrid,
		OrePocketRadius: cfg.Terrain.OrePocketRadius,
		CoalPermille:    cfg.Terrain.CoalPermille,
		IronPermille:    cfg.Terrain.IronPermille,
		CrystalPermille: cfg.Terrain.CrystalPermille,
	})

	batchLog := persistlog.NewBatchLogger(filepath.Join(cfg.DataDir, "logs"))
	defer batchLog.Close()
	recorders := []server.BatchRecorder{batchLog}

	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "chunkd.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		recorders = append(recorders, idx)
	}

	svc := server.NewLocal(gen, server.Config{
		PollInterval: cfg.PollInterval(),
		Recorders:    recorders,
		Logger:       log.New(os.Stdout, "[chunks] ", log.LstdFlags|log.Lmicroseconds),
	})

	obs := observer.NewServer(svc, observer.Bootstrap{
		Seed:           cfg.Seed,
		PollIntervalMs: cfg.PollIntervalMs,
	}, log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s (seed=%d poll=%s)", cfg.Listen, cfg.Seed, cfg.PollInterval())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	// Teardown order matters: stop accepting observers, then stop and
	// join the worker, then flush the recorders it fed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	st := svc.Stats()
	svc.Close()
	logger.Printf("stopped: resident=%d generated=%d batches=%d failed=%d gen_time=%s",
		st.Resident, st.Generated, st.Batches, st.Failed, st.GenTime)
}
