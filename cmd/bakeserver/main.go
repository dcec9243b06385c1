package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lightforge.dev/internal/logger"
	"lightforge.dev/internal/service"
)

func main() {
	var (
		addr      = flag.String("addr", ":8660", "http listen address")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		logLevel  = flag.String("log_level", "info", "log level (debug|info|warn|error)")
		logFile   = flag.String("log_file", "", "log file path (default: <data>/bakeserver.log, empty string after default disables)")
		disableDB = flag.Bool("disable_db", false, "disable the sqlite job index")
		bakeDelay = flag.Duration("bake_delay", 0, "artificial per-mapping bake delay (demos)")
	)
	flag.Parse()

	logPath := *logFile
	if logPath == "" {
		logPath = filepath.Join(*dataDir, "bakeserver.log")
	}
	zl := logger.New(*logLevel, logger.DefaultFileConfig(logPath), true)
	defer func() { _ = zl.Sync() }()
	std := logger.Std(zl)

	var idx *service.JobIndex
	if !*disableDB {
		var err error
		idx, err = service.OpenIndex(filepath.Join(*dataDir, "jobs.db"))
		if err != nil {
			zl.Fatal("open job index", zap.Error(err))
		}
		defer idx.Close()
	}

	srv := service.NewServer(idx, std)
	srv.BakeDelay = *bakeDelay

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bake", srv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		zl.Info("bakeserver listening", zap.String("addr", *addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zl.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
