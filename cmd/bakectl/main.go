package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/lighting"
	"lightforge.dev/internal/profile"
	"lightforge.dev/internal/scene"
)

func main() {
	var (
		scenePath   = flag.String("scene", "scene.yaml", "scene file to bake")
		profilePath = flag.String("profile", "", "bake profile yaml (optional)")
		serverURL   = flag.String("server", "ws://127.0.0.1:8660/v1/bake", "bakeserver endpoint")
		quality     = flag.String("quality", "", "override quality (preview|medium|high|production)")
		tick        = flag.Duration("tick", 50*time.Millisecond, "tick interval")
		timeout     = flag.Duration("timeout", 10*time.Minute, "overall build timeout")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bakectl] ", log.LstdFlags|log.Lmicroseconds)

	world, err := scene.Load(*scenePath)
	if err != nil {
		logger.Fatalf("load scene: %v", err)
	}

	opts := lighting.DefaultOptions()
	if *profilePath != "" {
		p, err := profile.Load(*profilePath)
		if err != nil {
			logger.Fatalf("load profile: %v", err)
		}
		if opts, err = p.Options(); err != nil {
			logger.Fatalf("profile options: %v", err)
		}
	}
	if *quality != "" {
		q, err := lighting.ParseQuality(*quality)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		opts.Quality = q
	}

	dial := func(ctx context.Context) (bakejob.Service, error) {
		return bakejob.DialService(ctx, *serverURL, logger)
	}
	mgr := lighting.NewManager(dial, lighting.AlwaysApply{}, lighting.LogNotifier{Log: logger}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := mgr.StartBuild(ctx, world, opts); err != nil {
		logger.Fatalf("start build: %v", err)
	}
	for mgr.IsRunning() {
		if ctx.Err() != nil {
			mgr.CancelBuild()
		}
		mgr.Tick(ctx)
		time.Sleep(*tick)
	}

	failed := false
	for _, e := range mgr.LastResults() {
		logger.Printf("%s: %s", e.Level, e.Text)
		if e.Level == "error" {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
