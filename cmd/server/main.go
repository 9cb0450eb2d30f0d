package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dark-forest/internal/api"
	"dark-forest/internal/config"
	"dark-forest/internal/feed"
	"dark-forest/internal/history"
	"dark-forest/internal/host"
	"dark-forest/internal/relay"
	"dark-forest/internal/sim"
)

// relayInterval throttles Redis publishes
const relayInterval = 250 * time.Millisecond

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🌌 ================================")
	log.Println("🌌  DARK FOREST - SURVEY SERVER")
	log.Println("🌌 ================================")

	appConfig := config.Load()
	simCfg := appConfig.Sim
	serverCfg := appConfig.Server
	limits := appConfig.Limits

	params, err := config.LoadParams(simCfg.ParamsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load params: %v", err)
	}
	if simCfg.ParamsFile != "" {
		log.Printf("📄 Params: %s", simCfg.ParamsFile)
	}
	log.Printf("🌌 Config: seed %d, %d TPS, capacity %d stars / %d civs",
		simCfg.Seed, simCfg.TickRate, params.MaxStars, params.MaxCivs)

	h, err := host.New(host.Config{
		Params:          params,
		Seed:            simCfg.Seed,
		TickRate:        simCfg.TickRate,
		StepsPerSecond:  simCfg.StepsPerSecond,
		MaxStepsPerTick: simCfg.MaxStepsPerTick,
		Limits: host.Limits{
			MaxFrameCivs:  limits.MaxFrameCivs,
			MaxFrameStars: limits.MaxFrameStars,
		},
		EventLogPath: simCfg.EventLogPath,
	})
	if err != nil {
		log.Fatalf("❌ Failed to create host: %v", err)
	}
	if simCfg.EventLogPath != "" {
		log.Printf("📝 Event log: %s", simCfg.EventLogPath)
	}

	// Run archive
	var store *history.Store
	var recorder *history.Recorder
	if path := appConfig.History.Path; path != "" {
		store, err = history.Open(path)
		if err != nil {
			log.Printf("⚠️ History disabled: %v", err)
		} else {
			recorder = history.NewRecorder(store, appConfig.History.SampleEvery)
			log.Printf("📼 History: %s (every %d steps)", path, appConfig.History.SampleEvery)
		}
	}

	// Redis fan-out
	rel, err := relay.Connect(relay.Config{URL: appConfig.Redis.URL, Channel: appConfig.Redis.Channel})
	if err != nil {
		log.Printf("⚠️ Redis relay disabled: %v", err)
		rel = nil
	}

	// Local viewer feed
	var publisher *feed.Publisher
	if appConfig.Feed.Enabled {
		publisher = feed.NewPublisher(appConfig.Feed.SocketPath)
		if err := publisher.Start(); err != nil {
			log.Printf("⚠️ Feed disabled: %v", err)
			publisher = nil
		} else {
			publisher.StartPump(h, appConfig.Feed.Hz)
		}
	}

	var relayMu sync.Mutex
	var lastRelay time.Time

	h.SetCallbacks(host.Callbacks{
		OnStep: func(rep host.StepReport) {
			api.RecordSteps(rep)
			if recorder != nil {
				recorder.Observe(rep)
			}
			if rel != nil {
				relayMu.Lock()
				due := time.Since(lastRelay) >= relayInterval
				if due {
					lastRelay = time.Now()
				}
				relayMu.Unlock()
				if due {
					ctx, cancel := context.WithTimeout(context.Background(), time.Second)
					if err := rel.Publish(ctx, h.Seed(), rep.Snapshot); err != nil {
						log.Printf("⚠️ Relay: %v", err)
					}
					cancel()
				}
			}
		},
		OnRun: func(run uint64, seed uint32, p sim.Params) {
			if recorder != nil {
				recorder.BeginRun(run, seed, p)
			}
			if publisher != nil {
				publisher.SetHello(feed.HelloMessage{
					Seed:          seed,
					Params:        p,
					MaxFrameCivs:  limits.MaxFrameCivs,
					MaxFrameStars: limits.MaxFrameStars,
				})
			}
		},
	})

	// Start debug server
	obs := appConfig.Observability
	if err := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       obs.Enabled,
		ListenAddr:    obs.ListenAddr,
		BasicAuthUser: obs.BasicAuthUser,
		BasicAuthPass: obs.BasicAuthPass,
	}); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	if serverCfg.AdminToken != "" {
		log.Println("🔐 Admin token required for POST /api/*")
	} else {
		log.Println("⚠️ ADMIN_TOKEN not set - commands are open to anyone who can reach the API")
	}

	routerCfg := api.RouterConfig{
		Host:        h,
		CORSOrigins: serverCfg.CORSOrigins,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: serverCfg.RequestsPerSecond,
			Burst:             serverCfg.Burst,
			CleanupInterval:   api.DefaultRateLimitConfig.CleanupInterval,
			TrustProxy:        serverCfg.TrustProxy,
		},
		Limits: api.RequestLimits{
			MaxStepsPerRequest: serverCfg.MaxStepsPerRequest,
			MaxSpawnPerRequest: serverCfg.MaxSpawnPerRequest,
			MaxParamsStars:     serverCfg.MaxParamsStars,
			MaxParamsCivs:      serverCfg.MaxParamsCivs,
			MaxMapPoints:       limits.MaxMapPoints,
			MinimapSize:        limits.MinimapSize,
		},
		AdminToken: serverCfg.AdminToken,
	}
	if store != nil {
		routerCfg.History = store
	}
	server := api.NewServer(routerCfg)

	if err := h.Start(); err != nil {
		log.Fatalf("❌ Failed to start host: %v", err)
	}

	// Event log gauges
	statsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := h.GetEventLogStats()
				total, _ := stats["total"].(uint64)
				dropped, _ := stats["dropped"].(uint64)
				api.UpdateEventLogStats(total, dropped)
			case <-statsDone:
				return
			}
		}
	}()

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	close(statsDone)
	h.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	if store != nil {
		store.Close()
	}
	rel.Close()
	log.Println("👋 Goodbye!")
}
