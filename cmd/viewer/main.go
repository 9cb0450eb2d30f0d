// =============================================================================
// DARK FOREST - VIEWER
// =============================================================================
// Standalone process that follows a running survey server over the local
// feed socket:
// - Logs a one-line summary of the survey every few seconds
// - Optionally renders the latest frame to a minimap PNG on disk
//
// USAGE:
//   1. Start the server first: go run ./cmd/server
//   2. Then start this viewer: go run ./cmd/viewer
// =============================================================================
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dark-forest/internal/feed"
	"dark-forest/internal/minimap"
	"dark-forest/internal/sim"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("🔭 ================================")
	log.Println("🔭  DARK FOREST - VIEWER")
	log.Println("🔭 ================================")

	socketPath := getEnvWithDefault("FEED_SOCKET", feed.DefaultSocketPath)
	minimapPath := os.Getenv("VIEWER_MINIMAP")
	minimapSize := getEnvInt("MINIMAP_SIZE", minimap.DefaultOptions().Size)
	interval := time.Duration(getEnvInt("VIEWER_INTERVAL_SEC", 5)) * time.Second

	log.Printf("📡 Feed: %s", feed.GetPlatformAddress(socketPath))
	if minimapPath != "" {
		log.Printf("🗺️ Minimap: %s (%dpx)", minimapPath, minimapSize)
	}

	subscriber := feed.NewSubscriber(socketPath)
	subscriber.OnConnect(func() {
		log.Println("✅ Connected to survey server")
	})
	subscriber.OnDisconnect(func() {
		log.Println("🔌 Disconnected from survey server, retrying...")
	})
	subscriber.OnHello(func(h *feed.HelloMessage) {
		log.Printf("🌌 Run: seed %d, capacity %d stars / %d civs, %.0f Hz",
			h.Seed, h.Params.MaxStars, h.Params.MaxCivs, h.Params.SurveyTickHz)
	})

	if err := subscriber.Start(); err != nil {
		log.Fatalf("❌ Failed to start subscriber: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var lastSeq uint64
	for {
		select {
		case <-quit:
			log.Println("🛑 Shutting down viewer...")
			subscriber.Stop()
			received, reconnects, errs := subscriber.GetStats()
			log.Printf("📊 Frames received: %d, reconnects: %d, errors: %d", received, reconnects, errs)
			return

		case <-ticker.C:
			frame := subscriber.GetLatestFrame()
			if frame == nil || frame.Sequence == lastSeq {
				continue
			}
			lastSeq = frame.Sequence

			s := frame.Snapshot
			log.Printf("🌌 step %d t=%.1fs r=%.2f | stars %d | civs %d/%d alive | kills %d (+%d) | reveals %d",
				s.Step, s.Time, s.Radius, s.Stars, s.Alive, s.TotalCivs, s.TotalKills, s.KillsThisStep, s.RevealsS)

			if minimapPath != "" {
				if err := writeMinimap(minimapPath, frame, minimapSize); err != nil {
					log.Printf("⚠️ Minimap: %v", err)
				}
			}
		}
	}
}

// writeMinimap renders the living civilizations of a frame to path
func writeMinimap(path string, frame *feed.FrameMessage, size int) error {
	points := make([]sim.MapPoint, 0, len(frame.Civs))
	for _, c := range frame.Civs {
		if !c.Alive {
			continue
		}
		points = append(points, sim.MapPoint{Index: int(c.Index), X: c.X, Z: c.Z, Strat: c.Strat})
	}

	opts := minimap.DefaultOptions()
	opts.Size = size

	// Write then rename so readers never see a partial image
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := minimap.EncodePNG(f, minimap.Render(points, frame.Snapshot.Radius, opts)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}
