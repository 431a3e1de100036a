package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/KaraokeCore/internal/audio"
	"github.com/himanishpuri/KaraokeCore/internal/library"
	"github.com/himanishpuri/KaraokeCore/internal/pitch"
	"github.com/himanishpuri/KaraokeCore/internal/playback"
	"github.com/himanishpuri/KaraokeCore/internal/session"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

var (
	port           int
	dbPath         string
	sampleRate     int
	bufferSize     int
	silenceRMS     float64
	trimThreshold  float64
	useMic         bool
	songsDir       string
	allowedOrigins string
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("KARAOKE_DB_PATH", library.DefaultDBFile), "Path to the SQLite song catalog")
	flag.IntVar(&sampleRate, "rate", pitch.DefaultSampleRate, "Capture sample rate, 22050 Hz or higher")
	flag.IntVar(&bufferSize, "buffer", pitch.DefaultBufferSize, "Samples per analyzed capture buffer")
	flag.Float64Var(&silenceRMS, "gate", pitch.SilenceRMS, "RMS level below which input counts as silence")
	flag.Float64Var(&trimThreshold, "trim", pitch.TrimThreshold, "Amplitude used to trim the edges of each buffer")
	flag.BoolVar(&useMic, "mic", true, "Score singing from the default microphone")
	flag.StringVar(&songsDir, "songs", getEnvOrDefault("KARAOKE_SONGS_DIR", ""), "Song folder to import and keep watching")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

// run returns once the HTTP server, the session loop and the folder watcher
// have all stopped, so deferred cleanup always runs before the process exits.
func run() int {
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()
	defer log.Close()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	if !pitch.SupportedSampleRate(sampleRate) {
		log.Warnf("Capture rate %d Hz is below %d Hz, high notes may be read an octave low", sampleRate, pitch.MinSampleRate)
	}

	catalog, err := library.OpenCatalogWithPath(dbPath)
	if err != nil {
		log.Errorf("Failed to open catalog: %v", err)
		return 1
	}
	defer catalog.Close()

	var device audio.Device
	if useMic {
		device = &audio.MicDevice{}
	}

	detector := pitch.NewDetector(sampleRate,
		pitch.WithSilenceRMS(silenceRMS),
		pitch.WithTrimThreshold(trimThreshold),
	)
	ctrl := session.NewController(catalog, playback.NewClockPlayer(), device,
		session.WithPitchListener(pitch.NewListener(detector, pitch.WithBufferSize(bufferSize))),
		session.WithDeviceErrorHandler(func(err error) {
			log.Warnf("Microphone unavailable, scoring disabled: %v", err)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(catalog, ctrl, &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		SampleRate:     sampleRate,
		AllowedOrigins: origins,
	})

	loops := []func(context.Context){
		func(ctx context.Context) { ctrl.Run(ctx) },
	}
	if songsDir != "" {
		loops = append(loops, func(ctx context.Context) {
			if err := library.Watch(ctx, songsDir, catalog); err != nil {
				log.Errorf("Watching %s failed: %v", songsDir, err)
			}
		})
	}

	err = runUntilDone(ctx, stop, server.Start, loops...)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Server failed: %v", err)
		return 1
	}
	log.Infof("Shut down cleanly")
	return 0
}

// runUntilDone runs each loop in its own goroutine and serve in the caller.
// When serve returns, for a signal or a failed listen, the shared context is
// cancelled and every loop is waited for before serve's error is returned.
func runUntilDone(ctx context.Context, stop context.CancelFunc, serve func(context.Context) error, loops ...func(context.Context)) error {
	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}

	err := serve(ctx)
	stop()
	wg.Wait()
	return err
}
