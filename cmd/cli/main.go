package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/himanishpuri/KaraokeCore/internal/audio"
	"github.com/himanishpuri/KaraokeCore/internal/judgement"
	"github.com/himanishpuri/KaraokeCore/internal/library"
	"github.com/himanishpuri/KaraokeCore/internal/pitch"
	"github.com/himanishpuri/KaraokeCore/internal/playback"
	"github.com/himanishpuri/KaraokeCore/internal/session"
	"github.com/himanishpuri/KaraokeCore/pkg/logger"
)

// Global flags
var (
	dbPath        string
	sampleRate    int
	bufferSize    int
	silenceRMS    float64
	trimThreshold float64
	logFile       string
)

func registerFlags() {
	rate, err := strconv.Atoi(getEnvOrDefault("KARAOKE_SAMPLE_RATE", strconv.Itoa(pitch.DefaultSampleRate)))
	if err != nil {
		rate = pitch.DefaultSampleRate
	}

	flag.StringVar(&dbPath, "db", getEnvOrDefault("KARAOKE_DB_PATH", library.DefaultDBFile), "Path to the SQLite song catalog")
	flag.IntVar(&sampleRate, "rate", rate, "Capture sample rate")
	flag.IntVar(&bufferSize, "buffer", pitch.DefaultBufferSize, "Samples per analyzed capture buffer")
	flag.Float64Var(&silenceRMS, "gate", pitch.SilenceRMS, "RMS level below which input counts as silence")
	flag.Float64Var(&trimThreshold, "trim", pitch.TrimThreshold, "Amplitude used to trim the edges of each buffer")
	flag.StringVar(&logFile, "log-file", getEnvOrDefault("LOG_FILE", ""), "Also write logs to this rotated file")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	registerFlags()
	flag.Usage = printUsage
	flag.Parse()

	if logFile != "" {
		os.Setenv("LOG_FILE", logFile)
	}
	log := logger.GetLogger()
	defer log.Close()

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Infof("Executing command: %s", command)

	switch command {
	case "import":
		handleImport(args)
	case "list":
		handleList(args)
	case "detect":
		handleDetect(args)
	case "play":
		handlePlay(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 _  __                     _         ____
| |/ /__ _ _ __ __ _  ___ | | _____ / ___|___  _ __ ___
| ' // _' | '__/ _' |/ _ \| |/ / _ \ |   / _ \| '__/ _ \
| . \ (_| | | | (_| | (_) |   <  __/ |__| (_) | | |  __/
|_|\_\__,_|_|  \__,_|\___/|_|\_\___|\____\___/|_|  \___|

           Karaoke Session Engine
`
	fmt.Println(banner)
}

// newListener builds the capture listener from the global flags.
func newListener() *pitch.Listener {
	if !pitch.SupportedSampleRate(sampleRate) {
		fmt.Printf("⚠️  %d Hz is below %d Hz, high notes may be read an octave low\n", sampleRate, pitch.MinSampleRate)
		logger.GetLogger().Warnf("Capture rate %d Hz is below the supported minimum %d Hz", sampleRate, pitch.MinSampleRate)
	}
	detector := pitch.NewDetector(sampleRate,
		pitch.WithSilenceRMS(silenceRMS),
		pitch.WithTrimThreshold(trimThreshold),
	)
	return pitch.NewListener(detector, pitch.WithBufferSize(bufferSize))
}

func openCatalog() *library.Catalog {
	log := logger.GetLogger()

	catalog, err := library.OpenCatalogWithPath(dbPath)
	if err != nil {
		fmt.Printf("❌ Failed to open catalog: %v\n", err)
		log.Errorf("Catalog initialization failed: %v", err)
		os.Exit(1)
	}
	return catalog
}

func handleImport(args []string) {
	log := logger.GetLogger()

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	watch := importCmd.Bool("watch", false, "Keep running and re-import when song folders change")

	// the folder comes first, flags after it
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Println("Usage: karaoke import <songs_dir> [--watch]")
		os.Exit(1)
	}
	root := args[0]
	importCmd.Parse(args[1:])

	if *watch {
		watchLibrary(root)
		return
	}

	fmt.Printf("🔍 Scanning %s for song folders...\n", root)
	songs, scanErr := library.ScanDir(root)
	if scanErr != nil {
		// broken folders are reported but do not stop the import
		fmt.Printf("⚠️  Some song folders were skipped:\n%v\n", scanErr)
		log.Warnf("Scan of %s was incomplete: %v", root, scanErr)
	}
	if len(songs) == 0 {
		fmt.Println("\n📭 No songs found")
		return
	}

	catalog := openCatalog()
	defer catalog.Close()

	n, err := catalog.Import(songs)
	if err != nil {
		fmt.Printf("\n❌ Failed to import songs: %v\n", err)
		log.Errorf("Import failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Imported %d song(s) into %s\n", n, dbPath)
	log.Infof("Imported %d songs from %s", n, root)
}

func watchLibrary(root string) {
	log := logger.GetLogger()

	catalog := openCatalog()
	defer catalog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("👀 Watching %s, press Ctrl+C to stop\n", root)
	err := library.Watch(ctx, root, catalog, library.WithImportHook(func(n int, err error) {
		if err != nil {
			fmt.Printf("⚠️  Import incomplete: %v\n", err)
			return
		}
		fmt.Printf("✅ %s: %d song(s) in sync\n", time.Now().Format("15:04:05"), n)
	}))
	if err != nil {
		fmt.Printf("❌ Failed to watch %s: %v\n", root, err)
		log.Errorf("Watch failed: %v", err)
		os.Exit(1)
	}
	fmt.Println("\n👋 Stopped")
}

func handleList(args []string) {
	log := logger.GetLogger()

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	query := listCmd.String("q", "", "Only songs whose title, transliterated title, artist or number contains this text")
	listCmd.Parse(args)

	catalog := openCatalog()
	defer catalog.Close()

	entries, err := catalog.SearchEntries(*query)
	if err != nil {
		fmt.Printf("❌ Failed to list songs: %v\n", err)
		log.Errorf("Listing catalog failed: %v", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		if *query != "" {
			fmt.Printf("\n📭 No songs match %q\n", *query)
		} else {
			fmt.Println("\n📭 No songs in catalog")
		}
		return
	}

	fmt.Printf("\n📚 Found %d song(s):\n\n", len(entries))
	for _, e := range entries {
		s := e.Song
		fmt.Printf("%s. \"%s\" by %s\n", s.Number, s.Title, s.Artist)
		if info, err := os.Stat(s.SongPath); err == nil {
			fmt.Printf("   Audio:    %s (%s)\n", s.SongPath, humanize.Bytes(uint64(info.Size())))
		} else {
			fmt.Printf("   Audio:    %s (missing)\n", s.SongPath)
		}
		if s.LyricPath == "" {
			fmt.Println("   Lyrics:   none")
		}
		if s.JudgementPath == "" {
			fmt.Println("   Scoring:  none")
		}
		fmt.Printf("   Imported: %s\n", humanize.Time(e.ImportedAt))
		fmt.Println()
	}
	log.Infof("Listed %d songs", len(entries))
}

func handleDetect(args []string) {
	log := logger.GetLogger()

	detectCmd := flag.NewFlagSet("detect", flag.ExitOnError)
	wavPath := detectCmd.String("wav", "", "Analyze an audio file instead of the microphone (non-WAV input needs ffmpeg)")
	seconds := detectCmd.Float64("seconds", 0, "Stop after this many seconds (0 runs until interrupted)")
	detectCmd.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var device audio.Device = &audio.MicDevice{}
	if *wavPath != "" {
		path := *wavPath
		if audio.NeedsConversion(path, sampleRate) {
			fmt.Printf("🔧 Converting %s to %d Hz mono WAV...\n", path, sampleRate)
			tmpDir, err := os.MkdirTemp("", "karaoke-detect-")
			if err != nil {
				fmt.Printf("❌ Failed to create temp dir: %v\n", err)
				os.Exit(1)
			}
			defer os.RemoveAll(tmpDir)

			path, err = audio.ConvertToCaptureWAV(ctx, *wavPath, tmpDir, sampleRate)
			if err != nil {
				fmt.Printf("❌ Failed to convert audio: %v\n", err)
				log.Errorf("Conversion of %s failed: %v", *wavPath, err)
				os.Exit(1)
			}
		}
		device = &audio.FileDevice{Path: path, Realtime: true}
	}

	if *seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*seconds*float64(time.Second)))
		defer cancel()
	}

	listener := newListener()
	if err := listener.Start(device); err != nil {
		fmt.Printf("❌ Failed to start capture: %v\n", err)
		log.Errorf("Capture failed: %v", err)
		os.Exit(1)
	}
	defer listener.Stop()

	fmt.Println("🎤 Listening, press Ctrl+C to stop")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastNote, lastCents := -1, 0
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n👋 Stopped")
			return
		case <-ticker.C:
			if err := listener.Err(); err != nil {
				fmt.Printf("\n❌ Capture stopped: %v\n", err)
				log.Errorf("Capture failed: %v", err)
				return
			}
			sample := listener.Latest()
			if !sample.Detected() {
				continue
			}
			if sample.Note == lastNote && sample.Cents == lastCents {
				continue
			}
			lastNote, lastCents = sample.Note, sample.Cents
			fmt.Printf("%7.2f Hz  %-4s %+3d cents  vol %3d%%\n",
				sample.Frequency, pitch.NoteLabel(sample.Note), sample.Cents, sample.Volume)
		}
	}
}

func handlePlay(args []string) {
	log := logger.GetLogger()

	playCmd := flag.NewFlagSet("play", flag.ExitOnError)
	useMic := playCmd.Bool("mic", true, "Score singing from the default microphone")
	micDelay := playCmd.Float64("mic-delay", judgement.DefaultMicDelay, "Seconds of input latency tolerated when scoring")
	playCmd.Parse(args)

	catalog := openCatalog()
	defer catalog.Close()

	var device audio.Device
	if *useMic {
		device = &audio.MicDevice{}
	}

	player := playback.NewClockPlayer()
	listener := newListener()

	ctrl := session.NewController(catalog, player, device,
		session.WithPitchListener(listener),
		session.WithJudgementOptions(judgement.WithMicDelay(*micDelay)),
		session.WithDeviceErrorHandler(func(err error) {
			fmt.Printf("⚠️  Microphone unavailable, scoring disabled: %v\n", err)
		}),
	)

	for _, number := range playCmd.Args() {
		if err := ctrl.EnqueueNumber(number); err != nil {
			fmt.Printf("❌ Cannot queue %s: %v\n", number, err)
			log.Warnf("Enqueue failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Println("🎵 Keys: digits select, empty line queues, n next, s speed, p pause, q quit")
	go readKeys(ctrl, cancel)
	go printFrames(ctx, ctrl)

	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Session ended: %v", err)
	}
	fmt.Println("\n👋 Bye")
}

// readKeys maps each stdin line onto controller keys. An empty line is Enter.
func readKeys(ctrl *session.Controller, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			ctrl.HandleKey(session.KeyEnter)
			continue
		}
		for _, r := range line {
			switch {
			case r >= '0' && r <= '9':
				ctrl.HandleKey(session.DigitKey(int(r - '0')))
			case r == 'n':
				ctrl.HandleKey(session.KeyNext)
			case r == 's':
				ctrl.HandleKey(session.KeySpeed)
			case r == 'p':
				ctrl.HandleKey(session.KeyPause)
			case r == 'q':
				ctrl.HandleKey(session.KeyEscape)
				quit()
				return
			}
		}
	}
	quit()
}

func printFrames(ctx context.Context, ctrl *session.Controller) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if out := describe(ctrl.Render()); out != last {
				fmt.Print(out)
				last = out
			}
		}
	}
}

func describe(r session.RenderState) string {
	var b strings.Builder

	if r.Selector.Visible {
		title := "-"
		if r.Selector.Found {
			title = r.Selector.Title
		}
		fmt.Fprintf(&b, "🔢 %s  %s\n", r.Selector.Number, title)
	}
	if len(r.Queue) > 0 {
		fmt.Fprintf(&b, "📋 Queue: %s\n", strings.Join(r.Queue, ", "))
	}

	switch r.State {
	case session.Playing, session.Paused:
		b.WriteString(r.Meta)
		if r.State == session.Paused {
			b.WriteString(" [paused]")
		}
		if r.Fast {
			b.WriteString(" [x5]")
		}
		b.WriteString("\n")

		if r.Lyrics.TitleVisible {
			m := r.Lyrics.Meta
			fmt.Fprintf(&b, "   %s / %s\n", m.Title, m.Artist)
		}
		if r.Lyrics.CountdownVisible && r.Lyrics.CountdownText != "" {
			fmt.Fprintf(&b, "   %s\n", r.Lyrics.CountdownText)
		}
		if r.Lyrics.CooldownVisible {
			b.WriteString("   ♪ ♪ ♪\n")
		}
		for _, line := range []struct {
			mark string
			text string
			show bool
		}{
			{"▲", r.Lyrics.Top.Text, r.Lyrics.Top.Visible},
			{"▼", r.Lyrics.Bottom.Text, r.Lyrics.Bottom.Visible},
		} {
			if line.show {
				fmt.Fprintf(&b, "   %s %s\n", line.mark, line.text)
			}
		}
		if r.JudgementEnabled {
			fmt.Fprintf(&b, "   %s  score %d  %s\n", r.HitText(), r.Score, r.Note)
		}
	case session.Completed:
		if r.Scoreboard.Visible {
			fmt.Fprintf(&b, "🏁 Score %d: %s\n", r.Scoreboard.Score, r.Scoreboard.Comment)
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Println("KaraokeCore - karaoke session engine")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        Path to the song catalog (env: KARAOKE_DB_PATH, default: karaoke.sqlite3)")
	fmt.Println("  --rate <hz>        Capture sample rate, 22050 or higher (env: KARAOKE_SAMPLE_RATE, default: 44100)")
	fmt.Println("  --buffer <n>       Samples per pitch analysis buffer (default: 2048)")
	fmt.Println("  --gate <rms>       Silence gate for pitch detection (default: 0.01)")
	fmt.Println("  --trim <amp>       Edge trim amplitude for pitch detection (default: 0.2)")
	fmt.Println("  --log-file <path>  Also log to a rotated file (env: LOG_FILE)")
	fmt.Println("\nUsage:")
	fmt.Println("  karaoke [global-options] import <songs_dir> [--watch]")
	fmt.Println("  karaoke [global-options] list [--q <text>]")
	fmt.Println("  karaoke [global-options] detect [--wav <file>] [--seconds <n>]")
	fmt.Println("  karaoke [global-options] play [--mic=false] [--mic-delay <s>] [number...]")
	fmt.Println("\nExamples:")
	fmt.Println("  # Index every <dir>/*/config.json")
	fmt.Println("  karaoke import ./songs")
	fmt.Println()
	fmt.Println("  # Show the detected pitch of a recording")
	fmt.Println("  karaoke detect --wav take.wav")
	fmt.Println()
	fmt.Println("  # Queue two songs and sing along")
	fmt.Println("  karaoke play 000001 000042")
}
