package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/sdrtools/boombox/internal/art"
	"github.com/sdrtools/boombox/internal/bus"
	"github.com/sdrtools/boombox/internal/config"
	"github.com/sdrtools/boombox/internal/logging"
	"github.com/sdrtools/boombox/internal/pipeline"
	"github.com/sdrtools/boombox/internal/playlog"
	"github.com/sdrtools/boombox/internal/session"
	"github.com/sdrtools/boombox/internal/store"
)

func main() {
	var (
		configPath string
		freq       float64
		subchannel int
		analog     bool
		noFallback bool
		preset     int
		showStats  bool
		logLevel   string
	)

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Float64Var(&freq, "freq", 0, "frequency to tune in MHz")
	flag.IntVar(&subchannel, "subchannel", 0, "HD subchannel (0-3)")
	flag.BoolVar(&analog, "analog", false, "skip HD and tune wideband FM directly")
	flag.BoolVar(&noFallback, "no-fallback", false, "report no-signal instead of falling back to analog")
	flag.IntVar(&preset, "preset", -1, "tune a stored preset slot (0-3)")
	flag.BoolVar(&showStats, "stats", false, "print listening statistics and exit")
	flag.StringVar(&logLevel, "log-level", "", "override log level")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "boombox:", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if noFallback {
		cfg.Session.NoFallback = true
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.JSON)

	if showStats {
		if err := printStats(cfg); err != nil {
			log.Fatal().Err(err).Msg("reading stats")
		}
		return
	}

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("preparing data directories")
	}

	presets, err := store.NewPresetStore(cfg.Paths.PresetsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("opening preset store")
	}

	req, err := resolveTarget(presets, freq, subchannel, analog, preset)
	if err != nil {
		log.Fatal().Err(err).Msg("resolving tune target")
	}

	history, err := store.NewHistory(store.HistoryConfig{
		Path:    cfg.Paths.HistoryFile,
		MaxRows: cfg.Playlog.MaxRows,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("opening history database")
	}
	defer history.Close()

	eventBus := bus.New()
	defer eventBus.Close()

	var artCache *art.Cache
	if !cfg.Art.Disabled {
		artCache = art.NewCache(cfg.Paths.ArtDir, art.NewITunesFetcher(), art.Options{
			FetchDelay: cfg.Art.FetchDelay(),
			KeepCount:  cfg.Art.KeepCount,
			LotDir:     cfg.Paths.LotDir,
			OnResult: func(r art.Result) {
				eventBus.Publish(bus.ArtReady{
					Artist:      r.Artist,
					Title:       r.Title,
					Path:        r.Path,
					Placeholder: r.Placeholder,
				})
			},
		}, log)
	}

	var recorder *playlog.Recorder
	if !cfg.Playlog.Disabled {
		recorder = playlog.NewRecorder(history, playlog.Options{
			MetaDelay: cfg.Playlog.MetaDelay(),
			MinPlay:   cfg.Playlog.MinPlay(),
		}, log)
	}

	bins := pipeline.Binaries{
		Decoder:     cfg.Radio.DecoderBinary,
		Demodulator: cfg.Radio.DemodulatorBinary,
		Player:      cfg.Radio.PlayerBinary,
	}
	manager := pipeline.NewManager(bins, log)

	var gain *float64
	if cfg.Radio.Gain != 0 {
		gain = &cfg.Radio.Gain
	}
	controller := session.NewController(session.Deps{
		Manager:  session.WrapManager(manager),
		Bus:      eventBus,
		Art:      artCache,
		Recorder: recorder,
		Presets:  presets,
	}, session.Options{
		FallbackTimeout: cfg.Session.FallbackTimeout(),
		MetaQuiet:       cfg.Session.MetaQuiet(),
		AutoFallback:    !cfg.Session.NoFallback,
		Gain:            gain,
		PPM:             cfg.Radio.PPM,
		DeviceIndex:     cfg.Radio.DeviceIndex,
		LotDir:          cfg.Paths.LotDir,
	}, log)

	events, err := eventBus.Subscribe("main", 128)
	if err != nil {
		log.Fatal().Err(err).Msg("subscribing to event bus")
	}
	go logEvents(events, log)

	if err := controller.Tune(req); err != nil {
		log.Fatal().Err(err).Msg("tuning")
	}
	log.Info().Float64("freq_mhz", req.FrequencyMHz).Int("subchannel", req.Subchannel).
		Bool("analog_only", req.AnalogOnly).Msg("tuned")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := controller.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timed out")
	}
}

// resolveTarget builds the tune request from the flag surface: an
// explicit frequency, or a stored preset slot.
func resolveTarget(presets *store.PresetStore, freq float64, subchannel int, analog bool, slot int) (session.TuneRequest, error) {
	if slot >= 0 {
		p, err := presets.Get(slot)
		if err != nil {
			return session.TuneRequest{}, err
		}
		if p == nil {
			return session.TuneRequest{}, fmt.Errorf("preset slot %d is empty", slot)
		}
		return session.TuneRequest{FrequencyMHz: p.FrequencyMHz, Subchannel: p.Subchannel}, nil
	}
	if freq == 0 {
		return session.TuneRequest{}, fmt.Errorf("either --freq or --preset is required")
	}
	return session.TuneRequest{FrequencyMHz: freq, Subchannel: subchannel, AnalogOnly: analog}, nil
}

// logEvents renders bus traffic to the console. This is the headless
// stand-in for the UI surface.
func logEvents(events <-chan bus.Event, log zerolog.Logger) {
	for ev := range events {
		switch ev := ev.(type) {
		case bus.StateChanged:
			log.Info().Str("from", ev.From).Str("to", ev.To).Str("reason", ev.Reason).Msg("state")
		case bus.SyncState:
			log.Info().Bool("synced", ev.Synced).Str("mode", ev.Mode).Msg("sync")
		case bus.NowPlaying:
			log.Info().Str("station", ev.Station).Str("artist", ev.Song.Artist).
				Str("title", ev.Song.Title).Str("album", ev.Song.Album).Msg("now playing")
		case bus.StationUpdate:
			log.Info().Str("name", ev.Name).Str("slogan", ev.Slogan).Str("genre", ev.Genre).Msg("station")
		case bus.StationMessage:
			log.Info().Str("text", ev.Text).Msg("station message")
		case bus.SignalQuality:
			log.Debug().Float64("bitrate_kbps", ev.BitrateKbps).Msg("signal")
		case bus.ArtReady:
			log.Info().Str("artist", ev.Artist).Str("title", ev.Title).
				Str("path", ev.Path).Bool("placeholder", ev.Placeholder).Msg("art")
		case bus.DataAvailable:
			log.Debug().Str("kind", ev.Payload.Kind.String()).Str("file", ev.Payload.File).Msg("data payload")
		case bus.NoSignal:
			log.Warn().Float64("freq_mhz", ev.FrequencyMHz).Msg("no signal")
		case bus.SessionError:
			log.Error().Str("message", ev.Message).Msg("session error")
		}
	}
}

// printStats renders the listening history summary for --stats.
func printStats(cfg *config.Config) error {
	history, err := store.NewHistory(store.HistoryConfig{
		Path:    cfg.Paths.HistoryFile,
		MaxRows: cfg.Playlog.MaxRows,
	})
	if err != nil {
		return err
	}
	defer history.Close()

	s, err := history.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Plays: %d   Unique songs: %d   Unique artists: %d   Stations: %d\n\n",
		s.TotalPlays, s.UniqueSongs, s.UniqueArtists, s.Stations)

	printTop := func(title string, items []store.NameCount) {
		if len(items) == 0 {
			return
		}
		fmt.Println(title)
		for i, it := range items {
			fmt.Printf("  %2d. %-50s %d\n", i+1, it.Name, it.Count)
		}
		fmt.Println()
	}
	printTop("Top songs", s.TopSongs)
	printTop("Top artists", s.TopArtists)
	printTop("Top stations", s.TopStations)

	if len(s.Recent) > 0 {
		fmt.Println("Recent plays")
		for _, ev := range s.Recent {
			fmt.Printf("  %s  %s - %s (%s)\n",
				ev.PlayedAt.Local().Format("2006-01-02 15:04"), ev.Artist, ev.Title, ev.Station)
		}
	}
	return nil
}
