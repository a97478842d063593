package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/skirmishmeter/meter/internal/aggregator/dispatch"
	"github.com/skirmishmeter/meter/internal/aggregator/encounter"
	"github.com/skirmishmeter/meter/internal/aggregator/entitytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/idtracker"
	"github.com/skirmishmeter/meter/internal/aggregator/orchestrator"
	"github.com/skirmishmeter/meter/internal/aggregator/partytracker"
	"github.com/skirmishmeter/meter/internal/aggregator/statictable"
	"github.com/skirmishmeter/meter/internal/aggregator/statustracker"
	"github.com/skirmishmeter/meter/internal/capture"
	"github.com/skirmishmeter/meter/internal/config"
	"github.com/skirmishmeter/meter/internal/decrypt"
	"github.com/skirmishmeter/meter/internal/events"
	"github.com/skirmishmeter/meter/internal/persistence"
	"github.com/skirmishmeter/meter/internal/statsapi"
)

// Version is stamped into every persisted encounter row; overridden at
// build time with -ldflags "-X main.Version=...".
var Version = "dev"

const DefaultConfigPath = "config/meterd.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := DefaultConfigPath
	if p := os.Getenv("METERD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	slog.Info("meterd starting", "log_level", cfg.LogLevel, "version", Version)

	statics, err := statictable.Load()
	if err != nil {
		return fmt.Errorf("loading static tables: %w", err)
	}
	slog.Info("static tables loaded", "npcs", len(statics.Npcs), "skills", len(statics.Skills))

	persister, err := persistence.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer persister.Close()

	if err := persistence.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	wsEmitter, wsHandler := events.NewWSEmitter(cfg.EventsServer.AllowOrigins)
	emitters := events.Multi{wsEmitter}
	if cfg.EventsServer.RedisAddr != "" {
		redisEmitter := events.NewRedisEmitter(cfg.EventsServer.RedisAddr, "meter:events")
		defer redisEmitter.Close()
		emitters = append(emitters, redisEmitter)
		slog.Info("redis fanout enabled", "addr", cfg.EventsServer.RedisAddr)
	}

	var statsClient encounter.StatsClient
	if cfg.StatsAPIBaseURL != "" {
		statsClient = statsapi.New(cfg.StatsAPIBaseURL)
		slog.Info("stats api client wired", "base_url", cfg.StatsAPIBaseURL)
	}

	ids := idtracker.New()
	parties := partytracker.New(ids)
	statuses := statustracker.New()
	entities := entitytracker.New(statics, ids, parties, statuses)
	trackers := dispatch.Trackers{Entities: entities, Statuses: statuses, IDs: ids, Parties: parties}

	localPlayers, err := config.LoadLocalPlayers(cfg.LocalPlayersFile)
	if err != nil {
		return fmt.Errorf("loading local players cache: %w", err)
	}
	localInfo := make(entitytracker.LocalPlayers, len(localPlayers))
	for id, rec := range localPlayers {
		localInfo[idtracker.CharacterID(id)] = entitytracker.LocalPlayerInfo{Name: rec.Name, Count: rec.Count}
	}

	state := encounter.New(statics, persister, emitters, statsClient, noTimeSync{}, Version)
	state.Encounter.BossOnlyDamage = cfg.BossOnlyDamage
	state.Region = cfg.Region

	decryptor, err := buildDecryptor(cfg)
	if err != nil {
		return fmt.Errorf("building damage decryptor: %w", err)
	}

	d := dispatch.New(trackers, state, decryptor, dispatch.ParserOptions{
		MinBossHP:                  cfg.MinBossHP,
		CaptureDamagePacketTimeout: time.Duration(cfg.CaptureDamagePacketTimeoutMs) * time.Millisecond,
		LocalPlayers:               localInfo,
	})

	source, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("building capture source: %w", err)
	}

	flags := &orchestrator.Flags{}
	flags.SetBossOnlyDamage(cfg.BossOnlyDamage)

	lowPerfMs := cfg.UITickMs
	if lowPerfMs < 1500 {
		lowPerfMs = 1500
	}
	orch := orchestrator.New(trackers, state, d, source, emitters, flags, orchestrator.Options{
		UITick:               time.Duration(cfg.UITickMs) * time.Millisecond,
		UITickLowPerformance: time.Duration(lowPerfMs) * time.Millisecond,
		PartyTick:            time.Duration(cfg.PartyTickMs) * time.Millisecond,
		LowPerformance:       cfg.LowPerformanceMode,
		SaveTimeout:          30 * time.Second,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting orchestrator loop",
			"ui_tick_ms", cfg.UITickMs, "party_tick_ms", cfg.PartyTickMs, "low_performance", cfg.LowPerformanceMode)
		if err := orch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("orchestrator loop: %w", err)
		}
		return nil
	})

	router := chi.NewRouter()
	router.Mount("/", wsHandler)
	router.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.EventsServer.BindAddress, cfg.EventsServer.Port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	g.Go(func() error {
		slog.Info("starting events http server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("events http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down events http server: %w", err)
		}

		if cid := entities.LocalCharacterID(); cid != 0 {
			rec := localPlayers[uint64(cid)]
			rec.Count++
			if local, ok := entities.GetSourceEntity(entities.LocalEntityID()); ok {
				rec.Name = local.Name
			}
			localPlayers[uint64(cid)] = rec
			if err := config.SaveLocalPlayers(cfg.LocalPlayersFile, localPlayers); err != nil {
				slog.Warn("saving local players cache", "err", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// buildDecryptor selects the keyed decryptor when a key is configured,
// otherwise the pass-through stub — the real key-exchange-driven
// decryption is vendor-proprietary and out of this repo's scope.
func buildDecryptor(cfg config.Config) (decrypt.Decryptor, error) {
	if cfg.DecryptKeyHex == "" {
		return decrypt.NoopDecryptor{}, nil
	}
	key, err := hex.DecodeString(cfg.DecryptKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding decrypt_key_hex: %w", err)
	}
	return decrypt.NewBlowfishKeyedDecryptor(key)
}

// buildSource returns a saved-capture replay when one is configured, or
// an Idle source that simply waits for shutdown — wiring a live feed is
// out of this repo's scope; see internal/capture's package doc.
func buildSource(cfg config.Config) (capture.Source, error) {
	if cfg.ReplayFile == "" {
		slog.Warn("no replay_file configured, orchestrator loop will idle until shutdown")
		return capture.NewIdle(), nil
	}
	packets, err := capture.LoadReplayFile(cfg.ReplayFile)
	if err != nil {
		return nil, fmt.Errorf("loading replay file: %w", err)
	}
	slog.Info("replaying saved capture", "file", cfg.ReplayFile, "packets", len(packets))
	return capture.NewReplay(packets), nil
}

// noTimeSync satisfies encounter.TimeSync when no NTP-style correction
// source is configured; fight_start is left uncorrected.
type noTimeSync struct{}

func (noTimeSync) SyncMs() (int64, bool) { return 0, false }

// parseLogLevel converts a string log level to slog.Level, defaulting
// to Info for anything unrecognized.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
