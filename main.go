package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"github.com/itizir/emotepoll/auth"
	"github.com/itizir/emotepoll/config"
	"github.com/itizir/emotepoll/dispatch"
	"github.com/itizir/emotepoll/logging"
	"github.com/itizir/emotepoll/metrics"
	"github.com/itizir/emotepoll/registry"
	"github.com/itizir/emotepoll/store"
	"github.com/itizir/emotepoll/tally"
)

var skipResync = flag.Bool("skip-resync", false, "do not reconcile stored tallies with the reactions on the platform at startup")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := cfg.BotToken
	if cfg.UseSecretManager() {
		if token, err = fetchToken(ctx, cfg.GoogleCloudProject, cfg.TokenSecretName); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	st := store.New(db)
	if err := st.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	reg := registry.New()
	saved, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := reg.Restore(saved); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	logger.Info("registry restored", "candidates", reg.Len())

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	// handlers only enqueue; ordering is kept by the dispatcher
	s.SyncEvents = true
	s.ShouldRetryOnRateLimit = true

	me, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("resolve bot user: %w", err)
	}

	platform := &discord{s: s, symbol: cfg.VoteSymbol, logger: logger}
	clock := clockwork.NewRealClock()
	rec := tally.NewReconciler(reg, cfg.VoteSymbol, me.ID, clock, logger)
	authz := auth.New(cfg.AdminRoleIDs, cfg.AdminUserIDs, platform, logger)
	d := dispatch.New(reg, authz, rec, platform, clock, logger, dispatch.Options{
		Prefix:         cfg.CommandPrefix,
		VoteChannelID:  cfg.VoteChannelID,
		MaxSubmissions: cfg.MaxSubmissions,
		MaxImageBytes:  cfg.MaxImageBytes,
		MinImageSide:   cfg.MinImageSide,
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
	})

	if !*skipResync && reg.Len() > 0 {
		if _, err := rec.Resync(ctx, platform, cfg.Workers); err != nil {
			logger.Warn("resync aborted", "error", err)
		}
	}
	metrics.Candidates.Set(float64(reg.Len()))

	flusher := store.NewFlusher(st, reg, clock, cfg.FlushInterval, logger)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		d.Run(ctx)
	}()
	// the final flush must see everything the dispatcher drained
	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		flusher.Run(flushCtx)
	}()
	defer func() {
		<-dispatched
		stopFlush()
		<-flushed
	}()

	addHandlers(s, d)
	if err := s.Open(); err != nil {
		stop()
		return err
	}

	srv := newServer(cfg.Port, logger)
	go srv.listen()

	logger.Info("bot connected and ready", "user", me.Username, "prefix", cfg.CommandPrefix)
	<-ctx.Done()
	logger.Info("shutting down")

	if err := s.Close(); err != nil {
		logger.Warn("closing gateway", "error", err)
	}
	srv.shutdown()
	return nil
}
