package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jensholdgaard/cricket-auction/internal/api"
	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/bot"
	"github.com/jensholdgaard/cricket-auction/internal/bot/commands"
	"github.com/jensholdgaard/cricket-auction/internal/cache"
	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/health"
	"github.com/jensholdgaard/cricket-auction/internal/httpapi"
	"github.com/jensholdgaard/cricket-auction/internal/leader"
	"github.com/jensholdgaard/cricket-auction/internal/ledger"
	"github.com/jensholdgaard/cricket-auction/internal/notify"
	"github.com/jensholdgaard/cricket-auction/internal/store"
	"github.com/jensholdgaard/cricket-auction/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/cricket-auction/internal/store/memory"
	_ "github.com/jensholdgaard/cricket-auction/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, attribute.String("auction.tournament_id", cfg.TournamentID))
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Close()

	logger.InfoContext(ctx, "store opened", slog.String("driver", cfg.Database.Driver))

	client, err := api.NewClient(cfg.API, nil, tp.TracerProvider)
	if err != nil {
		return fmt.Errorf("creating api client: %w", err)
	}
	sales := ledger.NewManager(repos.Sales, repos.Events, logger, tp.TracerProvider, clk)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// Redis is optional. Without it only the leader can answer state
	// requests.
	var (
		sinks     []auction.Sink
		publisher *cache.Publisher
	)
	if cfg.Redis.Addr != "" {
		rdb, redisErr := cache.Connect(ctx, cfg.Redis)
		if redisErr != nil {
			return fmt.Errorf("connecting to redis: %w", redisErr)
		}
		defer rdb.Close()

		publisher = cache.NewPublisher(rdb, cfg.TournamentID, cfg.Redis.TTL, logger, tp.TracerProvider)
		sinks = append(sinks, publisher)
		healthHandler.Add(health.Checker{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
	}

	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}

	// The bridge and the Discord console refer to each other: the bot
	// reads the bridge's mirror and the bridge posts through the bot's
	// session. Build the bridge over a notifier slice the bot joins later.
	bridge, err := auction.NewBridge(cfg.TournamentID,
		auction.SocketDialer(cfg.Socket.URL),
		client,
		repos.Events,
		auction.Options{
			MaxAttempts:  cfg.Socket.MaxAttempts,
			InitialDelay: cfg.Socket.InitialDelay,
			MaxDelay:     cfg.Socket.MaxDelay,
			Ledger:       sales,
			Sinks:        sinks,
			Notifier:     &notifiers,
		},
		logger, tp.TracerProvider, tp.MeterProvider, clk,
	)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	var discordBot *bot.Bot
	if cfg.Discord.Enabled {
		handlers := commands.NewHandlers(cfg.TournamentID, client, bridge, logger, tp.TracerProvider)
		discordBot, err = bot.New(cfg.Discord, handlers, logger)
		if err != nil {
			return fmt.Errorf("creating bot: %w", err)
		}
		if n := discordBot.Notifier(); n != nil {
			notifiers = append(notifiers, n)
		}
	}

	elector := leader.New(cfg.LeaderElection, logger)

	state := func(ctx context.Context) (auction.State, error) {
		if elector.IsLeader() || publisher == nil {
			return bridge.Snapshot(), nil
		}
		return publisher.Latest(ctx)
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: httpapi.NewRouter(httpapi.Deps{
			TournamentID: cfg.TournamentID,
			Health:       healthHandler,
			State:        state,
			Tournaments:  client,
			Sales:        sales,
			Logger:       logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// Followers serve cached state, so every replica is ready once the
	// store is reachable.
	healthHandler.SetReady(true)

	// lead is the work only one replica may do: hold the socket, record
	// outcomes and run the Discord console.
	gaveUp := make(chan error, 1)
	lead := func(ctx context.Context) {
		healthHandler.Add(health.Checker{Name: "socket", Check: bridge.Ping, Optional: true})
		defer healthHandler.Remove("socket")

		if discordBot != nil {
			if botErr := discordBot.Start(ctx); botErr != nil {
				logger.ErrorContext(ctx, "starting bot failed", slog.Any("error", botErr))
			} else {
				defer func() {
					stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer stopCancel()
					if stopErr := discordBot.Stop(stopCtx); stopErr != nil {
						logger.Error("bot shutdown error", slog.Any("error", stopErr))
					}
				}()
			}
		}

		logger.InfoContext(ctx, "auction bridge is running",
			slog.String("version", version),
			slog.String("tournament_id", cfg.TournamentID),
			slog.String("identity", elector.Identity()),
		)

		if runErr := bridge.Run(ctx); runErr != nil {
			logger.ErrorContext(ctx, "auction bridge stopped", slog.Any("error", runErr))
			select {
			case gaveUp <- runErr:
			default:
			}
			cancel()
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")
	}
	if leaderErr := elector.Run(ctx, lead); leaderErr != nil {
		return fmt.Errorf("leader election: %w", leaderErr)
	}

	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	select {
	case err := <-gaveUp:
		return err
	default:
		return nil
	}
}
