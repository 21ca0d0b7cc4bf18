package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChelseaDH/game-server/internal/config"
	"github.com/ChelseaDH/game-server/internal/lobby"
	"github.com/ChelseaDH/game-server/internal/repository"
	"github.com/ChelseaDH/game-server/internal/repository/storage"
	"github.com/ChelseaDH/game-server/transport/rest"
	"github.com/ChelseaDH/game-server/transport/tcp"
	"github.com/ChelseaDH/game-server/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	scoreboard, closeScoreboard, err := newScoreboard(ctx, log, conf)
	if err != nil {
		return err
	}
	defer closeScoreboard()

	gameLobby := lobby.New(logger, scoreboard)

	// run TCP game server
	tcpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting TCP game server", "port", conf.GamePort)
		tcpServer := tcp.New(logger, gameLobby)
		if tcpErr := tcpServer.Start(ctx, conf.GamePort); tcpErr != nil {
			log.Error("TCP game server error", "error", tcpErr)
			tcpErrCh <- tcpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, gameLobby)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		status := rest.NewStatusHandler(logger, gameLobby, scoreboard)
		if httpErr := rest.Start(ctx, conf.HTTPPort, rest.NewPingHandler(), status); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	select {
	case err = <-tcpErrCh:
		return fmt.Errorf("TCP game server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// newScoreboard - connects the redis scoreboard, or falls back to a no-op
// one when no redis host is configured.
func newScoreboard(ctx context.Context, log *slog.Logger, conf *config.Config) (repository.ScoreboardRepository, func(), error) {
	if conf.Redis.Host == "" {
		log.Info("Redis is not configured, scoreboard disabled")
		return repository.NewNoopScoreboard(), func() {}, nil
	}

	redisStorage, err := storage.New(ctx, conf.Redis.GetRedisAddr())
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	closer := func() {
		if closeErr := redisStorage.Close(); closeErr != nil {
			log.Error("could not close redis storage", "error", closeErr)
		}
	}

	return repository.NewScoreboardRepository(redisStorage), closer, nil
}
