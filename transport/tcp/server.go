package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/ChelseaDH/game-server/internal/protocol"
	"github.com/ChelseaDH/game-server/internal/session"
)

// Server accepts raw TCP game connections and hands each one to its own
// session.
type Server struct {
	logger     *slog.Logger
	matchmaker session.Matchmaker
}

func New(logger *slog.Logger, matchmaker session.Matchmaker) *Server {
	return &Server{
		logger:     logger,
		matchmaker: matchmaker,
	}
}

// Start - binds the listener and serves until ctx is canceled. A failed
// bind is returned to the caller; the server is useless without it.
func (that *Server) Start(ctx context.Context, port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	return that.Serve(ctx, listener)
}

// Serve - accepts connections on the listener until it closes. Accept
// errors for individual connections are logged, not fatal.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "Serve")
	log.Info("accepting game connections", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()

		if err := listener.Close(); err != nil {
			log.Error("failed to close listener", "error", err)
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Info("listener closed, no longer accepting")
				return nil
			}

			log.Error("failed to accept connection", "error", err)

			continue
		}

		sess := session.New(protocol.NewStreamConn(conn), that.matchmaker, that.logger)
		log.Info("client connected", "remote", conn.RemoteAddr().String(), "session", sess.ID())

		go sess.Run(ctx)
	}
}
