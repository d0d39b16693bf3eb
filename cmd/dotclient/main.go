// Command dotclient is a demo participant: it joins a dotgame session
// and publishes random dot movements while printing what everyone else
// is doing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/rgrange/roomcast/internal/broker"
	"github.com/rgrange/roomcast/internal/client"
	"github.com/rgrange/roomcast/internal/dotgame"
	"github.com/rgrange/roomcast/internal/protocol"
)

type envConfig struct {
	ServerURL string        `env:"ROOMCAST_URL" envDefault:"ws://localhost:8080/ws"`
	SessionID string        `env:"ROOMCAST_SESSION" envDefault:"demo"`
	UserID    string        `env:"ROOMCAST_USER"`
	Interval  time.Duration `env:"ROOMCAST_INTERVAL" envDefault:"2s"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.UserID == "" {
		cfg.UserID = fmt.Sprintf("dot-%04d", rand.Intn(10000))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	mgr := client.NewManager(client.DefaultConfig(cfg.ServerURL), logger)

	join, err := protocol.System(protocol.JoinRoom{
		Type:        protocol.TypeJoinRoom,
		SessionID:   cfg.SessionID,
		UserID:      cfg.UserID,
		SessionType: dotgame.TypeID,
	})
	if err != nil {
		logger.Error("build join request", "error", err)
		os.Exit(1)
	}

	// Rejoin after every (re)connect; the room forgot us when the
	// previous connection dropped.
	remove := mgr.OnStateChange(func(s client.State) {
		logger.Info("connection state", "state", s)
		if s == client.StateConnected {
			if err := mgr.Send(join); err != nil {
				logger.Warn("join failed", "error", err)
			}
		}
	})
	defer remove()

	ch := mgr.Channel(broker.RoomChannel(dotgame.TypeID, cfg.SessionID))

	ch.Subscribe(protocol.TypeStateSync, func(data json.RawMessage) {
		logger.Info("state snapshot", "state", string(data))
	})
	ch.Subscribe(protocol.TypeUserJoined, func(data json.RawMessage) {
		var msg protocol.UserJoined
		if err := json.Unmarshal(data, &msg); err == nil {
			logger.Info("user joined", "user", msg.UserID, "participants", msg.ParticipantCount)
		}
	})
	ch.Subscribe(protocol.TypeUserLeft, func(data json.RawMessage) {
		var msg protocol.UserLeft
		if err := json.Unmarshal(data, &msg); err == nil {
			logger.Info("user left", "user", msg.UserID, "participants", msg.ParticipantCount)
		}
	})
	ch.Subscribe("dot_update", func(data json.RawMessage) {
		var msg dotgame.DotUpdate
		if err := json.Unmarshal(data, &msg); err == nil {
			logger.Info("dot moved", "user", msg.UserID, "x", msg.Position.X, "y", msg.Position.Y)
		}
	})

	if err := mgr.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	color := fmt.Sprintf("#%06X", rand.Intn(0xFFFFFF))
	pos := dotgame.Position{X: rand.Float64() * 100, Y: rand.Float64() * 100, Color: color}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mgr.Disconnect()
			logger.Info("bye")
			return
		case <-ticker.C:
			pos.X += rand.Float64()*10 - 5
			pos.Y += rand.Float64()*10 - 5
			if err := ch.Publish("update_position", pos); err != nil {
				logger.Warn("publish failed", "error", err)
			}
		}
	}
}
