package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Dacoband/stream-cart-live-session/internal/chat"
	"github.com/Dacoband/stream-cart-live-session/internal/config"
	"github.com/Dacoband/stream-cart-live-session/internal/identity"
	"github.com/Dacoband/stream-cart-live-session/internal/media"
	"github.com/Dacoband/stream-cart-live-session/internal/session"
	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: viewer <room-id>")
		os.Exit(1)
	}
	roomID := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Component: "viewer"})
	logger := log.L()

	resolver := identity.NewResolver(cfg.Endpoints.RoomServiceURL, cfg.Session.LoadTimeout)
	historyClient := chat.NewHistoryClient(cfg.Endpoints.HistoryServiceURL, cfg.Session.LoadTimeout, cfg.Session.HistoryLimit)

	wsCfg := chat.WSConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}

	newRoom := func(cred media.CredentialFunc) media.Room {
		return media.NewPionRoom(media.PionConfig{
			ServerURL:        cfg.Endpoints.MediaServerURL,
			ReconnectBackoff: cfg.Session.ReconnectBackoff,
			RequestTimeout:   cfg.Session.LoadTimeout,
		}, cred)
	}

	newChat := func(roomID string, onChange func(), onRoomEnded func()) session.ChatLayer {
		return chat.NewLayer(chat.LayerConfig{
			RoomID: roomID,
			Dial: func(ctx context.Context) (chat.Messaging, error) {
				credential, err := resolver.AcquireJoinCredential(ctx, roomID)
				if err != nil {
					return nil, err
				}
				return chat.DialMessaging(ctx, cfg.Endpoints.MessagingURL, credential, wsCfg)
			},
			History:     historyClient,
			Status:      resolver,
			OnChange:    onChange,
			OnRoomEnded: onRoomEnded,
		})
	}

	mgr := session.NewManager(session.Config{
		RetryLimit:  cfg.Session.RetryLimit,
		LoadTimeout: cfg.Session.LoadTimeout,
	}, resolver, newRoom, newChat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := mgr.Start(ctx, roomID); err != nil {
			logger.Error().Err(err).Msg("session failed to start")
		}
	}()

	// Stdin lines become chat messages.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			body := strings.TrimSpace(scanner.Text())
			if body == "" {
				continue
			}
			if err := mgr.SendChat(ctx, body); err != nil {
				logger.Warn().Err(err).Msg("failed to send chat message")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var lastLine string
	var lastCount int
	for {
		select {
		case <-mgr.Updates():
			snap := mgr.Snapshot()
			render(snap, &lastLine, &lastCount)
		case <-quit:
			logger.Info().Msg("leaving session")
			mgr.Leave()
		case <-mgr.Done():
			snap := mgr.Snapshot()
			render(snap, &lastLine, &lastCount)
			logger.Info().
				Str(log.FieldState, snap.State.String()).
				Str(log.FieldReason, string(snap.Reason)).
				Msg("session finished")
			return
		}
	}
}

// render prints the session state and any new chat messages.
func render(snap session.Snapshot, lastLine *string, lastCount *int) {
	if snap.StatusLine != "" && snap.StatusLine != *lastLine {
		fmt.Printf("-- %s\n", snap.StatusLine)
		*lastLine = snap.StatusLine
	}

	for _, msg := range snap.Messages[*lastCount:] {
		name := msg.SenderName
		if name == "" {
			name = msg.SenderID
		}
		fmt.Printf("[%s] %s: %s\n", msg.SentAt.Format("15:04:05"), name, msg.Body)
	}
	*lastCount = len(snap.Messages)
}
