package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/dkeye/watchsync/internal/adapters/api"
	router "github.com/dkeye/watchsync/internal/adapters/http"
	"github.com/dkeye/watchsync/internal/adapters/rtc"
	"github.com/dkeye/watchsync/internal/adapters/ws"
	"github.com/dkeye/watchsync/internal/app/link"
	"github.com/dkeye/watchsync/internal/app/orch"
	"github.com/dkeye/watchsync/internal/app/outbound"
	"github.com/dkeye/watchsync/internal/app/playback"
	"github.com/dkeye/watchsync/internal/config"
	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/metrics"
)

func runCmd() *cobra.Command {
	var cfgFile string
	v := config.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join a session and serve the inspector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(v, cfgFile)
			if err != nil {
				return err
			}
			setLogLevel(cfg.LogLevel)
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	f.String("endpoint", "", "session socket endpoint (ws:// or wss://)")
	f.String("token", "", "auth token")
	f.String("session-id", "", "session to join")
	f.String("room-id", "", "room whose active session is joined when no session id is set")
	f.Bool("create-session", false, "start a session when the room has none")
	f.Int64("user-id", 0, "local user id")
	f.String("username", "", "local display name")
	f.String("listen", "", "inspector listen address")
	f.String("log-level", "", "trace, debug, info, warn or error")

	for key, flag := range map[string]string{
		"endpoint":       "endpoint",
		"token":          "token",
		"session_id":     "session-id",
		"room_id":        "room-id",
		"create_session": "create-session",
		"user_id":        "user-id",
		"username":       "username",
		"listen":         "listen",
		"log_level":      "log-level",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func options(cfg *config.Config) orch.Config {
	return orch.Config{
		Target: link.Target{
			Endpoint:  cfg.Endpoint,
			Token:     cfg.Token,
			SessionID: domain.SessionID(cfg.SessionID),
		},
		LocalUser: domain.UserID(cfg.UserID),
		Username:  cfg.Username,
		Link: link.Options{
			BaseDelay:     cfg.Reconnect.BaseDelay,
			CapDelay:      cfg.Reconnect.CapDelay,
			MaxAttempts:   cfg.Reconnect.MaxAttempts,
			TerminalCodes: cfg.Reconnect.TerminalCodes,
		},
		Outbound: outbound.Options{
			Capacity:       cfg.Outbound.Capacity,
			MaxBinaryBytes: cfg.Outbound.MaxBinaryBytes,
			RateLimit:      cfg.Outbound.RateLimit,
			RateWindow:     cfg.Outbound.RateWindow,
			RateDelay:      cfg.Outbound.RateDelay,
		},
		Playback: playback.Options{
			MaxClockSkew: cfg.Playback.MaxClockSkew,
			MaxLatency:   cfg.Playback.MaxLatency,
		},
		UpdatesBuffer: cfg.UpdatesBuffer,
	}
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Username != "" {
		if err := domain.ValidateUsername(cfg.Username); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	var packets atomic.Int64
	receiver, err := rtc.NewReceiver(rtc.DefaultConfig(), rtc.PacketSinkFunc(func(from domain.UserID, pkt *rtp.Packet) error {
		if packets.Add(1)%500 == 0 {
			log.Debug().Str("user_id", from.String()).Uint16("seq", pkt.SequenceNumber).Msg("audio flowing")
		}
		return nil
	}))
	if err != nil {
		return err
	}
	defer receiver.Close()
	if err := receiver.Start(ctx); err != nil {
		return err
	}

	wsOpts := ws.DefaultOptions()
	wsOpts.ReadLimit = cfg.Transport.ReadLimit
	wsOpts.PingPeriod = cfg.Transport.PingPeriod
	wsOpts.WriteWait = cfg.Transport.WriteWait
	wsOpts.HandshakeTimeout = cfg.Transport.HandshakeTimeout

	deps := orch.Deps{
		Dialer:  ws.NewDialer(wsOpts),
		Media:   receiver,
		Metrics: m,
	}
	if cfg.APIBase != "" {
		client, err := api.New(cfg.APIBase, cfg.Token)
		if err != nil {
			return err
		}
		deps.API = client
	}
	if cfg.SessionID == "" && cfg.RoomID != "" {
		resolveCtx, resolveCancel := context.WithTimeout(ctx, 15*time.Second)
		info, err := orch.ResolveSession(resolveCtx, deps.API, cfg.RoomID, cfg.CreateSession)
		resolveCancel()
		if err != nil {
			return err
		}
		cfg.SessionID = string(info.SessionID)
	}

	o := orch.New(options(cfg), deps)

	r := router.SetupRouter(o, router.Options{
		Mode:          "release",
		Gatherer:      reg,
		Media:         receiver,
		MaxChunkBytes: int64(cfg.Outbound.MaxBinaryBytes),
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := o.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event loop stopped")
		}
	})
	wg.Go(func() { logUpdates(o.Updates()) })
	wg.Go(func() {
		log.Info().Str("addr", cfg.Listen).Msg("inspector started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("inspector error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	o.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("inspector forced to shutdown")
	}
	wg.Wait()
	log.Info().Msg("exited gracefully")
	return nil
}

// logUpdates is the headless stand-in for a UI: it records every update.
func logUpdates(updates <-chan orch.Update) {
	for u := range updates {
		switch u := u.(type) {
		case orch.SnapshotChanged:
			log.Info().Str("session_id", string(u.Snapshot.SessionID)).Bool("active", u.Snapshot.IsActive).
				Int("members", len(u.Snapshot.Members)).Msg("session")
		case orch.SeatsChanged:
			log.Info().Int("seated", len(u.Seats)).Msg("seats")
		case orch.RouteChanged:
			log.Info().Stringer("route", u.Route).Int("audible", len(u.Audible)).Msg("audio route")
		case orch.PlaybackChanged:
			log.Info().Str("media", u.MediaRef).Float64("seek", u.SeekSeconds).Bool("playing", u.Playing).Msg("playback")
		case orch.ChatReceived:
			log.Info().Str("user_id", u.Message.UserID.String()).Bool("history", u.History).Str("text", u.Message.Text).Msg("chat")
		case orch.SwapRequested:
			log.Info().Str("request_id", u.RequestID).Str("user_id", u.RequesterID.String()).Msg("swap requested")
		case orch.SwapDeclined:
			log.Info().Str("request_id", u.RequestID).Str("user_id", u.TargetID.String()).Msg("swap declined")
		case orch.PeerEvent:
			log.Debug().Str("type", string(u.Type)).Str("user_id", u.UserID.String()).Msg("peer")
		case orch.ConnectionChanged:
			log.Info().Stringer("state", u.State).Int("attempt", u.Attempt).Dur("delay", u.Delay).Msg("connection")
		case orch.Terminated:
			log.Error().Err(u.Err).Str("reason", u.Reason).Msg("session terminated")
		}
	}
}

var _ core.MediaGate = (*rtc.Receiver)(nil)
