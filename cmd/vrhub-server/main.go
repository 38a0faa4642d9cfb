// Command vrhub-server runs the collaboration hub: it accepts WebTransport
// sessions, negotiates each connecting client's plug-in set, and relays
// state between every client sharing a plug-in, at a fixed tick rate.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrhub/collab/config"
	"github.com/vrhub/collab/plugins/agora"
	"github.com/vrhub/collab/plugins/cheria"
	"github.com/vrhub/collab/plugins/graphein"
	"github.com/vrhub/collab/plugins/theoravid"
	"github.com/vrhub/collab/server/internal/hub"
	"github.com/vrhub/collab/server/internal/settings"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		addr         string
		statusAddr   string
		dbPath       string
		certValidity time.Duration
		maxConnRate  float64
		connBurst    int
	)

	root := &cobra.Command{Use: "vrhub-server"}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Accept WebTransport sessions and run the fan-out tick loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, addr, statusAddr, dbPath, certValidity, maxConnRate, connBurst)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	serve.Flags().StringVar(&addr, "addr", ":26000", "WebTransport listen address")
	serve.Flags().StringVar(&statusAddr, "status-addr", ":26001", "operator HTTP status listen address")
	serve.Flags().StringVar(&dbPath, "db", "vrhub.db", "SQLite settings database path")
	serve.Flags().DurationVar(&certValidity, "cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	serve.Flags().Float64Var(&maxConnRate, "max-connect-rate", 20, "maximum new connection attempts per second")
	serve.Flags().IntVar(&connBurst, "max-connect-burst", 40, "burst size for --max-connect-rate")

	root.AddCommand(serve)
	return root
}

func runServe(ctx context.Context, configPath, addr, statusAddr, dbPath string, certValidity time.Duration, connRate float64, connBurst int) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := settings.Open(dbPath, log.Named("settings"))
	if err != nil {
		return err
	}
	defer store.Close()

	h := hub.New(log.Named("hub"))
	h.SetConnectionRateLimit(connRate, connBurst)

	videoWidth := cfg.Sub("video").GetInt("width")
	videoHeight := cfg.Sub("video").GetInt("height")
	if videoWidth <= 0 {
		videoWidth = 320
	}
	if videoHeight <= 0 {
		videoHeight = 240
	}

	for _, p := range []struct {
		name string
		reg  func() error
	}{
		{"cheria", func() error { return h.Register(cheria.New(), cfg) }},
		{"graphein", func() error { return h.Register(graphein.New(), cfg) }},
		{"agora", func() error { return h.Register(agora.New(), cfg) }},
		{"theoravid", func() error { return h.Register(theoravid.New(nil, videoWidth, videoHeight), cfg) }},
	} {
		if err := p.reg(); err != nil {
			log.Errorw("plug-in registration failed", "plugin", p.name, "error", err)
			return err
		}
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	tlsConfig, fingerprint, err := generateTLSConfig(certValidity, host)
	if err != nil {
		return err
	}
	log.Infow("TLS certificate generated", "fingerprint", fingerprint)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	tickTime := cfg.Sub("collaboration").GetFloat("tickTime")
	if tickTime <= 0 {
		tickTime = 0.020
	}
	go h.RunTicks(ctx, time.Duration(tickTime*float64(time.Second)))

	statusServer := newStatusServer(h, log.Named("status"))
	go func() {
		if err := statusServer.Start(statusAddr); err != nil && err != http.ErrServerClosed {
			log.Warnw("status server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = statusServer.Close()
	}()

	wtServer := &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConfig,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/vrhub", func(w http.ResponseWriter, r *http.Request) {
		sess, err := wtServer.Upgrade(w, r)
		if err != nil {
			log.Warnw("webtransport upgrade failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		go serveSession(ctx, h, sess, log)
	})
	wtServer.H3.Handler = mux

	go func() {
		<-ctx.Done()
		_ = wtServer.Close()
	}()

	log.Infow("listening", "addr", addr)
	err = wtServer.ListenAndServe()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// serveSession accepts the one reliable stream a connecting client opens
// for the base protocol and hands it to the hub. A session that opens no
// stream, or more than one, is a malformed client and is simply dropped
// once the session closes.
func serveSession(ctx context.Context, h *hub.Hub, sess *webtransport.Session, log *zap.SugaredLogger) {
	defer sess.CloseWithError(0, "")

	stream, err := sess.AcceptStream(ctx)
	if err != nil {
		log.Debugw("session closed before opening a stream", "error", err)
		return
	}
	if err := h.Accept(ctx, stream); err != nil {
		log.Debugw("client session ended", "error", err)
	}
}
