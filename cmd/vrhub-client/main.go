// Command vrhub-client is a thin, headless connection driver: it dials a
// server, negotiates the four plug-ins, and runs the receive loop. It owns
// no rendering, audio, or input hardware itself — those are the callback
// hosts an embedding application supplies by constructing its own
// plugin.ClientPlugin implementations; this binary exists to exercise and
// smoke-test the connection engine end to end.
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/client/internal/session"
	"github.com/vrhub/collab/config"
	"github.com/vrhub/collab/plugins/agora"
	"github.com/vrhub/collab/plugins/cheria"
	"github.com/vrhub/collab/plugins/graphein"
	"github.com/vrhub/collab/plugins/theoravid"
)

const dialTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		clientName string
	)

	root := &cobra.Command{Use: "vrhub-client"}

	connect := &cobra.Command{
		Use:   "connect",
		Short: "Dial a server and run the receive loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), configPath, addr, clientName)
		},
	}
	connect.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	connect.Flags().StringVar(&addr, "addr", "localhost:26000", "server host:port")
	connect.Flags().StringVar(&clientName, "name", "", "client display name (overrides config)")

	root.AddCommand(connect)
	return root
}

func runConnect(ctx context.Context, configPath, addr, clientName string) error {
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
	if clientName == "" {
		clientName = cfg.Sub("collaboration").GetString("clientName")
	}

	s := session.New(log.Named("session"))
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
		err  error
	}{
		{"cheria", s.Register(cheria.New(), cfg)},
		{"graphein", s.Register(graphein.New(), cfg)},
		{"agora", s.Register(agora.New(), cfg)},
		{"theoravid", s.Register(theoravid.New(nil, videoWidth, videoHeight), cfg)},
	} {
		if p.err != nil {
			log.Errorw("plug-in registration failed", "plugin", p.name, "error", p.err)
			return p.err
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	defer dialCancel()

	dialer := webtransport.Dialer{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec — self-signed server cert
		QUICConfig: &quic.Config{
			EnableDatagrams: true,
		},
	}
	_, sess, err := dialer.Dial(dialCtx, "https://"+addr, http.Header{})
	if err != nil {
		return err
	}
	defer sess.CloseWithError(0, "")

	stream, err := sess.OpenStream()
	if err != nil {
		return err
	}

	local := basestate.New()
	local.ClientName = clientName

	s.SetOnDisconnected(func(err error) {
		if err != nil {
			log.Warnw("disconnected", "error", err)
		} else {
			log.Info("disconnected")
		}
		cancel()
	})

	if err := s.Connect(ctx, stream, local); err != nil {
		return err
	}
	log.Info("connected")
	return s.Run(ctx)
}
