package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coder/wsengine"
	"github.com/coder/wsengine/internal/wsecho"
)

type echoOptions struct {
	addr            string
	metricsAddr     string
	logLevel        string
	broadcast       bool
	acceptRate      float64
	shutdownTimeout time.Duration
	server          websocket.Options
}

func newEchoCommand() *cobra.Command {
	opts := &echoOptions{}

	cmd := &cobra.Command{
		Use:           "wsecho [OPTIONS]",
		Short:         "Echo every WebSocket message back to its sender.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(cmd.Context(), opts)
		},
	}

	installFlags(cmd.Flags(), opts)
	return cmd
}

func installFlags(flags *pflag.FlagSet, opts *echoOptions) {
	flags.StringVarP(&opts.addr, "addr", "a", "0.0.0.0:9001", "TCP address to accept WebSocket connections on")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "info", `Set the logging level ("debug"|"info"|"warn"|"error"|"fatal")`)
	flags.BoolVar(&opts.broadcast, "broadcast", false, "Echo messages to every connected client")
	flags.Float64Var(&opts.acceptRate, "accept-rate", 0, "Maximum connections accepted per second (0 for unlimited)")
	flags.IntVar(&opts.server.AcceptBurst, "accept-burst", 1, "Burst allowed by --accept-rate")
	flags.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed for close handshakes on shutdown")

	flags.DurationVar(&opts.server.HandshakeTimeout, "handshake-timeout", websocket.DefaultHandshakeTimeout, "Time allowed for the opening handshake")
	flags.DurationVar(&opts.server.ReadTimeout, "read-timeout", 0, "Time allowed to read each frame (0 to allow idle connections)")
	flags.DurationVar(&opts.server.WriteTimeout, "write-timeout", websocket.DefaultWriteTimeout, "Time allowed to write each frame")
	flags.DurationVar(&opts.server.CloseTimeout, "close-timeout", websocket.DefaultCloseTimeout, "Time allowed for the peer to answer a close frame")
	flags.Int64Var(&opts.server.MaxMessageSize, "max-message-size", websocket.DefaultMaxMessageSize, "Largest message accepted, in bytes")
	flags.IntVar(&opts.server.ReadBufferSize, "read-buffer-size", websocket.DefaultReadBufferSize, "Per connection read buffer size, in bytes")
}

func newLogger(level string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, usageErr("unable to parse logging level: %s", level)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logrus.NewEntry(logger), nil
}

func runEcho(ctx context.Context, opts *echoOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := newLogger(opts.logLevel)
	if err != nil {
		return err
	}
	if opts.acceptRate < 0 {
		return usageErr("--accept-rate must not be negative")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	serverOpts := opts.server
	serverOpts.AcceptRate = rate.Limit(opts.acceptRate)
	serverOpts.Logger = log
	serverOpts.Metrics = websocket.NewMetrics(reg)

	h := &wsecho.Handler{
		Broadcast: opts.broadcast,
		Log:       log,
	}
	s := websocket.NewServer(h, &serverOpts)
	h.Sender = s

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.ListenAndServe(ctx, opts.addr)
		if errors.Is(err, websocket.ErrServerClosed) || ctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	if opts.metricsAddr != "" {
		hs := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.WithField("addr", opts.metricsAddr).Info("serving metrics")
			err := hs.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return hs.Close()
		})
	}

	return g.Wait()
}
