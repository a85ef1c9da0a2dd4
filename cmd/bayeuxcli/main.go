package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	gobayeux "github.com/sigmavirus24/gobayeux/v3"
	"github.com/sigmavirus24/gobayeux/v3/extensions/replay"
	"github.com/sigmavirus24/gobayeux/v3/extensions/salesforce"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("error parsing configuration: %q\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Printf("error in bayeux client: %q\n", err)
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg config) error {
	logger := cfg.logger()

	opts, err := clientOptions(cfg, logger)
	if err != nil {
		return err
	}
	client, err := gobayeux.NewClient(cfg.ServerURL, opts...)
	if err != nil {
		return fmt.Errorf("error initializing client: %w", err)
	}
	logger.Debug("got client")

	for _, name := range cfg.Channels {
		channel := gobayeux.Channel(name)
		if _, err := client.GetChannel(channel).Subscribe(printMessage(logger)); err != nil {
			return fmt.Errorf("unable to subscribe to %s: %w", channel, err)
		}
	}

	if err := client.HandshakeAndWait(cfg.HandshakeTimeout); err != nil {
		return err
	}
	logger.WithField("clientId", client.ClientID()).Info("connected")

	if cfg.PublishChannel != "" {
		if err := publish(client, cfg, logger); err != nil {
			return err
		}
	}

	if len(cfg.Channels) > 0 && waitForShutdown(ctx, client) {
		return client.Err()
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.MaxNetworkDelay)
	defer cancel()
	if err := client.Disconnect(disconnectCtx); err != nil {
		logger.WithError(err).Warn("disconnect was not acknowledged")
	}
	return nil
}

func clientOptions(cfg config, logger *logrus.Logger) ([]gobayeux.Option, error) {
	opts := []gobayeux.Option{
		gobayeux.WithLogger(logger),
		gobayeux.WithBackoff(cfg.BackoffIncrement, cfg.MaxBackoff),
		gobayeux.WithMaxNetworkDelay(cfg.MaxNetworkDelay),
		gobayeux.WithHooks(gobayeux.Hooks{
			OnProtocolError: func(err error) {
				logger.WithError(err).Warn("server response violates the protocol")
			},
		}),
	}

	if cfg.AccessToken != "" {
		opts = append(opts, gobayeux.WithHTTPTransport(&salesforce.StaticTokenAuthenticator{
			Token:   cfg.AccessToken,
			Domains: cfg.TokenDomains,
		}))
	}
	if cfg.Replay {
		opts = append(opts, gobayeux.WithExtension(replay.New(replay.NewMapStorage(), replay.WithDefaultReplayID(replay.NewEvents))))
	}
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics, err := gobayeux.NewMetrics(registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gobayeux.WithMetrics(metrics))
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}
	return opts, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server stopped")
	}
}

func printMessage(logger *logrus.Logger) gobayeux.MessageListener {
	return func(m gobayeux.Message) {
		logger.WithFields(logrus.Fields{
			"channel": m.Channel,
			"data":    string(m.Data),
		}).Info()
	}
}

func publish(client *gobayeux.Client, cfg config, logger *logrus.Logger) error {
	var data interface{} = cfg.PublishData
	if json.Valid([]byte(cfg.PublishData)) {
		data = json.RawMessage(cfg.PublishData)
	}

	done := make(chan struct{})
	channel := client.GetChannel(gobayeux.Channel(cfg.PublishChannel))
	err := channel.PublishWithCallback(data, func(reply gobayeux.Message, err error) {
		defer close(done)
		entry := logger.WithField("channel", reply.Channel)
		if err != nil {
			entry.WithError(err).Error("publish failed")
			return
		}
		entry.WithField("id", reply.ID).Info("published")
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(cfg.MaxNetworkDelay):
		logger.Warn("no reply to the publish")
	}
	return nil
}

// waitForShutdown blocks until ctx is done or the client gives up on the
// session. It reports whether the client gave up.
func waitForShutdown(ctx context.Context, client *gobayeux.Client) bool {
	for ctx.Err() == nil {
		if client.WaitFor(time.Second, gobayeux.Disconnected) {
			return true
		}
	}
	return false
}
