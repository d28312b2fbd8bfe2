package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/config"
)

// SubjectPrefix is the root of every download event subject
const SubjectPrefix = "download"

// Client wraps NATS and JetStream connections
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
	logger *zap.Logger
}

// NewClient connects to NATS and ensures the download events stream exists
func NewClient(cfg config.NATSConfig, logger *zap.Logger) (*Client, func(), error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		nc:     nc,
		js:     js,
		stream: cfg.Stream,
		logger: logger.Named("nats"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.initializeStream(ctx); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	cleanup := func() {
		if err := nc.Drain(); err != nil {
			logger.Error("failed to drain NATS connection", zap.Error(err))
		}
		nc.Close()
	}

	client.logger.Info("NATS client initialized",
		zap.String("url", cfg.URL),
		zap.String("client_id", cfg.ClientID),
		zap.String("stream", cfg.Stream),
	)

	return client, cleanup, nil
}

func (c *Client) initializeStream(ctx context.Context) error {
	stream := jetstream.StreamConfig{
		Name:        c.stream,
		Description: "Download lifecycle events",
		Subjects: []string{
			SubjectPrefix + ".>",
		},
		Retention:    jetstream.LimitsPolicy,
		MaxAge:       7 * 24 * time.Hour,
		MaxConsumers: -1,
		Replicas:     1,
		Storage:      jetstream.FileStorage,
		Discard:      jetstream.DiscardOld,
		MaxMsgs:      -1,
		MaxBytes:     -1,
		Duplicates:   2 * time.Minute,
	}

	if _, err := c.js.CreateOrUpdateStream(ctx, stream); err != nil {
		return fmt.Errorf("failed to create %s stream: %w", c.stream, err)
	}
	return nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Stream returns the name of the download events stream
func (c *Client) Stream() string {
	return c.stream
}

// IsConnected checks if the client is connected
func (c *Client) IsConnected() bool {
	return c.nc.IsConnected()
}

// Health checks the connection and the JetStream account
func (c *Client) Health(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("NATS client is not connected")
	}

	info, err := c.js.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get JetStream account info: %w", err)
	}

	c.logger.Debug("NATS health check passed",
		zap.Int("streams", info.Streams),
		zap.Int("consumers", info.Consumers),
	)
	return nil
}
