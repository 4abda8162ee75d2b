// Package events streams logged swaps through NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

const (
	// StreamSubjects covers one subject per wallet.
	StreamSubjects = constants.NATSSubjectPrefix + "*"

	StreamRetention = 30 * 24 * time.Hour
)

// Subject returns the subject a wallet's swaps are published on.
func Subject(wallet string) string {
	return constants.NATSSubjectPrefix + wallet
}

type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Logger
}

var (
	_ storage.SwapEventPublisher  = (*JetStreamPublisher)(nil)
	_ storage.SwapEventSubscriber = (*JetStreamPublisher)(nil)
)

// NewJetStreamPublisher connects to NATS and ensures the swap stream exists.
func NewJetStreamPublisher(ctx context.Context, natsURL string, logger *logrus.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("bankiiswap"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, logger: logger}

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.WithFields(logrus.Fields{"url": natsURL, "stream": constants.NATSStreamName}).Info("NATS publisher initialized")
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, constants.NATSStreamName); err == nil {
		return nil
	}

	p.logger.WithField("stream", constants.NATSStreamName).Info("creating JetStream stream")

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        constants.NATSStreamName,
		Description: "Swaps logged by BankiiSwap clients",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishSwap publishes the swap on the wallet's subject.
func (p *JetStreamPublisher) PublishSwap(ctx context.Context, l *models.SwapLog) error {
	subject := Subject(l.WalletAddress)

	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal swap log: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish swap: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"subject":   subject,
		"signature": l.Signature,
	}).Debug("published swap event")
	return nil
}

// SubscribeSwaps delivers swaps published after the call until ctx is done.
func (p *JetStreamPublisher) SubscribeSwaps(ctx context.Context) (<-chan *models.SwapLog, error) {
	cons, err := p.js.CreateOrUpdateConsumer(ctx, constants.NATSStreamName, jetstream.ConsumerConfig{
		FilterSubject: StreamSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *models.SwapLog, 64)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var l models.SwapLog
		if err := json.Unmarshal(msg.Data(), &l); err != nil {
			p.logger.WithError(err).WithField("subject", msg.Subject()).Warn("failed to unmarshal swap event")
			_ = msg.Ack()
			return
		}
		select {
		case out <- &l:
		case <-ctx.Done():
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		<-cc.Closed()
		close(out)
	}()

	return out, nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
