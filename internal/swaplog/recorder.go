// Package swaplog records swap audit entries: the queryable store first, then
// the analytics sink and the event publishers on a best-effort basis.
package swaplog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/metrics"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

// NamedSink labels a sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink storage.SwapLogSink
}

// NamedPublisher labels a publisher for logs and metrics.
type NamedPublisher struct {
	Name      string
	Publisher storage.SwapEventPublisher
}

type Config struct {
	// Store is optional. When set, a failed write fails the whole record.
	Store storage.SwapLogStore

	// Sinks and Publishers are best-effort.
	Sinks      []NamedSink
	Publishers []NamedPublisher

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Recorder struct {
	store      storage.SwapLogStore
	sinks      []NamedSink
	publishers []NamedPublisher
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

var _ storage.SwapLogSink = (*Recorder)(nil)

func NewRecorder(cfg Config) *Recorder {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{
		store:      cfg.Store,
		sinks:      cfg.Sinks,
		publishers: cfg.Publishers,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
}

// Store returns the queryable store, or nil when none is configured.
func (r *Recorder) Store() storage.SwapLogStore { return r.store }

// Validate checks the fields every swap log must carry.
func Validate(l *models.SwapLog) error {
	if l == nil {
		return fmt.Errorf("%w: empty swap log", storage.ErrInvalidInput)
	}
	var missing []string
	if strings.TrimSpace(l.WalletAddress) == "" {
		missing = append(missing, "walletAddress")
	}
	if strings.TrimSpace(l.Signature) == "" {
		missing = append(missing, "signature")
	}
	if strings.TrimSpace(l.FromToken) == "" {
		missing = append(missing, "fromToken")
	}
	if strings.TrimSpace(l.ToToken) == "" {
		missing = append(missing, "toToken")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", storage.ErrInvalidInput, strings.Join(missing, ", "))
	}
	if l.FromAmount < 0 || l.ToAmount < 0 {
		return fmt.Errorf("%w: amounts must not be negative", storage.ErrInvalidInput)
	}
	return nil
}

// InsertSwapLog assigns an id and timestamp, then fans the entry out.
// A signature that was already recorded is accepted without being re-published.
func (r *Recorder) InsertSwapLog(ctx context.Context, l *models.SwapLog) error {
	if err := Validate(l); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.LoggedAt.IsZero() {
		l.LoggedAt = r.now().UTC()
	}

	log := r.logger.WithFields(logrus.Fields{
		"wallet":    l.WalletAddress,
		"pair":      l.Pair(),
		"signature": l.Signature,
	})

	if r.store != nil {
		err := r.store.InsertSwapLog(ctx, l)
		r.metrics.RecordSwapLogWrite("postgres", err)
		if errors.Is(err, storage.ErrDuplicateKey) {
			log.Debug("swap already logged")
			return nil
		}
		if err != nil {
			return fmt.Errorf("store swap log: %w", err)
		}
	}

	for _, s := range r.sinks {
		err := s.Sink.InsertSwapLog(ctx, l)
		r.metrics.RecordSwapLogWrite(s.Name, err)
		if err != nil {
			log.WithError(err).WithField("sink", s.Name).Warn("swap log sink write failed")
		}
	}

	for _, p := range r.publishers {
		err := p.Publisher.PublishSwap(ctx, l)
		r.metrics.RecordSwapLogWrite(p.Name, err)
		if err != nil {
			log.WithError(err).WithField("publisher", p.Name).Warn("swap event publish failed")
		}
	}

	log.WithFields(logrus.Fields{
		"from_amount": l.FromAmount,
		"to_amount":   l.ToAmount,
	}).Info("swap logged")
	return nil
}

// Close closes every publisher.
func (r *Recorder) Close() error {
	var errs []error
	for _, p := range r.publishers {
		if err := p.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}
