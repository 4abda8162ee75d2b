// Package resolver turns a user-supplied mint address into token metadata by
// asking DexScreener, Jupiter and Helius in turn.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/cache"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
	"github.com/bankii-labs/bankiiswap/internal/models"
)

const DefaultTTL = 5 * time.Minute

// Result is a resolved token. Found is false when Token is the placeholder.
type Result struct {
	Token *models.Token
	Found bool
}

type Config struct {
	Providers []Provider
	TTL       time.Duration
	Clock     cache.Clock
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

type Resolver struct {
	providers []Provider
	cache     *cache.TTL[Result]
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

func New(cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Resolver{
		providers: cfg.Providers,
		cache:     cache.NewTTL[Result](cfg.TTL, cfg.Clock),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Resolve sanitizes query and returns the first provider hit. Misses on every provider
// yield the placeholder with Found=false; both outcomes are cached for the TTL.
func (r *Resolver) Resolve(ctx context.Context, query string) (Result, error) {
	mint, err := Sanitize(query)
	if err != nil {
		return Result{}, err
	}

	key := strings.ToLower(mint)
	if res, ok := r.cache.Get(key); ok {
		r.metrics.RecordCacheLookup("resolver", true)
		return res, nil
	}
	r.metrics.RecordCacheLookup("resolver", false)

	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			return Result{}, errs.Wrap(errs.NetworkTimeout, "Token lookup cancelled", err)
		}

		tok, err := p.Lookup(ctx, mint)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// The caller gave up; a miss here says nothing about the token.
				return Result{}, errs.Wrap(errs.NetworkTimeout, "Token lookup cancelled", ctxErr)
			}
			r.metrics.RecordTokenLookup(p.Name(), "error")
			r.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"mint":     mint,
			}).WithError(err).Warn("token lookup failed")
			continue
		}
		if tok == nil {
			r.metrics.RecordTokenLookup(p.Name(), "miss")
			continue
		}

		r.metrics.RecordTokenLookup(p.Name(), "hit")
		r.logger.WithFields(logrus.Fields{
			"provider": p.Name(),
			"mint":     mint,
			"symbol":   tok.Symbol,
		}).Debug("token resolved")

		res := Result{Token: tok, Found: true}
		r.cache.Set(key, res)
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, errs.Wrap(errs.NetworkTimeout, "Token lookup cancelled", err)
	}

	r.logger.WithField("mint", mint).Info("no provider knows token, using placeholder")
	res := Result{Token: Placeholder(mint), Found: false}
	r.cache.Set(key, res)
	return res, nil
}
