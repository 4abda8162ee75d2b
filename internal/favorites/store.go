// Package favorites keeps each wallet's favorite token mints in a Redis set.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

var (
	ErrInvalidMint   = errors.New("invalid token mint")
	ErrInvalidWallet = errors.New("invalid wallet")
)

type Store struct {
	client redis.Cmdable
}

var _ storage.FavoritesStore = (*Store)(nil)

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

// ValidateMint accepts only base58 strings that decode to a 32-byte public key.
func ValidateMint(mint string) error {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return ErrInvalidMint
	}
	return nil
}

func validate(wallet, mint string) error {
	if strings.TrimSpace(wallet) == "" {
		return ErrInvalidWallet
	}
	return ValidateMint(mint)
}

func (s *Store) Add(ctx context.Context, wallet, mint string) error {
	if err := validate(wallet, mint); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, favoritesKey(wallet), mint).Err(); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, wallet, mint string) error {
	if err := validate(wallet, mint); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, favoritesKey(wallet), mint).Err(); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// Toggle flips membership and reports whether the mint is a favorite afterwards.
func (s *Store) Toggle(ctx context.Context, wallet, mint string) (bool, error) {
	if err := validate(wallet, mint); err != nil {
		return false, err
	}

	key := favoritesKey(wallet)
	removed, err := s.client.SRem(ctx, key, mint).Result()
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	if removed > 0 {
		return false, nil
	}
	if err := s.client.SAdd(ctx, key, mint).Err(); err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	return true, nil
}

// List returns the favorite mints sorted for stable output.
func (s *Store) List(ctx context.Context, wallet string) ([]string, error) {
	mints, err := s.client.SMembers(ctx, favoritesKey(wallet)).Result()
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	out := make([]string, 0, len(mints))
	for _, m := range mints {
		if ValidateMint(m) != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) IsFavorite(ctx context.Context, wallet, mint string) (bool, error) {
	if err := validate(wallet, mint); err != nil {
		return false, err
	}
	ok, err := s.client.SIsMember(ctx, favoritesKey(wallet), mint).Result()
	if err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return ok, nil
}

func favoritesKey(wallet string) string {
	return constants.FavoritesKeyPrefix + wallet
}
