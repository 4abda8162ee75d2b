// Package tokens holds the local fallback token list.
package tokens

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/models"
)

//go:embed tokens.yaml
var defaultList []byte

type file struct {
	Tokens []models.Token `yaml:"tokens"`
}

// Registry is an immutable lookup over a token list.
type Registry struct {
	tokens    []models.Token
	byAddress map[string]int
	bySymbol  map[string]int
}

// Default returns the embedded list. bkpMint, when set, replaces the BKP address.
func Default(bkpMint string) (*Registry, error) {
	r, err := Parse(bytes.NewReader(defaultList))
	if err != nil {
		return nil, err
	}
	if bkpMint != "" && bkpMint != constants.MintBKP {
		if i, ok := r.bySymbol["BKP"]; ok {
			delete(r.byAddress, r.tokens[i].Address)
			r.tokens[i].Address = bkpMint
			r.byAddress[bkpMint] = i
		}
	}
	return r, nil
}

// Parse reads a YAML token list.
func Parse(rd io.Reader) (*Registry, error) {
	var f file
	if err := yaml.NewDecoder(rd).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}
	return New(f.Tokens)
}

func New(list []models.Token) (*Registry, error) {
	r := &Registry{
		tokens:    make([]models.Token, 0, len(list)),
		byAddress: make(map[string]int, len(list)),
		bySymbol:  make(map[string]int, len(list)),
	}
	for _, t := range list {
		if t.Address == "" || t.Symbol == "" {
			return nil, fmt.Errorf("token list entry missing address or symbol: %+v", t)
		}
		if _, dup := r.byAddress[t.Address]; dup {
			return nil, fmt.Errorf("duplicate token address %s", t.Address)
		}
		t.Source = models.SourceLocal
		r.byAddress[t.Address] = len(r.tokens)
		r.bySymbol[strings.ToUpper(t.Symbol)] = len(r.tokens)
		r.tokens = append(r.tokens, t)
	}
	return r, nil
}

func (r *Registry) All() []models.Token {
	out := make([]models.Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

func (r *Registry) ByAddress(addr string) (models.Token, bool) {
	i, ok := r.byAddress[addr]
	if !ok {
		return models.Token{}, false
	}
	return r.tokens[i], true
}

// BySymbol is case-insensitive.
func (r *Registry) BySymbol(symbol string) (models.Token, bool) {
	i, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return models.Token{}, false
	}
	return r.tokens[i], true
}

// Search returns tokens whose address, symbol or name contains q, case-insensitively.
// Verified reflects only the hard-coded known list.
func (r *Registry) Search(q string) []models.Token {
	q = strings.ToLower(strings.TrimSpace(q))
	out := []models.Token{}
	for _, t := range r.tokens {
		if strings.Contains(strings.ToLower(t.Address), q) ||
			strings.Contains(strings.ToLower(t.Symbol), q) ||
			strings.Contains(strings.ToLower(t.Name), q) {
			t.Verified = IsKnownVerified(t.Address)
			out = append(out, t)
		}
	}
	return out
}

// IsKnownVerified reports membership in the hard-coded verified set.
func IsKnownVerified(addr string) bool {
	return constants.KnownVerifiedTokens[addr]
}

// KnownVerifiedAddresses lists the hard-coded verified set.
func KnownVerifiedAddresses() []string {
	out := make([]string, 0, len(constants.KnownVerifiedTokens))
	for addr := range constants.KnownVerifiedTokens {
		out = append(out, addr)
	}
	return out
}
