package resolver

import (
	"regexp"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/models"
)

var base58Run = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,64}`)

// ErrMalformedAddress is the message returned for queries with no plausible mint in them.
const ErrMalformedAddress = "Invalid or malformed token address"

// Sanitize extracts the first base58 run of 32 to 64 characters from user input,
// so pasted text like "MINTpump" or "mint: <addr>" still resolves.
func Sanitize(input string) (string, error) {
	m := base58Run.FindString(strings.TrimSpace(input))
	if m == "" {
		return "", errs.New(errs.InvalidInput, ErrMalformedAddress)
	}
	return m, nil
}

// NormalizeLogo rewrites ipfs:// URIs to a public gateway and substitutes the fallback image for empty ones.
func NormalizeLogo(uri string) string {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return constants.FallbackLogoURI
	case strings.HasPrefix(uri, "ipfs://"):
		return "https://ipfs.io/ipfs/" + strings.TrimPrefix(uri, "ipfs://")
	default:
		return uri
	}
}

func short(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:8]
}

// Placeholder is the token reported when no provider knows the mint.
func Placeholder(mint string) *models.Token {
	last := mint
	if len(mint) > 4 {
		last = mint[len(mint)-4:]
	}
	return &models.Token{
		Address:  mint,
		Name:     "Token " + short(mint) + "..." + last,
		Symbol:   "TOKEN_" + short(mint),
		Decimals: 6,
		LogoURI:  constants.FallbackLogoURI,
		Tags:     []string{"unknown"},
		Source:   models.SourcePlaceholder,
	}
}
