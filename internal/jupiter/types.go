package jupiter

// QuoteRequest holds GET /swap/v1/quote parameters. Nil pointers are omitted.
type QuoteRequest struct {
	InputMint  string
	OutputMint string
	Amount     string // raw integer as string (uint64)

	SlippageBps *uint16
	SwapMode    string // ExactIn | ExactOut

	Dexes        []string
	ExcludeDexes []string

	RestrictIntermediateTokens *bool
	OnlyDirectRoutes           *bool
	AsLegacyTransaction        *bool

	PlatformFeeBps  *uint16
	MaxAccounts     *uint64
	DynamicSlippage *bool
}

type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          uint16          `json:"slippageBps"`
	PlatformFee          *PlatformFee    `json:"platformFee,omitempty"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`

	ContextSlot uint64  `json:"contextSlot,omitempty"`
	TimeTaken   float64 `json:"timeTaken,omitempty"`
}

type PlatformFee struct {
	Amount string `json:"amount,omitempty"`
	FeeBps uint16 `json:"feeBps,omitempty"`
}

type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  *uint8   `json:"percent,omitempty"`
	Bps      uint16   `json:"bps"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label,omitempty"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`

	FeeAmount *string `json:"feeAmount,omitempty"`
	FeeMint   *string `json:"feeMint,omitempty"`
}

// SwapRequest is the body of POST /swap/v1/swap.
type SwapRequest struct {
	QuoteResponse             *QuoteResponse     `json:"quoteResponse"`
	UserPublicKey             string             `json:"userPublicKey"`
	WrapAndUnwrapSol          bool               `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool               `json:"dynamicComputeUnitLimit"`
	DynamicSlippage           bool               `json:"dynamicSlippage"`
	PrioritizationFeeLamports *PrioritizationFee `json:"prioritizationFeeLamports,omitempty"`
	FeeAccount                string             `json:"feeAccount,omitempty"`
	PlatformFeeBps            *uint16            `json:"platformFeeBps,omitempty"`
	AsLegacyTransaction       bool               `json:"asLegacyTransaction,omitempty"`
}

type PrioritizationFee struct {
	PriorityLevelWithMaxLamports *PriorityLevelWithMaxLamports `json:"priorityLevelWithMaxLamports,omitempty"`
}

type PriorityLevelWithMaxLamports struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"` // base64
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports,omitempty"`
	ComputeUnitLimit          uint64 `json:"computeUnitLimit,omitempty"`
}

// PriceInfo is one entry of the /price/v3 response map.
type PriceInfo struct {
	USDPrice       float64 `json:"usdPrice"`
	BlockID        uint64  `json:"blockId,omitempty"`
	Decimals       int     `json:"decimals,omitempty"`
	PriceChange24h float64 `json:"priceChange24h,omitempty"`
}

// TokenInfo is a token entry from the /tokens/v2 endpoints. Older responses use
// address/logoURI/verified instead of id/icon/isVerified.
type TokenInfo struct {
	ID         string   `json:"id"`
	Address    string   `json:"address,omitempty"`
	Name       string   `json:"name"`
	Symbol     string   `json:"symbol"`
	Decimals   *int     `json:"decimals"`
	Icon       string   `json:"icon,omitempty"`
	LogoURI    string   `json:"logoURI,omitempty"`
	Image      string   `json:"image,omitempty"`
	IsVerified bool     `json:"isVerified"`
	Verified   bool     `json:"verified,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	USDPrice   float64  `json:"usdPrice,omitempty"`
}

// Mint returns id, falling back to address.
func (t TokenInfo) Mint() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Address
}

func (t TokenInfo) Logo() string {
	switch {
	case t.Icon != "":
		return t.Icon
	case t.LogoURI != "":
		return t.LogoURI
	default:
		return t.Image
	}
}

func (t TokenInfo) IsVerifiedToken() bool {
	return t.IsVerified || t.Verified
}

// DecimalsOr returns the reported decimals, or def when the field was absent.
// Zero is a valid value for non-divisible tokens.
func (t TokenInfo) DecimalsOr(def int) int {
	if t.Decimals == nil {
		return def
	}
	return *t.Decimals
}
