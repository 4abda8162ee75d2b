package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/bankii-labs/bankiiswap/internal/app"
	"github.com/bankii-labs/bankiiswap/internal/config"
	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/quote"
	"github.com/bankii-labs/bankiiswap/internal/swap"
	"github.com/bankii-labs/bankiiswap/internal/wallet"
)

// setup loads configuration and connects the services a command needs.
func setup(c *cli.Context) (*app.App, error) {
	logger := app.NewLogger(c.String("log-level"))
	app.LoadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	return app.New(ctx, cfg, logger, nil)
}

// emit prints v as JSON with --json, otherwise runs text.
func emit(c *cli.Context, v any, text func()) error {
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

// lookupToken accepts a symbol from the bundled list or a mint address.
func lookupToken(ctx context.Context, a *app.App, query string) (models.Token, error) {
	if t, ok := a.Tokens.BySymbol(query); ok {
		return t, nil
	}
	if t, ok := a.Tokens.ByAddress(query); ok {
		return t, nil
	}
	res, err := a.Resolver.Resolve(ctx, query)
	if err != nil {
		return models.Token{}, err
	}
	if !res.Found {
		return models.Token{}, errs.New(errs.NotFound, "Token not found: "+query)
	}
	return *res.Token, nil
}

// parseFraction accepts "max", a percentage like "25%" or a fraction like 0.25.
func parseFraction(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "max" {
		return 1, nil
	}
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fraction %q", s)
	}
	if pct {
		f /= 100
	}
	if f <= 0 || f > 1 {
		return 0, fmt.Errorf("fraction %q must be in (0, 100%%]", s)
	}
	return f, nil
}

// parseAmount parses a positive UI amount.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, errs.New(errs.InvalidInput, "Amount must be greater than 0")
	}
	return d, nil
}

// quoteSummary is the printable view of a quote.
type quoteSummary struct {
	From        string `json:"from"`
	To          string `json:"to"`
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	MinReceived string `json:"minReceived"`
	PriceImpact string `json:"priceImpactPct"`
	Hops        int    `json:"hops"`
	SlippageBps uint16 `json:"slippageBps"`
	PlatformFee uint16 `json:"platformFeeBps,omitempty"`
}

func summarize(q *jupiter.QuoteResponse, from, to models.Token) quoteSummary {
	in, _ := quote.FromRaw(q.InAmount, from.Decimals)
	out, _ := quote.FromRaw(q.OutAmount, to.Decimals)
	minOut, _ := quote.FromRaw(q.OtherAmountThreshold, to.Decimals)
	s := quoteSummary{
		From:        from.Symbol,
		To:          to.Symbol,
		InAmount:    in.String(),
		OutAmount:   out.String(),
		MinReceived: minOut.String(),
		PriceImpact: q.PriceImpactPct,
		Hops:        len(q.RoutePlan),
		SlippageBps: q.SlippageBps,
	}
	if q.PlatformFee != nil {
		s.PlatformFee = q.PlatformFee.FeeBps
	}
	return s
}

func (s quoteSummary) print() {
	fmt.Printf("%s %s -> %s %s\n", s.InAmount, s.From, s.OutAmount, s.To)
	fmt.Printf("  Minimum received: %s %s\n", s.MinReceived, s.To)
	fmt.Printf("  Price impact:     %s%%\n", s.PriceImpact)
	fmt.Printf("  Route hops:       %d\n", s.Hops)
	fmt.Printf("  Slippage:         %d bps\n", s.SlippageBps)
	if s.PlatformFee > 0 {
		fmt.Printf("  Platform fee:     %d bps\n", s.PlatformFee)
	}
}

func slippageFlag() cli.Flag {
	return &cli.Float64Flag{
		Name:    "slippage",
		Aliases: []string{"s"},
		Usage:   "Slippage tolerance in percent",
		Value:   constants.DefaultSlippagePct,
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a pasted mint address to token metadata",
		ArgsUsage: "MINT",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("mint address is required")
			}
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Resolver.Resolve(c.Context, strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return err
			}
			return emit(c, res.Token, func() {
				t := res.Token
				if !res.Found {
					fmt.Println("Token not found; placeholder:")
				}
				fmt.Printf("%s (%s)\n", t.Symbol, t.Name)
				fmt.Printf("  Address:  %s\n", t.Address)
				fmt.Printf("  Decimals: %d\n", t.Decimals)
				fmt.Printf("  Source:   %s\n", t.Source)
				if t.Price != nil {
					fmt.Printf("  Price:    $%g\n", *t.Price)
				}
			})
		},
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "Quote a swap; --watch re-quotes for every amount read from stdin",
		ArgsUsage: "FROM TO [AMOUNT]",
		Flags: []cli.Flag{
			slippageFlag(),
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Read amounts from stdin, one per line, and print the latest quote",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 || (!c.Bool("watch") && c.NArg() < 3) {
				return fmt.Errorf("usage: quote FROM TO AMOUNT")
			}
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := c.Context
			from, err := lookupToken(ctx, a, c.Args().Get(0))
			if err != nil {
				return err
			}
			to, err := lookupToken(ctx, a, c.Args().Get(1))
			if err != nil {
				return err
			}

			if c.Bool("watch") {
				return watchQuotes(c, a, from, to)
			}

			amount, err := parseAmount(c.Args().Get(2))
			if err != nil {
				return err
			}
			raw, err := quote.ToRaw(amount, from.Decimals)
			if err != nil {
				return errs.Wrap(errs.InvalidInput, "Amount below token precision", err)
			}
			q, err := a.Quotes.GetQuote(ctx, quote.Request{
				InputMint:       from.Address,
				OutputMint:      to.Address,
				Amount:          raw,
				SlippagePercent: c.Float64("slippage"),
			})
			if err != nil {
				return err
			}
			s := summarize(q, from, to)
			return emit(c, s, s.print)
		},
	}
}

// watchQuotes debounces amounts typed on stdin and prints only the newest quote.
func watchQuotes(c *cli.Context, a *app.App, from, to models.Token) error {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	quoter := swap.NewDebouncedQuoter(ctx, a.Quotes, constants.QuoteDebounce, func(u swap.QuoteUpdate) {
		if u.Err != nil {
			fmt.Fprintf(os.Stderr, "quote failed: %s\n", errs.MessageOf(u.Err))
			return
		}
		s := summarize(u.Quote, from, to)
		_ = emit(c, s, s.print)
	})
	defer quoter.Stop()

	fmt.Fprintf(os.Stderr, "enter %s amounts, one per line (Ctrl+D to quit)\n", from.Symbol)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			quoter.Invalidate()
			continue
		}
		amount, err := parseAmount(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, errs.MessageOf(err))
			continue
		}
		raw, err := quote.ToRaw(amount, from.Decimals)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		quoter.Request(quote.Request{
			InputMint:       from.Address,
			OutputMint:      to.Address,
			Amount:          raw,
			SlippagePercent: c.Float64("slippage"),
		})
	}
	quoter.Flush()
	return sc.Err()
}

func swapCommand() *cli.Command {
	return &cli.Command{
		Name:      "swap",
		Usage:     "Quote and execute a swap with the wallet in WALLET_PRIVATE_KEY",
		ArgsUsage: "FROM TO AMOUNT",
		Flags: []cli.Flag{
			slippageFlag(),
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Execute without printing the quote first",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("usage: swap FROM TO AMOUNT")
			}
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.Wallet()
			if err != nil {
				return err
			}

			ctx := c.Context
			from, err := lookupToken(ctx, a, c.Args().Get(0))
			if err != nil {
				return err
			}
			to, err := lookupToken(ctx, a, c.Args().Get(1))
			if err != nil {
				return err
			}
			amount, err := parseAmount(c.Args().Get(2))
			if err != nil {
				return err
			}
			raw, err := quote.ToRaw(amount, from.Decimals)
			if err != nil {
				return errs.Wrap(errs.InvalidInput, "Amount below token precision", err)
			}

			slippage := c.Float64("slippage")
			q, err := a.Quotes.GetQuote(ctx, quote.Request{
				InputMint:       from.Address,
				OutputMint:      to.Address,
				Amount:          raw,
				SlippagePercent: slippage,
			})
			if err != nil {
				return err
			}
			if !c.Bool("yes") && !c.Bool("json") {
				summarize(q, from, to).print()
			}

			bg := swap.NewBackground(a.Logger, 0)
			orch := a.Orchestrator(w, bg)
			if err := orch.SetQuote(q); err != nil {
				return err
			}
			toAmount, _ := quote.FromRaw(q.OutAmount, to.Decimals)

			res, swapErr := orch.Confirm(ctx, swap.Request{
				FromToken:  from,
				ToToken:    to,
				FromAmount: amount,
				ToAmount:   toAmount,
				Slippage:   slippage,
			})

			// Swap logging and pricing run in the background; give them a chance to land.
			waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := bg.Wait(waitCtx); err != nil {
				a.Logger.WithError(err).Warn("background tasks still running at exit")
			}

			if err := emit(c, res, func() {
				fmt.Printf("State: %s\n", res.State)
				if res.Signature != "" {
					fmt.Printf("  Signature: %s\n", res.Signature)
				}
				if res.ExplorerURL != "" {
					fmt.Printf("  Explorer:  %s\n", res.ExplorerURL)
				}
			}); err != nil {
				return err
			}
			return swapErr
		},
	}
}

func maxCommand() *cli.Command {
	return &cli.Command{
		Name:      "max",
		Usage:     "Show the largest input amount a wallet can swap after the 0.3% fee",
		ArgsUsage: "TOKEN",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Wallet address (defaults to the WALLET_PRIVATE_KEY wallet)",
			},
			&cli.StringFlag{
				Name:    "fraction",
				Aliases: []string{"f"},
				Usage:   "Preset: 25%, 50%, 75% or max",
				Value:   "max",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("token is required")
			}
			fraction, err := parseFraction(c.String("fraction"))
			if err != nil {
				return err
			}
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			owner := c.String("wallet")
			if owner == "" {
				w, err := a.Wallet()
				if err != nil {
					return fmt.Errorf("pass --wallet or set WALLET_PRIVATE_KEY: %w", err)
				}
				owner = w.Address()
			}

			tok, err := lookupToken(c.Context, a, c.Args().Get(0))
			if err != nil {
				return err
			}
			bal, err := wallet.BalanceOf(c.Context, a.RPC, owner, tok.Address)
			if err != nil {
				return err
			}
			balance := decimal.NewFromFloat(bal)
			amount := swap.PercentOf(balance, fraction).Truncate(int32(tok.Decimals))

			out := map[string]any{
				"wallet":  owner,
				"token":   tok.Symbol,
				"balance": balance.String(),
				"amount":  amount.String(),
				"fee":     swap.PlatformFee(amount).String(),
			}
			return emit(c, out, func() {
				fmt.Printf("Balance: %s %s\n", balance, tok.Symbol)
				fmt.Printf("  Swappable: %s %s (fee %s)\n", amount, tok.Symbol, swap.PlatformFee(amount))
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List a wallet's recent swaps",
		ArgsUsage: "WALLET",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.History.List(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}
			return emit(c, entries, func() {
				if len(entries) == 0 {
					fmt.Println("No swaps recorded")
					return
				}
				for _, e := range entries {
					fmt.Printf("%s  %g %s -> %g %s  [%s]  %s\n",
						e.Timestamp.Local().Format("2006-01-02 15:04:05"),
						e.FromAmount, e.FromTokenSymbol, e.ToAmount, e.ToTokenSymbol, e.Status, e.TxID)
				}
			})
		},
	}
}

func portfolioCommand() *cli.Command {
	return &cli.Command{
		Name:      "portfolio",
		Usage:     "Value the tokens a wallet has swapped",
		ArgsUsage: "WALLET",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Portfolio.ForWallet(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}
			return emit(c, p, func() {
				for _, as := range p.Assets {
					fmt.Printf("%-8s %16.6f  @ $%-12.6g = $%.2f\n", as.Symbol, as.Balance, as.Price, as.ValueUSD)
				}
				fmt.Printf("Total: $%.2f\n", p.TotalUSD)
			})
		},
	}
}

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Stream logged swaps as they happen",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Only show swaps from this wallet",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := setup(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			swaps, err := a.Live.SubscribeSwaps(ctx)
			if err != nil {
				return err
			}
			filter := c.String("wallet")
			fmt.Fprintln(os.Stderr, "listening for swaps (Ctrl+C to stop)")
			for l := range swaps {
				if filter != "" && l.WalletAddress != filter {
					continue
				}
				if err := emit(c, l, func() {
					fmt.Printf("%s  %s  %g %s -> %g %s  %s\n",
						l.LoggedAt.Local().Format("15:04:05"), l.WalletAddress,
						l.FromAmount, l.FromToken, l.ToAmount, l.ToToken, l.Signature)
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
