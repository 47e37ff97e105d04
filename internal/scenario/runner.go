package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"token-curve-engine/internal/address"
	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/idhash"
)

// ErrUnexpectedOutcome is returned when a step fails that should succeed or
// succeeds when it should fail.
var ErrUnexpectedOutcome = errors.New("unexpected outcome")

// Engine is the part of the controller a scenario drives.
type Engine interface {
	InitInstrument(ctx context.Context, instrument, creator string) (*domain.InstrumentState, error)
	ExecuteBuy(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error)
	ExecuteSell(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error)
	PreviewBuy(ctx context.Context, instrument string, solIn uint64, slippageBps uint32) (*domain.TradePreview, error)
	PreviewSell(ctx context.Context, instrument string, tokensIn uint64, slippageBps uint32) (*domain.TradePreview, error)
	QuoteSolForTokens(ctx context.Context, instrument string, tokensOut uint64) (uint64, error)
}

// Options for creating a Runner.
type Options struct {
	TokenDecimals int32
	SolDecimals   int32
	Advance       func(time.Duration) // moves the engine clock; advance steps fail without it
	Logger        *zap.Logger
}

// Result is the outcome of one executed step.
type Result struct {
	Step       int
	Action     string
	Instrument string // label
	Wallet     string // address
	Input      uint64
	Output     uint64
	Price      decimal.Decimal
	Impact     decimal.Decimal // previews only
	Graduated  bool
	Kind       domain.ErrorKind // KindNone on success
}

// Report summarizes a run.
type Report struct {
	Name      string
	Mints     map[string]string // label -> mint
	Results   []Result
	Executed  int
	Previewed int
	Rejected  int
	Graduated []string // labels, in graduation order
}

// Runner replays scenarios against an Engine, tracking each wallet's token balance.
type Runner struct {
	engine   Engine
	opts     Options
	log      *zap.Logger
	balances map[string]map[string]uint64 // mint -> wallet -> tokens
}

// NewRunner creates a Runner.
func NewRunner(engine Engine, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		engine:   engine,
		opts:     opts,
		log:      log,
		balances: make(map[string]map[string]uint64),
	}
}

// Balance returns the tokens a wallet holds according to the steps run so far.
func (r *Runner) Balance(mint, wallet string) uint64 {
	return r.balances[mint][wallet]
}

// Run initializes the scenario's instruments and executes its steps in order.
// It stops at the first step whose outcome differs from the expectation.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	report := &Report{Name: sc.Name, Mints: make(map[string]string, len(sc.Instruments))}

	for _, in := range sc.Instruments {
		mint := sc.MintOf(in)
		creator := in.Creator
		if creator == "" {
			creator = "creator-" + in.Label
		}
		if _, err := r.engine.InitInstrument(ctx, mint, walletAddress(creator)); err != nil {
			return report, fmt.Errorf("init %s: %w", in.Label, err)
		}
		report.Mints[in.Label] = mint
		r.log.Info("scenario instrument", zap.String("label", in.Label), zap.String("mint", mint))
	}

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if st.Action == ActionAdvance {
			if err := r.advance(st); err != nil {
				return report, fmt.Errorf("step %d: %w", i, err)
			}
			continue
		}

		times := st.Repeat
		if times == 0 {
			times = 1
		}
		for n := 0; n < times; n++ {
			res, err := r.step(ctx, report.Mints[st.Instrument], st)
			res.Step = i
			res.Action = st.Action
			res.Instrument = st.Instrument
			res.Kind = domain.KindOf(err)
			report.Results = append(report.Results, res)

			if want := domain.ErrorKind(st.ExpectError); res.Kind != want {
				if err == nil {
					return report, fmt.Errorf("%w: step %d (%s): expected %s, succeeded", ErrUnexpectedOutcome, i, st.Action, want)
				}
				return report, fmt.Errorf("%w: step %d (%s): %v", ErrUnexpectedOutcome, i, st.Action, err)
			}
			switch {
			case err != nil:
				report.Rejected++
			case st.Action == ActionBuy || st.Action == ActionSell:
				report.Executed++
			default:
				report.Previewed++
			}
			if res.Graduated && (st.Action == ActionBuy || st.Action == ActionSell) {
				report.Graduated = append(report.Graduated, st.Instrument)
			}
		}
	}

	r.log.Info("scenario finished",
		zap.String("name", sc.Name),
		zap.Int("executed", report.Executed),
		zap.Int("previewed", report.Previewed),
		zap.Int("rejected", report.Rejected),
	)
	return report, nil
}

func (r *Runner) advance(st Step) error {
	if r.opts.Advance == nil {
		return errors.New("advance: engine clock is not controllable")
	}
	d, err := time.ParseDuration(st.Duration)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	r.opts.Advance(d)
	return nil
}

func (r *Runner) step(ctx context.Context, mint string, st Step) (Result, error) {
	wallet := walletAddress(st.Wallet)
	res := Result{Wallet: wallet}

	amount, err := r.amount(mint, wallet, st)
	if err != nil {
		return res, err
	}
	res.Input = amount

	switch st.Action {
	case ActionBuy, ActionSell:
		req := domain.TradeRequest{
			Instrument:     mint,
			Wallet:         wallet,
			Amount:         amount,
			MinOut:         st.MinOut,
			MaxSlippageBps: st.MaxSlippageBps,
		}
		var out *domain.TradeResult
		if st.Action == ActionBuy {
			out, err = r.engine.ExecuteBuy(ctx, req)
		} else {
			out, err = r.engine.ExecuteSell(ctx, req)
		}
		if err != nil {
			return res, err
		}
		res.Output = out.OutputAmount
		res.Price = out.ExecutionPrice
		res.Graduated = out.Graduated
		r.settle(mint, wallet, st.Action, amount, out.OutputAmount)

	case ActionPreviewBuy, ActionPreviewSell:
		var p *domain.TradePreview
		if st.Action == ActionPreviewBuy {
			p, err = r.engine.PreviewBuy(ctx, mint, amount, st.SlippageBps)
		} else {
			p, err = r.engine.PreviewSell(ctx, mint, amount, st.SlippageBps)
		}
		if err != nil {
			return res, err
		}
		res.Output = p.OutputAmount
		res.Price = p.ExecutionPrice
		res.Impact = p.PriceImpact
		res.Graduated = p.WouldGraduate

	case ActionQuote:
		sol, err := r.engine.QuoteSolForTokens(ctx, mint, amount)
		if err != nil {
			return res, err
		}
		res.Output = sol
	}
	return res, nil
}

// amount resolves a step's input in base units.
func (r *Runner) amount(mint, wallet string, st Step) (uint64, error) {
	switch {
	case st.All:
		return r.Balance(mint, wallet), nil
	case st.Sol != "":
		return toBaseUnits(st.Sol, r.opts.SolDecimals)
	case st.Tokens != "":
		return toBaseUnits(st.Tokens, r.opts.TokenDecimals)
	default:
		return st.Amount, nil
	}
}

func (r *Runner) settle(mint, wallet, action string, in, out uint64) {
	held, ok := r.balances[mint]
	if !ok {
		held = make(map[string]uint64)
		r.balances[mint] = held
	}
	if action == ActionBuy {
		held[wallet] += out
		return
	}
	if in >= held[wallet] {
		delete(held, wallet)
		return
	}
	held[wallet] -= in
}

// toBaseUnits converts a whole-unit decimal string to base units.
func toBaseUnits(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	units := d.Shift(decimals)
	if units.IsNegative() || !units.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", domain.ErrInvalidAmount, s, decimals)
	}
	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows", domain.ErrInvalidAmount, s)
	}
	return bi.Uint64(), nil
}

// walletAddress returns label itself when it is a wallet address and a derived
// address otherwise.
func walletAddress(label string) string {
	if address.ValidateWallet(label) == nil {
		return label
	}
	return idhash.DeriveWallet(label)
}
