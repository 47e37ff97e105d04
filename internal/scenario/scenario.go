// Package scenario loads scripted trading sessions and replays them against the engine.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/idhash"
)

// Step actions.
const (
	ActionBuy         = "buy"
	ActionSell        = "sell"
	ActionPreviewBuy  = "preview_buy"
	ActionPreviewSell = "preview_sell"
	ActionQuote       = "quote" // SOL needed for an exact token amount
	ActionAdvance     = "advance"
)

// Scenario is a named list of instruments and the steps traded against them.
type Scenario struct {
	Name        string       `yaml:"name"`
	Instruments []Instrument `yaml:"instruments"`
	Steps       []Step       `yaml:"steps"`
}

// Instrument declares an instrument by label. Mint and Creator may be real base58
// addresses; otherwise addresses are derived from the labels.
type Instrument struct {
	Label   string `yaml:"label"`
	Mint    string `yaml:"mint"`
	Creator string `yaml:"creator"`
}

// Step is one scripted action.
//
// Buy amounts are given in whole SOL (Sol) or lamports (Amount); sell amounts in
// whole tokens (Tokens), base units (Amount) or All for the wallet's whole balance.
type Step struct {
	Action         string `yaml:"action"`
	Instrument     string `yaml:"instrument"`
	Wallet         string `yaml:"wallet"`
	Amount         uint64 `yaml:"amount"`
	Sol            string `yaml:"sol"`
	Tokens         string `yaml:"tokens"`
	All            bool   `yaml:"all"`
	MinOut         uint64 `yaml:"min_out"`
	MaxSlippageBps uint32 `yaml:"max_slippage_bps"`
	SlippageBps    uint32 `yaml:"slippage_bps"` // previews only
	Repeat         int    `yaml:"repeat"`
	Duration       string `yaml:"duration"` // advance only
	ExpectError    string `yaml:"expect_error"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Parse decodes a scenario from YAML bytes.
func Parse(data []byte) (*Scenario, error) {
	return Decode(bytes.NewReader(data))
}

// Decode decodes and validates a scenario. Unknown fields are rejected.
func Decode(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse scenario: empty document")
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

var knownKinds = map[domain.ErrorKind]bool{
	domain.KindInvalidAmount:         true,
	domain.KindInsufficientLiquidity: true,
	domain.KindSlippageExceeded:      true,
	domain.KindStateNotFound:         true,
	domain.KindPersistenceFailure:    true,
	domain.KindInstrumentExists:      true,
	domain.KindInvalidAddress:        true,
}

// Validate checks labels, actions and amounts.
func (sc *Scenario) Validate() error {
	if len(sc.Instruments) == 0 {
		return errors.New("scenario: no instruments")
	}
	labels := make(map[string]bool, len(sc.Instruments))
	for i, in := range sc.Instruments {
		if in.Label == "" {
			return fmt.Errorf("scenario: instrument %d: missing label", i)
		}
		if labels[in.Label] {
			return fmt.Errorf("scenario: duplicate instrument %q", in.Label)
		}
		labels[in.Label] = true
	}

	for i, st := range sc.Steps {
		if err := st.validate(labels); err != nil {
			return fmt.Errorf("scenario: step %d: %w", i, err)
		}
	}
	return nil
}

func (st Step) validate(labels map[string]bool) error {
	if st.ExpectError != "" && !knownKinds[domain.ErrorKind(st.ExpectError)] {
		return fmt.Errorf("unknown error kind %q", st.ExpectError)
	}
	if st.Repeat < 0 {
		return errors.New("repeat must not be negative")
	}
	if st.Action == ActionAdvance {
		if st.Duration == "" {
			return errors.New("advance needs a duration")
		}
		return nil
	}
	if !labels[st.Instrument] {
		return fmt.Errorf("unknown instrument %q", st.Instrument)
	}

	set := 0
	for _, ok := range []bool{st.Amount > 0, st.Sol != "", st.Tokens != "", st.All} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return errors.New("give only one of amount, sol, tokens and all")
	}

	switch st.Action {
	case ActionBuy, ActionPreviewBuy:
		if st.Tokens != "" || st.All {
			return fmt.Errorf("%s takes sol or amount", st.Action)
		}
	case ActionSell, ActionPreviewSell:
		if st.Sol != "" {
			return fmt.Errorf("%s takes tokens, amount or all", st.Action)
		}
	case ActionQuote:
		if st.Sol != "" || st.All {
			return errors.New("quote takes tokens or amount")
		}
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	if (st.Action == ActionBuy || st.Action == ActionSell) && st.Wallet == "" {
		return fmt.Errorf("%s needs a wallet", st.Action)
	}
	if st.Sol != "" {
		if _, err := decimal.NewFromString(st.Sol); err != nil {
			return fmt.Errorf("sol %q: %w", st.Sol, err)
		}
	}
	if st.Tokens != "" {
		if _, err := decimal.NewFromString(st.Tokens); err != nil {
			return fmt.Errorf("tokens %q: %w", st.Tokens, err)
		}
	}
	return nil
}

// MintOf returns the mint address of an instrument declaration.
func (sc *Scenario) MintOf(in Instrument) string {
	if in.Mint != "" {
		return in.Mint
	}
	return idhash.DeriveMint(sc.Name, in.Label)
}
