package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/engine"
	"token-curve-engine/internal/scenario"
)

type instrumentSummary struct {
	Instrument string                  `json:"instrument"`
	State      *domain.InstrumentState `json:"state"`
	Metrics    *domain.Metrics         `json:"metrics"`
	Candles    []domain.Candle         `json:"candles"`
}

type summary struct {
	Scenario    *scenario.Report    `json:"scenario,omitempty"`
	Instruments []instrumentSummary `json:"instruments"`
}

func summarize(ctx context.Context, ctrl *engine.Controller, report *scenario.Report, interval int64, limit int) (*summary, error) {
	ids := ctrl.Instruments()
	sort.Strings(ids)

	sum := &summary{Scenario: report}
	for _, id := range ids {
		state, err := ctrl.State(ctx, id)
		if err != nil {
			return nil, err
		}
		m, err := ctrl.Metrics(ctx, id)
		if err != nil {
			return nil, err
		}
		candles, err := ctrl.Candles(ctx, id, interval, limit)
		if err != nil {
			return nil, err
		}
		sum.Instruments = append(sum.Instruments, instrumentSummary{
			Instrument: id,
			State:      state,
			Metrics:    m,
			Candles:    candles,
		})
	}
	return sum, nil
}

func printSummary(w io.Writer, sum *summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if r := sum.Scenario; r != nil {
		fmt.Fprintf(tw, "Scenario %s: %d executed, %d previewed, %d rejected\n", r.Name, r.Executed, r.Previewed, r.Rejected)
		fmt.Fprintln(tw, "STEP\tACTION\tINSTRUMENT\tINPUT\tOUTPUT\tPRICE\tRESULT")
		for _, res := range r.Results {
			result := "ok"
			if res.Kind != domain.KindNone {
				result = string(res.Kind)
			} else if res.Graduated {
				result = "graduated"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
				res.Step, res.Action, res.Instrument, res.Input, res.Output, res.Price.StringFixed(12), result)
		}
		fmt.Fprintln(tw)
	}

	for _, in := range sum.Instruments {
		m := in.Metrics
		fmt.Fprintf(tw, "Instrument %s (%s)\n", in.Instrument, in.State.Phase)
		fmt.Fprintf(tw, "  price\t%s SOL\n", m.CurrentPrice.StringFixed(12))
		fmt.Fprintf(tw, "  market cap\t%s SOL\n", m.MarketCap.StringFixed(4))
		fmt.Fprintf(tw, "  volume 24h\t%s SOL\n", m.Volume24h.StringFixed(4))
		fmt.Fprintf(tw, "  change 24h\t%s%%\n", m.PriceChange24h.StringFixed(2))
		fmt.Fprintf(tw, "  progress\t%s%%\n", m.GraduationProgress.StringFixed(2))
		fmt.Fprintf(tw, "  holders\t%d\n", m.HolderCount)
		fmt.Fprintf(tw, "  trades\t%d\n", m.TradeCount)
		if p := in.State.Pool; p != nil {
			fmt.Fprintf(tw, "  pool\t%s (%d tokens / %d lamports)\n", p.Address, p.TokenReserve, p.SolReserve)
		}
		fmt.Fprintln(tw, "  TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tTRADES")
		for _, c := range in.Candles {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				time.Unix(c.Time, 0).UTC().Format(time.RFC3339),
				c.Open.StringFixed(12), c.High.StringFixed(12), c.Low.StringFixed(12), c.Close.StringFixed(12),
				c.Volume.StringFixed(4), c.TradeCount)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
