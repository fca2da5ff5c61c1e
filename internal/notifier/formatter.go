package notifier

import (
	"fmt"
	"math"
	"strings"

	"github.com/RonoHenry/AgentICTrader/internal/confluence"
	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// Headline is a one-line summary used to detect meaningful changes.
func Headline(sc model.SignalContext) string {
	var b strings.Builder
	if sc.BiasDirection != "" {
		fmt.Fprintf(&b, "%s bias %s", sc.BiasTimeframe, sc.BiasDirection)
	} else {
		b.WriteString("no bias")
	}
	for _, tf := range sc.Timeframes {
		fmt.Fprintf(&b, " | %s %s", tf.Timeframe, tf.Phase)
		if tf.PhaseDirection != "" {
			fmt.Fprintf(&b, " %s", tf.PhaseDirection)
		}
	}
	return b.String()
}

// FormatContext renders a SignalContext as a Telegram HTML message.
func FormatContext(sc model.SignalContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 <b>%s</b> | %s UTC\n", sc.Symbol, sc.AsOf.UTC().Format("2006-01-02 15:04"))
	if sc.BiasDirection != "" {
		fmt.Fprintf(&b, "Bias: <b>%s</b> from %s expansion\n", sc.BiasDirection, sc.BiasTimeframe)
	} else {
		b.WriteString("Bias: none\n")
	}
	fmt.Fprintf(&b, "Alignment %.2f", sc.Correlation)
	if sc.DominantTimeframe != "" {
		fmt.Fprintf(&b, " | most active %s (%.0f%%)", sc.DominantTimeframe, sc.DominantStrength*100)
	}
	b.WriteString("\n\n")

	for _, tf := range sc.Timeframes {
		fmt.Fprintf(&b, "<b>%s</b> %s", tf.Timeframe, tf.Phase)
		if tf.PhaseDirection != "" {
			fmt.Fprintf(&b, " (%s)", tf.PhaseDirection)
		}
		fmt.Fprintf(&b, " %.2f %s\n", tf.PhaseStrength, confluence.GradeOf(tf.PhaseStrength))
		fmt.Fprintf(&b, "  close %s", model.FormatPrice(tf.LastClose))
		if tf.RangePosition != nil {
			fmt.Fprintf(&b, " at %.0f%% of range", *tf.RangePosition*100)
		}
		b.WriteString("\n")
		for _, z := range tf.ActiveZones {
			fmt.Fprintf(&b, "  %s %s-%s strength %.2f %s\n",
				z.Kind, model.FormatPrice(z.PriceLow), model.FormatPrice(z.PriceHigh), z.Strength, confluence.GradeOf(z.Strength))
		}
		if n := len(tf.OpenFVGs); n > 0 {
			fmt.Fprintf(&b, "  %d open FVG", n)
			if n > 1 {
				b.WriteString("s")
			}
			fmt.Fprintf(&b, ", nearest CE %.6g\n", nearestGap(tf.OpenFVGs, tf.LastClose).Midpoint())
		}
		if n := len(tf.UnsweptPools); n > 0 {
			fmt.Fprintf(&b, "  %d unswept pool", n)
			if n > 1 {
				b.WriteString("s")
			}
			b.WriteString("\n")
		}
	}

	if len(sc.Invalidated) > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d zone", len(sc.Invalidated))
		if len(sc.Invalidated) > 1 {
			b.WriteString("s")
		}
		b.WriteString(" overridden by higher timeframe\n")
	}
	return b.String()
}

// FormatTransitions lists phase transitions, oldest first.
func FormatTransitions(symbol string, tf model.Timeframe, transitions []model.PhaseTransition) string {
	if len(transitions) == 0 {
		return fmt.Sprintf("No %s phase transitions for %s yet.", tf, symbol)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔁 <b>%s %s phases</b>\n", symbol, tf)
	for _, tr := range transitions {
		fmt.Fprintf(&b, "%s %s → %s", tr.At.UTC().Format("01-02 15:04"), tr.From, tr.To)
		if tr.Direction != "" {
			fmt.Fprintf(&b, " (%s)", tr.Direction)
		}
		fmt.Fprintf(&b, " %.2f\n", tr.Strength)
	}
	return b.String()
}

// nearestGap is the gap whose midpoint lies closest to price.
func nearestGap(gaps []model.FairValueGap, price float64) model.FairValueGap {
	best := gaps[0]
	for _, g := range gaps[1:] {
		if math.Abs(g.Midpoint()-price) < math.Abs(best.Midpoint()-price) {
			best = g
		}
	}
	return best
}
