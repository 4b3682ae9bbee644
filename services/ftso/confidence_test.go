package ftso

import (
	"context"
	"testing"
	"time"

	"github.com/flarekit/flaresdk/transport"
)

func TestIntervalBandsNestAndWiden(t *testing.T) {
	// The properties must hold across the whole confidence range.
	for c := 0.0; c <= 1.0; c += 0.05 {
		quote := PriceQuote{
			Symbol:     "FLR/USD",
			Price:      0.025,
			Timestamp:  time.Unix(1_700_000_000, 0),
			Confidence: Confidence{Overall: c, Providers: 12},
		}
		interval := intervalFromQuote(quote)

		if len(interval.Bands) != 4 {
			t.Fatalf("c=%.2f: expected 4 bands, got %d", c, len(interval.Bands))
		}
		levels := []float64{0.50, 0.80, 0.95, 0.99}
		prevWidth := 0.0
		for i, band := range interval.Bands {
			if band.Level != levels[i] {
				t.Fatalf("c=%.2f: band %d level = %v", c, i, band.Level)
			}
			if band.Lower > quote.Price || band.Upper < quote.Price {
				t.Fatalf("c=%.2f: price outside %.0f%% band: [%v, %v]", c, band.Level*100, band.Lower, band.Upper)
			}
			width := band.Upper - band.Lower
			if width <= prevWidth {
				t.Fatalf("c=%.2f: band %d width %v not wider than previous %v", c, i, width, prevWidth)
			}
			prevWidth = width
		}
	}
}

func TestIntervalBandsWidenForZeroPrice(t *testing.T) {
	quote := PriceQuote{
		Symbol:     "DUST/USD",
		Price:      0,
		Timestamp:  time.Unix(1_700_000_000, 0),
		Confidence: Confidence{Overall: 0.9, Providers: 4},
	}
	interval := intervalFromQuote(quote)

	prevWidth := 0.0
	for i, band := range interval.Bands {
		width := band.Upper - band.Lower
		if width <= prevWidth {
			t.Fatalf("band %d width %v not wider than previous %v", i, width, prevWidth)
		}
		if band.Lower > 0 || band.Upper < 0 {
			t.Fatalf("zero price outside %.0f%% band: [%v, %v]", band.Level*100, band.Lower, band.Upper)
		}
		prevWidth = width
	}
}

func TestIntervalWidthScalesWithVariance(t *testing.T) {
	at := func(confidence float64) float64 {
		quote := PriceQuote{Price: 100, Confidence: Confidence{Overall: confidence}}
		bands := intervalFromQuote(quote).Bands
		return bands[2].Upper - bands[2].Lower
	}
	// Lower confidence means a wider 95% band.
	if at(0.5) <= at(0.9) {
		t.Fatalf("width at c=0.5 (%v) should exceed width at c=0.9 (%v)", at(0.5), at(0.9))
	}
	// v = 1 - c: the 95% band half-width is 1.96 * v * price.
	want := 2 * 1.96 * 0.1 * 100.0
	if got := at(0.9); got < want-1e-6 || got > want+1e-6 {
		t.Fatalf("95%% band width = %v, want %v", got, want)
	}
}

func TestGetConfidenceInterval(t *testing.T) {
	conn := NewConnection(nil, transport.NewSimulated(13), nil)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	interval, err := conn.GetConfidenceInterval(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("confidence interval: %v", err)
	}
	if interval.Symbol != "BTC/USD" || interval.Price <= 0 {
		t.Fatalf("unexpected interval: %#v", interval)
	}
}
