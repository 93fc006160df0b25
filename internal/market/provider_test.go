package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-trader/internal/selldecision"
	"signal-trader/pkg/exchange"
)

type fakeOHLC struct {
	candles []exchange.Candle
	err     error
}

func (f *fakeOHLC) OHLC(context.Context, string, int, int) ([]exchange.Candle, error) {
	return f.candles, f.err
}

func candleSeries(closes []float64, volume float64) []exchange.Candle {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	out := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		out[i] = exchange.Candle{Time: start.Add(time.Duration(i) * time.Hour), Close: c, Volume: volume}
	}
	return out
}

func TestSnapshotUnavailable(t *testing.T) {
	p := NewProvider(&fakeOHLC{err: errors.New("kraken: 503")})
	if got := p.Snapshot(context.Background(), "XBTUSDT"); got != nil {
		t.Errorf("Snapshot = %+v, want nil on fetch failure", got)
	}

	p = NewProvider(&fakeOHLC{candles: candleSeries([]float64{1, 2, 3}, 10)})
	if got := p.Snapshot(context.Background(), "XBTUSDT"); got != nil {
		t.Errorf("Snapshot = %+v, want nil on short history", got)
	}
}

func TestSnapshotTrend(t *testing.T) {
	up := []float64{100, 100, 100, 100, 100, 100, 104, 108}
	down := []float64{108, 108, 108, 108, 108, 108, 104, 100}
	flat := []float64{100, 100, 100, 100, 100, 100, 100, 100}

	cases := []struct {
		name   string
		closes []float64
		want   string
	}{
		{"bullish", up, selldecision.TrendBullish},
		{"bearish", down, selldecision.TrendBearish},
		{"neutral", flat, selldecision.TrendNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProvider(&fakeOHLC{candles: candleSeries(tc.closes, 10)})
			got := p.Snapshot(context.Background(), "XBTUSDT")
			if got == nil {
				t.Fatal("Snapshot = nil")
			}
			if got.Trend != tc.want {
				t.Errorf("Trend = %s, want %s", got.Trend, tc.want)
			}
		})
	}
}

func TestSnapshotVolumeChange(t *testing.T) {
	candles := candleSeries([]float64{100, 101, 100, 101, 100, 101, 100, 101}, 0)
	for i := range candles {
		if i < 6 {
			candles[i].Volume = 100
		} else {
			candles[i].Volume = 40 // last quarter dries up
		}
	}

	p := NewProvider(&fakeOHLC{candles: candles})
	got := p.Snapshot(context.Background(), "XBTUSDT")
	if got == nil {
		t.Fatal("Snapshot = nil")
	}
	// Recent quarter (2 candles, 80) vs prior quarter (2 candles, 200).
	if got.VolumeChangePct != -60 {
		t.Errorf("VolumeChangePct = %g, want -60", got.VolumeChangePct)
	}
}

func TestSnapshotVolatility(t *testing.T) {
	calm := candleSeries([]float64{100, 100.1, 100, 100.1, 100, 100.1, 100, 100.1}, 10)
	wild := candleSeries([]float64{100, 120, 95, 130, 90, 140, 85, 150}, 10)

	p := NewProvider(&fakeOHLC{candles: calm})
	calmSnap := p.Snapshot(context.Background(), "XBTUSDT")
	p = NewProvider(&fakeOHLC{candles: wild})
	wildSnap := p.Snapshot(context.Background(), "XBTUSDT")

	if calmSnap == nil || wildSnap == nil {
		t.Fatal("nil snapshot")
	}
	if wildSnap.Volatility <= calmSnap.Volatility {
		t.Errorf("volatility: wild %g should exceed calm %g", wildSnap.Volatility, calmSnap.Volatility)
	}
}
