package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// KrakenClient wraps the public Kraken REST API: tradable pairs, tickers and
// OHLC. Private (signed) endpoints are not needed in dry-run mode.
type KrakenClient struct {
	BaseURL    string
	HTTPClient *http.Client

	limiter *rate.Limiter
}

// NewKrakenClient builds a public REST client with a finite timeout and a
// conservative request budget (Kraken public tier allows ~1 req/s sustained).
func NewKrakenClient() *KrakenClient {
	return &KrakenClient{
		BaseURL:    "https://api.kraken.com",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
	}
}

// PairInfo describes one tradable pair as Kraken reports it.
type PairInfo struct {
	Symbol string // altname, e.g. XBTUSDT
	WSName string // "XBT/USDT"
	Base   string
	Quote  string
}

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *KrakenClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("kraken %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("kraken %s: status %d", path, res.StatusCode)
	}

	var env krakenEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("kraken %s: decode: %w", path, err)
	}
	if len(env.Error) > 0 {
		return fmt.Errorf("kraken %s: %s", path, env.Error[0])
	}
	return json.Unmarshal(env.Result, out)
}

// ListPairs fetches the tradable symbol universe.
func (c *KrakenClient) ListPairs(ctx context.Context) ([]PairInfo, error) {
	var raw map[string]struct {
		Altname string `json:"altname"`
		WSName  string `json:"wsname"`
		Base    string `json:"base"`
		Quote   string `json:"quote"`
	}
	if err := c.get(ctx, "/0/public/AssetPairs", nil, &raw); err != nil {
		return nil, err
	}

	pairs := make([]PairInfo, 0, len(raw))
	for _, p := range raw {
		if p.Altname == "" || p.WSName == "" {
			continue
		}
		pairs = append(pairs, PairInfo{
			Symbol: p.Altname,
			WSName: p.WSName,
			Base:   p.Base,
			Quote:  p.Quote,
		})
	}
	return pairs, nil
}

// GetMarketPrice returns the last trade price for an exchange symbol.
func (c *KrakenClient) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("pair", symbol)

	var raw map[string]struct {
		C []string `json:"c"` // [price, lot volume]
	}
	if err := c.get(ctx, "/0/public/Ticker", params, &raw); err != nil {
		return 0, err
	}

	for _, t := range raw {
		if len(t.C) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(t.C[0], 64)
		if err != nil {
			return 0, fmt.Errorf("kraken ticker %s: bad price %q", symbol, t.C[0])
		}
		return price, nil
	}
	return 0, fmt.Errorf("kraken ticker %s: empty result", symbol)
}

// Candle is one OHLC entry.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OHLC fetches recent candles for symbol at the given interval (minutes).
func (c *KrakenClient) OHLC(ctx context.Context, symbol string, intervalMinutes, count int) ([]Candle, error) {
	params := url.Values{}
	params.Set("pair", symbol)
	params.Set("interval", strconv.Itoa(intervalMinutes))

	var raw map[string]json.RawMessage
	if err := c.get(ctx, "/0/public/OHLC", params, &raw); err != nil {
		return nil, err
	}

	var candles []Candle
	for key, msg := range raw {
		if key == "last" {
			continue
		}
		// Kraken returns [time, open, high, low, close, vwap, volume, count]
		var rows [][]any
		if err := json.Unmarshal(msg, &rows); err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: decode: %w", symbol, err)
		}
		for _, row := range rows {
			if len(row) < 7 {
				continue
			}
			candles = append(candles, Candle{
				Time:   time.Unix(int64(toFloat(row[0])), 0),
				Open:   toFloat(row[1]),
				High:   toFloat(row[2]),
				Low:    toFloat(row[3]),
				Close:  toFloat(row[4]),
				Volume: toFloat(row[6]),
			})
		}
	}

	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
