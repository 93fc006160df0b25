// Package pairs maps parsed currency names onto the exchange's tradable
// pair universe, including the venue's legacy asset aliases.
package pairs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"signal-trader/pkg/exchange"
)

// ErrPairNotFound reports that no tradable pair exists for the requested
// currencies under any accepted quote.
var ErrPairNotFound = errors.New("pair not found")

// Source lists the exchange's tradable pairs.
type Source interface {
	ListPairs(ctx context.Context) ([]exchange.PairInfo, error)
}

const defaultCacheTTL = time.Hour

// Kraken still lists some assets under their historical codes.
var assetAliases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// Resolver resolves base/quote pairs against a cached pair universe. The
// cache refreshes after its TTL and on any lookup miss, so newly listed
// pairs are picked up without a restart.
type Resolver struct {
	source         Source
	preferredQuote string
	ttl            time.Duration

	mu        sync.Mutex
	pairs     map[string]exchange.PairInfo // keyed by BASE/QUOTE in canonical codes
	fetchedAt time.Time
}

// NewResolver builds a resolver. preferredQuote is tried before the
// signal's own quote currency.
func NewResolver(source Source, preferredQuote string) *Resolver {
	return &Resolver{
		source:         source,
		preferredQuote: strings.ToUpper(preferredQuote),
		ttl:            defaultCacheTTL,
	}
}

// Resolve returns the tradable pair for base/quote. The preferred quote is
// tried first, then the signal's quote. A miss forces one cache refresh
// before giving up with ErrPairNotFound.
func (r *Resolver) Resolve(ctx context.Context, base, quote string) (exchange.PairInfo, error) {
	base = canonical(base)
	quote = canonical(quote)

	candidates := make([]string, 0, 2)
	if r.preferredQuote != "" {
		candidates = append(candidates, canonical(r.preferredQuote))
	}
	if quote != "" && !contains(candidates, quote) {
		candidates = append(candidates, quote)
	}
	if len(candidates) == 0 {
		return exchange.PairInfo{}, fmt.Errorf("%w: %s with no quote currency", ErrPairNotFound, base)
	}

	for _, fresh := range []bool{false, true} {
		universe, err := r.universe(ctx, fresh)
		if err != nil {
			return exchange.PairInfo{}, fmt.Errorf("list pairs: %w", err)
		}
		for _, q := range candidates {
			if info, ok := universe[base+"/"+q]; ok {
				return info, nil
			}
		}
	}

	return exchange.PairInfo{}, fmt.Errorf("%w: %s against %s", ErrPairNotFound, base, strings.Join(candidates, " or "))
}

// universe returns the cached pair map, refreshing when stale or when the
// caller demands a fresh fetch.
func (r *Resolver) universe(ctx context.Context, force bool) (map[string]exchange.PairInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !force && r.pairs != nil && time.Since(r.fetchedAt) < r.ttl {
		return r.pairs, nil
	}

	listed, err := r.source.ListPairs(ctx)
	if err != nil {
		if r.pairs != nil {
			log.Printf("pairs: refresh failed, serving stale universe: %v", err)
			return r.pairs, nil
		}
		return nil, err
	}

	pairs := make(map[string]exchange.PairInfo, len(listed))
	for _, p := range listed {
		// WSName carries the clean asset codes; Base/Quote hold Kraken's
		// raw ones (XXBT, ZUSD) which never appear in signals.
		base, quote, ok := strings.Cut(p.WSName, "/")
		if !ok {
			continue
		}
		pairs[canonical(base)+"/"+canonical(quote)] = p
	}
	r.pairs = pairs
	r.fetchedAt = time.Now()
	log.Printf("pairs: universe refreshed, %d pairs", len(pairs))
	return pairs, nil
}

// canonical upper-cases a currency and applies the venue's asset aliases.
func canonical(cur string) string {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	if alias, ok := assetAliases[cur]; ok {
		return alias
	}
	return cur
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
