package fetcher

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
)

// ProviderClient is the upstream the fetcher normalizes from. Satisfied by
// *Client; tests substitute a stub.
type ProviderClient interface {
	FetchDailyHistory(ctx context.Context, symbol string, days int) (*ProviderSeries, error)
}

// Fetcher turns provider responses into validated raw series. Validation
// failures come back as non-retryable FetchErrors: re-fetching bad data from
// the same provider would return the same bad data.
type Fetcher struct {
	client       ProviderClient
	clock        *marketclock.Clock
	lookbackDays int
	source       string
	log          zerolog.Logger
}

// New creates a fetcher over a provider client.
func New(client ProviderClient, clock *marketclock.Clock, lookbackDays int, source string, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:       client,
		clock:        clock,
		lookbackDays: lookbackDays,
		source:       source,
		log:          log.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch pulls and normalizes one symbol's trailing daily history. The
// returned series has ascending, duplicate-free bars, finite OHLC values,
// and a business date equal to the last bar's date.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (*domain.RawSeries, error) {
	raw, err := f.client.FetchDailyHistory(ctx, symbol, f.lookbackDays)
	if err != nil {
		return nil, err
	}

	bars, dropped, err := normalizeBars(symbol, raw.Bars)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, domain.NewFetchError(domain.FetchEmpty, symbol,
			fmt.Errorf("provider returned no usable bars"))
	}
	if dropped > 0 {
		f.log.Warn().
			Str("symbol", symbol).
			Int("dropped", dropped).
			Msg("Dropped bars with non-finite prices")
	}

	now := f.clock.Now()
	series := &domain.RawSeries{
		Symbol:       symbol,
		BusinessDate: bars[len(bars)-1].Date,
		Bars:         bars,
		Metadata:     scrubMetadata(raw.Metadata),
		FirstDate:    bars[0].Date,
		LastDate:     bars[len(bars)-1].Date,
		RowCount:     len(bars),
		Source:       f.source,
		FetchedAt:    now,
		ExpiresAt:    f.clock.NextExpiry(now),
	}

	f.log.Debug().
		Str("symbol", symbol).
		Str("business_date", series.BusinessDate).
		Int("rows", series.RowCount).
		Msg("Normalized raw series")

	return series, nil
}

// normalizeBars sorts ascending by date, rejects duplicate dates, drops bars
// with non-finite OHLC, and nils out non-finite volume. Duplicate dates mean
// the provider response is internally inconsistent, which is a data-quality
// failure rather than a transient one.
func normalizeBars(symbol string, in []ProviderBar) ([]domain.DailyBar, int, error) {
	sorted := make([]ProviderBar, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	bars := make([]domain.DailyBar, 0, len(sorted))
	dropped := 0
	prevDate := ""
	for _, b := range sorted {
		if b.Date == prevDate {
			return nil, 0, domain.NewFetchError(domain.FetchEmpty, symbol,
				fmt.Errorf("duplicate date %s in provider response", b.Date))
		}
		prevDate = b.Date

		if !finite(b.Open) || !finite(b.High) || !finite(b.Low) || !finite(b.Close) {
			dropped++
			continue
		}

		bar := domain.DailyBar{
			Date:  b.Date,
			Open:  b.Open,
			High:  b.High,
			Low:   b.Low,
			Close: b.Close,
		}
		if finite(b.Volume) {
			v := b.Volume
			bar.Volume = &v
		}
		bars = append(bars, bar)
	}

	return bars, dropped, nil
}

// scrubMetadata removes non-finite floats from the provider metadata so the
// document always serializes to strict JSON. Nested maps and slices are
// scrubbed recursively.
func scrubMetadata(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if sv, ok := scrubValue(v); ok {
			out[k] = sv
		}
	}
	return out
}

func scrubValue(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case float64:
		if !finite(t) {
			return nil, false
		}
		return t, true
	case map[string]interface{}:
		return scrubMetadata(t), true
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, e := range t {
			if se, ok := scrubValue(e); ok {
				out = append(out, se)
			}
		}
		return out, true
	default:
		return v, true
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
