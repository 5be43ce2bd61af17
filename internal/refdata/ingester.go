// Package refdata ingests the cross-currency reference-data side stream.
// An independent producer drops CSV files in an object-store prefix; the
// ingester polls the prefix, parses new files, and upserts rows keyed by the
// full (trade date, source, symbol, metric) composite. The stream is
// best-effort enrichment and never blocks the nightly run.
package refdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
)

// ObjectStore is the slice of the object store the ingester needs.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// Ingester polls the drop zone and loads new files. Upserts are idempotent
// on the composite key, so re-processing a file is harmless.
type Ingester struct {
	store  ObjectStore
	repo   *repository.RefDataRepository
	prefix string
	log    zerolog.Logger

	mu   sync.Mutex
	seen map[string]bool // object keys processed this process lifetime
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewIngester creates a reference-data ingester.
func NewIngester(store ObjectStore, repo *repository.RefDataRepository, prefix string, log zerolog.Logger) *Ingester {
	return &Ingester{
		store:  store,
		repo:   repo,
		prefix: prefix,
		log:    log.With().Str("component", "refdata_ingester").Logger(),
		seen:   make(map[string]bool),
		stop:   make(chan struct{}),
	}
}

// Start polls the drop zone on the given interval until Stop.
func (i *Ingester) Start(interval time.Duration) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-i.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if _, err := i.IngestOnce(ctx); err != nil {
					i.log.Error().Err(err).Msg("Reference data ingest cycle failed")
				}
				cancel()
			}
		}
	}()
	i.log.Info().Dur("interval", interval).Str("prefix", i.prefix).Msg("Reference data ingester started")
}

// Stop halts the poll loop.
func (i *Ingester) Stop() {
	close(i.stop)
	i.wg.Wait()
}

// IngestOnce processes all unseen files under the prefix and returns the
// number of rows upserted. A bad file is logged and skipped; it never aborts
// the cycle.
func (i *Ingester) IngestOnce(ctx context.Context) (int, error) {
	keys, err := i.store.List(ctx, i.prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list reference data drop zone: %w", err)
	}

	total := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".csv") {
			continue
		}
		i.mu.Lock()
		done := i.seen[key]
		i.mu.Unlock()
		if done {
			continue
		}

		n, err := i.ingestFile(ctx, key)
		if err != nil {
			i.log.Error().Err(err).Str("key", key).Msg("Failed to ingest reference data file")
			continue
		}

		i.mu.Lock()
		i.seen[key] = true
		i.mu.Unlock()
		total += n
		i.log.Info().Str("key", key).Int("rows", n).Msg("Ingested reference data file")
	}
	return total, nil
}

func (i *Ingester) ingestFile(ctx context.Context, key string) (int, error) {
	data, err := i.store.Download(ctx, key)
	if err != nil {
		return 0, err
	}

	rows, err := ParseCSV(strings.NewReader(string(data)), key)
	if err != nil {
		return 0, err
	}

	stored := 0
	for idx := range rows {
		if err := i.repo.Upsert(&rows[idx]); err != nil {
			return stored, fmt.Errorf("row %d of %s: %w", idx+1, key, err)
		}
		stored++
	}
	return stored, nil
}

// csv column layout of a drop-zone file. The header row is required and
// validated; a file with a different layout is rejected whole.
var expectedHeader = []string{"trade_date", "source_code", "symbol", "metric_code", "value_type", "value"}

// ParseCSV parses one drop-zone file into rows. sourceObject is stamped on
// every row for lineage. Exactly one of numeric/text is set per row based on
// the value_type column.
func ParseCSV(r io.Reader, sourceObject string) ([]domain.RefDataRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for idx, col := range expectedHeader {
		if strings.TrimSpace(strings.ToLower(header[idx])) != col {
			return nil, fmt.Errorf("unexpected header column %d: got %q, want %q", idx, header[idx], col)
		}
	}

	var rows []domain.RefDataRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := domain.RefDataRow{
			TradeDate:    strings.TrimSpace(record[0]),
			SourceCode:   strings.TrimSpace(record[1]),
			Symbol:       strings.ToUpper(strings.TrimSpace(record[2])),
			MetricCode:   strings.TrimSpace(record[3]),
			SourceObject: sourceObject,
		}
		if row.TradeDate == "" || row.SourceCode == "" || row.Symbol == "" || row.MetricCode == "" {
			return nil, fmt.Errorf("line %d: empty key column", line)
		}

		valueType := strings.TrimSpace(strings.ToLower(record[4]))
		value := strings.TrimSpace(record[5])
		switch valueType {
		case "numeric":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad numeric value %q: %w", line, value, err)
			}
			// ParseFloat accepts NaN and Inf spellings; nothing downstream may
			// persist a non-finite cell.
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d: bad numeric value %q: not finite", line, value)
			}
			row.NumericValue = &v
		case "text":
			row.TextValue = &value
		default:
			return nil, fmt.Errorf("line %d: unknown value_type %q", line, valueType)
		}

		rows = append(rows, row)
	}
	return rows, nil
}
