package worker

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// chartSeriesDays caps how much history goes into the chart blob. Front-ends
// render at most a year.
const chartSeriesDays = 252

// ChartSeries is the compact series embedded in the artifact for chart
// rendering, encoded with msgpack to keep the blob small.
type ChartSeries struct {
	Dates  []string   `msgpack:"dates" json:"dates"`
	Open   []float64  `msgpack:"open" json:"open"`
	High   []float64  `msgpack:"high" json:"high"`
	Low    []float64  `msgpack:"low" json:"low"`
	Close  []float64  `msgpack:"close" json:"close"`
	Volume []*float64 `msgpack:"volume" json:"volume"`
	SMA20  []*float64 `msgpack:"sma20" json:"sma20"`
	SMA50  []*float64 `msgpack:"sma50" json:"sma50"`
	SMA200 []*float64 `msgpack:"sma200" json:"sma200"`
}

// EncodeChartBlob packs the trailing chart window from the computed
// indicator rows.
func EncodeChartBlob(rows []domain.IndicatorRow) ([]byte, error) {
	if len(rows) > chartSeriesDays {
		rows = rows[len(rows)-chartSeriesDays:]
	}

	series := ChartSeries{
		Dates:  make([]string, len(rows)),
		Open:   make([]float64, len(rows)),
		High:   make([]float64, len(rows)),
		Low:    make([]float64, len(rows)),
		Close:  make([]float64, len(rows)),
		Volume: make([]*float64, len(rows)),
		SMA20:  make([]*float64, len(rows)),
		SMA50:  make([]*float64, len(rows)),
		SMA200: make([]*float64, len(rows)),
	}
	for i := range rows {
		series.Dates[i] = rows[i].Date
		series.Open[i] = rows[i].Open
		series.High[i] = rows[i].High
		series.Low[i] = rows[i].Low
		series.Close[i] = rows[i].Close
		series.Volume[i] = rows[i].Volume
		series.SMA20[i] = rows[i].SMA20
		series.SMA50[i] = rows[i].SMA50
		series.SMA200[i] = rows[i].SMA200
	}

	blob, err := msgpack.Marshal(&series)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart series: %w", err)
	}
	return blob, nil
}

// DecodeChartBlob unpacks a chart blob, used by the report renderer and tests.
func DecodeChartBlob(blob []byte) (*ChartSeries, error) {
	var series ChartSeries
	if err := msgpack.Unmarshal(blob, &series); err != nil {
		return nil, fmt.Errorf("failed to decode chart series: %w", err)
	}
	return &series, nil
}
