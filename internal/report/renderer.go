// Package report renders precomputed artifacts into PDF reports and runs the
// on-demand report job lifecycle.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	"github.com/Awannaphasch2016/dr-daily-report/internal/worker"
)

// Renderer turns a completed artifact into a PDF document. It only reads the
// artifact; all numbers were computed in the derived phase.
type Renderer struct {
	log zerolog.Logger
}

// NewRenderer creates a PDF renderer.
func NewRenderer(log zerolog.Logger) *Renderer {
	return &Renderer{log: log.With().Str("component", "report_renderer").Logger()}
}

// Render produces the PDF bytes for an artifact. Fails if the artifact is
// not in completed state; pending or failed artifacts have nothing to render.
func (r *Renderer) Render(a *domain.Artifact) ([]byte, error) {
	if a.Status != domain.ArtifactCompleted {
		return nil, fmt.Errorf("artifact (%s, %s) is %s: %w",
			a.Symbol, a.BusinessDate, a.Status, domain.ErrPrecomputeMissing)
	}

	var payload worker.ArtifactPayload
	if err := json.Unmarshal(a.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload for (%s, %s): %w", a.Symbol, a.BusinessDate, err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s daily report %s", a.Symbol, a.BusinessDate), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, fmt.Sprintf("%s - Daily Report", a.Symbol), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Business date: %s    Source: %s    Rows: %d",
		payload.BusinessDate, payload.Source, payload.RowCount), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 5.5, a.Narrative, "", "L", false)
	pdf.Ln(4)

	r.renderPriceSection(pdf, &payload)
	r.renderIndicatorSection(pdf, &payload)
	r.renderComparativeSection(pdf, &payload)
	r.renderChart(pdf, a.ChartBlob)

	var buf pdfBuffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF for (%s, %s): %w", a.Symbol, a.BusinessDate, err)
	}

	r.log.Debug().
		Str("symbol", a.Symbol).
		Str("business_date", a.BusinessDate).
		Int("bytes", len(buf.data)).
		Msg("Rendered report")

	return buf.data, nil
}

func (r *Renderer) renderPriceSection(pdf *fpdf.Fpdf, p *worker.ArtifactPayload) {
	r.sectionTitle(pdf, "Price")
	r.row(pdf, "Open", fmt.Sprintf("%.2f", p.Price.Open))
	r.row(pdf, "High", fmt.Sprintf("%.2f", p.Price.High))
	r.row(pdf, "Low", fmt.Sprintf("%.2f", p.Price.Low))
	r.row(pdf, "Close", fmt.Sprintf("%.2f", p.Price.Close))
	if p.Price.Volume != nil {
		r.row(pdf, "Volume", fmt.Sprintf("%.0f", *p.Price.Volume))
	}
	pdf.Ln(3)
}

func (r *Renderer) renderIndicatorSection(pdf *fpdf.Fpdf, p *worker.ArtifactPayload) {
	r.sectionTitle(pdf, "Indicators")
	r.optRow(pdf, "SMA 20", p.Indicators.SMA20, "%.2f")
	r.optRow(pdf, "SMA 50", p.Indicators.SMA50, "%.2f")
	r.optRow(pdf, "SMA 200", p.Indicators.SMA200, "%.2f")
	r.optRow(pdf, "RSI 14", p.Indicators.RSI14, "%.1f")
	r.optRow(pdf, "MACD", p.Indicators.MACD, "%.3f")
	r.optRow(pdf, "ATR percent", p.Indicators.ATRPct, "%.2f")
	r.optRow(pdf, "VWAP", p.Indicators.VWAP, "%.2f")
	r.optRow(pdf, "Volume ratio", p.Indicators.VolumeRatio, "%.2f")
	r.optRow(pdf, "Uncertainty", p.Indicators.Uncertainty, "%.0f")
	pdf.Ln(3)
}

func (r *Renderer) renderComparativeSection(pdf *fpdf.Fpdf, p *worker.ArtifactPayload) {
	if p.Comparatives == nil {
		return
	}
	r.sectionTitle(pdf, "Performance")
	r.optPctRow(pdf, "1 day", p.Comparatives.ReturnDaily)
	r.optPctRow(pdf, "1 week", p.Comparatives.ReturnWeekly)
	r.optPctRow(pdf, "1 month", p.Comparatives.ReturnMonthly)
	r.optPctRow(pdf, "YTD", p.Comparatives.ReturnYTD)
	r.optRow(pdf, "Volatility 90d", p.Comparatives.Volatility90, "%.2f")
	r.optRow(pdf, "Sharpe 90d", p.Comparatives.Sharpe90, "%.2f")
	r.optPctRow(pdf, "Max drawdown 90d", p.Comparatives.MaxDrawdown90)
	pdf.Ln(3)
}

// renderChart draws the trailing close series as a simple line chart.
func (r *Renderer) renderChart(pdf *fpdf.Fpdf, chartBlob []byte) {
	if len(chartBlob) == 0 {
		return
	}
	series, err := worker.DecodeChartBlob(chartBlob)
	if err != nil || len(series.Close) < 2 {
		return
	}

	r.sectionTitle(pdf, "Close price")

	const width, height = 180.0, 50.0
	x0, y0 := 15.0, pdf.GetY()+2

	minV, maxV := series.Close[0], series.Close[0]
	for _, v := range series.Close {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Rect(x0, y0, width, height, "D")
	pdf.SetDrawColor(40, 80, 160)

	step := width / float64(len(series.Close)-1)
	prevX, prevY := x0, y0+height-(series.Close[0]-minV)/span*height
	for i := 1; i < len(series.Close); i++ {
		x := x0 + float64(i)*step
		y := y0 + height - (series.Close[i]-minV)/span*height
		pdf.Line(prevX, prevY, x, y)
		prevX, prevY = x, y
	}

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetY(y0 + height + 4)
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 4, fmt.Sprintf("%s to %s, low %.2f, high %.2f",
		series.Dates[0], series.Dates[len(series.Dates)-1], minV, maxV), "", 1, "L", false, 0, "")
}

func (r *Renderer) sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func (r *Renderer) row(pdf *fpdf.Fpdf, label, value string) {
	pdf.CellFormat(50, 5.5, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5.5, value, "", 1, "L", false, 0, "")
}

func (r *Renderer) optRow(pdf *fpdf.Fpdf, label string, v *float64, format string) {
	if v == nil {
		return
	}
	r.row(pdf, label, fmt.Sprintf(format, *v))
}

func (r *Renderer) optPctRow(pdf *fpdf.Fpdf, label string, v *float64) {
	if v == nil {
		return
	}
	r.row(pdf, label, fmt.Sprintf("%+.2f%%", *v*100))
}

// pdfBuffer adapts a byte slice to io.Writer for fpdf.Output.
type pdfBuffer struct {
	data []byte
}

func (b *pdfBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
