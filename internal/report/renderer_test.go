package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
	testutil "github.com/Awannaphasch2016/dr-daily-report/internal/testing"
	"github.com/Awannaphasch2016/dr-daily-report/internal/worker"
)

func completedArtifact(t *testing.T) *domain.Artifact {
	t.Helper()

	payload := worker.ArtifactPayload{
		Symbol:       "PTT",
		BusinessDate: "2026-08-21",
		LastBarDate:  "2026-08-21",
		Source:       "test-provider",
		RowCount:     60,
		Price: worker.PayloadPrice{
			Open: 34.0, High: 36.0, Low: 33.5, Close: 35.5,
			Volume: testutil.FloatPtr(1_200_000),
		},
		Indicators: worker.PayloadIndicators{
			SMA20: testutil.FloatPtr(34.8),
			RSI14: testutil.FloatPtr(61.2),
		},
		Comparatives: &worker.PayloadComparatives{
			ReturnMonthly: testutil.FloatPtr(0.034),
			Sharpe90:      testutil.FloatPtr(1.1),
		},
	}
	raw, err := json.Marshal(&payload)
	require.NoError(t, err)

	chartBlob, err := worker.EncodeChartBlob([]domain.IndicatorRow{
		{Date: "2026-08-20", Open: 34, High: 35, Low: 33, Close: 34.5},
		{Date: "2026-08-21", Open: 34.5, High: 36, Low: 34, Close: 35.5},
	})
	require.NoError(t, err)

	now := time.Now()
	return &domain.Artifact{
		Symbol:       "PTT",
		BusinessDate: "2026-08-21",
		Narrative:    "PTT closed higher in an uptrend.",
		Payload:      raw,
		ChartBlob:    chartBlob,
		Status:       domain.ArtifactCompleted,
		ComputedAt:   now,
		ExpiresAt:    now.Add(12 * time.Hour),
	}
}

func TestRenderProducesPDF(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	pdfBytes, err := r.Render(completedArtifact(t))
	require.NoError(t, err)
	require.NotEmpty(t, pdfBytes)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}

func TestRenderRefusesNonCompletedArtifact(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	a := completedArtifact(t)
	a.Status = domain.ArtifactPending
	_, err := r.Render(a)
	assert.ErrorIs(t, err, domain.ErrPrecomputeMissing)

	a.Status = domain.ArtifactFailed
	_, err = r.Render(a)
	assert.ErrorIs(t, err, domain.ErrPrecomputeMissing)
}

func TestRenderToleratesMissingChart(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	a := completedArtifact(t)
	a.ChartBlob = nil
	pdfBytes, err := r.Render(a)
	require.NoError(t, err)
	assert.NotEmpty(t, pdfBytes)
}

func TestRenderRejectsBadPayload(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	a := completedArtifact(t)
	a.Payload = json.RawMessage(`{not json`)
	_, err := r.Render(a)
	assert.Error(t, err)
}
