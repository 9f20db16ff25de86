package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"coinfolio/internal/balancesync"
	"coinfolio/internal/portfolio"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleView(state balancesync.State) balancesync.View {
	return balancesync.View{
		State:    state,
		LastSync: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Snapshot: portfolio.Snapshot{
			Balance:    d("1234.5"),
			TotalValue: d("50000"),
			NetWorth:   d("51234.5"),
			Holdings: []portfolio.Holding{
				{Symbol: "BTC", Name: "Bitcoin", Amount: d("1"), UnitPrice: d("50000"), Value: d("50000"), Allocation: d("1")},
			},
		},
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"0":        "$0.00",
		"1234.5":   "$1,234.50",
		"0.005":    "$0.01",
		"-12.345":  "-$12.35",
		"1000000":  "$1,000,000.00",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, FormatMoney(d(in)))
		})
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "66.7%", FormatPercent(d("0.66667")))
	assert.Equal(t, "0.0%", FormatPercent(decimal.Zero))
}

func TestCardString(t *testing.T) {
	out := CardString(sampleView(balancesync.StateSynced), DefaultTheme)

	assert.Contains(t, out, "$1,234.50")
	assert.Contains(t, out, "$51,234.50")
	assert.Contains(t, out, "BTC")
	assert.Contains(t, out, "100.0%")
	assert.NotContains(t, out, "stale")
}

func TestCardString_MarksStaleViews(t *testing.T) {
	assert.Contains(t, CardString(sampleView(balancesync.StateStale), DefaultTheme), "stale")
	assert.Contains(t, CardString(sampleView(balancesync.StateUninitialized), DefaultTheme), "not synced")
}

func TestCard_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	NewCard(&buf, DefaultTheme).Render(sampleView(balancesync.StateSynced))
	assert.Contains(t, buf.String(), "Portfolio")
}

func TestLogRenderer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewLogRenderer(zap.New(core).Sugar())

	r.Render(sampleView(balancesync.StateStale))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "STALE", fields["state"])
	assert.Equal(t, "1234.5", fields["balance"])
}
