package render

import (
	"go.uber.org/zap"

	"coinfolio/internal/balancesync"
	"coinfolio/internal/logger"
)

// LogRenderer writes one structured log line per view.
type LogRenderer struct {
	log *zap.SugaredLogger
}

// NewLogRenderer creates a LogRenderer; a nil logger uses the global one.
func NewLogRenderer(l *zap.SugaredLogger) *LogRenderer {
	if l == nil {
		l = logger.Named("render")
	}
	return &LogRenderer{log: l}
}

// Render implements balancesync.Renderer.
func (r *LogRenderer) Render(v balancesync.View) {
	symbols := make([]string, len(v.Snapshot.Holdings))
	for i, h := range v.Snapshot.Holdings {
		symbols[i] = h.Symbol
	}
	r.log.Infow("portfolio view",
		"state", v.State.String(),
		"balance", v.Snapshot.Balance.String(),
		"total_value", v.Snapshot.TotalValue.String(),
		"net_worth", v.Snapshot.NetWorth.String(),
		"holdings", symbols,
		"last_sync", v.LastSync,
	)
}
