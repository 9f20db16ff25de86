package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetPrice is the last USD price fetched for a market-data asset id
// (e.g. "bitcoin"). Rows are overwritten on every refresh.
type AssetPrice struct {
	AssetID   string          `gorm:"primaryKey;size:64" json:"asset_id"`
	USD       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"usd"`
	FetchedAt time.Time       `gorm:"not null" json:"fetched_at"`
}
