package util

import (
	"time"

	"buffet/internal/domain"
)

// TradingCalendar answers coarse session questions for an asset class.
// Exchange holidays are not modelled.
type TradingCalendar struct {
	assetType domain.AssetType
}

// NewTradingCalendar creates a TradingCalendar for the given asset class.
func NewTradingCalendar(assetType domain.AssetType) *TradingCalendar {
	return &TradingCalendar{
		assetType: assetType,
	}
}

// IsTradingDay reports whether t (in UTC) falls on a day the asset trades.
// Crypto trades every day, forex is closed on Saturday, everything else
// trades Monday through Friday.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	switch tc.assetType {
	case domain.AssetTypeCrypto:
		return true
	case domain.AssetTypeForex:
		return wd != time.Saturday
	default:
		return wd != time.Saturday && wd != time.Sunday
	}
}

// LastTradingDay returns midnight UTC of the most recent trading day at or
// before t.
func (tc *TradingCalendar) LastTradingDay(t time.Time) time.Time {
	d := t.UTC().Truncate(24 * time.Hour)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
