package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"buffet/internal/domain"
)

var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches daily bars from the Alpaca market-data API. Crypto
// symbols use the crypto endpoint, everything else the stock endpoint.
type AlpacaSource struct {
	client    *marketdata.Client
	assetType domain.AssetType
}

// NewAlpacaSource creates an AlpacaSource with the given credentials. An
// empty dataURL uses the SDK default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL string, assetType domain.AssetType) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{
		client:    marketdata.NewClient(opts),
		assetType: assetType,
	}
}

// Name returns the source identifier.
func (s *AlpacaSource) Name() string { return "alpaca" }

// FetchBars returns daily bars for symbol within [start, end].
func (s *AlpacaSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.assetType == domain.AssetTypeCrypto {
		cbars, err := s.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("GetCryptoBars: %w", err)
		}
		bars := make([]domain.Bar, 0, len(cbars))
		for _, cb := range cbars {
			bars = append(bars, domain.Bar{
				Symbol:    symbol,
				Timestamp: cb.Timestamp,
				Open:      cb.Open,
				High:      cb.High,
				Low:       cb.Low,
				Close:     cb.Close,
				Volume:    float64(cb.Volume),
			})
		}
		return bars, nil
	}

	abars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "iex",
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}
	bars := make([]domain.Bar, 0, len(abars))
	for _, ab := range abars {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	return bars, nil
}
