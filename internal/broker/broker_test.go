package broker

import (
	"context"
	"errors"
	"math"
	"testing"

	"buffet/internal/domain"
)

func TestPaperBrokerName(t *testing.T) {
	b := NewPaperBroker()
	if got := b.Name(); got != "paper" {
		t.Errorf("PaperBroker.Name() = %q, want %q", got, "paper")
	}
}

func TestPaperBrokerMarketSlippage(t *testing.T) {
	b := NewPaperBroker()
	ctx := context.Background()

	buy, err := b.SubmitMarketOrder(ctx, "AAPL", domain.OrderSideBuy, 2)
	if err != nil {
		t.Fatalf("SubmitMarketOrder(buy): %v", err)
	}
	if buy.FillPrice != 100.1 || buy.FillQuantity != 2 || !buy.Filled {
		t.Errorf("buy fill = %+v, want 100.1 x 2 filled", buy)
	}

	sell, err := b.SubmitMarketOrder(ctx, "AAPL", domain.OrderSideSell, 2)
	if err != nil {
		t.Fatalf("SubmitMarketOrder(sell): %v", err)
	}
	if sell.FillPrice != 99.9 {
		t.Errorf("sell fill price = %v, want 99.9", sell.FillPrice)
	}
	if b.Fills() != 2 {
		t.Errorf("Fills() = %d, want 2", b.Fills())
	}
}

func TestPaperBrokerLimitUsesLimitPrice(t *testing.T) {
	b := NewPaperBroker(WithSlippageBps(50))

	got, err := b.SubmitLimitOrder(context.Background(), "MSFT", domain.OrderSideBuy, 1, 200)
	if err != nil {
		t.Fatalf("SubmitLimitOrder: %v", err)
	}
	if math.Abs(got.FillPrice-201) > 1e-9 {
		t.Errorf("limit buy fill price = %v, want 201", got.FillPrice)
	}
}

func TestPaperBrokerOptions(t *testing.T) {
	b := NewPaperBroker(WithSlippageBps(0), WithDefaultPrice(42.5))

	got, err := b.SubmitMarketOrder(context.Background(), "X", domain.OrderSideSell, 1)
	if err != nil {
		t.Fatalf("SubmitMarketOrder: %v", err)
	}
	if got.FillPrice != 42.5 {
		t.Errorf("fill price = %v, want 42.5", got.FillPrice)
	}
}

func TestPaperBrokerRejects(t *testing.T) {
	b := NewPaperBroker()
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (*FillResult, error)
	}{
		{"zero qty", func() (*FillResult, error) { return b.SubmitMarketOrder(ctx, "A", domain.OrderSideBuy, 0) }},
		{"bad limit", func() (*FillResult, error) { return b.SubmitLimitOrder(ctx, "A", domain.OrderSideBuy, 1, -5) }},
		{"bad side", func() (*FillResult, error) { return b.SubmitMarketOrder(ctx, "A", "hold", 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			var rej *RejectionError
			if !errors.As(err, &rej) {
				t.Fatalf("err = %v, want *RejectionError", err)
			}
			if rej.Symbol != "A" || rej.Reason == "" {
				t.Errorf("rejection = %+v", rej)
			}
		})
	}
	if b.Fills() != 0 {
		t.Errorf("Fills() = %d after rejections, want 0", b.Fills())
	}
}
