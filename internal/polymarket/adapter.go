package polymarket

import (
	"context"
	"strconv"
	"time"

	"github.com/beliefcore/core/internal/domain"
)

// MarketAdapter satisfies ports.MarketSource over the gamma-api Client.
type MarketAdapter struct {
	client *Client
}

// NewMarketAdapter wraps an existing gamma client.
func NewMarketAdapter(client *Client) *MarketAdapter {
	return &MarketAdapter{client: client}
}

// ListMarkets returns active, unresolved markets, per §6's ports.MarketSource
// contract.
func (a *MarketAdapter) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	active := true
	closed := false
	markets, err := a.client.GetMarkets(ctx, &MarketsFilter{Active: &active, Closed: &closed, Limit: 500})
	if err != nil {
		return nil, domain.NewError(domain.ErrConnectorUnavailable, "polymarket.ListMarkets", err)
	}
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		out = append(out, toDomainMarket(m))
	}
	return out, nil
}

// GetMarket returns nil when the market is no longer reachable, per §6
// ("returns None if gone").
func (a *MarketAdapter) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	m, err := a.client.GetMarket(ctx, id)
	if err != nil {
		return nil, nil
	}
	dm := toDomainMarket(*m)
	return &dm, nil
}

func toDomainMarket(m Market) domain.Market {
	liquidity := m.LiquidityNum

	var currentPrice float64
	if len(m.OutcomePrices) > 0 {
		if p, err := strconv.ParseFloat(m.OutcomePrices[0], 64); err == nil {
			currentPrice = p * 100
		}
	}

	var closesAt *time.Time
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		closesAt = &t
	}

	dm := domain.Market{
		ID:                       m.ConditionID,
		Question:                 m.Question,
		Category:                 classifyGammaCategory(m.Categories),
		CurrentPrice:             currentPrice,
		Liquidity:                liquidity,
		ClosesAt:                 closesAt,
		ResolutionAuthorityClear: true,
		OutcomeObjective:         true,
	}
	if m.Closed {
		now := time.Now()
		dm.ResolvedAt = &now
	}
	return dm
}

// classifyGammaCategory maps gamma-api tag strings to the closed category
// set; an unrecognized or empty tag list falls back to CategoryOther.
func classifyGammaCategory(tags []string) domain.Category {
	known := map[string]domain.Category{
		"politics":      domain.CategoryPolitics,
		"crypto":        domain.CategoryCrypto,
		"sports":        domain.CategorySports,
		"economics":     domain.CategoryEconomics,
		"entertainment": domain.CategoryEntertainment,
		"weather":       domain.CategoryWeather,
		"technology":    domain.CategoryTechnology,
		"world":         domain.CategoryWorld,
	}
	for _, tag := range tags {
		if c, ok := known[tag]; ok {
			return c
		}
	}
	return domain.CategoryOther
}

// OrderAdapter satisfies ports.OrderConnector over the CLOB client. It
// never calls a market-order route; the decision engine only ever produces
// limit orders (§4.5).
type OrderAdapter struct {
	client *CLOBClient
}

// NewOrderAdapter wraps an existing CLOB client. The account address orders
// are attributed to is configured on client via WithCLOBCredentials.
func NewOrderAdapter(client *CLOBClient) *OrderAdapter {
	return &OrderAdapter{client: client}
}

func (a *OrderAdapter) PlaceLimit(ctx context.Context, tokenID string, side domain.Side, price float64, sizeUSD float64) (string, error) {
	clobSide := SideBuy
	if side == domain.SideNo {
		clobSide = SideSell
	}
	resp, err := a.client.PlaceLimitOrder(ctx, PlaceLimitOrderRequest{
		TokenID:   tokenID,
		Side:      clobSide,
		Size:      sizeUSD,
		Price:     price / 100,
		OrderType: OrderTypeGTC,
	})
	if err != nil {
		return "", domain.NewError(domain.ErrOrderRejected, "polymarket.PlaceLimit", err)
	}
	return resp.OrderID, nil
}

func (a *OrderAdapter) Status(ctx context.Context, orderID string) (domain.OrderStatus, float64, error) {
	resp, err := a.client.GetOrder(ctx, orderID)
	if err != nil {
		return "", 0, domain.NewError(domain.ErrConnectorUnavailable, "polymarket.Status", err)
	}
	return toDomainOrderStatus(resp.Status), resp.FilledSize, nil
}

func (a *OrderAdapter) Cancel(ctx context.Context, orderID string) (bool, error) {
	status, _, err := a.Status(ctx, orderID)
	if err == nil && status == domain.OrderFilled {
		return false, nil
	}
	if err := a.client.CancelOrder(ctx, orderID); err != nil {
		return false, domain.NewError(domain.ErrOrderRejected, "polymarket.Cancel", err)
	}
	return true, nil
}

func toDomainOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "matched", "filled":
		return domain.OrderFilled
	case "cancelled", "canceled":
		return domain.OrderCancelled
	case "live", "pending":
		return domain.OrderPending
	default:
		if s != "" {
			return domain.OrderPartial
		}
		return domain.OrderPending
	}
}

