package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

type fakeChainResolver struct {
	chain domain.OptionChain
	err   error
	calls int
}

func (r *fakeChainResolver) Chain(_ context.Context, _, _ string) (domain.OptionChain, error) {
	r.calls++
	return r.chain, r.err
}

type fakeSubmitter struct {
	intents []domain.OrderIntent
	err     error
}

func (s *fakeSubmitter) Submit(_ context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	s.intents = append(s.intents, intent)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Order{ID: intent.ID, Symbol: intent.Symbol, Side: intent.Side, Qty: intent.Qty, Status: domain.OrderStatusFilled}, nil
}

func niftyChain(lotSize int64) domain.OptionChain {
	strikes := []domain.OptionStrike{}
	for _, k := range []float64{24900, 24950, 25000, 25050, 25100} {
		strikes = append(strikes, domain.OptionStrike{
			Strike:   k,
			CESymbol: atmSymbol(k, "CE"),
			PESymbol: atmSymbol(k, "PE"),
		})
	}
	return domain.OptionChain{
		Underlying: "NIFTY",
		Expiry:     "2026-09-03",
		LotSize:    lotSize,
		Strikes:    strikes,
		FetchedAt:  time.Now(),
	}
}

func atmSymbol(strike float64, kind string) string {
	return fmt.Sprintf("NIFTY26SEP%.0f%s", strike, kind)
}

func newOptionsFixture(t *testing.T, chain domain.OptionChain) (*OptionsService, *fakeChainResolver, *fakeSubmitter, *memQuoteCache) {
	t.Helper()
	resolver := &fakeChainResolver{chain: chain}
	submitter := &fakeSubmitter{}
	cache := newMemQuoteCache()
	svc := NewOptionsService(resolver, newTestQuotes(cache), submitter, testLogger())
	return svc, resolver, submitter, cache
}

func TestChainNarrowsAroundPrice(t *testing.T) {
	svc, _, _, _ := newOptionsFixture(t, niftyChain(75))

	chain, err := svc.Chain(context.Background(), "NIFTY", "2026-09-03", 25040, 3)
	require.NoError(t, err)
	require.Len(t, chain.Strikes, 3)
	assert.InDelta(t, 25000.0, chain.Strikes[0].Strike, 1e-9)
	assert.InDelta(t, 25050.0, chain.Strikes[1].Strike, 1e-9)
	assert.InDelta(t, 25100.0, chain.Strikes[2].Strike, 1e-9)
}

func TestChainCountZeroReturnsAll(t *testing.T) {
	svc, _, _, _ := newOptionsFixture(t, niftyChain(75))

	chain, err := svc.Chain(context.Background(), "NIFTY", "2026-09-03", 0, 0)
	require.NoError(t, err)
	assert.Len(t, chain.Strikes, 5)
}

func TestChainCaches(t *testing.T) {
	svc, resolver, _, _ := newOptionsFixture(t, niftyChain(75))

	_, err := svc.Chain(context.Background(), "NIFTY", "2026-09-03", 0, 0)
	require.NoError(t, err)
	_, err = svc.Chain(context.Background(), "NIFTY", "2026-09-03", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls, "second lookup hits the cache")

	_, err = svc.Chain(context.Background(), "NIFTY", "2026-09-10", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls, "a different expiry is a different cache key")
}

func TestChainRequiresUnderlyingAndExpiry(t *testing.T) {
	svc, _, _, _ := newOptionsFixture(t, niftyChain(75))

	_, err := svc.Chain(context.Background(), "", "2026-09-03", 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Chain(context.Background(), "NIFTY", "", 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPlaceATMStraddle(t *testing.T) {
	svc, _, submitter, cache := newOptionsFixture(t, niftyChain(75))
	cache.set("NIFTY", 25010)

	orders, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideSell, 2, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	require.Len(t, submitter.intents, 2)
	ce, pe := submitter.intents[0], submitter.intents[1]
	assert.Equal(t, atmSymbol(25000, "CE"), ce.Symbol)
	assert.Equal(t, atmSymbol(25000, "PE"), pe.Symbol)
	assert.Equal(t, domain.OrderSideSell, ce.Side)
	assert.Equal(t, int64(150), ce.Qty, "2 lots of 75")
	assert.Equal(t, domain.SourceManual, ce.Source)
	assert.Contains(t, ce.Reason, "atm NIFTY")
}

func TestPlaceATMStrangleLegs(t *testing.T) {
	svc, _, submitter, cache := newOptionsFixture(t, niftyChain(75))
	cache.set("NIFTY", 25010)

	_, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideBuy, 1, 1)
	require.NoError(t, err)
	require.Len(t, submitter.intents, 2)
	assert.Equal(t, atmSymbol(25050, "CE"), submitter.intents[0].Symbol, "CE one strike above ATM")
	assert.Equal(t, atmSymbol(24950, "PE"), submitter.intents[1].Symbol, "PE one strike below ATM")
}

func TestPlaceATMClampsAtChainEdge(t *testing.T) {
	svc, _, submitter, cache := newOptionsFixture(t, niftyChain(75))
	cache.set("NIFTY", 25090)

	_, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideSell, 1, 3)
	require.NoError(t, err)
	require.Len(t, submitter.intents, 2)
	assert.Equal(t, atmSymbol(25100, "CE"), submitter.intents[0].Symbol, "CE clamps at the top strike")
	assert.Equal(t, atmSymbol(24950, "PE"), submitter.intents[1].Symbol)
}

func TestPlaceATMLotSizeFallback(t *testing.T) {
	svc, _, submitter, cache := newOptionsFixture(t, niftyChain(0))
	cache.set("NIFTY", 25000)

	_, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideBuy, 1, 0)
	require.NoError(t, err)
	require.Len(t, submitter.intents, 2)
	assert.Equal(t, int64(75), submitter.intents[0].Qty, "falls back to the standard NIFTY lot")
}

func TestPlaceATMValidation(t *testing.T) {
	svc, _, _, _ := newOptionsFixture(t, niftyChain(75))

	_, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideBuy, 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideBuy, 1, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPlaceATMNoUnderlyingQuote(t *testing.T) {
	svc, _, submitter, _ := newOptionsFixture(t, niftyChain(75))

	_, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideBuy, 1, 0)
	assert.ErrorIs(t, err, domain.ErrNoQuote)
	assert.Empty(t, submitter.intents)
}

func TestPlaceATMPartialResult(t *testing.T) {
	svc, _, submitter, cache := newOptionsFixture(t, niftyChain(75))
	cache.set("NIFTY", 25000)
	submitter.err = domain.ErrInsufficientFunds

	orders, err := svc.PlaceATM(context.Background(), "NIFTY", "2026-09-03", domain.OrderSideBuy, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, orders, "first leg failed, nothing placed")
}
