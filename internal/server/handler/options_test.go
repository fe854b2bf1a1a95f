package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

type fakeOptions struct {
	chain    domain.OptionChain
	chainErr error

	placed   []*domain.Order
	placeErr error

	gotSide   domain.OrderSide
	gotLots   int64
	gotOffset int
}

func (f *fakeOptions) Chain(_ context.Context, underlying, expiry string, around float64, count int) (domain.OptionChain, error) {
	return f.chain, f.chainErr
}

func (f *fakeOptions) PlaceATM(_ context.Context, underlying, expiry string, side domain.OrderSide, lots int64, offset int) ([]*domain.Order, error) {
	f.gotSide = side
	f.gotLots = lots
	f.gotOffset = offset
	return f.placed, f.placeErr
}

func TestGetChain(t *testing.T) {
	svc := &fakeOptions{chain: domain.OptionChain{
		Underlying: "NIFTY",
		Expiry:     "2026-09-03",
		LotSize:    75,
		FetchedAt:  time.Now(),
	}}
	h := NewOptionsHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GetChain(rec, httptest.NewRequest(http.MethodGet, "/api/options/chain?underlying=NIFTY&expiry=2026-09-03", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var chain domain.OptionChain
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chain))
	assert.Equal(t, "NIFTY", chain.Underlying)
	assert.Equal(t, int64(75), chain.LotSize)
}

func TestGetChainMissingParams(t *testing.T) {
	h := NewOptionsHandler(&fakeOptions{}, testLogger())

	rec := httptest.NewRecorder()
	h.GetChain(rec, httptest.NewRequest(http.MethodGet, "/api/options/chain?underlying=NIFTY", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChainNotFound(t *testing.T) {
	h := NewOptionsHandler(&fakeOptions{chainErr: domain.ErrNotFound}, testLogger())

	rec := httptest.NewRecorder()
	h.GetChain(rec, httptest.NewRequest(http.MethodGet, "/api/options/chain?underlying=NOPE&expiry=2026-09-03", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceATMDefaults(t *testing.T) {
	svc := &fakeOptions{placed: []*domain.Order{{ID: "o1"}, {ID: "o2"}}}
	h := NewOptionsHandler(svc, testLogger())

	body := `{"underlying":"NIFTY","expiry":"2026-09-03"}`
	rec := httptest.NewRecorder()
	h.PlaceATM(rec, httptest.NewRequest(http.MethodPost, "/api/options/atm", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.OrderSideBuy, svc.gotSide)
	assert.Equal(t, int64(1), svc.gotLots)
	assert.Equal(t, 0, svc.gotOffset)
}

func TestPlaceATMSellStrangle(t *testing.T) {
	svc := &fakeOptions{placed: []*domain.Order{{ID: "o1"}, {ID: "o2"}}}
	h := NewOptionsHandler(svc, testLogger())

	body := `{"underlying":"NIFTY","expiry":"2026-09-03","side":"sell","lots":2,"offset":1}`
	rec := httptest.NewRecorder()
	h.PlaceATM(rec, httptest.NewRequest(http.MethodPost, "/api/options/atm", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.OrderSideSell, svc.gotSide)
	assert.Equal(t, int64(2), svc.gotLots)
	assert.Equal(t, 1, svc.gotOffset)
}

func TestPlaceATMBadRequests(t *testing.T) {
	h := NewOptionsHandler(&fakeOptions{}, testLogger())

	for _, body := range []string{
		`not json`,
		`{"expiry":"2026-09-03"}`,
		`{"underlying":"NIFTY","expiry":"2026-09-03","side":"hold"}`,
	} {
		rec := httptest.NewRecorder()
		h.PlaceATM(rec, httptest.NewRequest(http.MethodPost, "/api/options/atm", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestPlaceATMNoQuote(t *testing.T) {
	h := NewOptionsHandler(&fakeOptions{placeErr: domain.ErrNoQuote}, testLogger())

	body := `{"underlying":"NIFTY","expiry":"2026-09-03"}`
	rec := httptest.NewRecorder()
	h.PlaceATM(rec, httptest.NewRequest(http.MethodPost, "/api/options/atm", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
