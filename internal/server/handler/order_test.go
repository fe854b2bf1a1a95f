package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

type fakeOrderRouter struct {
	submitted []domain.OrderIntent
	submitErr error

	cancelled []string
	cancelErr error

	modified  map[string]int64
	modifyErr error
}

func (f *fakeOrderRouter) Submit(_ context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	f.submitted = append(f.submitted, intent)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &domain.Order{
		ID:     intent.ID,
		Symbol: intent.Symbol,
		Side:   intent.Side,
		Qty:    intent.Qty,
		Status: domain.OrderStatusFilled,
	}, nil
}

func (f *fakeOrderRouter) Cancel(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErr
}

func (f *fakeOrderRouter) Modify(_ context.Context, orderID string, newQty int64) error {
	if f.modified == nil {
		f.modified = map[string]int64{}
	}
	f.modified[orderID] = newQty
	return f.modifyErr
}

func TestSubmitOrder(t *testing.T) {
	rt := &fakeOrderRouter{}
	h := NewOrderHandler(nil, rt, testLogger())

	body := `{"symbol":"NSE:TCS","side":"buy","qty":10}`
	rec := httptest.NewRecorder()
	h.SubmitOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, rt.submitted, 1)
	intent := rt.submitted[0]
	assert.Equal(t, domain.SourceManual, intent.Source)
	assert.Equal(t, domain.OrderSideBuy, intent.Side)
	assert.Equal(t, "manual", intent.Reason, "reason defaults when omitted")
	assert.NotEmpty(t, intent.ID)
	assert.NotEmpty(t, intent.IdempotencyKey)

	var order domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, "NSE:TCS", order.Symbol)
}

func TestSubmitOrderBadSide(t *testing.T) {
	h := NewOrderHandler(nil, &fakeOrderRouter{}, testLogger())

	body := `{"symbol":"NSE:TCS","side":"hold","qty":10}`
	rec := httptest.NewRecorder()
	h.SubmitOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"market closed", domain.ErrMarketClosed, http.StatusUnprocessableEntity},
		{"no quote", domain.ErrNoQuote, http.StatusUnprocessableEntity},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewOrderHandler(nil, &fakeOrderRouter{submitErr: tc.err}, testLogger())

			body := `{"symbol":"NSE:TCS","side":"sell","qty":5}`
			rec := httptest.NewRecorder()
			h.SubmitOrder(rec, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body)))

			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestModifyOrder(t *testing.T) {
	rt := &fakeOrderRouter{}
	h := NewOrderHandler(nil, rt, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/orders/ord-1", strings.NewReader(`{"qty":25}`))
	req.SetPathValue("id", "ord-1")
	rec := httptest.NewRecorder()
	h.ModifyOrder(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(25), rt.modified["ord-1"])
}

func TestModifyOrderRejectsBadQty(t *testing.T) {
	rt := &fakeOrderRouter{}
	h := NewOrderHandler(nil, rt, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/orders/ord-1", strings.NewReader(`{"qty":0}`))
	req.SetPathValue("id", "ord-1")
	rec := httptest.NewRecorder()
	h.ModifyOrder(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rt.modified, "router is not called for a bad qty")
}

func TestModifyOrderStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"not pending", domain.ErrValidation, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewOrderHandler(nil, &fakeOrderRouter{modifyErr: tc.err}, testLogger())

			req := httptest.NewRequest(http.MethodPut, "/api/orders/ord-9", strings.NewReader(`{"qty":5}`))
			req.SetPathValue("id", "ord-9")
			rec := httptest.NewRecorder()
			h.ModifyOrder(rec, req)

			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
