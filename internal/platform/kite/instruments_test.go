package kite

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const instrumentsCSV = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
1,1,NIFTY24SEP25000CE,NIFTY,0,2026-09-03,25000,0.05,75,CE,NFO-OPT,NFO
2,2,NIFTY24SEP25000PE,NIFTY,0,2026-09-03,25000,0.05,75,PE,NFO-OPT,NFO
3,3,NIFTY24SEP25050CE,NIFTY,0,2026-09-03,25050,0.05,75,CE,NFO-OPT,NFO
4,4,NIFTY24SEP24950PE,NIFTY,0,2026-09-03,24950,0.05,75,PE,NFO-OPT,NFO
5,5,NIFTY24OCT25000CE,NIFTY,0,2026-10-01,25000,0.05,75,CE,NFO-OPT,NFO
6,6,BANKNIFTY24SEP52000CE,BANKNIFTY,0,2026-09-03,52000,0.05,35,CE,NFO-OPT,NFO
7,7,NIFTY24SEPFUT,NIFTY,0,2026-09-03,0,0.05,75,FUT,NFO-FUT,NFO
8,8,RELIANCE,RELIANCE,0,,0,0.05,1,EQ,NSE,NSE
`

func TestParseInstruments(t *testing.T) {
	rows, err := parseInstruments(strings.NewReader(instrumentsCSV))
	require.NoError(t, err)
	require.Len(t, rows, 8)

	assert.Equal(t, "NIFTY24SEP25000CE", rows[0].tradingSymbol)
	assert.Equal(t, "NIFTY", rows[0].name)
	assert.Equal(t, "2026-09-03", rows[0].expiry)
	assert.InDelta(t, 25000.0, rows[0].strike, 1e-9)
	assert.Equal(t, int64(75), rows[0].lotSize)
	assert.Equal(t, "CE", rows[0].instType)
	assert.Equal(t, "NFO", rows[0].exchange)
}

func TestParseInstrumentsMissingColumn(t *testing.T) {
	_, err := parseInstruments(strings.NewReader("a,b,c\n1,2,3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func newInstrumentsServer(t *testing.T) (*Instruments, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(instrumentsCSV))
	}))
	t.Cleanup(srv.Close)
	return NewInstruments(srv.URL, "key", "token", testLogger()), &hits
}

func TestInstrumentsChain(t *testing.T) {
	inst, _ := newInstrumentsServer(t)

	chain, err := inst.Chain(context.Background(), "NIFTY", "2026-09-03")
	require.NoError(t, err)

	assert.Equal(t, "NIFTY", chain.Underlying)
	assert.Equal(t, int64(75), chain.LotSize)
	require.Len(t, chain.Strikes, 3, "futures, equities, and other expiries are filtered out")

	assert.InDelta(t, 24950.0, chain.Strikes[0].Strike, 1e-9)
	assert.Empty(t, chain.Strikes[0].CESymbol, "strike with only a PE leg still appears")
	assert.Equal(t, "NFO:NIFTY24SEP24950PE", chain.Strikes[0].PESymbol)

	assert.InDelta(t, 25000.0, chain.Strikes[1].Strike, 1e-9)
	assert.Equal(t, "NFO:NIFTY24SEP25000CE", chain.Strikes[1].CESymbol)
	assert.Equal(t, "NFO:NIFTY24SEP25000PE", chain.Strikes[1].PESymbol)

	assert.InDelta(t, 25050.0, chain.Strikes[2].Strike, 1e-9)
}

func TestInstrumentsChainNotFound(t *testing.T) {
	inst, _ := newInstrumentsServer(t)

	_, err := inst.Chain(context.Background(), "FINNIFTY", "2026-09-03")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInstrumentsDumpIsCached(t *testing.T) {
	inst, hits := newInstrumentsServer(t)

	_, err := inst.Chain(context.Background(), "NIFTY", "2026-09-03")
	require.NoError(t, err)
	_, err = inst.Chain(context.Background(), "BANKNIFTY", "2026-09-03")
	require.NoError(t, err)

	assert.Equal(t, 1, *hits, "one download serves every chain lookup")
}

func TestInstrumentsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inst := NewInstruments(srv.URL, "key", "token", testLogger())
	_, err := inst.Chain(context.Background(), "NIFTY", "2026-09-03")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}
