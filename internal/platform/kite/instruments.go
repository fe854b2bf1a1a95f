package kite

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// instrumentsTTL bounds how long a downloaded dump is reused. The
// broker refreshes the dump once a day before market open.
const instrumentsTTL = 6 * time.Hour

// instrument is one parsed row of the dump.
type instrument struct {
	tradingSymbol string
	name          string
	expiry        string
	strike        float64
	lotSize       int64
	instType      string // CE, PE, FUT, EQ
	exchange      string
}

// Instruments resolves option chains from the broker's daily CSV
// instrument dump. The dump is a few hundred thousand rows, so it is
// downloaded once and filtered in memory.
type Instruments struct {
	url         string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger

	mu        sync.Mutex
	rows      []instrument
	fetchedAt time.Time
}

func NewInstruments(url, apiKey, accessToken string, logger *slog.Logger) *Instruments {
	return &Instruments{
		url:         url,
		apiKey:      apiKey,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		logger:      logger.With(slog.String("component", "instruments")),
	}
}

// Chain builds the option chain for an underlying and expiry date
// (YYYY-MM-DD). Strikes are returned ascending; a strike appears even
// when only one of its legs exists in the dump.
func (r *Instruments) Chain(ctx context.Context, underlying, expiry string) (domain.OptionChain, error) {
	rows, err := r.load(ctx)
	if err != nil {
		return domain.OptionChain{}, err
	}

	type legs struct {
		ce, pe  string
		lotSize int64
	}
	byStrike := make(map[float64]*legs)

	for _, row := range rows {
		if row.name != underlying || row.expiry != expiry {
			continue
		}
		if row.instType != "CE" && row.instType != "PE" {
			continue
		}
		l, ok := byStrike[row.strike]
		if !ok {
			l = &legs{}
			byStrike[row.strike] = l
		}
		symbol := row.exchange + ":" + row.tradingSymbol
		if row.instType == "CE" {
			l.ce = symbol
		} else {
			l.pe = symbol
		}
		if row.lotSize > 0 {
			l.lotSize = row.lotSize
		}
	}

	if len(byStrike) == 0 {
		return domain.OptionChain{}, fmt.Errorf("kite: chain %s %s: %w", underlying, expiry, domain.ErrNotFound)
	}

	chain := domain.OptionChain{
		Underlying: underlying,
		Expiry:     expiry,
		LotSize:    domain.LotSize(underlying),
		FetchedAt:  time.Now(),
	}
	for strike, l := range byStrike {
		chain.Strikes = append(chain.Strikes, domain.OptionStrike{
			Strike:   strike,
			CESymbol: l.ce,
			PESymbol: l.pe,
		})
		if l.lotSize > 0 {
			chain.LotSize = l.lotSize
		}
	}
	sort.Slice(chain.Strikes, func(i, j int) bool { return chain.Strikes[i].Strike < chain.Strikes[j].Strike })
	return chain, nil
}

var _ domain.OptionsChainResolver = (*Instruments)(nil)

func (r *Instruments) load(ctx context.Context) ([]instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rows != nil && time.Since(r.fetchedAt) < instrumentsTTL {
		return r.rows, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("kite: instruments request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+r.apiKey+":"+r.accessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kite: fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kite: fetch instruments: HTTP %d", resp.StatusCode)
	}

	rows, err := parseInstruments(resp.Body)
	if err != nil {
		return nil, err
	}

	r.rows = rows
	r.fetchedAt = time.Now()
	r.logger.Info("instruments loaded", slog.Int("rows", len(rows)))
	return r.rows, nil
}

// Dump columns: instrument_token, exchange_token, tradingsymbol, name,
// last_price, expiry, strike, tick_size, lot_size, instrument_type,
// segment, exchange.
func parseInstruments(body io.Reader) ([]instrument, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("kite: read instruments header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"tradingsymbol", "name", "expiry", "strike", "lot_size", "instrument_type", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("kite: instruments dump missing column %q", required)
		}
	}

	var rows []instrument
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("kite: read instruments: %w", err)
		}

		strike, _ := strconv.ParseFloat(record[col["strike"]], 64)
		lotSize, _ := strconv.ParseInt(record[col["lot_size"]], 10, 64)
		rows = append(rows, instrument{
			tradingSymbol: record[col["tradingsymbol"]],
			name:          record[col["name"]],
			expiry:        record[col["expiry"]],
			strike:        strike,
			lotSize:       lotSize,
			instType:      record[col["instrument_type"]],
			exchange:      record[col["exchange"]],
		})
	}
	return rows, nil
}
