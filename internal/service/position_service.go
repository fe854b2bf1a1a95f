package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantbay/tradebot/internal/domain"
)

// PositionBook tracks open positions and realized PnL per book with
// weighted-average cost accounting. The in-memory state is authoritative
// intraday; fills are persisted and replayed on startup.
type PositionBook struct {
	fills  domain.FillStore
	audit  domain.AuditStore
	bus    domain.EventBus
	quotes *QuoteService
	logger *slog.Logger

	mu            sync.Mutex
	positions     map[domain.Book]map[string]*domain.Position
	realized      map[domain.Book]float64
	paperCash     float64
	paperReserved float64
	seedCash      float64
}

// NewPositionBook creates a PositionBook seeded with the paper starting cash.
func NewPositionBook(fills domain.FillStore, audit domain.AuditStore, bus domain.EventBus, quotes *QuoteService, startingCash float64, logger *slog.Logger) *PositionBook {
	return &PositionBook{
		fills:  fills,
		audit:  audit,
		bus:    bus,
		quotes: quotes,
		logger: logger.With(slog.String("component", "position_book")),
		positions: map[domain.Book]map[string]*domain.Position{
			domain.BookPaper: {},
			domain.BookLive:  {},
		},
		realized:  map[domain.Book]float64{},
		paperCash: startingCash,
		seedCash:  startingCash,
	}
}

// Rebuild replays persisted fills into the in-memory book. Call once at
// startup before any new fills arrive.
func (b *PositionBook) Rebuild(ctx context.Context) error {
	for _, book := range []domain.Book{domain.BookPaper, domain.BookLive} {
		fills, err := b.fills.ListSince(ctx, book, time.Time{})
		if err != nil {
			return fmt.Errorf("service: rebuild %s book: %w", book, err)
		}
		for _, f := range fills {
			b.apply(f)
		}
		b.logger.Info("position book rebuilt",
			slog.String("book", string(book)),
			slog.Int("fills", len(fills)),
		)
	}
	return nil
}

// ApplyFill persists the fill, folds it into the book, and publishes the
// updated position.
func (b *PositionBook) ApplyFill(ctx context.Context, f *domain.Fill) error {
	if err := b.fills.Insert(ctx, f); err != nil {
		return err
	}
	pos := b.apply(f)

	b.publishPosition(ctx, f, pos)
	return nil
}

// apply folds one fill into the in-memory state and returns the resulting
// position (qty 0 when the fill closed it).
func (b *PositionBook) apply(f *domain.Fill) domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Paper cash moves with every paper fill.
	if f.Book == domain.BookPaper {
		notional := float64(f.Qty) * f.Price
		if f.Side == domain.OrderSideBuy {
			b.paperCash -= notional
		} else {
			b.paperCash += notional
		}
	}

	book := b.positions[f.Book]
	delta := f.SignedQty()
	pos, ok := book[f.Symbol]
	if !ok {
		pos = &domain.Position{
			Book:     f.Book,
			Symbol:   f.Symbol,
			Qty:      delta,
			AvgPrice: f.Price,
			Strategy: f.Strategy,
			OpenedAt: f.At,
		}
		book[f.Symbol] = pos
		return *pos
	}

	sameDirection := (pos.Qty > 0) == (delta > 0)
	if sameDirection {
		// Scaling in: weighted-average entry price.
		oldAbs := abs64(pos.Qty)
		addAbs := abs64(delta)
		pos.AvgPrice = (pos.AvgPrice*float64(oldAbs) + f.Price*float64(addAbs)) / float64(oldAbs+addAbs)
		pos.Qty += delta
		return *pos
	}

	// Reducing, closing, or reversing.
	closeQty := abs64(delta)
	if open := abs64(pos.Qty); closeQty > open {
		closeQty = open
	}
	direction := float64(1)
	if pos.Qty < 0 {
		direction = -1
	}
	b.realized[f.Book] += (f.Price - pos.AvgPrice) * float64(closeQty) * direction

	pos.Qty += delta
	if pos.Qty == 0 {
		delete(book, f.Symbol)
		return domain.Position{Book: f.Book, Symbol: f.Symbol}
	}
	if (pos.Qty > 0) == (delta > 0) {
		// Reversed through zero: the remainder is a new leg at the fill
		// price.
		pos.AvgPrice = f.Price
		pos.Strategy = f.Strategy
		pos.OpenedAt = f.At
	}
	return *pos
}

// Positions returns a snapshot of one book's open positions, sorted by
// symbol.
func (b *PositionBook) Positions(book domain.Book) []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, 0, len(b.positions[book]))
	for _, p := range b.positions[book] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// AllPositions returns paper then live positions.
func (b *PositionBook) AllPositions() []domain.Position {
	return append(b.Positions(domain.BookPaper), b.Positions(domain.BookLive)...)
}

// Get returns one position.
func (b *PositionBook) Get(book domain.Book, symbol string) (domain.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[book][symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Cash returns the paper account balance.
func (b *PositionBook) Cash() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paperCash
}

// ReservePaperCash holds cost against the paper balance so two buys
// routed concurrently on different symbols cannot both pass the funds
// check and overdraw the account. The caller releases the hold once the
// fill has debited (or failed to debit) the real balance.
func (b *PositionBook) ReservePaperCash(cost float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cost > b.paperCash-b.paperReserved {
		return fmt.Errorf("service: reserve %.2f against %.2f available: %w",
			cost, b.paperCash-b.paperReserved, domain.ErrInsufficientFunds)
	}
	b.paperReserved += cost
	return nil
}

// ReleasePaperCash drops a hold taken by ReservePaperCash.
func (b *PositionBook) ReleasePaperCash(cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paperReserved -= cost
	if b.paperReserved < 0 {
		b.paperReserved = 0
	}
}

// PnL builds the full report, marking open positions against the quote
// cache. Positions without a usable quote report zero unrealized and are
// flagged stale.
func (b *PositionBook) PnL(ctx context.Context) domain.PnLSummary {
	b.mu.Lock()
	realizedPaper := b.realized[domain.BookPaper]
	realizedLive := b.realized[domain.BookLive]
	cash := b.paperCash
	b.mu.Unlock()

	now := time.Now()
	paper := b.bookPnL(ctx, domain.BookPaper, realizedPaper)
	live := b.bookPnL(ctx, domain.BookLive, realizedLive)

	paper.Cash = cash
	marketValue := 0.0
	for _, s := range paper.Symbols {
		marketValue += s.LTP * float64(s.Qty)
	}
	paper.Equity = cash + marketValue

	return domain.PnLSummary{Paper: paper, Live: live, AsOf: now}
}

func (b *PositionBook) bookPnL(ctx context.Context, book domain.Book, realized float64) domain.BookPnL {
	positions := b.Positions(book)
	out := domain.BookPnL{Realized: realized, Symbols: make([]domain.SymbolPnL, 0, len(positions))}

	symbols := make([]string, len(positions))
	for i, p := range positions {
		symbols[i] = p.Symbol
	}
	quotes, err := b.quotes.Snapshot(ctx, symbols)
	if err != nil {
		b.logger.Warn("pnl quote snapshot failed", slog.String("error", err.Error()))
		quotes = map[string]domain.Quote{}
	}

	for _, p := range positions {
		line := domain.SymbolPnL{Symbol: p.Symbol, Qty: p.Qty, AvgPrice: p.AvgPrice}
		if q, ok := quotes[p.Symbol]; ok && q.LTP > 0 {
			line.LTP = q.LTP
			line.Unrealized = p.UnrealizedAt(q.LTP)
		} else {
			line.StaleQuote = true
		}
		out.Unrealized += line.Unrealized
		out.Symbols = append(out.Symbols, line)
	}
	return out
}

// ResetPaper clears paper positions and realized PnL, deletes persisted
// paper fills, and reseeds cash. Live state is untouched.
func (b *PositionBook) ResetPaper(ctx context.Context) error {
	if err := b.fills.DeleteBook(ctx, domain.BookPaper); err != nil {
		return err
	}
	b.mu.Lock()
	b.positions[domain.BookPaper] = map[string]*domain.Position{}
	b.realized[domain.BookPaper] = 0
	b.paperCash = b.seedCash
	b.paperReserved = 0
	b.mu.Unlock()

	b.logger.Info("paper book reset", slog.Float64("cash", b.seedCash))
	return nil
}

func (b *PositionBook) publishPosition(ctx context.Context, f *domain.Fill, pos domain.Position) {
	payload, err := json.Marshal(pos)
	if err == nil && b.bus != nil {
		if err := b.bus.Publish(ctx, "positions."+string(f.Book), payload); err != nil {
			b.logger.Warn("position publish failed", slog.String("error", err.Error()))
		}
	}
	if b.audit != nil {
		detail, _ := json.Marshal(map[string]any{
			"order_id": f.OrderID,
			"symbol":   f.Symbol,
			"side":     f.Side,
			"qty":      f.Qty,
			"price":    f.Price,
		})
		ev := domain.AuditEvent{
			ID:        uuid.NewString(),
			Kind:      "fill",
			Subject:   f.Symbol,
			Detail:    string(detail),
			CreatedAt: f.At,
		}
		if err := b.audit.Append(ctx, ev); err != nil {
			b.logger.Warn("fill audit failed", slog.String("error", err.Error()))
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
