// Package router turns trade signals into orders. It deduplicates and
// expires incoming signals, gates entries on market hours, fills paper
// orders against the quote cache, and places live orders through the
// broker behind a rate limiter with bounded retries.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantbay/tradebot/internal/domain"
	"github.com/quantbay/tradebot/internal/service"
)

// Notifier receives human-readable trade events. Satisfied by the
// notify package; a nil Notifier disables notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, body string)
}

// Config holds the router's tunables.
type Config struct {
	Book         domain.Book
	DryRun       bool
	MaxRetries   int
	RetryBackoff time.Duration
	DedupTTL     time.Duration
	RateLimit    int
	RateWindow   time.Duration
	Session      domain.SessionWindow
	Location     *time.Location
}

// Router consumes signals and routes orders to the paper ledger or the
// live broker. One goroutine runs the signal loop; Submit is safe to
// call concurrently from the risk monitor, scheduler, and API handlers.
type Router struct {
	cfg      Config
	signalCh <-chan domain.TradeSignal
	orders   domain.OrderStore
	book     *service.PositionBook
	quotes   *service.QuoteService
	broker   domain.Broker
	limiter  domain.RateLimiter
	bus      domain.EventBus
	notifier Notifier
	dedup    *Dedup
	logger   *slog.Logger

	cleanupInterval time.Duration
	now             func() time.Time

	// Per-symbol striping: orders for the same symbol are serialized so
	// a risk exit and a strategy entry cannot interleave their reads of
	// the position book.
	locks [64]sync.Mutex
}

func New(
	cfg Config,
	signalCh <-chan domain.TradeSignal,
	orders domain.OrderStore,
	book *service.PositionBook,
	quotes *service.QuoteService,
	broker domain.Broker,
	limiter domain.RateLimiter,
	bus domain.EventBus,
	notifier Notifier,
	logger *slog.Logger,
) *Router {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Router{
		cfg:             cfg,
		signalCh:        signalCh,
		orders:          orders,
		book:            book,
		quotes:          quotes,
		broker:          broker,
		limiter:         limiter,
		bus:             bus,
		notifier:        notifier,
		dedup:           NewDedup(cfg.DedupTTL),
		logger:          logger.With(slog.String("component", "router")),
		cleanupInterval: time.Minute,
		now:             time.Now,
	}
}

// Run consumes signals until the context is cancelled, then drains
// whatever is still buffered in the channel.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("router started",
		slog.Bool("dry_run", r.cfg.DryRun),
		slog.Duration("dedup_ttl", r.cfg.DedupTTL))

	cleanupTicker := time.NewTicker(r.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router stopping, draining signals")
			r.drain()
			return ctx.Err()

		case sig, ok := <-r.signalCh:
			if !ok {
				r.logger.Info("signal channel closed")
				return nil
			}
			r.process(ctx, sig)

		case <-cleanupTicker.C:
			r.dedup.Cleanup()
		}
	}
}

func (r *Router) process(ctx context.Context, sig domain.TradeSignal) {
	key := fmt.Sprintf("%s|%s|%s", sig.Strategy, sig.Symbol, sig.Side)
	if r.dedup.IsDuplicate(key) {
		r.logger.Debug("duplicate signal dropped",
			slog.String("key", key),
			slog.String("signal_id", sig.ID))
		return
	}

	if !sig.ExpiresAt.IsZero() && r.now().After(sig.ExpiresAt) {
		r.logger.Warn("signal expired before routing",
			slog.String("signal_id", sig.ID),
			slog.String("symbol", sig.Symbol))
		return
	}

	intent := domain.OrderIntent{
		ID:             uuid.NewString(),
		Symbol:         sig.Symbol,
		Side:           sig.Side,
		Qty:            sig.Qty,
		Source:         domain.SourceStrategy,
		Strategy:       sig.Strategy,
		Reason:         sig.Reason,
		IdempotencyKey: sig.ID,
		CreatedAt:      r.now(),
		ExpiresAt:      sig.ExpiresAt,
	}

	if _, err := r.Submit(ctx, intent); err != nil {
		r.logger.Error("signal routing failed",
			slog.String("signal_id", sig.ID),
			slog.String("symbol", sig.Symbol),
			slog.String("error", err.Error()))
	}
}

// drain routes signals still buffered after shutdown begins. Each gets
// a short independent timeout since the run context is already done.
func (r *Router) drain() {
	for {
		select {
		case sig, ok := <-r.signalCh:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.process(ctx, sig)
			cancel()
		default:
			return
		}
	}
}

// Submit routes a single order intent. New entries are gated on the
// trading session; risk, schedule, and position-reducing manual orders
// go through outside market hours as well so positions can always be
// closed.
func (r *Router) Submit(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	if intent.Symbol == "" || intent.Qty <= 0 {
		return nil, fmt.Errorf("router: submit: %w: symbol and positive qty required", domain.ErrValidation)
	}
	if intent.Expired(r.now()) {
		return nil, fmt.Errorf("router: submit: intent %s expired", intent.ID)
	}

	if intent.Source == domain.SourceStrategy || intent.Source == domain.SourceManual {
		now := r.now().In(r.cfg.Location)
		if !r.cfg.Session.Contains(now) && !r.reducesPosition(intent) {
			return nil, fmt.Errorf("router: submit %s: %w", intent.Symbol, domain.ErrMarketClosed)
		}
	}

	lock := r.symbolLock(intent.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if r.cfg.DryRun || r.cfg.Book == domain.BookPaper {
		return r.routePaper(ctx, intent)
	}
	return r.routeLive(ctx, intent)
}

// targetBook is the book orders land in for this router instance.
func (r *Router) targetBook() domain.Book {
	if r.cfg.DryRun || r.cfg.Book == domain.BookPaper {
		return domain.BookPaper
	}
	return domain.BookLive
}

// reducesPosition reports whether the intent trades against an open
// position in the target book.
func (r *Router) reducesPosition(intent domain.OrderIntent) bool {
	pos, ok := r.book.Get(r.targetBook(), intent.Symbol)
	if !ok || pos.Qty == 0 {
		return false
	}
	return (pos.Qty > 0) == (intent.Side == domain.OrderSideSell)
}

func (r *Router) symbolLock(symbol string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}

// routePaper fills immediately at the resolved reference price. An
// order with no resolvable quote is recorded as rejected rather than
// filled at zero.
func (r *Router) routePaper(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	order := r.newOrder(intent, domain.BookPaper)

	price, err := r.quotes.Resolve(ctx, intent.Symbol)
	if err != nil {
		order.Status = domain.OrderStatusRejected
		order.Reason = appendReason(order.Reason, "no quote")
		r.persist(ctx, order)
		return order, fmt.Errorf("router: paper fill %s: %w", intent.Symbol, err)
	}

	if intent.Side == domain.OrderSideBuy {
		// Reserve before filling: the check-and-debit must be one book
		// operation, or two buys on different symbols can both pass.
		cost := float64(intent.Qty) * price
		if err := r.book.ReservePaperCash(cost); err != nil {
			order.Status = domain.OrderStatusRejected
			order.Reason = appendReason(order.Reason, "insufficient funds")
			r.persist(ctx, order)
			return order, fmt.Errorf("router: paper fill %s: %w", intent.Symbol, err)
		}
		defer r.book.ReleasePaperCash(cost)
	}

	return r.fill(ctx, order, price)
}

// routeLive resolves a reference price first, then places the order at
// the broker behind the rate limiter with bounded retries. The intent's
// idempotency key is reused across retries so a timed-out attempt that
// actually landed cannot double-place.
func (r *Router) routeLive(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error) {
	order := r.newOrder(intent, domain.BookLive)

	price, err := r.quotes.Resolve(ctx, intent.Symbol)
	if err != nil {
		order.Status = domain.OrderStatusRejected
		order.Reason = appendReason(order.Reason, "no quote")
		r.persist(ctx, order)
		return order, fmt.Errorf("router: live order %s: %w", intent.Symbol, err)
	}

	req := domain.BrokerOrderRequest{
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		Qty:            intent.Qty,
		IdempotencyKey: intent.IdempotencyKey,
		Tag:            intent.Strategy,
	}

	brokerID, err := r.placeWithRetry(ctx, req)
	if err != nil {
		order.Status = domain.OrderStatusRejected
		order.Reason = appendReason(order.Reason, err.Error())
		r.persist(ctx, order)
		return order, fmt.Errorf("router: live order %s: %w", intent.Symbol, err)
	}

	order.BrokerOrderID = brokerID
	return r.fill(ctx, order, price)
}

func (r *Router) placeWithRetry(ctx context.Context, req domain.BrokerOrderRequest) (string, error) {
	var brokerID string
	err := r.brokerCallWithRetry(ctx, req.Symbol, func(ctx context.Context) error {
		id, err := r.broker.PlaceOrder(ctx, req)
		if err == nil {
			brokerID = id
		}
		return err
	})
	return brokerID, err
}

// brokerCallWithRetry runs one broker operation behind the rate limiter
// with bounded retries and doubling backoff. Place, cancel, and modify
// all share this discipline.
func (r *Router) brokerCallWithRetry(ctx context.Context, label string, call func(context.Context) error) error {
	var lastErr error
	backoff := r.cfg.RetryBackoff

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying broker call",
				slog.String("target", label),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if r.limiter != nil {
			allowed, err := r.limiter.Allow(ctx, "broker:orders", r.cfg.RateLimit, r.cfg.RateWindow)
			if err != nil {
				// Limiter failure must not block exits; proceed and log.
				r.logger.Error("rate limiter check failed",
					slog.String("error", err.Error()))
			} else if !allowed {
				lastErr = domain.ErrRateLimited
				continue
			}
		}

		if err := call(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

func (r *Router) fill(ctx context.Context, order *domain.Order, price float64) (*domain.Order, error) {
	now := r.now()
	order.Status = domain.OrderStatusFilled
	order.FillPrice = price
	order.FilledAt = &now
	r.persist(ctx, order)

	f := &domain.Fill{
		OrderID:  order.ID,
		Book:     order.Book,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Qty:      order.Qty,
		Price:    price,
		Strategy: order.Strategy,
		At:       now,
	}
	if err := r.book.ApplyFill(ctx, f); err != nil {
		return order, fmt.Errorf("router: apply fill %s: %w", order.ID, err)
	}

	r.logger.Info("order filled",
		slog.String("order_id", order.ID),
		slog.String("book", string(order.Book)),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Int64("qty", order.Qty),
		slog.Float64("price", price),
		slog.String("source", string(order.Source)))

	if r.notifier != nil {
		event := "fill"
		switch order.Source {
		case domain.SourceRisk:
			event = "risk_exit"
		case domain.SourceSchedule:
			event = "square_off"
		}
		r.notifier.Notify(ctx, event, "Order filled", fmt.Sprintf("%s %d %s @ %.2f (%s) %s",
			order.Side, order.Qty, order.Symbol, price, order.Book, order.Reason))
	}
	return order, nil
}

func (r *Router) newOrder(intent domain.OrderIntent, book domain.Book) *domain.Order {
	return &domain.Order{
		ID:             intent.ID,
		Book:           book,
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		Qty:            intent.Qty,
		Status:         domain.OrderStatusNew,
		Source:         intent.Source,
		Strategy:       intent.Strategy,
		Reason:         intent.Reason,
		IdempotencyKey: intent.IdempotencyKey,
		CreatedAt:      intent.CreatedAt,
	}
}

// persist writes the order record and publishes it on the bus. Storage
// errors are logged, not returned: a dead database must not stop risk
// exits from reaching the broker.
func (r *Router) persist(ctx context.Context, order *domain.Order) {
	if err := r.orders.Insert(ctx, order); err != nil {
		r.logger.Error("order persist failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
	}
	if r.bus != nil {
		if payload, err := json.Marshal(order); err == nil {
			_ = r.bus.Publish(ctx, "orders", payload)
		}
	}
}

// SquareOff closes the open position for one symbol in one book. It is
// a no-op returning ErrNotFound when the position is flat.
func (r *Router) SquareOff(ctx context.Context, book domain.Book, symbol string, reason domain.ExitReason, source domain.IntentSource) (*domain.Order, error) {
	pos, ok := r.book.Get(book, symbol)
	if !ok || pos.Qty == 0 {
		return nil, fmt.Errorf("router: square off %s: %w", symbol, domain.ErrNotFound)
	}

	side := domain.OrderSideSell
	qty := pos.Qty
	if qty < 0 {
		side = domain.OrderSideBuy
		qty = -qty
	}

	intent := domain.OrderIntent{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Side:           side,
		Qty:            qty,
		Source:         source,
		Reason:         string(reason),
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      r.now(),
	}
	return r.Submit(ctx, intent)
}

// SquareOffAll closes every open position in the book. Failures are
// collected so one bad symbol does not leave the rest open.
func (r *Router) SquareOffAll(ctx context.Context, book domain.Book, reason domain.ExitReason, source domain.IntentSource) error {
	var errs []error
	for _, pos := range r.book.Positions(book) {
		if pos.Qty == 0 {
			continue
		}
		if _, err := r.SquareOff(ctx, book, pos.Symbol, reason, source); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pos.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

// Cancel cancels a live order at the broker and marks the record. Paper
// orders fill synchronously so there is nothing to cancel.
func (r *Router) Cancel(ctx context.Context, orderID string) error {
	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("router: cancel %s: %w", orderID, err)
	}
	if order.Status != domain.OrderStatusNew {
		return fmt.Errorf("router: cancel %s: order is %s: %w", orderID, order.Status, domain.ErrValidation)
	}
	if order.Book == domain.BookLive && order.BrokerOrderID != "" {
		err := r.brokerCallWithRetry(ctx, order.BrokerOrderID, func(ctx context.Context) error {
			return r.broker.CancelOrder(ctx, order.BrokerOrderID)
		})
		if err != nil {
			return fmt.Errorf("router: cancel %s at broker: %w", orderID, err)
		}
	}
	if err := r.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled, 0, r.now()); err != nil {
		return fmt.Errorf("router: cancel %s: %w", orderID, err)
	}
	return nil
}

// Modify changes the quantity of a pending order, passing through to the
// broker for live orders. Filled, rejected, and cancelled orders cannot
// be modified.
func (r *Router) Modify(ctx context.Context, orderID string, newQty int64) error {
	if newQty <= 0 {
		return fmt.Errorf("router: modify %s: qty must be positive: %w", orderID, domain.ErrValidation)
	}
	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("router: modify %s: %w", orderID, err)
	}
	if order.Status != domain.OrderStatusNew {
		return fmt.Errorf("router: modify %s: order is %s: %w", orderID, order.Status, domain.ErrValidation)
	}
	if order.Book == domain.BookLive && order.BrokerOrderID != "" {
		err := r.brokerCallWithRetry(ctx, order.BrokerOrderID, func(ctx context.Context) error {
			return r.broker.ModifyOrder(ctx, order.BrokerOrderID, newQty)
		})
		if err != nil {
			return fmt.Errorf("router: modify %s at broker: %w", orderID, err)
		}
	}
	if err := r.orders.UpdateQty(ctx, orderID, newQty); err != nil {
		return fmt.Errorf("router: modify %s: %w", orderID, err)
	}
	return nil
}

// ResetPaper wipes the paper ledger: orders, fills, positions, and
// cash back to the configured seed.
func (r *Router) ResetPaper(ctx context.Context) error {
	if err := r.orders.DeleteBook(ctx, domain.BookPaper); err != nil {
		return fmt.Errorf("router: reset paper orders: %w", err)
	}
	if err := r.book.ResetPaper(ctx); err != nil {
		return fmt.Errorf("router: reset paper book: %w", err)
	}
	r.logger.Info("paper ledger reset")
	return nil
}

func appendReason(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}
