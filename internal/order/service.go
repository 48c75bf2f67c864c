package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bibek-sh/backend-pasal/internal/credit"
	"github.com/bibek-sh/backend-pasal/internal/events"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/pricing"
	"github.com/bibek-sh/backend-pasal/internal/promo"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// OrdersRepo is the persistence surface the service needs for orders.
type OrdersRepo interface {
	Insert(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status, note string) error
	MarkCreditsDeducted(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCashbackAwarded(ctx context.Context, id uuid.UUID) (bool, error)
	History(ctx context.Context, id uuid.UUID) ([]StatusEntry, error)
}

// PromoRedeemer validates and settles promo codes inside the order transaction.
type PromoRedeemer interface {
	Validate(ctx context.Context, code string, customerID uuid.UUID, items []promo.Item) (promo.Result, error)
	Redeem(ctx context.Context, code string, customerID, orderID uuid.UUID, items []promo.Item) (promo.Result, error)
}

// Deps bundles the transaction-scoped collaborators handed to InTx callbacks.
type Deps struct {
	Orders  OrdersRepo
	Promo   PromoRedeemer
	Credits credit.Ledger
}

// TxRunner executes fn atomically with transaction-bound dependencies.
type TxRunner func(ctx context.Context, fn func(Deps) error) error

// SettingsReader supplies the pricing configuration frozen onto new orders.
type SettingsReader interface {
	GetPricing(ctx context.Context) (settings.Pricing, error)
}

// Service owns the order lifecycle: creation with a server-side price
// recompute, and the status machine with its one-shot side effects.
type Service struct {
	InTx     TxRunner
	Orders   OrdersRepo
	Credits  *credit.Service
	Settings SettingsReader
	Bus      *events.Bus
	Log      zerolog.Logger
}

// CreateRequest carries the client's order submission. Prices are
// recomputed on the server; the client's displayed total is never trusted.
type CreateRequest struct {
	Items            []Item
	PromoCode        string
	CreditsRequested money.Amount
}

// Create places a new pending order. The promo code is re-validated and
// its usage recorded inside the same transaction that inserts the order,
// so a concurrent exhaustion rolls everything back.
func (s *Service) Create(ctx context.Context, customerID uuid.UUID, req CreateRequest) (Order, error) {
	if len(req.Items) == 0 {
		return Order{}, errors.New("order: items are required")
	}
	var subtotal money.Amount
	promoItems := make([]promo.Item, 0, len(req.Items))
	for i := range req.Items {
		it := &req.Items[i]
		if it.Quantity <= 0 || it.UnitPrice <= 0 {
			return Order{}, fmt.Errorf("order: invalid quantity or price for %s", it.ProductID)
		}
		it.Subtotal = it.UnitPrice * money.Amount(it.Quantity)
		subtotal = subtotal.Add(it.Subtotal)
		promoItems = append(promoItems, promo.Item{
			ProductID: it.ProductID,
			Category:  it.Category,
			Subtotal:  it.Subtotal,
		})
	}

	cfg, err := s.Settings.GetPricing(ctx)
	if err != nil {
		return Order{}, err
	}

	var created Order
	err = s.InTx(ctx, func(d Deps) error {
		var discount money.Amount
		var appliedCode string
		if req.PromoCode != "" {
			res, err := d.Promo.Validate(ctx, req.PromoCode, customerID, promoItems)
			if err != nil {
				return err
			}
			discount = res.Discount
			appliedCode = res.Code
		}

		balance, err := d.Credits.Balance(ctx, customerID)
		if err != nil {
			return err
		}
		breakdown := pricing.Compute(pricing.Input{
			Subtotal:         subtotal,
			Discount:         discount,
			TaxBps:           cfg.TaxBps,
			ServiceCharge:    cfg.ServiceCharge,
			CreditsRequested: req.CreditsRequested,
			CreditBalance:    balance,
		})

		created, err = d.Orders.Insert(ctx, Order{
			CustomerID:     customerID,
			Items:          req.Items,
			Subtotal:       breakdown.Subtotal,
			Discount:       breakdown.Discount,
			PromoCode:      appliedCode,
			Tax:            breakdown.Tax,
			TaxBps:         cfg.TaxBps,
			ServiceCharge:  breakdown.ServiceCharge,
			CreditsApplied: breakdown.CreditsApplied,
			Total:          breakdown.Total,
		})
		if err != nil {
			return err
		}
		if appliedCode != "" {
			if _, err := d.Promo.Redeem(ctx, appliedCode, customerID, created.ID, promoItems); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.emit(ctx, events.TopicOrderCreated, created)
	return created, nil
}

// Get loads one order, enforcing ownership unless admin is true.
func (s *Service) Get(ctx context.Context, id, customerID uuid.UUID, admin bool) (Order, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !admin && o.CustomerID != customerID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// List returns the customer's orders.
func (s *Service) List(ctx context.Context, customerID uuid.UUID, limit int) ([]Order, error) {
	return s.Orders.ListByCustomer(ctx, customerID, limit)
}

// History returns the order's status trail with the ownership check applied.
func (s *Service) History(ctx context.Context, id, customerID uuid.UUID, admin bool) ([]StatusEntry, error) {
	if _, err := s.Get(ctx, id, customerID, admin); err != nil {
		return nil, err
	}
	return s.Orders.History(ctx, id)
}

// UpdateStatus moves an order through its lifecycle. Confirming deducts
// the applied credits; completing awards cashback. Both side effects run
// in the same transaction as the status write and are flag-guarded so
// a retried transition can never double-apply them.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target Status, note string) (Order, error) {
	if !target.Valid() {
		return Order{}, fmt.Errorf("order: unsupported status %q", target)
	}
	var updated Order
	err := s.InTx(ctx, func(d Deps) error {
		o, err := d.Orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, target) {
			return ErrInvalidTransition
		}

		switch target {
		case StatusConfirmed:
			if o.CreditsApplied > 0 && !o.CreditsDeducted {
				first, err := d.Orders.MarkCreditsDeducted(ctx, o.ID)
				if err != nil {
					return err
				}
				if first {
					if _, err := s.Credits.SpendForOrder(ctx, d.Credits, o.CustomerID, o.ID, o.CreditsApplied); err != nil {
						return err
					}
				}
			}
		case StatusCompleted:
			if !o.CashbackAwarded {
				first, err := d.Orders.MarkCashbackAwarded(ctx, o.ID)
				if err != nil {
					return err
				}
				if first {
					categories, products := itemScope(o.Items)
					if _, err := s.Credits.AwardCashback(ctx, d.Credits, o.CustomerID, o.ID, o.Subtotal, categories, products); err != nil {
						return err
					}
				}
			}
		}

		if err := d.Orders.SetStatus(ctx, o.ID, o.Status, target, note); err != nil {
			return err
		}
		updated = o
		updated.Status = target
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	switch target {
	case StatusConfirmed:
		s.emit(ctx, events.TopicOrderConfirmed, updated)
	case StatusCompleted:
		s.emit(ctx, events.TopicOrderCompleted, updated)
	case StatusCancelled:
		s.emit(ctx, events.TopicOrderCancelled, updated)
	}
	return updated, nil
}

// itemScope collects the distinct categories and product ids on the order
// for cashback eligibility checks.
func itemScope(items []Item) (categories, products []string) {
	seenCat := map[string]bool{}
	seenProd := map[string]bool{}
	for _, it := range items {
		if it.Category != "" && !seenCat[it.Category] {
			seenCat[it.Category] = true
			categories = append(categories, it.Category)
		}
		if it.ProductID != "" && !seenProd[it.ProductID] {
			seenProd[it.ProductID] = true
			products = append(products, it.ProductID)
		}
	}
	return categories, products
}

func (s *Service) emit(ctx context.Context, topic string, o Order) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, topic, map[string]any{
		"order_id":    o.ID,
		"customer_id": o.CustomerID,
		"subtotal":    o.Subtotal,
		"total":       o.Total,
		"status":      o.Status,
	}); err != nil {
		s.Log.Warn().Err(err).Str("topic", topic).Msg("order event emit failed")
	}
}
