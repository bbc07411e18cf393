package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// StatusListener is notified after an order status change, the way host
// status-transition hooks fire.
type StatusListener func(ctx context.Context, orderID string, from, to domain.OrderStatus)

// OrderRepository is an in-process ports.OrderRepository.
type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]*domain.Order
	notes     map[string][]string
	paidTxn   map[string]string
	listeners []StatusListener
}

// NewOrderRepository creates an empty repository
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:  make(map[string]*domain.Order),
		notes:   make(map[string][]string),
		paidTxn: make(map[string]string),
	}
}

// OnStatusChange registers a listener for status transitions.
func (r *OrderRepository) OnStatusChange(l StatusListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Put stores or replaces an order.
func (r *OrderRepository) Put(order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
}

// Notes returns the notes recorded for an order.
func (r *OrderRepository) Notes(orderID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.notes[orderID]...)
}

// PaidTransactionID returns the transaction id PaymentComplete was called with.
func (r *OrderRepository) PaidTransactionID(orderID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.paidTxn[orderID]
	return id, ok
}

// GetOrder implements ports.OrderRepository
func (r *OrderRepository) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	return cloneOrder(order), nil
}

// UpdateStatus implements ports.OrderRepository
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) error {
	r.mu.Lock()
	order, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		return domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	from := order.Status
	order.Status = status
	if note != "" {
		r.notes[orderID] = append(r.notes[orderID], note)
	}
	listeners := append([]StatusListener(nil), r.listeners...)
	r.mu.Unlock()

	r.notify(ctx, listeners, orderID, from, status)
	return nil
}

// AddNote implements ports.OrderRepository
func (r *OrderRepository) AddNote(_ context.Context, orderID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	r.notes[orderID] = append(r.notes[orderID], note)
	return nil
}

// UpdateMeta implements ports.OrderRepository
func (r *OrderRepository) UpdateMeta(_ context.Context, orderID string, meta map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	if order.Meta == nil {
		order.Meta = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		order.Meta[k] = v
	}
	return nil
}

// PaymentComplete implements ports.OrderRepository
func (r *OrderRepository) PaymentComplete(ctx context.Context, orderID, transactionID string) error {
	r.mu.Lock()
	order, ok := r.orders[orderID]
	if !ok {
		r.mu.Unlock()
		return domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	from := order.Status
	order.StockReduced = true
	order.Status = domain.OrderStatusProcessing
	if order.Virtual {
		order.Status = domain.OrderStatusCompleted
	}
	to := order.Status
	r.paidTxn[orderID] = transactionID
	listeners := append([]StatusListener(nil), r.listeners...)
	r.mu.Unlock()

	r.notify(ctx, listeners, orderID, from, to)
	return nil
}

// ReduceStock implements ports.OrderRepository
func (r *OrderRepository) ReduceStock(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	order.StockReduced = true
	return nil
}

func (r *OrderRepository) notify(ctx context.Context, listeners []StatusListener, orderID string, from, to domain.OrderStatus) {
	if from == to {
		return
	}
	for _, l := range listeners {
		l(ctx, orderID, from, to)
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Payment = nil
	c.SubscriptionIDs = append([]string(nil), o.SubscriptionIDs...)
	if o.Meta != nil {
		c.Meta = make(map[string]string, len(o.Meta))
		for k, v := range o.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

// SubscriptionStore is an in-process ports.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	meta map[string]domain.SubscriptionPaymentMeta
}

// NewSubscriptionStore creates an empty store
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{meta: make(map[string]domain.SubscriptionPaymentMeta)}
}

// GetPaymentMeta implements ports.SubscriptionStore
func (s *SubscriptionStore) GetPaymentMeta(_ context.Context, subscriptionID string) (*domain.SubscriptionPaymentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[subscriptionID]
	if !ok {
		return &domain.SubscriptionPaymentMeta{SubscriptionID: subscriptionID}, nil
	}
	return &meta, nil
}

// SavePaymentMeta implements ports.SubscriptionStore
func (s *SubscriptionStore) SavePaymentMeta(_ context.Context, meta *domain.SubscriptionPaymentMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[meta.SubscriptionID] = *meta
	return nil
}
