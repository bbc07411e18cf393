package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-engine/internal/domain"
)

type transition struct {
	orderID  string
	from, to domain.OrderStatus
}

func TestOrderRepository_StatusListeners(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	repo.Put(&domain.Order{ID: "101", Status: domain.OrderStatusPending})
	repo.Put(&domain.Order{ID: "102", Status: domain.OrderStatusOnHold, Virtual: true})

	var seen []transition
	repo.OnStatusChange(func(_ context.Context, orderID string, from, to domain.OrderStatus) {
		seen = append(seen, transition{orderID, from, to})
	})

	require.NoError(t, repo.UpdateStatus(ctx, "101", domain.OrderStatusOnHold, "Authorization only transaction"))
	require.NoError(t, repo.UpdateStatus(ctx, "101", domain.OrderStatusOnHold, ""))
	require.NoError(t, repo.PaymentComplete(ctx, "102", "txn-9"))

	assert.Equal(t, []transition{
		{"101", domain.OrderStatusPending, domain.OrderStatusOnHold},
		{"102", domain.OrderStatusOnHold, domain.OrderStatusCompleted},
	}, seen)
	assert.Equal(t, []string{"Authorization only transaction"}, repo.Notes("101"))

	txn, ok := repo.PaidTransactionID("102")
	assert.True(t, ok)
	assert.Equal(t, "txn-9", txn)

	order, err := repo.GetOrder(ctx, "102")
	require.NoError(t, err)
	assert.True(t, order.StockReduced)
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	repo.Put(&domain.Order{ID: "101", Meta: map[string]string{"charge_captured": "no"}})

	order, err := repo.GetOrder(ctx, "101")
	require.NoError(t, err)
	order.Meta["charge_captured"] = "yes"

	require.NoError(t, repo.UpdateMeta(ctx, "101", map[string]string{"trans_id": "t-1"}))

	stored, err := repo.GetOrder(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"charge_captured": "no", "trans_id": "t-1"}, stored.Meta)
}

func TestOrderRepository_UnknownOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	_, err := repo.GetOrder(ctx, "404")
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderNotFound))
	assert.True(t, domain.IsDomainError(repo.AddNote(ctx, "404", "x"), domain.ErrorCodeOrderNotFound))
	assert.True(t, domain.IsDomainError(repo.ReduceStock(ctx, "404"), domain.ErrorCodeOrderNotFound))
}

func TestSubscriptionStore(t *testing.T) {
	ctx := context.Background()
	store := NewSubscriptionStore()

	meta, err := store.GetPaymentMeta(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", meta.SubscriptionID)
	assert.Empty(t, meta.TokenID)

	require.NoError(t, store.SavePaymentMeta(ctx, &domain.SubscriptionPaymentMeta{
		SubscriptionID: "sub-1",
		TokenID:        "tok-1",
		CustomerID:     "cust-1",
	}))

	meta, err = store.GetPaymentMeta(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", meta.TokenID)
	assert.Equal(t, "cust-1", meta.CustomerID)
}
