package tokens

import (
	"context"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

// CustomerID returns the user's gateway customer id for environment,
// generating and storing one on first use. A stored id is never regenerated.
func (s *Synchronizer) CustomerID(ctx context.Context, userID int64, environment string) (string, error) {
	environment = s.resolveEnvironment(environment)

	id, err := s.customers.GetCustomerID(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeStorageError, "failed to load customer id", err)
	}
	if id != "" {
		return id, nil
	}

	if gen, ok := s.gateway.(ports.CustomerIDGenerator); ok {
		id = gen.GenerateCustomerID(userID, nil)
	}
	if id == "" {
		id = domain.GenerateCustomerID(s.settings.CustomerIDPrefix, userID)
	}

	if err := s.customers.SetCustomerID(ctx, userID, s.GatewayID(), environment, id); err != nil {
		return "", domain.WrapError(domain.ErrorCodeStorageError, "failed to store customer id", err)
	}

	// A concurrent request may have stored its id first.
	stored, err := s.customers.GetCustomerID(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeStorageError, "failed to load customer id", err)
	}
	if stored != "" && stored != id {
		return stored, nil
	}

	s.logger.Info("customer id generated",
		ports.Int64("user_id", userID),
		ports.String("environment", environment),
		ports.String("customer_id", id))

	return id, nil
}

// GuestCustomerID returns the customer id for a guest order. An id already
// recorded on the order wins.
func (s *Synchronizer) GuestCustomerID(order *domain.Order) string {
	if id := order.GetMeta(s.GatewayID(), domain.MetaCustomerID); id != "" {
		return id
	}
	if gen, ok := s.gateway.(ports.CustomerIDGenerator); ok {
		if id := gen.GenerateCustomerID(0, order); id != "" {
			return id
		}
	}
	return domain.GenerateGuestCustomerID(s.settings.CustomerIDPrefix, order.ID)
}
