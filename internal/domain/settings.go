package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Gateway environments. Tokens and customer ids are scoped to one.
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// Transaction intents for credit card payments.
const (
	TransactionTypeCharge        = "charge"
	TransactionTypeAuthorization = "authorization"
)

const (
	DefaultTokenCacheTTL    = 60 * time.Second
	DefaultAuthorizationTTL = 30 * 24 * time.Hour
)

// GatewaySettings is the typed configuration of one gateway instance.
type GatewaySettings struct {
	ID                  string        `mapstructure:"id" yaml:"id"`
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	Title               string        `mapstructure:"title" yaml:"title"`
	Environment         string        `mapstructure:"environment" yaml:"environment"`
	TransactionType     string        `mapstructure:"transaction_type" yaml:"transaction_type"`
	ChargeVirtualOrders bool          `mapstructure:"charge_virtual_orders" yaml:"charge_virtual_orders"`
	Tokenization        bool          `mapstructure:"tokenization" yaml:"tokenization"`
	CardTypes           []string      `mapstructure:"card_types" yaml:"card_types"`
	EnableCSC           bool          `mapstructure:"enable_csc" yaml:"enable_csc"`
	EnableCapture       bool          `mapstructure:"enable_capture" yaml:"enable_capture"`
	AuthorizationTTL    time.Duration `mapstructure:"authorization_ttl" yaml:"authorization_ttl"`
	CustomerIDPrefix    string        `mapstructure:"customer_id_prefix" yaml:"customer_id_prefix"`
	TokenCacheTTL       time.Duration `mapstructure:"token_cache_ttl" yaml:"token_cache_ttl"`
	Debug               bool          `mapstructure:"debug" yaml:"debug"`
}

// DefaultGatewaySettings returns the values used for keys a settings map omits.
func DefaultGatewaySettings() GatewaySettings {
	return GatewaySettings{
		Enabled:          true,
		Title:            "Credit Card",
		Environment:      EnvironmentProduction,
		TransactionType:  TransactionTypeCharge,
		Tokenization:     true,
		EnableCSC:        true,
		AuthorizationTTL: DefaultAuthorizationTTL,
		CustomerIDPrefix: DefaultCustomerIDPrefix,
		TokenCacheTTL:    DefaultTokenCacheTTL,
	}
}

// ParseGatewaySettings decodes a raw settings map. Unknown keys are rejected.
func ParseGatewaySettings(raw map[string]interface{}) (*GatewaySettings, error) {
	settings := DefaultGatewaySettings()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &settings,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, WrapError(ErrorCodeInvalidConfiguration, "failed to build settings decoder", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, WrapError(ErrorCodeInvalidConfiguration, "failed to decode gateway settings", err)
	}

	settings.normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *GatewaySettings) normalize() {
	s.ID = strings.TrimSpace(s.ID)
	s.Environment = strings.ToLower(strings.TrimSpace(s.Environment))
	s.TransactionType = strings.ToLower(strings.TrimSpace(s.TransactionType))

	cardTypes := make([]string, 0, len(s.CardTypes))
	for _, ct := range s.CardTypes {
		if normalized := NormalizeCardType(ct); normalized != "" {
			cardTypes = append(cardTypes, normalized)
		}
	}
	s.CardTypes = cardTypes
}

// Validate checks the settings are usable.
func (s *GatewaySettings) Validate() error {
	if s.ID == "" {
		return NewDomainError(ErrorCodeInvalidConfiguration, "gateway id is required")
	}
	if s.Environment == "" {
		return NewDomainError(ErrorCodeInvalidConfiguration, "environment is required")
	}
	switch s.TransactionType {
	case TransactionTypeCharge, TransactionTypeAuthorization:
	default:
		return NewDomainError(ErrorCodeInvalidConfiguration,
			fmt.Sprintf("transaction_type must be %q or %q, got %q",
				TransactionTypeCharge, TransactionTypeAuthorization, s.TransactionType))
	}
	if s.TokenCacheTTL < 0 || s.AuthorizationTTL < 0 {
		return NewDomainError(ErrorCodeInvalidConfiguration, "durations must not be negative")
	}
	return nil
}

// IsProduction reports whether the gateway runs against the live environment.
func (s *GatewaySettings) IsProduction() bool {
	return s.Environment == EnvironmentProduction
}

// AcceptsCardType reports whether the brand is allowed. An empty list accepts all.
func (s *GatewaySettings) AcceptsCardType(cardType string) bool {
	if len(s.CardTypes) == 0 || cardType == "" {
		return true
	}
	return slices.Contains(s.CardTypes, cardType)
}

// PerformCharge reports whether a card payment for order is a charge rather
// than an authorization.
func (s *GatewaySettings) PerformCharge(order *Order) bool {
	if s.TransactionType == TransactionTypeCharge {
		return true
	}
	return s.ChargeVirtualOrders && order != nil && order.Virtual
}
