package epx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

// GatewayID is the id orders and tokens processed by this driver are scoped by.
const GatewayID = "epx"

// Config contains configuration for the EPX Server Post driver
type Config struct {
	// Sandbox: https://secure.epxuap.com
	// Production: https://epxnow.com/epx/server_post
	BaseURL string

	Timeout            time.Duration
	InsecureSkipVerify bool

	// MaxRetries applies to transport errors and 5xx responses only.
	MaxRetries int

	// RateLimit is the sustained outbound requests per second; zero disables it.
	RateLimit float64
	Burst     int

	// HoldAVSCodes are AUTH_AVS results that turn an approval into a hold.
	HoldAVSCodes []string
}

// DefaultConfig returns the driver defaults for environment.
func DefaultConfig(environment string) *Config {
	baseURL := "https://epxnow.com/epx/server_post"
	if environment == domain.EnvironmentSandbox {
		baseURL = "https://secure.epxuap.com"
	}

	return &Config{
		BaseURL:            baseURL,
		Timeout:            30 * time.Second,
		InsecureSkipVerify: environment == domain.EnvironmentSandbox,
		MaxRetries:         3,
		RateLimit:          20,
		Burst:              5,
		HoldAVSCodes:       []string{"N", "C"},
	}
}

// Credentials identify the merchant on every request.
type Credentials struct {
	CustNbr     string `json:"cust_nbr"`
	MerchNbr    string `json:"merch_nbr"`
	DBANbr      string `json:"dba_nbr"`
	TerminalNbr string `json:"terminal_nbr"`
}

// Validate checks every credential is present.
func (c Credentials) Validate() error {
	switch {
	case c.CustNbr == "":
		return fmt.Errorf("cust_nbr is required")
	case c.MerchNbr == "":
		return fmt.Errorf("merch_nbr is required")
	case c.DBANbr == "":
		return fmt.Errorf("dba_nbr is required")
	case c.TerminalNbr == "":
		return fmt.Errorf("terminal_nbr is required")
	}
	return nil
}

// LoadCredentials reads a JSON credential secret.
func LoadCredentials(ctx context.Context, secrets ports.SecretManager, path string) (Credentials, error) {
	secret, err := secrets.GetSecret(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to load EPX credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(secret.Value), &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode EPX credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, fmt.Errorf("invalid EPX credentials: %w", err)
	}
	return creds, nil
}
