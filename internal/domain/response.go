package domain

import "fmt"

// Response is the outcome of a single gateway call. A declined transaction
// is a Response value, never an error.
type Response interface {
	TransactionApproved() bool
	TransactionHeld() bool
	StatusCode() string
	StatusMessage() string
	TransactionID() string
}

// TokenResponse is returned by a tokenize call.
type TokenResponse interface {
	Response
	PaymentToken() *PaymentToken
}

// TokenListResponse is returned by a remote token listing call.
type TokenListResponse interface {
	Response
	PaymentTokens() []*PaymentToken
}

// CustomerIDResponse is implemented by responses that carry the gateway's customer id.
type CustomerIDResponse interface {
	CustomerID() string
}

// ResponseOutcome is the tri-state result of a gateway call.
type ResponseOutcome string

const (
	OutcomeApproved ResponseOutcome = "approved"
	OutcomeHeld     ResponseOutcome = "held"
	OutcomeDeclined ResponseOutcome = "declined"
)

// GatewayResponse is a ready-made Response for drivers.
type GatewayResponse struct {
	Outcome  ResponseOutcome
	Code     string
	Message  string
	TransID  string
	Token    *PaymentToken
	Tokens   []*PaymentToken
	Customer string
	Extra    map[string]string
}

// TransactionApproved implements Response
func (r *GatewayResponse) TransactionApproved() bool { return r.Outcome == OutcomeApproved }

// TransactionHeld implements Response
func (r *GatewayResponse) TransactionHeld() bool { return r.Outcome == OutcomeHeld }

// StatusCode implements Response
func (r *GatewayResponse) StatusCode() string { return r.Code }

// StatusMessage implements Response
func (r *GatewayResponse) StatusMessage() string { return r.Message }

// TransactionID implements Response
func (r *GatewayResponse) TransactionID() string { return r.TransID }

// PaymentToken implements TokenResponse
func (r *GatewayResponse) PaymentToken() *PaymentToken { return r.Token }

// PaymentTokens implements TokenListResponse
func (r *GatewayResponse) PaymentTokens() []*PaymentToken { return r.Tokens }

// CustomerID implements CustomerIDResponse
func (r *GatewayResponse) CustomerID() string { return r.Customer }

// OutcomeOf classifies any Response.
func OutcomeOf(r Response) ResponseOutcome {
	switch {
	case r.TransactionApproved():
		return OutcomeApproved
	case r.TransactionHeld():
		return OutcomeHeld
	default:
		return OutcomeDeclined
	}
}

// DescribeFailure renders "code: message" plus the transaction id when present.
func DescribeFailure(r Response) string {
	msg := fmt.Sprintf("%s: %s", r.StatusCode(), r.StatusMessage())
	if id := r.TransactionID(); id != "" {
		msg += fmt.Sprintf(" (Transaction ID %s)", id)
	}
	return msg
}
