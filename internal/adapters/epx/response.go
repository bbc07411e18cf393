package epx

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// Response keys carried into domain.GatewayResponse.Extra.
const (
	fieldAuthCode     = "AUTH_CODE"
	fieldAuthAVS      = "AUTH_AVS"
	fieldAuthCVV2     = "AUTH_CVV2"
	fieldAuthCardType = "AUTH_CARD_TYPE"
)

const approvedCode = "00"

// serverPostResponse is the subset of EPX response fields the driver reads.
type serverPostResponse struct {
	AuthGUID     string
	AuthResp     string
	AuthRespText string
	AuthCode     string
	AuthAVS      string
	AuthCVV2     string
	AuthCardType string
}

// epxXMLResponse is EPX's <RESPONSE><FIELDS><FIELD KEY="..."> format.
type epxXMLResponse struct {
	XMLName xml.Name `xml:"RESPONSE"`
	Fields  struct {
		Fields []struct {
			Key   string `xml:"KEY,attr"`
			Value string `xml:",chardata"`
		} `xml:"FIELD"`
	} `xml:"FIELDS"`
}

// parseResponse accepts either the XML or the URL-encoded key-value body.
func parseResponse(body []byte) (*serverPostResponse, error) {
	trimmed := strings.TrimSpace(string(body))

	fields := make(map[string]string)
	if strings.HasPrefix(trimmed, "<") {
		var resp epxXMLResponse
		if err := xml.Unmarshal([]byte(trimmed), &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
		}
		for _, f := range resp.Fields.Fields {
			fields[f.Key] = strings.TrimSpace(f.Value)
		}
	} else {
		params, err := url.ParseQuery(trimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key-value response: %w", err)
		}
		for k := range params {
			fields[k] = params.Get(k)
		}
	}

	resp := &serverPostResponse{
		AuthGUID:     fields["AUTH_GUID"],
		AuthResp:     fields["AUTH_RESP"],
		AuthRespText: fields["AUTH_RESP_TEXT"],
		AuthCode:     fields[fieldAuthCode],
		AuthAVS:      fields[fieldAuthAVS],
		AuthCVV2:     fields[fieldAuthCVV2],
		AuthCardType: fields[fieldAuthCardType],
	}
	if resp.AuthResp == "" {
		return nil, fmt.Errorf("AUTH_RESP is missing from response")
	}
	return resp, nil
}

// toGatewayResponse classifies the response. An approval whose AVS result
// is in holdAVS is held for review.
func (r *serverPostResponse) toGatewayResponse(holdAVS []string) *domain.GatewayResponse {
	outcome := domain.OutcomeDeclined
	message := r.AuthRespText
	if r.AuthResp == approvedCode {
		outcome = domain.OutcomeApproved
		if r.AuthAVS != "" && slices.Contains(holdAVS, strings.ToUpper(r.AuthAVS)) {
			outcome = domain.OutcomeHeld
			message = "AVS mismatch"
		}
	}

	extra := make(map[string]string, 4)
	for k, v := range map[string]string{
		fieldAuthCode:     r.AuthCode,
		fieldAuthAVS:      r.AuthAVS,
		fieldAuthCVV2:     r.AuthCVV2,
		fieldAuthCardType: r.AuthCardType,
	} {
		if v != "" {
			extra[k] = v
		}
	}

	return &domain.GatewayResponse{
		Outcome: outcome,
		Code:    r.AuthResp,
		Message: message,
		TransID: r.AuthGUID,
		Extra:   extra,
	}
}
