package domain

import (
	"fmt"
	"strings"
)

// DefaultCustomerIDPrefix is used when gateway settings leave the prefix empty.
const DefaultCustomerIDPrefix = "wc"

// GenerateCustomerID returns "<prefix>-<user_id>".
func GenerateCustomerID(prefix string, userID int64) string {
	return fmt.Sprintf("%s-%d", customerIDPrefix(prefix), userID)
}

// GenerateGuestCustomerID returns "<prefix>-guest-<order_id>".
func GenerateGuestCustomerID(prefix, orderID string) string {
	return fmt.Sprintf("%s-guest-%s", customerIDPrefix(prefix), orderID)
}

func customerIDPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultCustomerIDPrefix
	}
	return prefix
}
