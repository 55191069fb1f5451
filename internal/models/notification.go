package models

import (
	"fmt"
	"sort"
	"strings"
)

type AlertKind string

const (
	// AlertFulfilmentFailed fires when the wallet payment went through but
	// the top-up did not. Funds need manual reconciliation.
	AlertFulfilmentFailed AlertKind = "fulfilment_failed"
	// AlertIncompletePayment fires when the wallet reports a payment left
	// unfinished by an earlier session.
	AlertIncompletePayment AlertKind = "incomplete_payment"
	// AlertTopupSettled fires when a watched top-up reaches a terminal status.
	AlertTopupSettled AlertKind = "topup_settled"
	// AlertOrphanedPayment fires when the wallet approves or completes a
	// payment the server already stopped waiting for.
	AlertOrphanedPayment AlertKind = "orphaned_payment"
)

// Alert is an operator-facing message.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	UserID  string    `json:"user_id,omitempty"`
	Message string    `json:"message"`
	// Fields carries correlation data such as payment and top-up ids.
	Fields map[string]string `json:"fields,omitempty"`
}

func (a *Alert) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", a.Kind, a.Message)
	if a.UserID != "" {
		fmt.Fprintf(&b, "\nuser: %s", a.UserID)
	}
	for _, k := range sortedKeys(a.Fields) {
		fmt.Fprintf(&b, "\n%s: %s", k, a.Fields[k])
	}
	return b.String()
}

// NotificationService delivers operator alerts.
type NotificationService interface {
	SendAlert(alert *Alert)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
