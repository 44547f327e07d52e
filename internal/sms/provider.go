package sms

import (
	"regexp"
	"strconv"
	"strings"
)

// Provider names the mobile-payment service a message came from.
type Provider string

const (
	ProviderBkash   Provider = "bkash"
	ProviderNagad   Provider = "nagad"
	ProviderRocket  Provider = "rocket"
	ProviderUnknown Provider = "unknown"
)

// DetectProvider maps a sender to its payment service. Rocket's 16216 short
// code is recognised here for labelling even though Classify does not accept
// it as a sender token.
func DetectProvider(sender string) Provider {
	s := strings.ToLower(sender)
	switch {
	case strings.Contains(s, "bkash") || strings.Contains(s, "16247"):
		return ProviderBkash
	case strings.Contains(s, "nagad") || strings.Contains(s, "16167"):
		return ProviderNagad
	case strings.Contains(s, "rocket") || strings.Contains(s, "16216"):
		return ProviderRocket
	default:
		return ProviderUnknown
	}
}

// Transaction is a best-effort summary of a payment SMS used for log fields.
// Zero values mean the field was not found.
type Transaction struct {
	Provider     Provider
	Amount       float64
	Counterparty string
	TrxID        string
}

var (
	amountRe       = regexp.MustCompile(`(?i)Tk\s*([\d,]+\.?\d*)`)
	counterpartyRe = regexp.MustCompile(`(?i)from\s*(\d{11})`)
	trxIDRes       = map[Provider]*regexp.Regexp{
		ProviderBkash:  regexp.MustCompile(`(?i)TrxID[:\s]*([A-Z0-9]+)`),
		ProviderNagad:  regexp.MustCompile(`(?i)TxnID[:\s]*([A-Z0-9]+)`),
		ProviderRocket: regexp.MustCompile(`(?i)Trx(?:ID)?[:\s]*([A-Z0-9]+)`),
	}
)

// ParseTransaction extracts amount, counterparty number and transaction id
// from body using the provider's message format. It returns false for an
// unknown provider.
func ParseTransaction(provider Provider, body string) (Transaction, bool) {
	idRe, ok := trxIDRes[provider]
	if !ok {
		return Transaction{}, false
	}
	tx := Transaction{Provider: provider}
	if m := amountRe.FindStringSubmatch(body); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			tx.Amount = v
		}
	}
	if m := counterpartyRe.FindStringSubmatch(body); m != nil {
		tx.Counterparty = m[1]
	}
	if m := idRe.FindStringSubmatch(body); m != nil {
		tx.TrxID = m[1]
	}
	return tx, true
}

// Complete reports whether the amount and transaction id were both found.
func (t Transaction) Complete() bool {
	return t.Amount > 0 && t.TrxID != ""
}
