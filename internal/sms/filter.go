package sms

import "strings"

// senderTokens identify bKash, Nagad and Rocket by display name or short code.
var senderTokens = []string{"bkash", "16247", "nagad", "16167", "rocket"}

// keywordTokens mark transaction-confirmation language. "tk " keeps its
// trailing space so words like "thanks" or "tkt" do not match.
var keywordTokens = []string{"received", "cash in", "tk ", "trxid", "txnid"}

// Classify reports whether a message is a payment SMS: the sender must name a
// known payment service and the body must carry a transaction keyword. Both
// checks are case-insensitive substring matches.
func Classify(sender, body string) bool {
	return containsAny(strings.ToLower(sender), senderTokens) &&
		containsAny(strings.ToLower(body), keywordTokens)
}

// IsPaymentSMS classifies m.
func (m InboundMessage) IsPaymentSMS() bool {
	return Classify(m.Sender, m.Body)
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
