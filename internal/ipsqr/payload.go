// Package ipsqr builds and validates NBS IPS QR payment payloads.
//
// The wire format is a list of KEY:value pairs joined by '|', for example:
//
//	K:PR|V:01|C:1|R:845000000040484987|N:Rent-a-Car|I:RSD5000,00|SF:289
package ipsqr

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	identifierValue = "PR"
	versionValue    = "01"
	charsetValue    = "1"

	// 289: cashless payment, natural persons.
	defaultPaymentCode = "289"
)

// Descriptor is the structured form of a parsed payload. R, N, I and SF are
// required; S and RO are echoed only when present on the wire.
type Descriptor struct {
	K  string `json:"K,omitempty"`
	V  string `json:"V,omitempty"`
	C  string `json:"C,omitempty"`
	R  string `json:"R"`
	N  string `json:"N"`
	I  string `json:"I"`
	SF string `json:"SF"`
	S  string `json:"S,omitempty"`
	RO string `json:"RO,omitempty"`
}

// Payment describes a bank transfer to encode as an IPS QR payload.
type Payment struct {
	RecipientAccount string
	RecipientName    string
	Amount           float64
	Currency         string
	Reference        string
	Purpose          string
}

// Build assembles the payload in canonical field order. The optional RO
// field is emitted with model 00; when absent the trailing separator is
// dropped.
func Build(p Payment) string {
	var b strings.Builder

	b.WriteString("K:" + identifierValue + "|")
	b.WriteString("V:" + versionValue + "|")
	b.WriteString("C:" + charsetValue + "|")
	b.WriteString("R:" + normalizeAccount(p.RecipientAccount) + "|")
	b.WriteString("N:" + p.RecipientName + "|")
	b.WriteString("I:" + p.Currency + formatAmount(p.Amount) + "|")
	b.WriteString("SF:" + defaultPaymentCode + "|")

	if p.Purpose != "" {
		b.WriteString("S:" + truncate(p.Purpose, 35) + "|")
	}

	payload := b.String()
	if p.Reference != "" {
		payload += "RO:00" + p.Reference
	} else {
		payload = strings.TrimSuffix(payload, "|")
	}

	return payload
}

// normalizeAccount reduces a recipient account to the 18-digit form the IPS
// standard requires: country prefix and hyphens removed, the middle block of
// a bank-middle-control triplet zero padded to 13 digits.
func normalizeAccount(account string) string {
	cleaned := strings.NewReplacer("-", "", " ", "").Replace(account)
	cleaned = strings.TrimPrefix(cleaned, "RS")

	if len(cleaned) == 18 {
		return cleaned
	}

	if strings.Contains(account, "-") {
		parts := strings.Split(strings.ReplaceAll(account, "RS", ""), "-")
		if len(parts) == 3 {
			middle, ok := new(big.Int).SetString(parts[1], 10)
			if ok {
				return parts[0] + fmt.Sprintf("%013s", middle.String()) + parts[2]
			}
		}
	}

	if len(cleaned) < 18 {
		n, ok := new(big.Int).SetString(cleaned, 10)
		if ok {
			return fmt.Sprintf("%018s", n.String())
		}
		return cleaned
	}

	return cleaned[:18]
}

// formatAmount renders an amount with a comma decimal separator. A single
// trailing zero is trimmed unless the fraction is exactly ",00".
func formatAmount(amount float64) string {
	formatted := strings.Replace(fmt.Sprintf("%.2f", amount), ".", ",", 1)
	if strings.HasSuffix(formatted, "0") && !strings.HasSuffix(formatted, ",00") {
		formatted = formatted[:len(formatted)-1]
	}
	return formatted
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
