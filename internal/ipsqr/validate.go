package ipsqr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	accountPattern     = regexp.MustCompile(`^\d{18}$`)
	amountPattern      = regexp.MustCompile(`^RSD\d+,?\d*$`)
	paymentCodePattern = regexp.MustCompile(`^\d{3}$`)
	modelPattern       = regexp.MustCompile(`^\d{2}$`)
	nonDigits          = regexp.MustCompile(`[^0-9]`)
)

const maxAmount = 999999999999.99

// Result is the outcome of validating a raw QR payload. Every field error
// found is accumulated, not just the first.
type Result struct {
	Valid  bool       `json:"valid"`
	Errors []string   `json:"errors"`
	Data   Descriptor `json:"parsedData"`
}

// Parse splits a raw payload into fields and validates presence and format
// of every one. It is a pure function: the caller decides what a valid or
// invalid result means for the session.
func Parse(raw string) Result {
	fields := make(map[string]string)

	for _, field := range strings.Split(raw, "|") {
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, ":", 2)
		if len(kv) == 2 {
			fields[kv[0]] = kv[1]
		}
	}

	var errs []string

	errs = validateConstant(fields, "K", identifierValue, errs)
	errs = validateConstant(fields, "V", versionValue, errs)
	errs = validateConstant(fields, "C", charsetValue, errs)
	errs = validateAccount(fields["R"], errs)
	errs = validateRecipientName(fields["N"], errs)
	errs = validateAmount(fields["I"], errs)
	errs = validatePaymentCode(fields["SF"], errs)

	if ro, ok := fields["RO"]; ok {
		errs = validateReference(ro, errs)
	}

	return Result{
		Valid:  len(errs) == 0,
		Errors: errs,
		Data: Descriptor{
			K:  fields["K"],
			V:  fields["V"],
			C:  fields["C"],
			R:  fields["R"],
			N:  fields["N"],
			I:  fields["I"],
			SF: fields["SF"],
			S:  fields["S"],
			RO: fields["RO"],
		},
	}
}

func validateConstant(fields map[string]string, key, expected string, errs []string) []string {
	value, ok := fields[key]
	if !ok {
		return append(errs, fmt.Sprintf("Mandatory field '%s' is missing", key))
	}
	if value != expected {
		return append(errs, fmt.Sprintf("Field '%s' has an invalid value. Expected: %s, received: %s", key, expected, value))
	}
	return errs
}

func validateAccount(account string, errs []string) []string {
	if account == "" {
		return append(errs, "Account number (R) is mandatory")
	}
	if !accountPattern.MatchString(account) {
		return append(errs, "Account number must be exactly 18 digits without hyphens. Received: "+account)
	}
	return errs
}

func validateRecipientName(name string, errs []string) []string {
	if name == "" {
		return append(errs, "Recipient name (N) is mandatory")
	}
	if utf8.RuneCountInString(name) > 70 {
		errs = append(errs, "Recipient name cannot be longer than 70 characters")
	}
	if strings.Count(name, "\n") > 2 {
		errs = append(errs, "Recipient name cannot have more than 3 lines")
	}
	return errs
}

func validateAmount(amount string, errs []string) []string {
	if amount == "" {
		return append(errs, "Amount (I) is mandatory")
	}
	if !amountPattern.MatchString(amount) {
		return append(errs, "Amount must be in format RSDamount,decimals (e.g. RSD5000,00)")
	}

	if len(amount) < 5 || len(amount) > 18 {
		errs = append(errs, "Amount must have between 5 and 18 alphanumeric characters")
	}

	value, err := strconv.ParseFloat(strings.Replace(strings.TrimPrefix(amount, "RSD"), ",", ".", 1), 64)
	if err != nil {
		return append(errs, "Invalid amount format")
	}
	if value < 0 {
		errs = append(errs, "Amount cannot be negative")
	}
	if value > maxAmount {
		errs = append(errs, "Amount cannot be greater than 999,999,999,999.99")
	}
	return errs
}

func validatePaymentCode(code string, errs []string) []string {
	if code == "" {
		return append(errs, "Payment code (SF) is mandatory")
	}
	if !paymentCodePattern.MatchString(code) {
		return append(errs, "Payment code must be exactly 3 digits")
	}

	if code[0] != '1' && code[0] != '2' {
		errs = append(errs, "Payment code must start with 1 (cash) or 2 (cashless)")
	}
	return errs
}

func validateReference(reference string, errs []string) []string {
	if len(reference) > 25 {
		errs = append(errs, "Reference number (RO) cannot be longer than 25 characters")
	}
	if len(reference) < 2 {
		return append(errs, "Reference number (RO) must have at least 2 digits for the model")
	}

	model := reference[:2]
	if !modelPattern.MatchString(model) {
		errs = append(errs, "Model in reference number must be 2 digits")
	}

	if model == "97" && len(reference) > 2 {
		if !validMod97(reference[2:]) {
			errs = append(errs, "Reference number for model 97 is invalid (checksum does not match)")
		}
	}
	return errs
}

func validMod97(reference string) bool {
	digits := nonDigits.ReplaceAllString(reference, "")
	if len(digits) < 2 {
		return false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return false
	}
	return n%97 == 0
}
