package card

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadExpiryFormat  = errors.New("expiry date must be in MM/YY format")
	ErrBadExpiryMonth   = errors.New("expiry month must be between 01 and 12")
	ErrCardExpired      = errors.New("card has expired")
	ErrBadSecurityCode  = errors.New("security code must be 3 or 4 digits")
	ErrHolderNameNeeded = errors.New("card holder name must be at least 3 characters")
)

var (
	expiryPattern       = regexp.MustCompile(`^\d{2}/\d{2}$`)
	securityCodePattern = regexp.MustCompile(`^\d{3,4}$`)
)

// ValidateExpiry checks an MM/YY expiry against the current month. The
// current month itself is still valid; anything strictly before it is
// rejected.
func ValidateExpiry(value string, now time.Time) error {
	if !expiryPattern.MatchString(value) {
		return ErrBadExpiryFormat
	}

	parts := strings.SplitN(value, "/", 2)
	month, _ := strconv.Atoi(parts[0])
	year, _ := strconv.Atoi(parts[1])

	if month < 1 || month > 12 {
		return ErrBadExpiryMonth
	}

	currentYear := now.Year() % 100
	currentMonth := int(now.Month())

	if year < currentYear || (year == currentYear && month < currentMonth) {
		return ErrCardExpired
	}

	return nil
}

func ValidateSecurityCode(code string) error {
	if !securityCodePattern.MatchString(code) {
		return ErrBadSecurityCode
	}
	return nil
}

// Input is the card data collected from the payer. It exists only for the
// duration of form interaction and is never persisted.
type Input struct {
	PAN            string
	CardHolderName string
	ExpiryDate     string
	SecurityCode   string
}

// FieldError ties a validation failure to the form field it belongs to.
type FieldError struct {
	Field   string
	Err     error
	Message string
}

// Form orchestrates field-level validation for the card payment form. The
// detected brand is recomputed on every PAN change.
type Form struct {
	input   Input
	brand   Brand
	touched map[string]bool
}

func NewForm() *Form {
	return &Form{brand: BrandUnknown, touched: make(map[string]bool)}
}

// SetPAN records raw PAN input and re-detects the brand from whatever digits
// are present so far, so the brand tracks every keystroke.
func (f *Form) SetPAN(raw string) {
	f.input.PAN = raw
	f.touched["pan"] = true
	digits := strings.ReplaceAll(raw, " ", "")
	f.brand = DetectBrand(digits)
}

func (f *Form) SetCardHolderName(name string) {
	f.input.CardHolderName = name
	f.touched["cardHolderName"] = true
}

func (f *Form) SetExpiryDate(value string) {
	f.input.ExpiryDate = value
	f.touched["expiryDate"] = true
}

func (f *Form) SetSecurityCode(code string) {
	f.input.SecurityCode = code
	f.touched["securityCode"] = true
}

func (f *Form) Brand() Brand { return f.brand }

func (f *Form) Touched(field string) bool { return f.touched[field] }

// MarkAllTouched flags every field so validation errors surface even for
// fields the payer never visited. Called when submission is blocked.
func (f *Form) MarkAllTouched() {
	for _, field := range []string{"pan", "cardHolderName", "expiryDate", "securityCode"} {
		f.touched[field] = true
	}
}

// Validate runs every field check and returns all failures in field order.
func (f *Form) Validate(now time.Time) []FieldError {
	var errs []FieldError

	digits, err := Normalize(f.input.PAN)
	if err != nil {
		errs = append(errs, FieldError{Field: "pan", Err: err, Message: "Card number is invalid"})
	} else if !Valid(digits) {
		errs = append(errs, FieldError{Field: "pan", Err: ErrInvalidPAN, Message: "Card number failed validation"})
	}

	if len(strings.TrimSpace(f.input.CardHolderName)) < 3 {
		errs = append(errs, FieldError{Field: "cardHolderName", Err: ErrHolderNameNeeded, Message: "Card holder name is required"})
	}

	if err := ValidateExpiry(f.input.ExpiryDate, now); err != nil {
		msg := "Expiry date is invalid"
		if errors.Is(err, ErrCardExpired) {
			msg = "Card has expired"
		}
		errs = append(errs, FieldError{Field: "expiryDate", Err: err, Message: msg})
	}

	if err := ValidateSecurityCode(f.input.SecurityCode); err != nil {
		errs = append(errs, FieldError{Field: "securityCode", Err: err, Message: "Security code must be 3 or 4 digits"})
	}

	return errs
}

// Submission returns normalized input ready for the processing request.
// It must only be called after Validate reported no errors.
func (f *Form) Submission() Input {
	out := f.input
	out.PAN = strings.ReplaceAll(out.PAN, " ", "")
	out.CardHolderName = strings.TrimSpace(out.CardHolderName)
	return out
}
