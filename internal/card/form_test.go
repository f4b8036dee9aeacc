package card

import (
	"errors"
	"testing"
	"time"
)

var formNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestValidateExpiry(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  error
	}{
		{name: "future year", value: "01/27", want: nil},
		{name: "current month still valid", value: "06/26", want: nil},
		{name: "previous month expired", value: "05/26", want: ErrCardExpired},
		{name: "previous year expired", value: "12/25", want: ErrCardExpired},
		{name: "month thirteen", value: "13/26", want: ErrBadExpiryMonth},
		{name: "month zero", value: "00/26", want: ErrBadExpiryMonth},
		{name: "single digit month", value: "1/26", want: ErrBadExpiryFormat},
		{name: "four digit year", value: "06/2026", want: ErrBadExpiryFormat},
		{name: "empty", value: "", want: ErrBadExpiryFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExpiry(tt.value, formNow)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateExpiry(%q) = %v, want %v", tt.value, err, tt.want)
			}
		})
	}
}

func TestValidateSecurityCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{code: "123", wantErr: false},
		{code: "1234", wantErr: false},
		{code: "12", wantErr: true},
		{code: "12345", wantErr: true},
		{code: "12a", wantErr: true},
		{code: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateSecurityCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecurityCode(%q) = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestFormValidateAllInvalid(t *testing.T) {
	f := NewForm()
	f.SetPAN("not a card")
	f.SetCardHolderName("P")
	f.SetExpiryDate("99")
	f.SetSecurityCode("1")

	errs := f.Validate(formNow)
	if len(errs) != 4 {
		t.Fatalf("Validate returned %d errors, want 4: %+v", len(errs), errs)
	}

	wantOrder := []string{"pan", "cardHolderName", "expiryDate", "securityCode"}
	wantMessages := []string{
		"Card number is invalid",
		"Card holder name is required",
		"Expiry date is invalid",
		"Security code must be 3 or 4 digits",
	}
	for i, fe := range errs {
		if fe.Field != wantOrder[i] {
			t.Errorf("error %d field = %q, want %q", i, fe.Field, wantOrder[i])
		}
		if fe.Message != wantMessages[i] {
			t.Errorf("error %d message = %q, want %q", i, fe.Message, wantMessages[i])
		}
	}
}

func TestFormValidateLuhnFailure(t *testing.T) {
	f := NewForm()
	f.SetPAN("4111 1111 1111 1112")
	f.SetCardHolderName("Petar Petrovic")
	f.SetExpiryDate("12/28")
	f.SetSecurityCode("123")

	errs := f.Validate(formNow)
	if len(errs) != 1 {
		t.Fatalf("Validate returned %d errors, want 1: %+v", len(errs), errs)
	}
	if errs[0].Field != "pan" || errs[0].Message != "Card number failed validation" {
		t.Errorf("got %+v, want pan checksum failure", errs[0])
	}
}

func TestFormValidateExpiredCardMessage(t *testing.T) {
	f := NewForm()
	f.SetPAN("4111111111111111")
	f.SetCardHolderName("Petar Petrovic")
	f.SetExpiryDate("05/26")
	f.SetSecurityCode("123")

	errs := f.Validate(formNow)
	if len(errs) != 1 {
		t.Fatalf("Validate returned %d errors, want 1: %+v", len(errs), errs)
	}
	if errs[0].Message != "Card has expired" {
		t.Errorf("message = %q, want %q", errs[0].Message, "Card has expired")
	}
}

func TestFormValidateClean(t *testing.T) {
	f := NewForm()
	f.SetPAN("4111 1111 1111 1111")
	f.SetCardHolderName("  Petar Petrovic  ")
	f.SetExpiryDate("12/28")
	f.SetSecurityCode("123")

	if errs := f.Validate(formNow); len(errs) != 0 {
		t.Fatalf("Validate returned errors for valid input: %+v", errs)
	}

	sub := f.Submission()
	if sub.PAN != "4111111111111111" {
		t.Errorf("Submission PAN = %q, want digits only", sub.PAN)
	}
	if sub.CardHolderName != "Petar Petrovic" {
		t.Errorf("Submission holder = %q, want trimmed", sub.CardHolderName)
	}
}

func TestFormBrandTracksPAN(t *testing.T) {
	f := NewForm()
	if f.Brand() != BrandUnknown {
		t.Fatalf("new form brand = %q, want %q", f.Brand(), BrandUnknown)
	}

	f.SetPAN("4")
	if f.Brand() != BrandVisa {
		t.Errorf("brand after '4' = %q, want %q", f.Brand(), BrandVisa)
	}

	f.SetPAN("55")
	if f.Brand() != BrandMastercard {
		t.Errorf("brand after '55' = %q, want %q", f.Brand(), BrandMastercard)
	}

	f.SetPAN("")
	if f.Brand() != BrandUnknown {
		t.Errorf("brand after clearing = %q, want %q", f.Brand(), BrandUnknown)
	}
}

func TestFormTouched(t *testing.T) {
	f := NewForm()
	if f.Touched("pan") {
		t.Fatal("pan touched before input")
	}

	f.SetPAN("4111")
	if !f.Touched("pan") {
		t.Error("pan not touched after SetPAN")
	}
	if f.Touched("securityCode") {
		t.Error("securityCode touched without input")
	}

	f.MarkAllTouched()
	for _, field := range []string{"pan", "cardHolderName", "expiryDate", "securityCode"} {
		if !f.Touched(field) {
			t.Errorf("field %q not touched after MarkAllTouched", field)
		}
	}
}
