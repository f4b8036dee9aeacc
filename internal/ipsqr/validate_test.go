package ipsqr

import (
	"strings"
	"testing"
)

const validPayload = "K:PR|V:01|C:1|R:845000000000404849|N:Rent-a-Car SEP|I:RSD5000,00|SF:289"

func assertHasError(t *testing.T, result Result, want string) {
	t.Helper()
	if result.Valid {
		t.Fatalf("result is valid, expected error %q", want)
	}
	for _, e := range result.Errors {
		if e == want {
			return
		}
	}
	t.Errorf("error %q not found in %v", want, result.Errors)
}

func TestParseValid(t *testing.T) {
	result := Parse(validPayload)
	if !result.Valid {
		t.Fatalf("payload rejected: %v", result.Errors)
	}
	if len(result.Errors) != 0 {
		t.Errorf("valid result carries errors: %v", result.Errors)
	}

	data := result.Data
	if data.K != "PR" || data.V != "01" || data.C != "1" {
		t.Errorf("constant fields misparsed: %+v", data)
	}
	if data.R != "845000000000404849" {
		t.Errorf("R = %q", data.R)
	}
	if data.N != "Rent-a-Car SEP" {
		t.Errorf("N = %q", data.N)
	}
	if data.I != "RSD5000,00" {
		t.Errorf("I = %q", data.I)
	}
	if data.SF != "289" {
		t.Errorf("SF = %q", data.SF)
	}
	if data.S != "" || data.RO != "" {
		t.Errorf("optional fields present without wire input: %+v", data)
	}
}

func TestParseOptionalFieldsEchoed(t *testing.T) {
	result := Parse(validPayload + "|S:Car rental|RO:00PSP-ABCD1234")
	if !result.Valid {
		t.Fatalf("payload rejected: %v", result.Errors)
	}
	if result.Data.S != "Car rental" {
		t.Errorf("S = %q, want %q", result.Data.S, "Car rental")
	}
	if result.Data.RO != "00PSP-ABCD1234" {
		t.Errorf("RO = %q, want %q", result.Data.RO, "00PSP-ABCD1234")
	}
}

func TestParseMissingMandatoryFields(t *testing.T) {
	result := Parse("")
	for _, want := range []string{
		"Mandatory field 'K' is missing",
		"Mandatory field 'V' is missing",
		"Mandatory field 'C' is missing",
		"Account number (R) is mandatory",
		"Recipient name (N) is mandatory",
		"Amount (I) is mandatory",
		"Payment code (SF) is mandatory",
	} {
		assertHasError(t, result, want)
	}
}

func TestParseFieldErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "wrong identifier value",
			payload: "K:XX|V:01|C:1|R:845000000000404849|N:Shop|I:RSD5000,00|SF:289",
			want:    "Field 'K' has an invalid value. Expected: PR, received: XX",
		},
		{
			name:    "wrong version value",
			payload: "K:PR|V:02|C:1|R:845000000000404849|N:Shop|I:RSD5000,00|SF:289",
			want:    "Field 'V' has an invalid value. Expected: 01, received: 02",
		},
		{
			name:    "account keeps hyphens",
			payload: "K:PR|V:01|C:1|R:845-0000000004048-49|N:Shop|I:RSD5000,00|SF:289",
			want:    "Account number must be exactly 18 digits without hyphens. Received: 845-0000000004048-49",
		},
		{
			name:    "account too short",
			payload: "K:PR|V:01|C:1|R:12345|N:Shop|I:RSD5000,00|SF:289",
			want:    "Account number must be exactly 18 digits without hyphens. Received: 12345",
		},
		{
			name:    "amount wrong currency prefix",
			payload: "K:PR|V:01|C:1|R:845000000000404849|N:Shop|I:EUR5000,00|SF:289",
			want:    "Amount must be in format RSDamount,decimals (e.g. RSD5000,00)",
		},
		{
			name:    "amount too short",
			payload: "K:PR|V:01|C:1|R:845000000000404849|N:Shop|I:RSD1|SF:289",
			want:    "Amount must have between 5 and 18 alphanumeric characters",
		},
		{
			name:    "payment code wrong length",
			payload: "K:PR|V:01|C:1|R:845000000000404849|N:Shop|I:RSD5000,00|SF:28",
			want:    "Payment code must be exactly 3 digits",
		},
		{
			name:    "payment code wrong class",
			payload: "K:PR|V:01|C:1|R:845000000000404849|N:Shop|I:RSD5000,00|SF:389",
			want:    "Payment code must start with 1 (cash) or 2 (cashless)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertHasError(t, Parse(tt.payload), tt.want)
		})
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name      string
		ro        string
		wantValid bool
		wantErr   string
	}{
		{name: "model 00 free form", ro: "00PSP-ABCD1234", wantValid: true},
		{name: "model 97 checksum ok", ro: "970000000097", wantValid: true},
		{name: "model 97 checksum bad", ro: "970000000098", wantValid: false,
			wantErr: "Reference number for model 97 is invalid (checksum does not match)"},
		{name: "model missing", ro: "9", wantValid: false,
			wantErr: "Reference number (RO) must have at least 2 digits for the model"},
		{name: "model not numeric", ro: "xx12345", wantValid: false,
			wantErr: "Model in reference number must be 2 digits"},
		{name: "too long", ro: "0012345678901234567890123456", wantValid: false,
			wantErr: "Reference number (RO) cannot be longer than 25 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(validPayload + "|RO:" + tt.ro)
			if tt.wantValid {
				if !result.Valid {
					t.Fatalf("payload rejected: %v", result.Errors)
				}
				return
			}
			assertHasError(t, result, tt.wantErr)
		})
	}
}

func TestParseAmountFormatErrorReportedOnce(t *testing.T) {
	result := Parse("K:PR|V:01|C:1|R:845000000000404849|N:Shop|I:RSDabc|SF:289")
	if result.Valid {
		t.Fatal("broken amount reported valid")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly the format error", result.Errors)
	}
	if result.Errors[0] != "Amount must be in format RSDamount,decimals (e.g. RSD5000,00)" {
		t.Errorf("error = %q", result.Errors[0])
	}
}

func TestParseRecipientNameCountsCharacters(t *testing.T) {
	name70 := strings.Repeat("Š", 70)
	result := Parse("K:PR|V:01|C:1|R:845000000000404849|N:" + name70 + "|I:RSD5000,00|SF:289")
	if !result.Valid {
		t.Fatalf("70-character name rejected: %v", result.Errors)
	}

	result = Parse("K:PR|V:01|C:1|R:845000000000404849|N:" + name70 + "Š|I:RSD5000,00|SF:289")
	assertHasError(t, result, "Recipient name cannot be longer than 70 characters")
}

func TestParseAccumulatesErrors(t *testing.T) {
	result := Parse("K:XX|V:01|C:1|R:12345|I:RSD5000,00|SF:289")
	if result.Valid {
		t.Fatal("broken payload reported valid")
	}
	if len(result.Errors) < 3 {
		t.Errorf("expected identifier, account and name errors, got %v", result.Errors)
	}
}
