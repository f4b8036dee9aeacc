package ipsqr

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"testing"
)

func TestEncodePNGBase64(t *testing.T) {
	encoded, err := EncodePNGBase64(validPayload)
	if err != nil {
		t.Fatalf("EncodePNGBase64: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 400 {
		t.Errorf("image is %dx%d, want 400x400", b.Dx(), b.Dy())
	}
}
