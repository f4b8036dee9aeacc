package ipsqr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 400

// EncodePNGBase64 renders a payload as a 400x400 QR PNG and returns it
// base64 encoded, ready to embed as a data URI.
func EncodePNGBase64(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
