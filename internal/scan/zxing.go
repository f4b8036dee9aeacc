package scan

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZxingDecoder decodes QR codes from raw frames with gozxing.
type ZxingDecoder struct {
	reader gozxing.Reader
}

func NewZxingDecoder() *ZxingDecoder {
	return &ZxingDecoder{reader: qrcode.NewQRCodeReader()}
}

func (d *ZxingDecoder) Decode(frame image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", fmt.Errorf("failed to binarize frame: %w", err)
	}

	result, err := d.reader.Decode(bmp, nil)
	if err != nil {
		if _, notFound := err.(gozxing.NotFoundException); notFound {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("decode failed: %w", err)
	}

	return result.GetText(), nil
}
