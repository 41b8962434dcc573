package util

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRDataURL renders content as a PNG QR code and returns it as a data URL.
func QRDataURL(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("qr: empty content")
	}
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
