package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const defaultQRSize = 200

// PNGQRRenderer renders QR codes as base64 PNG data URIs.
type PNGQRRenderer struct {
	Size int
}

// NewQRRenderer creates a renderer producing size x size images.
func NewQRRenderer(size int) *PNGQRRenderer {
	if size <= 0 {
		size = defaultQRSize
	}
	return &PNGQRRenderer{Size: size}
}

// Render encodes uri as a QR code.
func (r *PNGQRRenderer) Render(uri string) (string, error) {
	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	code, err = barcode.Scale(code, r.Size, r.Size)
	if err != nil {
		return "", fmt.Errorf("failed to scale QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
