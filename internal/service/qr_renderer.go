package service

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRRenderer turns a join link into a PNG image.
type QRRenderer interface {
	Render(content string) ([]byte, error)
}

// PNGRenderer renders QR codes with medium error correction.
type PNGRenderer struct {
	size int
}

// NewPNGRenderer constructs a renderer producing size x size pixel images.
func NewPNGRenderer(size int) *PNGRenderer {
	if size <= 0 {
		size = 512
	}
	return &PNGRenderer{size: size}
}

// Render encodes content as a PNG.
func (r *PNGRenderer) Render(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content is empty")
	}
	png, err := qrcode.Encode(content, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
