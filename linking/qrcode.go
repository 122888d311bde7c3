package linking

import "github.com/skip2/go-qrcode"

// DefaultQRSize is the default width and height of generated QR codes, in pixels.
const DefaultQRSize = 256

// QRCode is a QREncoder that produces PNG images.
type QRCode struct {
	Size int
}

// Encode renders the text as a PNG QR code.
func (q QRCode) Encode(text string) ([]byte, error) {
	size := q.Size
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(text, qrcode.Medium, size)
}
