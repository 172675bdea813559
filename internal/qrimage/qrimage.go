// Package qrimage renders attendance tokens as PNG QR codes.
package qrimage

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

// ModulePixels is the pixel size of one QR module; the 4-module quiet zone is kept.
const ModulePixels = 10

// PNG renders content with low error correction.
func PNG(content string) ([]byte, error) {
	q, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return nil, err
	}
	return q.PNG(-ModulePixels)
}

// DataURL wraps PNG bytes for inline use in JSON responses.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
