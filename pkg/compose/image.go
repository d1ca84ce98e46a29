package compose

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	_ "golang.org/x/image/webp"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// decodeSource decodes an image element's src, a data URL or bare base64.
func decodeSource(src string) (image.Image, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errors.New("empty image source")
	}
	payload := src
	if strings.HasPrefix(src, "data:") {
		comma := strings.IndexByte(src, ',')
		if comma < 0 {
			return nil, errors.New("malformed data URL")
		}
		if !strings.HasSuffix(src[:comma], ";base64") {
			return nil, errors.New("data URL is not base64 encoded")
		}
		payload = src[comma+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// imageData flattens img to 8-bit RGB samples plus alpha. Alpha is nil when
// every pixel is opaque.
func imageData(img image.Image) pdf.ImageData {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := pdf.ImageData{
		Width:  w,
		Height: h,
		RGB:    make([]byte, 0, w*h*3),
	}
	alpha := make([]byte, 0, w*h)
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				data.RGB = append(data.RGB, 0xff, 0xff, 0xff)
			} else {
				// un-premultiply
				data.RGB = append(data.RGB, byte(r*0xff/a), byte(g*0xff/a), byte(bl*0xff/a))
			}
			alpha = append(alpha, byte(a>>8))
			if a != 0xffff {
				opaque = false
			}
		}
	}
	if !opaque {
		data.Alpha = alpha
	}
	return data
}

// qrModules returns the dark modules of content's QR symbol without the
// quiet zone.
func qrModules(content string) ([][]bool, error) {
	if content == "" {
		return nil, errors.New("empty QR content")
	}
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	q.DisableBorder = true
	return q.Bitmap(), nil
}
