package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"path"
	"strings"

	_ "image/gif"
	_ "image/png"
)

// NormalizeImage re-encodes any decodable image as JPEG at the given quality.
// Transparent pixels are flattened onto white. Undecodable input is returned as-is.
func NormalizeImage(data []byte, quality int) ([]byte, string, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, "", false
	}

	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return data, "", false
	}
	return buf.Bytes(), "image/jpeg", true
}

func withJPEGExt(name string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + ".jpg"
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
