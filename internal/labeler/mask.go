package labeler

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // webcams occasionally serve PNG behind a .jpg path
)

// Gradient geometry: the top band is darkened to bias the model's attention
// toward ground-level visibility cues, the middle band ramps back to full
// brightness, the bottom band is untouched.
const (
	maskTopFraction    = 0.30
	maskRampFraction   = 0.40
	maskDarkBrightness = 0.20
	maskJPEGQuality    = 85
)

// ApplyGradientMask darkens the sky region of a snapshot with a vertical
// brightness gradient and re-encodes it as JPEG.
func ApplyGradientMask(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	bounds := src.Bounds()
	height := bounds.Dy()
	out := image.NewRGBA(bounds)

	topEnd := bounds.Min.Y + int(float64(height)*maskTopFraction)
	rampEnd := bounds.Min.Y + int(float64(height)*(maskTopFraction+maskRampFraction))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		factor := rowBrightness(y, topEnd, rampEnd)
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: scaleChannel(r, factor),
				G: scaleChannel(g, factor),
				B: scaleChannel(b, factor),
				A: uint8(a >> 8),
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: maskJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode masked snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func rowBrightness(y, topEnd, rampEnd int) float64 {
	switch {
	case y < topEnd:
		return maskDarkBrightness
	case y < rampEnd:
		progress := float64(y-topEnd) / float64(rampEnd-topEnd)
		return maskDarkBrightness + (1.0-maskDarkBrightness)*progress
	default:
		return 1.0
	}
}

func scaleChannel(v uint32, factor float64) uint8 {
	scaled := float64(v>>8) * factor
	if scaled > 255 {
		scaled = 255
	}
	return uint8(scaled)
}
