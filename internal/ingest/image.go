package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

const (
	// minQuality is the floor when stepping quality down to stay under the original size
	minQuality = 45
	// minShrinkDimension is the smallest longest side tried when halving an
	// image that still outgrows its original at minQuality
	minShrinkDimension = 256
)

// providerMIME lists the formats every vision provider accepts as-is.
// Anything else that decodes is converted to JPEG.
var providerMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Prepare validates raw image bytes and applies the size policy. maxDimension
// of 0 disables the dimension check.
func Prepare(data []byte, declaredMIME string, maxDimension int, opts Options) (models.ImageBuffer, error) {
	if len(data) == 0 {
		return models.ImageBuffer{}, apperr.Invalid("image is empty")
	}

	mimeType := sniffMIME(data, declaredMIME)
	if !strings.HasPrefix(mimeType, "image/") {
		return models.ImageBuffer{}, apperr.Invalid("payload is not an image (%s)", mimeType)
	}
	convert := !providerMIME[mimeType]

	var width, height int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		slog.Warn("Failed to read image dimensions", "err", err, "mime", mimeType)
	} else {
		width, height = cfg.Width, cfg.Height
	}

	tooBig := opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes
	tooWide := maxDimension > 0 && (width > maxDimension || height > maxDimension)
	if !tooBig && !tooWide && !convert {
		return models.ImageBuffer{Data: data, MIMEType: mimeType}, nil
	}

	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 85
	}

	out, err := Reencode(data, maxDimension, quality)
	if err != nil {
		return models.ImageBuffer{}, apperr.Invalid("unable to decode %s image for re-encoding: %v", mimeType, err)
	}

	// Over the byte limit the output must not outgrow the input. The original
	// is only a fallback when it already fits maxDimension.
	if tooBig {
		for len(out) > len(data) && quality > minQuality {
			quality -= 10
			if out, err = Reencode(data, maxDimension, quality); err != nil {
				return models.ImageBuffer{}, apperr.Invalid("unable to decode image for re-encoding: %v", err)
			}
		}

		if len(out) > len(data) && mimeType == "image/jpeg" && !tooWide {
			slog.Info("Re-encoded image larger than original JPEG, keeping original", "original_bytes", len(data), "reencoded_bytes", len(out))
			return models.ImageBuffer{Data: data, MIMEType: mimeType}, nil
		}

		limit := max(width, height)
		if tooWide {
			limit = maxDimension
		}
		for len(out) > len(data) && limit/2 >= minShrinkDimension {
			limit /= 2
			if out, err = Reencode(data, limit, quality); err != nil {
				return models.ImageBuffer{}, apperr.Invalid("unable to decode image for re-encoding: %v", err)
			}
			slog.Debug("Halved image dimensions", "limit", limit, "reencoded_bytes", len(out))
		}

		if len(out) > len(data) && !convert && !tooWide {
			slog.Info("Re-encoded image larger than original, keeping original", "original_bytes", len(data), "reencoded_bytes", len(out), "mime", mimeType)
			return models.ImageBuffer{Data: data, MIMEType: mimeType}, nil
		}
	}

	slog.Info("Image re-encoded as JPEG",
		"original_bytes", len(data),
		"reencoded_bytes", len(out),
		"original_mime", mimeType,
		"quality", quality,
	)
	return models.ImageBuffer{Data: out, MIMEType: "image/jpeg", Reencoded: true}, nil
}

// Reencode decodes data, scales it to fit within maxDimension (if > 0),
// flattens any alpha onto white and encodes it as JPEG. Go's encoder uses
// 4:2:0 chroma subsampling for colour images.
func Reencode(data []byte, maxDimension, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	sb := src.Bounds()
	w, h := fitWithin(sb.Dx(), sb.Dy(), maxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales w×h down to fit a limit×limit box keeping aspect ratio
func fitWithin(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	nw := int(math.Max(1, math.Round(float64(w)*scale)))
	nh := int(math.Max(1, math.Round(float64(h)*scale)))
	return nw, nh
}

// sniffMIME prefers the content sniffer, then the registered decoders (which
// recognise TIFF), then the declared type
func sniffMIME(data []byte, declared string) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = declared[:i]
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return sniffed
}
