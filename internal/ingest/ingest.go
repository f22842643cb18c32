package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// Options is the image size policy
type Options struct {
	// MaxBytes triggers re-encoding when an image is larger
	MaxBytes int64
	// MaxDimension triggers downscaling in double mode when either side is larger
	MaxDimension int
	JPEGQuality  int
	// MaxMemory is passed to ParseMultipartForm
	MaxMemory int64
}

// DefaultOptions matches the deployed handler
func DefaultOptions() Options {
	return Options{
		MaxBytes:     5 * 1024 * 1024,
		MaxDimension: 2048,
		JPEGQuality:  85,
		MaxMemory:    32 << 20,
	}
}

// Upload is a decoded inbound request
type Upload struct {
	Front models.ImageBuffer
	Back  *models.ImageBuffer
	Mode  models.ProcessingMode
}

// front image form fields, in lookup order
var frontFields = []string{"image", "file"}

const backField = "back_image"

// FromRequest decodes the request body into an Upload. Any failure is an
// InvalidPayload error.
func FromRequest(r *http.Request, opts Options) (*Upload, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil && contentType != "" {
		return nil, apperr.Invalid("malformed Content-Type %q", contentType)
	}

	switch {
	case mediaType == "multipart/form-data":
		return fromMultipart(r, opts)
	case mediaType == "application/json":
		return fromJSON(r.Body, opts)
	case mediaType == "", mediaType == "application/octet-stream", strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, readError(err)
		}
		if len(data) == 0 {
			return nil, apperr.Invalid("no image data provided")
		}
		return build(data, mediaType, nil, "", "", opts)
	default:
		return nil, apperr.Invalid("unsupported Content-Type %q", mediaType)
	}
}

func fromMultipart(r *http.Request, opts Options) (*Upload, error) {
	maxMemory := opts.MaxMemory
	if maxMemory <= 0 {
		maxMemory = 32 << 20
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, readError(err)
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				slog.Warn("Unable to remove multipart temp files", "err", err)
			}
		}()
	}

	var front []byte
	var frontType string
	for _, name := range frontFields {
		data, ct, err := readFormFile(r, name)
		if err != nil {
			return nil, err
		}
		if data != nil {
			front, frontType = data, ct
			break
		}
	}
	if front == nil {
		return nil, apperr.Invalid("no image file provided (expected field %q or %q)", frontFields[0], frontFields[1])
	}

	back, backType, err := readFormFile(r, backField)
	if err != nil {
		return nil, err
	}

	return build(front, frontType, back, backType, r.FormValue("processing_mode"), opts)
}

// readFormFile returns nil data when the field is absent
func readFormFile(r *http.Request, name string) ([]byte, string, error) {
	file, header, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", apperr.Invalid("failed to read %s: %v", name, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", readError(err)
	}
	if len(data) == 0 {
		return nil, "", apperr.Invalid("%s is empty", name)
	}
	return data, header.Header.Get("Content-Type"), nil
}

type jsonUpload struct {
	Image          string `json:"image"`
	BackImage      string `json:"back_image"`
	ProcessingMode string `json:"processing_mode"`
}

func fromJSON(body io.Reader, opts Options) (*Upload, error) {
	var req jsonUpload
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, readError(err)
		}
		return nil, apperr.Invalid("invalid JSON: %v", err)
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, apperr.Invalid("no image data provided")
	}

	front, frontType, err := DecodeBase64(req.Image)
	if err != nil {
		return nil, apperr.Invalid("image: %v", err)
	}

	var back []byte
	var backType string
	if strings.TrimSpace(req.BackImage) != "" {
		if back, backType, err = DecodeBase64(req.BackImage); err != nil {
			return nil, apperr.Invalid("back_image: %v", err)
		}
	}

	return build(front, frontType, back, backType, req.ProcessingMode, opts)
}

func build(front []byte, frontType string, back []byte, backType, mode string, opts Options) (*Upload, error) {
	m, err := models.ParseMode(mode)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	if back != nil {
		m = models.ModeDouble
	}
	if m == models.ModeDouble && back == nil {
		return nil, apperr.Invalid("processing_mode double requires %s", backField)
	}

	maxDim := 0
	if m == models.ModeDouble {
		maxDim = opts.MaxDimension
	}

	up := &Upload{Mode: m}
	if up.Front, err = Prepare(front, frontType, maxDim, opts); err != nil {
		return nil, err
	}
	if back != nil {
		img, err := Prepare(back, backType, maxDim, opts)
		if err != nil {
			return nil, err
		}
		up.Back = &img
	}
	return up, nil
}

// DecodeBase64 decodes a raw base64 blob or a data:image/...;base64, URI.
// The returned MIME type is empty for raw blobs.
func DecodeBase64(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var mimeType string

	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		mimeType = strings.TrimSuffix(meta, ";base64")
		s = s[comma+1:]
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, "", fmt.Errorf("empty base64 payload")
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, mimeType, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("invalid base64: %w", lastErr)
}

func readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Invalid("request body too large (max %d bytes)", maxErr.Limit)
	}
	return apperr.Invalid("failed to read request body: %v", err)
}

// FromBytes builds an Upload from already-read image files. back may be nil
// for a one-sided card.
func FromBytes(front, back []byte, opts Options) (*Upload, error) {
	if len(front) == 0 {
		return nil, apperr.Invalid("no image data provided")
	}
	return build(front, "", back, "", "", opts)
}
