// Package pipeline runs one card through extraction, parsing, normalization
// and dispatch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/dispatch"
	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
	"github.com/lehigh-university-libraries/cardscan/internal/parser"
)

// Extractor returns the raw model reply for one image
type Extractor interface {
	Extract(ctx context.Context, img models.ImageBuffer, side models.Side) (string, error)
}

// Normalizer cleans a front map and merges an optional back map
type Normalizer interface {
	Normalize(front, back models.FieldMap) models.FieldMap
}

// Options controls the parse policy
type Options struct {
	// LenientParse substitutes an all-nil map for an unparsable reply
	// instead of failing the request
	LenientParse bool
}

// Result is the outcome of a processed card
type Result struct {
	Fields   models.FieldMap
	Mode     models.ProcessingMode
	Webhook  models.DispatchResult
	RawReply string
	Warnings []string
}

// Pipeline holds the configured clients. It has no mutable state and is
// safe for concurrent use.
type Pipeline struct {
	extractor  Extractor
	normalizer Normalizer
	dispatcher dispatch.Dispatcher
	opts       Options
}

// New returns a pipeline. dispatcher may be nil, in which case records are
// not forwarded.
func New(extractor Extractor, normalizer Normalizer, dispatcher dispatch.Dispatcher, opts Options) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		normalizer: normalizer,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// side is the parsed outcome for one image
type side struct {
	fields models.FieldMap
	raw    string
	warn   string
}

// Process extracts and normalizes the upload, then dispatches the record.
// A dispatch failure is reported in the result, never as an error.
func (p *Pipeline) Process(ctx context.Context, upload *ingest.Upload) (*Result, error) {
	res := &Result{Mode: upload.Mode}

	switch upload.Mode {
	case models.ModeDouble:
		if upload.Back == nil {
			return nil, apperr.Invalid("double processing mode requires a back image")
		}
		front, back, err := p.extractBoth(ctx, upload.Front, *upload.Back)
		if err != nil {
			return nil, err
		}
		res.addSide(front)
		res.addSide(back)

		res.Fields = p.normalizer.Normalize(front.fields, back.fields)
		if back.fields == nil {
			res.Fields[models.BackSideProcessed] = false
		}
	default:
		s, err := p.extractSide(ctx, upload.Front, models.SideSingle)
		if err != nil {
			return nil, err
		}
		res.addSide(s)
		res.Fields = p.normalizer.Normalize(s.fields, nil)
	}

	res.Webhook = p.send(ctx, res.Fields)
	return res, nil
}

// extractBoth runs both sides concurrently. Only a front failure is
// returned; a back failure becomes a warning with nil fields.
func (p *Pipeline) extractBoth(ctx context.Context, frontImg, backImg models.ImageBuffer) (side, side, error) {
	var front, back side
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		front, err = p.extractSide(gctx, frontImg, models.SideFront)
		return err
	})
	g.Go(func() error {
		s, err := p.extractSide(gctx, backImg, models.SideBack)
		if err != nil {
			slog.Warn("Back side failed, continuing with front only", "err", err)
			back = side{warn: fmt.Sprintf("back side not processed: %v", err)}
			if e, ok := apperr.As(err); ok && e.Kind == apperr.UnparsableReply {
				back.raw = e.Raw
			}
			return nil
		}
		back = s
		return nil
	})

	if err := g.Wait(); err != nil {
		return side{}, side{}, err
	}
	return front, back, nil
}

// extractSide calls the model once and parses the reply under the
// configured policy
func (p *Pipeline) extractSide(ctx context.Context, img models.ImageBuffer, s models.Side) (side, error) {
	reply, err := p.extractor.Extract(ctx, img, s)
	if err != nil {
		return side{}, err
	}

	fields, err := parser.Parse(reply)
	if err == nil {
		return side{fields: fields}, nil
	}
	if !p.opts.LenientParse || s == models.SideBack {
		return side{}, err
	}

	slog.Warn("Model reply was not JSON, using empty fields", "side", s, "length", len(reply))
	return side{
		fields: models.EmptyFieldMap(s),
		raw:    reply,
		warn:   fmt.Sprintf("%s side reply was not valid JSON; fields left empty", s),
	}, nil
}

func (r *Result) addSide(s side) {
	if s.warn != "" {
		r.Warnings = append(r.Warnings, s.warn)
	}
	if s.raw != "" && r.RawReply == "" {
		r.RawReply = s.raw
	}
}

func (p *Pipeline) send(ctx context.Context, fields models.FieldMap) models.DispatchResult {
	if p.dispatcher == nil {
		return models.DispatchResult{Message: "Webhook not configured"}
	}
	// delivery outlives a client disconnect
	return p.dispatcher.Send(context.WithoutCancel(ctx), fields)
}
