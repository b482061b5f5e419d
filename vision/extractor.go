package vision

import (
	"context"
	"errors"
	"strings"
	"time"

	"incident-dispatch/apperrors"
	"incident-dispatch/imageprep"
	"incident-dispatch/llm"
	"incident-dispatch/models"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

const (
	// Instruction is sent with every image.
	Instruction = "Describe this image in a short, concise way for emergency classification:"
	// Placeholder replaces the description of an image that could not be described.
	Placeholder = "description unavailable"
)

var errEmptyDescription = errors.New("empty description")

// Options tunes the fan-out.
type Options struct {
	Concurrency  int
	Timeout      time.Duration
	MaxDimension int
}

// Extractor derives a text description for each submitted image.
type Extractor struct {
	client llm.VisionClient
	opts   Options
}

func NewExtractor(client llm.VisionClient, opts Options) *Extractor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Extractor{client: client, opts: opts}
}

// Extract describes every image concurrently and returns one ImageEvidence per
// input, in input order. A failed image gets Placeholder as its description.
// If ctx is canceled the partial results are dropped and ctx.Err() is returned.
func (e *Extractor) Extract(ctx context.Context, images [][]byte) ([]models.ImageEvidence, error) {
	out := make([]models.ImageEvidence, len(images))
	if len(images) == 0 {
		return out, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(e.opts.Concurrency)

	for i, data := range images {
		g.Go(func() error {
			out[i] = models.ImageEvidence{Index: i, Data: data, Description: Placeholder}
			if ctx.Err() != nil {
				return nil
			}

			desc, err := e.describe(ctx, i, data)
			if err != nil {
				log.WithError(err).WithField("index", i).Warn("vision.describe_failed")
				return nil
			}
			out[i].Description = desc
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Extractor) describe(ctx context.Context, index int, data []byte) (string, error) {
	callCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	upload, err := imageprep.PrepareForVision(data, e.opts.MaxDimension)
	if err != nil {
		log.Debugf("Sending image %d unprocessed: %v", index, err)
		upload = data
	}

	desc, err := e.client.DescribeImage(callCtx, upload, Instruction)
	if err != nil {
		return "", &apperrors.ExtractionError{Index: index, Err: err}
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "", &apperrors.ExtractionError{Index: index, Err: errEmptyDescription}
	}
	return desc, nil
}
