package extract

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// Config selects which cloud extractors are enabled.
type Config struct {
	GCPProjectID          string
	DocumentAILocation    string
	DocumentAIProcessorID string
	SpeechLanguage        string
	FFmpegPath            string
}

// NewRouter builds a Router. Text is always supported. Cloud extractors are
// created only when a GCP project is configured, and PDF additionally needs
// a Document AI processor.
func NewRouter(ctx context.Context, cfg Config, log *logrus.Logger) (*Router, error) {
	r := &Router{Text: TextExtractor{}}

	if cfg.GCPProjectID == "" {
		log.Info("gcp project not configured, only text files will be extracted")
		return r, nil
	}

	if cfg.DocumentAIProcessorID != "" {
		pdf, err := NewPDFExtractor(ctx, DocumentAIConfig{
			ProjectID:   cfg.GCPProjectID,
			Location:    cfg.DocumentAILocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		}, log)
		if err != nil {
			return nil, errors.Join(err, r.Close())
		}

		r.PDF = pdf
		r.closers = append(r.closers, pdf)
	}

	sp, err := NewSpeechExtractor(ctx, cfg.SpeechLanguage, log)
	if err != nil {
		return nil, errors.Join(err, r.Close())
	}

	r.Audio = sp
	r.Video = NewVideoExtractor(cfg.FFmpegPath, sp, log)
	r.closers = append(r.closers, sp)

	img, err := NewImageExtractor(ctx, log)
	if err != nil {
		return nil, errors.Join(err, r.Close())
	}

	r.Image = img
	r.closers = append(r.closers, img)

	return r, nil
}

// Close releases any cloud clients the router owns.
func (r *Router) Close() error {
	errs := make([]error, 0, len(r.closers))
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}

	r.closers = nil

	return errors.Join(errs...)
}

var _ io.Closer = (*Router)(nil)
