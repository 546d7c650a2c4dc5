package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/sirupsen/logrus"
)

const visionTimeout = 60 * time.Second

// ImageExtractor runs OCR on images with Google Vision.
type ImageExtractor struct {
	client *vision.ImageAnnotatorClient
	log    *logrus.Logger
}

// NewImageExtractor creates a Vision client.
func NewImageExtractor(ctx context.Context, log *logrus.Logger) (*ImageExtractor, error) {
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &ImageExtractor{client: c, log: log}, nil
}

// Close releases the client.
func (e *ImageExtractor) Close() error {
	return e.client.Close()
}

// Extract implements Extractor.
func (e *ImageExtractor) Extract(ctx context.Context, in Input) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	resp, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: in.Data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}

	text, err := annotationText(resp)
	if err != nil {
		return nil, err
	}

	return &Document{Text: text, Metadata: map[string]any{"extractor": "vision"}}, nil
}

func annotationText(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if resp == nil || len(resp.GetResponses()) == 0 {
		return "", nil
	}

	r := resp.GetResponses()[0]
	if msg := r.GetError().GetMessage(); msg != "" {
		return "", fmt.Errorf("vision annotate: %s", msg)
	}

	return strings.TrimSpace(r.GetFullTextAnnotation().GetText()), nil
}
