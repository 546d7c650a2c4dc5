package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const documentAITimeout = 3 * time.Minute

// DocumentAIConfig identifies the Document AI processor used for PDFs.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

// ProcessorName is the fully-qualified processor resource name.
func (c DocumentAIConfig) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.location(), c.ProcessorID)
}

// Endpoint is the regional API endpoint.
func (c DocumentAIConfig) Endpoint() string {
	return c.location() + "-documentai.googleapis.com:443"
}

func (c DocumentAIConfig) location() string {
	if c.Location == "" {
		return "us"
	}

	return c.Location
}

// PDFExtractor runs PDFs through a Document AI OCR processor.
type PDFExtractor struct {
	client *documentai.DocumentProcessorClient
	cfg    DocumentAIConfig
	log    *logrus.Logger
}

// NewPDFExtractor dials the regional Document AI endpoint.
func NewPDFExtractor(ctx context.Context, cfg DocumentAIConfig, log *logrus.Logger) (*PDFExtractor, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document ai: project and processor id are required")
	}

	opts := append([]option.ClientOption{option.WithEndpoint(cfg.Endpoint())}, ClientOptionsFromEnv()...)

	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	return &PDFExtractor{client: c, cfg: cfg, log: log}, nil
}

// Close releases the client.
func (e *PDFExtractor) Close() error {
	return e.client.Close()
}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, in Input) (*Document, error) {
	meta := map[string]any{"extractor": "documentai"}

	if pages, err := PageCount(in.Data); err != nil {
		e.log.WithError(err).WithField("name", in.Name).Debug("pdf page count unavailable")
	} else {
		meta["page_count"] = pages
	}

	ctx, cancel := context.WithTimeout(ctx, documentAITimeout)
	defer cancel()

	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.cfg.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  in.Data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}

	return &Document{Text: documentText(resp), Metadata: meta}, nil
}

func documentText(resp *documentaipb.ProcessResponse) string {
	if resp == nil || resp.GetDocument() == nil {
		return ""
	}

	return strings.TrimSpace(resp.GetDocument().GetText())
}

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("counting pdf pages: %w", err)
	}

	return n, nil
}
