package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/extract"
	"github.com/muahq/mua/internal/metrics"
	"github.com/muahq/mua/internal/models"
)

// Ingest outcomes, used for reporting and metric labels.
const (
	IngestCreated  = "created"
	IngestExisting = "existing"
	IngestRequeued = "requeued"
	IngestSkipped  = "skipped"
	IngestErrored  = "errored"
)

// DefaultIngestExcludes skips hidden, temporary and partial files.
var DefaultIngestExcludes = []string{".*", "*.tmp", "*.part"}

// ArtifactRepo is the artifact access IngestService needs.
type ArtifactRepo interface {
	FindByChecksum(ctx context.Context, sourceType, checksum string) (*models.Artifact, error)
	CreateArtifact(ctx context.Context, a *models.Artifact) (*models.Artifact, bool, error)
}

// ObjectPutter stores originals.
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ContentExtractor turns file bytes into text.
type ContentExtractor interface {
	Extract(ctx context.Context, in extract.Input) (*extract.Document, error)
}

// IngestConfig holds file name filters. Patterns match the base name.
type IngestConfig struct {
	Include []string
	Exclude []string
}

// IngestService uploads files, extracts their text and records artifacts.
type IngestService struct {
	artifacts  ArtifactRepo
	processing ProcessingQueuer
	objects    ObjectPutter
	extractor  ContentExtractor
	include    []glob.Glob
	exclude    []glob.Glob
	log        *logrus.Logger
}

// NewIngestService compiles the filters and creates an IngestService. A nil
// Exclude uses DefaultIngestExcludes.
func NewIngestService(
	artifacts ArtifactRepo,
	processing ProcessingQueuer,
	objects ObjectPutter,
	extractor ContentExtractor,
	cfg IngestConfig,
	log *logrus.Logger,
) (*IngestService, error) {
	if cfg.Exclude == nil {
		cfg.Exclude = DefaultIngestExcludes
	}

	include, err := compileGlobs(cfg.Include)
	if err != nil {
		return nil, err
	}

	exclude, err := compileGlobs(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	return &IngestService{
		artifacts:  artifacts,
		processing: processing,
		objects:    objects,
		extractor:  extractor,
		include:    include,
		exclude:    exclude,
		log:        log,
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		g, err := glob.Compile(p)
		if err != nil {
			return nil, models.NewValidationError("pattern", fmt.Errorf("invalid glob %q: %w", p, err))
		}

		out = append(out, g)
	}

	return out, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}

	return false
}

// wanted reports whether a file name passes the filters.
func (s *IngestService) wanted(name string) bool {
	if matchAny(s.exclude, name) {
		return false
	}

	return len(s.include) == 0 || matchAny(s.include, name)
}

// IngestDir walks dir recursively and ingests every file that passes the
// filters. Excluded directories are not descended into. Per-file failures
// are counted and logged; only walk and context errors are returned.
func (s *IngestService) IngestDir(ctx context.Context, dir, sourceType string) (models.IngestReport, error) {
	var report models.IngestReport

	if sourceType == "" {
		return report, models.NewValidationError("source_type", models.ErrValidation)
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != dir && matchAny(s.exclude, d.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() || !s.wanted(d.Name()) {
			return nil
		}

		report.Scanned++

		_, outcome, err := s.IngestFile(ctx, path, sourceType)
		if err != nil && outcome == IngestErrored {
			s.log.WithError(err).WithField("path", path).Warn("ingest failed")
		}

		switch outcome {
		case IngestCreated:
			report.Created++
		case IngestExisting:
			report.Existing++
		case IngestRequeued:
			report.Requeued++
		case IngestSkipped:
			report.Skipped++
		default:
			report.Errored++
		}

		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walking %s: %w", dir, err)
	}

	s.log.WithFields(logrus.Fields{
		"dir":      dir,
		"scanned":  report.Scanned,
		"created":  report.Created,
		"existing": report.Existing,
		"requeued": report.Requeued,
		"skipped":  report.Skipped,
		"errored":  report.Errored,
	}).Info("ingest finished")

	return report, nil
}

// IngestFile ingests a single file and reports what happened to it. The
// returned artifact is nil when the file was skipped or failed before a
// record was written.
func (s *IngestService) IngestFile(ctx context.Context, path, sourceType string) (*models.Artifact, string, error) {
	a, outcome, err := s.ingestFile(ctx, path, sourceType)
	metrics.IngestFiles.WithLabelValues(outcome).Inc()

	return a, outcome, err
}

func (s *IngestService) ingestFile(ctx context.Context, path, sourceType string) (*models.Artifact, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, IngestErrored, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, IngestSkipped, models.ErrEmptyFile
	}

	checksum := sha256Hex(data)
	log := s.log.WithFields(logrus.Fields{"path": path, "checksum": checksum})

	existing, err := s.artifacts.FindByChecksum(ctx, sourceType, checksum)
	switch {
	case err == nil:
		outcome, err := s.requeueExisting(ctx, existing)
		return existing, outcome, err
	case !errors.Is(err, models.ErrNotFound):
		return nil, IngestErrored, err
	}

	mimeType, ext := detectType(path, data)
	key := ObjectKey(sourceType, checksum, ext)

	if _, err := s.objects.Put(ctx, key, data, mimeType); err != nil {
		return nil, IngestErrored, &models.ExternalServiceError{Service: "objectstore", Op: "put", Err: err}
	}

	a := &models.Artifact{
		SourceType:   sourceType,
		Title:        filepath.Base(path),
		MimeType:     mimeType,
		ObjectKey:    key,
		Checksum:     checksum,
		SizeBytes:    int64(len(data)),
		OriginalPath: path,
		IngestStatus: models.IngestParsed,
		Metadata:     map[string]any{},
	}

	doc, extractErr := s.extractor.Extract(ctx, extract.Input{Name: a.Title, MimeType: mimeType, Data: data})
	if extractErr != nil {
		log.WithError(extractErr).Warn("extraction failed")

		a.IngestStatus = models.IngestError
		a.Metadata["error"] = truncateRunes(extractErr.Error(), maxErrorRunes)
	} else {
		for k, v := range doc.Metadata {
			a.Metadata[k] = v
		}

		text, truncated := extract.Truncate(doc.Text, models.MaxArtifactText)
		if truncated {
			a.Metadata["truncated"] = true
		}

		if text = strings.TrimSpace(text); text != "" {
			a.TextContent = &text
		}
	}

	created, isNew, err := s.artifacts.CreateArtifact(ctx, a)
	if err != nil {
		return nil, IngestErrored, err
	}

	if !isNew {
		outcome, err := s.requeueExisting(ctx, created)
		return created, outcome, err
	}

	if created.IngestStatus == models.IngestError {
		return created, IngestErrored, extractErr
	}

	if _, err := s.processing.QueueProcessing(ctx, models.SubjectArtifact, created.ID, created.Checksum); err != nil {
		return created, IngestErrored, fmt.Errorf("queueing artifact: %w", err)
	}

	log.WithField("artifact_id", created.ID).Info("artifact ingested")

	return created, IngestCreated, nil
}

// requeueExisting queues an already-known artifact unless it was processed
// for the same checksum. Artifacts whose extraction failed are left alone.
func (s *IngestService) requeueExisting(ctx context.Context, a *models.Artifact) (string, error) {
	if a.IngestStatus == models.IngestError {
		return IngestExisting, nil
	}

	queued, err := s.processing.QueueProcessing(ctx, models.SubjectArtifact, a.ID, a.Checksum)
	if err != nil {
		return IngestErrored, fmt.Errorf("requeueing artifact: %w", err)
	}

	if queued {
		return IngestRequeued, nil
	}

	return IngestExisting, nil
}

// ObjectKey is the storage key for an original.
func ObjectKey(sourceType, checksum, ext string) string {
	return fmt.Sprintf("artifacts/%s/%s/%s%s", sourceType, checksum[:2], checksum, ext)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// detectType sniffs the content type, falling back to the file extension
// when sniffing only finds a generic type.
func detectType(path string, data []byte) (mimeType, ext string) {
	mt := mimetype.Detect(data)
	mimeType = mt.String()
	ext = strings.ToLower(filepath.Ext(path))

	if mt.Is("application/octet-stream") || mt.Is("text/plain") {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			mimeType = byExt
		}
	}

	if ext == "" {
		ext = mt.Extension()
	}

	return mimeType, ext
}
