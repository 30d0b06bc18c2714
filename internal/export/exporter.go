// Package export runs the presentation export pipeline: load the presentation in a browser
// session, wait for the readiness signal, flatten every slide in parallel, rasterize capture
// targets in sequence, and hand back the ordered per-slide model.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgecomet/deckexport/internal/common/requestid"
	"github.com/edgecomet/deckexport/internal/debugdump"
	"github.com/edgecomet/deckexport/internal/export/metrics"
	"github.com/edgecomet/deckexport/internal/extract"
	"github.com/edgecomet/deckexport/internal/rasterize"
	"github.com/edgecomet/deckexport/pkg/types"
)

// Recorder receives export metrics; implemented by metrics.MetricsCollector
type Recorder interface {
	rasterize.CaptureObserver
	RecordExport(status string, duration time.Duration, slides, elements int)
	RecordDumpFailure()
	RecordNotesMismatch()
}

// Exporter runs exports. It is safe for concurrent use; every export owns its own session.
type Exporter struct {
	sessions SessionProvider
	opts     Options
	markup   *rasterize.MarkupRasterizer
	dumper   debugdump.Dumper
	recorder Recorder
	logger   *zap.Logger
}

// NewExporter wires the pipeline. dumper and recorder may be nil.
func NewExporter(sessions SessionProvider, opts Options, dumper debugdump.Dumper, recorder Recorder, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		sessions: sessions,
		opts:     opts,
		markup:   rasterize.NewMarkupRasterizer(),
		dumper:   dumper,
		recorder: recorder,
		logger:   logger,
	}
}

// Export runs one export. The whole operation is bounded by the configured max timeout and
// the session is released on every exit path.
func (e *Exporter) Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	start := time.Now()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = requestid.NewSessionID(req.PresentationID)
	}
	logger := e.logger.With(
		zap.String("session_id", sessionID),
		zap.String("presentation_id", req.PresentationID))

	result, err := e.export(ctx, sessionID, req, logger)
	elapsed := time.Since(start)

	if err != nil {
		kind := Classify(err)
		e.record(kind, elapsed, 0, 0)
		if IsClientFault(kind) {
			logger.Info("Export rejected", zap.String("error_kind", kind), zap.Error(err))
		} else {
			logger.Error("Export failed", zap.String("error_kind", kind), zap.Duration("duration", elapsed), zap.Error(err))
		}
		return nil, err
	}

	result.ExportTime = elapsed
	e.record(metrics.StatusSuccess, elapsed, len(result.Slides), result.ElementCount())
	logger.Info("Export completed",
		zap.Int("slides", len(result.Slides)),
		zap.Int("elements", result.ElementCount()),
		zap.Int("captures", result.Captures),
		zap.Duration("duration", elapsed))

	e.dump(ctx, result, logger)
	return result, nil
}

func (e *Exporter) export(ctx context.Context, sessionID string, req types.ExportRequest, logger *zap.Logger) (*types.ExportResult, error) {
	if strings.TrimSpace(req.PresentationID) == "" {
		return nil, ErrMissingPresentationID
	}
	if !validSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	outDir := req.OutputDir
	if outDir == "" && e.opts.SnapshotDir != "" {
		// snapshot names repeat between exports, so sessions never share a directory
		outDir = filepath.Join(e.opts.SnapshotDir, sessionID)
	}
	if outDir == "" {
		return nil, ErrMissingOutputDir
	}

	if e.opts.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.MaxTimeout)
		defer cancel()
	}

	store, err := rasterize.NewStore(outDir)
	if err != nil {
		return nil, err
	}

	sess, release, err := e.sessions.Open(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer release()
	defer sess.Close()

	if err := sess.Navigate(e.opts.URLFor(req.PresentationID)); err != nil {
		return nil, fmt.Errorf("load presentation: %w", err)
	}
	if err := sess.WaitReady(ctx, e.opts.ReadyExpression, e.opts.ReadyTimeout, e.opts.ReadyPollInterval); err != nil {
		return nil, err
	}

	doc, err := sess.Document()
	if err != nil {
		return nil, err
	}
	defer doc.Close(context.WithoutCancel(ctx))

	root, ok := doc.FindByID(e.opts.RootID)
	if !ok {
		return nil, fmt.Errorf("%w: #%s", ErrRootNotFound, e.opts.RootID)
	}
	slideNodes, err := doc.Children(ctx, root.Ref)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	logger.Debug("Presentation ready", zap.Int("slides", len(slideNodes)))

	slides, err := e.extractSlides(ctx, doc, slideNodes, logger)
	if err != nil {
		return nil, err
	}
	e.assignNotes(ctx, doc, root, slides, logger)

	pass := rasterize.NewPass(doc, e.markup, store, e.opts.RasterScale, e.recorder, logger)
	stats, err := pass.Run(ctx, slides)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	logger.Debug("Capture pass finished",
		zap.Int("markup", stats.Markup),
		zap.Int("isolated", stats.Isolated),
		zap.Int("skipped", stats.Skipped))

	return &types.ExportResult{
		SessionID:      sessionID,
		PresentationID: req.PresentationID,
		Slides:         slides,
		Captures:       stats.Total(),
	}, nil
}

// extractSlides flattens slides in parallel; results are placed by slide index
func (e *Exporter) extractSlides(ctx context.Context, doc PageDocument, nodes []*extract.Node, logger *zap.Logger) ([]types.SlideAttributesResult, error) {
	slides := make([]types.SlideAttributesResult, len(nodes))
	extractor := extract.NewExtractor(doc, logger)

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.SlideConcurrency > 0 {
		g.SetLimit(e.opts.SlideConcurrency)
	}
	for i, node := range nodes {
		g.Go(func() error {
			res, err := extractor.ExtractSlide(gctx, node)
			if err != nil {
				return fmt.Errorf("slide %d: %w", i, err)
			}
			slides[i] = *res
			logger.Debug("Slide extracted",
				zap.Int("slide_index", i),
				zap.Int("elements", len(res.Elements)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slides, nil
}

// assignNotes gives slide i the i-th note found beneath the root, in document order.
// There is no explicit link between a note and its slide.
func (e *Exporter) assignNotes(ctx context.Context, doc PageDocument, root *extract.Node, slides []types.SlideAttributesResult, logger *zap.Logger) {
	if e.opts.NoteAttribute == "" {
		return
	}
	notes := doc.FindByAttribute(root.Ref, e.opts.NoteAttribute)
	if len(notes) == 0 {
		return
	}
	if len(notes) != len(slides) {
		logger.Warn("Speaker note count differs from slide count, notes assigned by position",
			zap.Int("notes", len(notes)),
			zap.Int("slides", len(slides)))
		if e.recorder != nil {
			e.recorder.RecordNotesMismatch()
		}
	}

	for i := range slides {
		if i >= len(notes) {
			break
		}
		slides[i].SpeakerNote = noteText(ctx, doc, notes[i], e.opts.NoteAttribute, logger)
	}
}

// noteText prefers the node's text; a marker attribute with a value is the fallback
func noteText(ctx context.Context, doc PageDocument, note *extract.Node, attribute string, logger *zap.Logger) string {
	text, err := doc.TextContent(ctx, note.Ref)
	if err != nil {
		logger.Warn("Reading speaker note failed", zap.Int64("node", int64(note.Ref)), zap.Error(err))
	}
	if text = strings.TrimSpace(text); text != "" {
		return text
	}
	return strings.TrimSpace(note.Attr(attribute))
}

// validSessionID rejects ids that cannot name a single directory
func validSessionID(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, `/\`+"\x00")
}

func (e *Exporter) dump(ctx context.Context, result *types.ExportResult, logger *zap.Logger) {
	if e.dumper == nil {
		return
	}
	if err := e.dumper.Dump(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn("Diagnostic dump failed", zap.Error(err))
		if e.recorder != nil {
			e.recorder.RecordDumpFailure()
		}
	}
}

func (e *Exporter) record(status string, elapsed time.Duration, slides, elements int) {
	if e.recorder != nil {
		e.recorder.RecordExport(status, elapsed, slides, elements)
	}
}

// Timeout returns the configured bound of one export
func (e *Exporter) Timeout() time.Duration {
	return e.opts.MaxTimeout
}
