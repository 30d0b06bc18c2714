package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/rasterize"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/pkg/types"
)

type harness struct {
	page     *fakePage
	session  *fakeSession
	provider *fakeProvider
	recorder *fakeRecorder
	dumper   *recordingDumper
	exporter *Exporter
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		page:     newFakePage(presentation()),
		recorder: newFakeRecorder(),
		dumper:   &recordingDumper{},
		dir:      t.TempDir(),
	}
	h.session = &fakeSession{page: h.page}
	h.provider = &fakeProvider{session: h.session}
	h.exporter = NewExporter(h.provider, Options{
		PresentationURL:   "http://editor.test/present/{id}?mode=export",
		RootID:            "presentation",
		NoteAttribute:     "data-speaker-note",
		ReadyExpression:   "window.ready",
		ReadyTimeout:      time.Second,
		ReadyPollInterval: 10 * time.Millisecond,
		MaxTimeout:        10 * time.Second,
		SnapshotDir:       h.dir,
		RasterScale:       1,
	}, h.dumper, h.recorder, zaptest.NewLogger(t))
	return h
}

// assertReleased checks that the session was closed and returned on this exit path
func (h *harness) assertReleased(t *testing.T) {
	t.Helper()
	assert.True(t, h.session.closed, "session closed")
	assert.Equal(t, h.provider.opened, h.provider.released, "session released")
}

func TestExport_Success(t *testing.T) {
	h := newHarness(t)

	res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "q3 plan", SessionID: "sess-42"})
	require.NoError(t, err)

	assert.Equal(t, "http://editor.test/present/q3%20plan?mode=export", h.session.url)
	assert.Equal(t, "sess-42", res.SessionID)
	assert.Equal(t, "q3 plan", res.PresentationID)
	require.Len(t, res.Slides, 2)

	first := res.Slides[0]
	assert.Equal(t, "102030", first.BackgroundColor)
	require.Len(t, first.Elements, 1)
	assert.Equal(t, "h1", first.Elements[0].TagName)
	assert.Equal(t, "Roadmap", first.Elements[0].InnerText)
	assert.Equal(t, types.Position{Left: 100, Top: 80}, *first.Elements[0].Position)
	assert.Equal(t, "Open with the roadmap", first.SpeakerNote)

	second := res.Slides[1]
	assert.Equal(t, "Close with the chart", second.SpeakerNote)
	require.Len(t, second.Elements, 2)
	for _, el := range second.Elements {
		assert.False(t, el.ShouldScreenshot, el.DOMPath)
		assert.Equal(t, types.ObjectFitCover, el.ObjectFit)
		assert.Zero(t, el.Node)
		assert.FileExists(t, el.ImageSrc)
	}
	assert.Equal(t, filepath.Join(h.dir, "sess-42", "slide-1_0.png"), second.Elements[0].ImageSrc)
	assert.Equal(t, filepath.Join(h.dir, "sess-42", "slide-1_1.png"), second.Elements[1].ImageSrc)

	assert.Equal(t, 2, res.Captures)
	assert.Equal(t, 3, res.ElementCount())
	assert.Positive(t, res.ExportTime)

	// only the canvas needed the live page; the icon was rasterized from markup
	assert.Equal(t, 1, h.page.captures)
	assert.Empty(t, h.page.opacities, "isolation restored every opacity")
	assert.True(t, h.page.closed)
	h.assertReleased(t)

	assert.Equal(t, []string{"success"}, h.recorder.statuses)
	assert.Equal(t, 2, h.recorder.lastSlides)
	assert.Equal(t, 3, h.recorder.lastElement)
	assert.Equal(t, map[string]int{rasterize.StrategyMarkup: 1, rasterize.StrategyIsolated: 1}, h.recorder.captures)
	assert.Zero(t, h.recorder.mismatches)

	require.Len(t, h.dumper.dumped, 1)
	assert.Same(t, res, h.dumper.dumped[0])
}

func TestExport_GeneratesSessionID(t *testing.T) {
	h := newHarness(t)
	res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, []string{res.SessionID}, h.provider.ids)
}

func TestExport_OutputDirOverride(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(t.TempDir(), "custom")

	res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck", OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "slide-1_1.png"), res.Slides[1].Elements[1].ImageSrc)
}

func TestExport_InputErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "  "})
	assert.ErrorIs(t, err, ErrMissingPresentationID)
	assert.Equal(t, types.ErrorKindInput, Classify(err))

	noDir := NewExporter(h.provider, Options{PresentationURL: "http://x/{id}"}, nil, h.recorder, nil)
	_, err = noDir.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	assert.ErrorIs(t, err, ErrMissingOutputDir)

	_, err = h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck", SessionID: "../etc"})
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	assert.Zero(t, h.provider.opened, "no session for invalid requests")
	assert.Equal(t, []string{types.ErrorKindInput, types.ErrorKindInput, types.ErrorKindInput}, h.recorder.statuses)
}

func TestExport_FatalPathsReleaseSession(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		wantErr  error
		wantKind string
	}{
		{
			name: "root missing",
			setup: func(h *harness) {
				h.exporter.opts.RootID = "deck-root"
			},
			wantErr:  ErrRootNotFound,
			wantKind: types.ErrorKindNotFound,
		},
		{
			name: "readiness timeout",
			setup: func(h *harness) {
				h.session.readyErr = fmt.Errorf("%w after 1s", chrome.ErrReadinessTimeout)
			},
			wantErr:  chrome.ErrReadinessTimeout,
			wantKind: types.ErrorKindTimeout,
		},
		{
			name: "empty capture",
			setup: func(h *harness) {
				h.page.emptyCapture = true
			},
			wantErr:  rasterize.ErrNoImageData,
			wantKind: types.ErrorKindCapture,
		},
		{
			name: "navigation failure",
			setup: func(h *harness) {
				h.session.navigateErr = chrome.ErrNavigateFailed
			},
			wantErr:  chrome.ErrNavigateFailed,
			wantKind: types.ErrorKindInternal,
		},
		{
			name: "document snapshot failure",
			setup: func(h *harness) {
				h.session.documentErr = chrome.ErrDocumentSnapshot
			},
			wantErr:  chrome.ErrDocumentSnapshot,
			wantKind: types.ErrorKindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, Classify(err))

			h.assertReleased(t)
			assert.Equal(t, []string{tt.wantKind}, h.recorder.statuses)
			assert.Empty(t, h.dumper.dumped)
		})
	}
}

func TestExport_PoolUnavailable(t *testing.T) {
	h := newHarness(t)
	h.provider.openErr = chrome.ErrPoolShutdown

	_, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	assert.ErrorIs(t, err, chrome.ErrPoolShutdown)
	assert.Equal(t, types.ErrorKindPool, Classify(err))
	assert.Zero(t, h.provider.released)
}

func TestExport_CanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.exporter.Export(ctx, types.ExportRequest{PresentationID: "deck"})
	assert.ErrorIs(t, err, context.Canceled)
	h.assertReleased(t)
}

func TestExport_NotesMismatch(t *testing.T) {
	h := newHarness(t)
	// drop the second note
	second := h.page.nodes[6]
	require.Equal(t, "section", second.tag)
	delete(second.children[2].attrs, "data-speaker-note")

	res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	require.NoError(t, err)
	assert.Equal(t, "Open with the roadmap", res.Slides[0].SpeakerNote)
	assert.Empty(t, res.Slides[1].SpeakerNote)
	assert.Equal(t, 1, h.recorder.mismatches)
}

func TestExport_DumpFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.dumper.err = errors.New("disk full")

	res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, 1, h.recorder.dumpFails)
}

func TestExport_BoundedConcurrency(t *testing.T) {
	h := newHarness(t)
	h.exporter.opts.SlideConcurrency = 1

	res, err := h.exporter.Export(context.Background(), types.ExportRequest{PresentationID: "deck"})
	require.NoError(t, err)
	assert.Len(t, res.Slides, 2)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrMissingPresentationID, types.ErrorKindInput},
		{fmt.Errorf("wrap: %w", ErrMissingOutputDir), types.ErrorKindInput},
		{fmt.Errorf("%w: #deck", ErrRootNotFound), types.ErrorKindNotFound},
		{fmt.Errorf("rasterize: %w", rasterize.ErrNoImageData), types.ErrorKindCapture},
		{errors.Join(errors.New("screenshot"), rasterize.ErrRestoreFailed), types.ErrorKindCapture},
		{chrome.ErrReadinessTimeout, types.ErrorKindTimeout},
		{context.DeadlineExceeded, types.ErrorKindTimeout},
		{chrome.ErrInstanceDead, types.ErrorKindPool},
		{errors.New("boom"), types.ErrorKindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}

	assert.True(t, IsClientFault(types.ErrorKindNotFound))
	assert.False(t, IsClientFault(types.ErrorKindTimeout))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.ParseExportServiceConfig([]byte(`
chrome:
  pool_size: "2"
  viewport:
    scale: 2
export:
  presentation_url: "http://editor/p/{id}"
  snapshot_dir: "/srv/snapshots"
  slide_concurrency: 4
`))
	require.NoError(t, err)

	opts := OptionsFromConfig(cfg.Export)
	assert.Equal(t, "presentation", opts.RootID)
	assert.Equal(t, 30*time.Second, opts.ReadyTimeout)
	assert.Equal(t, 100*time.Millisecond, opts.ReadyPollInterval)
	assert.Equal(t, 2.0, opts.RasterScale)
	assert.Equal(t, 4, opts.SlideConcurrency)
	assert.Equal(t, "http://editor/p/a%2Fb", opts.URLFor("a/b"))

	cc := ChromeConfig(cfg.Chrome)
	require.NoError(t, cc.Validate())
	assert.Equal(t, 2, cc.CalculatePoolSize())
	assert.Equal(t, 1280, cc.ViewportWidth)
	assert.Equal(t, 2.0, cc.DeviceScale)
}
