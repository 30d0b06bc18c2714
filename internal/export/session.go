package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/extract"
	"github.com/edgecomet/deckexport/internal/rasterize"
	"github.com/edgecomet/deckexport/internal/render/chrome"
	"github.com/edgecomet/deckexport/pkg/types"
)

// SessionProvider hands out exclusively owned rendering sessions
type SessionProvider interface {
	// Open returns a session and the function returning its resources. release must be called
	// exactly once, after the session is closed.
	Open(ctx context.Context, sessionID string) (sess PageSession, release func(), err error)
}

// PageSession is one loaded presentation
type PageSession interface {
	Navigate(url string) error
	WaitReady(ctx context.Context, expression string, timeout, interval time.Duration) error
	Document() (PageDocument, error)
	Close()
}

// PageDocument is the document snapshot the pipeline reads and captures from
type PageDocument interface {
	extract.DocumentAccessor
	rasterize.Surface

	FindByID(id string) (*extract.Node, bool)
	FindByAttribute(ancestor types.NodeRef, attribute string) []*extract.Node
	Close(ctx context.Context)
}

// ChromeSessions opens sessions on browsers of a pool
type ChromeSessions struct {
	pool   *chrome.Pool
	config *chrome.Config
	logger *zap.Logger
}

func NewChromeSessions(pool *chrome.Pool, config *chrome.Config, logger *zap.Logger) *ChromeSessions {
	return &ChromeSessions{pool: pool, config: config, logger: logger}
}

func (c *ChromeSessions) Open(ctx context.Context, sessionID string) (PageSession, func(), error) {
	b, err := c.pool.Acquire(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	s := chrome.OpenSession(ctx, b, sessionID, c.logger)
	return &chromeSession{Session: s, config: c.config}, func() { c.pool.Release(b) }, nil
}

type chromeSession struct {
	*chrome.Session
	config *chrome.Config
}

func (s *chromeSession) Navigate(url string) error {
	return s.Session.Navigate(url, s.config)
}

func (s *chromeSession) Document() (PageDocument, error) {
	doc, err := s.Session.Document()
	if err != nil {
		return nil, err
	}
	return doc, nil
}
