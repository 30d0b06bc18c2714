// Package debugdump persists the fully decoded attributes of an export for offline inspection.
// Dumps are diagnostics only; callers log failures and carry on.
package debugdump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/internal/common/config"
	"github.com/edgecomet/deckexport/internal/common/configtypes"
	"github.com/edgecomet/deckexport/internal/common/redis"
	"github.com/edgecomet/deckexport/pkg/types"
)

// Dumper stores one export result keyed by its session id
type Dumper interface {
	Dump(ctx context.Context, result *types.ExportResult) error
}

// DumpStore is the redis side of RedisDumper
type DumpStore interface {
	StoreDump(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
}

// DumpReader reads stored dumps back; nil data means no dump
type DumpReader interface {
	GetDump(ctx context.Context, sessionID string) ([]byte, error)
}

// ErrDumpNotFound is returned when a store holds no dump for the session
var ErrDumpNotFound = errors.New("diagnostic dump not found")

// Encode serializes a result as JSON
func Encode(result *types.ExportResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode dump: %w", err)
	}
	return data, nil
}

// FileDumper writes <dir>/<session>.json[.snappy|.lz4] and a readable <session>.tree.txt
type FileDumper struct {
	dir         string
	compression string
}

// NewFileDumper creates dir if needed
func NewFileDumper(dir, compression string) (*FileDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dump directory %s: %w", dir, err)
	}
	return &FileDumper{dir: dir, compression: compression}, nil
}

func (f *FileDumper) Dump(_ context.Context, result *types.ExportResult) error {
	data, err := Encode(result)
	if err != nil {
		return err
	}
	data, ext, err := Compress(data, f.compression)
	if err != nil {
		return err
	}

	base := filepath.Join(f.dir, result.SessionID)
	if err := os.WriteFile(base+".json"+ext, data, 0o644); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	if err := os.WriteFile(base+".tree.txt", []byte(RenderTree(result)), 0o644); err != nil {
		return fmt.Errorf("write dump tree: %w", err)
	}
	return nil
}

// RedisDumper stores the compressed JSON with a TTL
type RedisDumper struct {
	store       DumpStore
	compression string
	ttl         time.Duration
}

func NewRedisDumper(store DumpStore, compression string, ttl time.Duration) *RedisDumper {
	return &RedisDumper{store: store, compression: compression, ttl: ttl}
}

func (r *RedisDumper) Dump(ctx context.Context, result *types.ExportResult) error {
	data, err := Encode(result)
	if err != nil {
		return err
	}
	data, _, err = Compress(data, r.compression)
	if err != nil {
		return err
	}
	if err := r.store.StoreDump(ctx, result.SessionID, data, r.ttl); err != nil {
		return fmt.Errorf("store dump: %w", err)
	}
	return nil
}

// MultiDumper writes to every sink, joining errors
type MultiDumper []Dumper

func (m MultiDumper) Dump(ctx context.Context, result *types.ExportResult) error {
	var errs []error
	for _, d := range m {
		if err := d.Dump(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads a dump file written by FileDumper; compression is detected from the extension
func Load(path string) (*types.ExportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, algorithmFromPath(path))
}

// LoadFromStore reads the dump of sessionID written by RedisDumper with the given compression
func LoadFromStore(ctx context.Context, store DumpReader, sessionID, compression string) (*types.ExportResult, error) {
	data, err := store.GetDump(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read dump %s: %w", sessionID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrDumpNotFound, sessionID)
	}
	return Decode(data, compression)
}

// Decode reverses Compress and Encode
func Decode(data []byte, algorithm string) (*types.ExportResult, error) {
	raw, err := Decompress(data, algorithm)
	if err != nil {
		return nil, err
	}
	var result types.ExportResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	return &result, nil
}

func algorithmFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".snappy"):
		return configtypes.CompressionSnappy
	case strings.HasSuffix(path, ".lz4"):
		return configtypes.CompressionLZ4
	default:
		return configtypes.CompressionNone
	}
}

// FromConfig builds the configured sinks. It returns a nil Dumper when dumping is disabled.
// The returned redis client is nil unless a redis sink is configured; the caller closes it.
func FromConfig(cfg config.DebugConfig, logger *zap.Logger) (Dumper, *redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	var sinks MultiDumper
	if cfg.Dir != "" {
		fd, err := NewFileDumper(cfg.Dir, cfg.Compression)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fd)
	}

	var client *redis.Client
	if cfg.Redis != nil {
		var err error
		client, err = redis.NewClient(cfg.Redis, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("debug redis: %w", err)
		}
		sinks = append(sinks, NewRedisDumper(client, cfg.Compression, time.Duration(cfg.Redis.TTL)))
	}

	logger.Info("Diagnostic dump enabled",
		zap.String("dir", cfg.Dir),
		zap.Bool("redis", cfg.Redis != nil),
		zap.String("compression", cfg.Compression))

	if len(sinks) == 1 {
		return sinks[0], client, nil
	}
	return sinks, client, nil
}
