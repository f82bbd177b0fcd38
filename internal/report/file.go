// internal/report/file.go
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/FairForge/rampart/internal/capacity"
)

// FileConfig describes where and how reports land on disk.
type FileConfig struct {
	Dir              string `json:"dir" yaml:"dir"`
	Compress         bool   `json:"compress" yaml:"compress"`
	CompressionLevel int    `json:"compressionLevel" yaml:"compression_level"`
}

// FileSink writes each report as pretty-printed JSON, optionally
// zstd-compressed, under its run ID.
type FileSink struct {
	cfg     FileConfig
	encoder *zstd.Encoder
	logger  *zap.Logger
}

// NewFileSink creates the report directory and the shared encoder.
func NewFileSink(cfg FileConfig, logger *zap.Logger) (*FileSink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	sink := &FileSink{cfg: cfg, logger: logger}
	if cfg.Compress {
		level := cfg.CompressionLevel
		if level == 0 {
			level = 3
		}
		if level < 1 || level > 19 {
			return nil, fmt.Errorf("zstd level must be 1-19, got %d", level)
		}
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("create encoder: %w", err)
		}
		sink.encoder = encoder
	}
	return sink, nil
}

// Store writes the report to <dir>/<id>.json, with a .zst suffix when
// compression is on.
func (s *FileSink) Store(ctx context.Context, rep *capacity.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	name := rep.ID + ".json"
	if s.encoder != nil {
		data = s.encoder.EncodeAll(data, make([]byte, 0, len(data)))
		name += ".zst"
	}

	path := filepath.Join(s.cfg.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	s.logger.Info("report written",
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return nil
}
