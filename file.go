package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/mxcd/go-snapcache"

type FileSerializer struct {
	Options *FileSerializerOptions
	codec   Codec
	clock   clock.Clock
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Options passed to NewFileSerializer
//
// Dir: Directory holding the snapshots. Created with its parents if missing
// Codec: Snapshot encoding. Defaults to JSONCodec
type FileSerializerOptions struct {
	Dir    string
	Codec  Codec
	Clock  clock.Clock
	Logger *zap.Logger
	Tracer trace.Tracer
}

func NewFileSerializer(options *FileSerializerOptions) *FileSerializer {
	if options.Dir == "" {
		panic("Dir must be provided")
	}

	s := &FileSerializer{
		Options: options,
		codec:   options.Codec,
		clock:   options.Clock,
		logger:  options.Logger,
		tracer:  options.Tracer,
	}
	if s.codec == nil {
		s.codec = JSONCodec{}
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	// later writes fail on their own if this does
	if err := os.MkdirAll(options.Dir, 0o755); err != nil {
		s.logger.Error("go-snapcache: failed to create snapshot directory", zap.String("dir", options.Dir), zap.Error(err))
	}

	return s
}

func (s *FileSerializer) Dir() string {
	return s.Options.Dir
}

func (s *FileSerializer) Serialize(v any) ([]byte, error) {
	return s.codec.Marshal(v)
}

func (s *FileSerializer) Deserialize(data []byte, v any) error {
	if err := s.codec.Unmarshal(data, v); err != nil {
		s.logger.Error("go-snapcache: invalid snapshot data", zap.Int("bytes", len(data)), zap.Error(err))
		return err
	}
	return nil
}

func (s *FileSerializer) FileExtension() string {
	return s.codec.Extension()
}

// SaveToFile writes to a temporary file next to the target and renames it, so
// a crash never leaves a truncated snapshot under a matching name.
func (s *FileSerializer) SaveToFile(ctx context.Context, encoded []byte, name NameBuilder) (string, error) {
	id := uuid.NewString()
	fileName := name(s.clock.Now().UnixMilli(), id)
	path := filepath.Join(s.Options.Dir, fileName)

	_, span := s.tracer.Start(ctx, "FileSerializer.SaveToFile", trace.WithAttributes(
		attribute.String("snapshot.file", path),
		attribute.Int("snapshot.bytes", len(encoded)),
	))
	defer span.End()

	tmp := filepath.Join(s.Options.Dir, "."+fileName+"."+id+".tmp")
	err := os.WriteFile(tmp, encoded, 0o600)
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		s.logger.Error("go-snapcache: failed to save snapshot", zap.String("file", path), zap.Error(err))
		return "", fmt.Errorf("%w: save %s: %w", ErrIO, path, err)
	}

	s.logger.Debug("go-snapcache: saved snapshot", zap.String("file", path))
	return fileName, nil
}

func (s *FileSerializer) RetrieveFromFile(ctx context.Context, name string) ([]byte, bool) {
	path := filepath.Join(s.Options.Dir, name)

	_, span := s.tracer.Start(ctx, "FileSerializer.RetrieveFromFile", trace.WithAttributes(
		attribute.String("snapshot.file", path),
	))
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("go-snapcache: failed to retrieve snapshot", zap.String("file", path), zap.Error(err))
		return nil, false
	}

	s.logger.Debug("go-snapcache: retrieved snapshot", zap.String("file", path))
	return data, true
}

func (s *FileSerializer) FindFileName(ctx context.Context, pattern *regexp.Regexp) (string, bool) {
	_, span := s.tracer.Start(ctx, "FileSerializer.FindFileName", trace.WithAttributes(
		attribute.String("snapshot.dir", s.Options.Dir),
		attribute.String("snapshot.pattern", pattern.String()),
	))
	defer span.End()

	names, err := s.ListFileNames(pattern)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("go-snapcache: failed to list snapshots", zap.String("dir", s.Options.Dir), zap.Error(err))
		return "", false
	}

	name, ok := latestSnapshotName(names, pattern)
	if !ok {
		s.logger.Debug("go-snapcache: no snapshot found", zap.String("pattern", pattern.String()))
		return "", false
	}

	s.logger.Debug("go-snapcache: found snapshot", zap.String("file", name))
	return name, true
}

// ListFileNames returns the regular files in Dir whose names match pattern,
// in directory order.
func (s *FileSerializer) ListFileNames(pattern *regexp.Regexp) ([]string, error) {
	dirEntries, err := os.ReadDir(s.Options.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrIO, s.Options.Dir, err)
	}

	var names []string
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !pattern.MatchString(dirEntry.Name()) {
			continue
		}
		names = append(names, dirEntry.Name())
	}
	return names, nil
}

// Compile-time check
var _ Serializer = (*FileSerializer)(nil)
