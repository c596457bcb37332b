package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RedisSerializer keeps snapshots as string values in Redis. A snapshot name
// is stored under KeyPrefix:name.
type RedisSerializer struct {
	Options *RedisSerializerOptions
	Client  *redis.Client
	codec   Codec
	clock   clock.Clock
	logger  *zap.Logger
	tracer  trace.Tracer
}

type RedisSerializerOptions struct {
	RedisOptions *redis.Options
	KeyPrefix    string
	Codec        Codec
	ScanCount    int64
	Clock        clock.Clock
	Logger       *zap.Logger
	Tracer       trace.Tracer
}

func (o *RedisSerializerOptions) GetScanCount() int64 {
	if o.ScanCount <= 0 {
		return 0
	}
	return o.ScanCount
}

func NewRedisSerializer(options *RedisSerializerOptions) (*RedisSerializer, error) {
	if options.RedisOptions == nil {
		return nil, errors.New("RedisOptions must be provided")
	}

	client := redis.NewClient(options.RedisOptions)

	if err := redisotel.InstrumentTracing(client); err != nil {
		client.Close()
		return nil, err
	}

	if err := redisotel.InstrumentMetrics(client); err != nil {
		client.Close()
		return nil, err
	}

	s := &RedisSerializer{
		Options: options,
		Client:  client,
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

	return s, nil
}

func (s *RedisSerializer) GetStringKey(name string) string {
	if s.Options.KeyPrefix == "" {
		return name
	}
	return s.Options.KeyPrefix + ":" + name
}

func (s *RedisSerializer) Serialize(v any) ([]byte, error) {
	return s.codec.Marshal(v)
}

func (s *RedisSerializer) Deserialize(data []byte, v any) error {
	if err := s.codec.Unmarshal(data, v); err != nil {
		s.logger.Error("go-snapcache: invalid snapshot data", zap.Int("bytes", len(data)), zap.Error(err))
		return err
	}
	return nil
}

func (s *RedisSerializer) FileExtension() string {
	return s.codec.Extension()
}

func (s *RedisSerializer) SaveToFile(ctx context.Context, encoded []byte, name NameBuilder) (string, error) {
	fileName := name(s.clock.Now().UnixMilli(), uuid.NewString())
	key := s.GetStringKey(fileName)

	ctx, span := s.tracer.Start(ctx, "RedisSerializer.SaveToFile", trace.WithAttributes(
		attribute.String("snapshot.key", key),
		attribute.Int("snapshot.bytes", len(encoded)),
	))
	defer span.End()

	if err := s.Client.Set(ctx, key, encoded, 0).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set failed")
		s.logger.Error("go-snapcache: failed to save snapshot", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("%w: save %s: %w", ErrIO, key, err)
	}

	s.logger.Debug("go-snapcache: saved snapshot", zap.String("key", key))
	return fileName, nil
}

func (s *RedisSerializer) RetrieveFromFile(ctx context.Context, name string) ([]byte, bool) {
	key := s.GetStringKey(name)

	ctx, span := s.tracer.Start(ctx, "RedisSerializer.RetrieveFromFile", trace.WithAttributes(
		attribute.String("snapshot.key", key),
	))
	defer span.End()

	data, err := s.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			span.RecordError(err)
		}
		s.logger.Warn("go-snapcache: failed to retrieve snapshot", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return data, true
}

func (s *RedisSerializer) FindFileName(ctx context.Context, pattern *regexp.Regexp) (string, bool) {
	ctx, span := s.tracer.Start(ctx, "RedisSerializer.FindFileName", trace.WithAttributes(
		attribute.String("snapshot.prefix", s.Options.KeyPrefix),
		attribute.String("snapshot.pattern", pattern.String()),
	))
	defer span.End()

	names, err := s.fetchSnapshotNames(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("go-snapcache: failed to list snapshots", zap.String("prefix", s.Options.KeyPrefix), zap.Error(err))
		return "", false
	}

	name, ok := latestSnapshotName(names, pattern)
	if !ok {
		s.logger.Debug("go-snapcache: no snapshot found", zap.String("pattern", pattern.String()))
		return "", false
	}
	return name, true
}

func (s *RedisSerializer) Close() error {
	return s.Client.Close()
}

// Compile-time check
var _ Serializer = (*RedisSerializer)(nil)
