package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

// ParsePolicy decides what happens to a blob that is not a valid reading.
type ParsePolicy string

const (
	ParseSkip     ParsePolicy = "skip"
	ParseFailFast ParsePolicy = "fail-fast"
)

func ParsePolicyFromString(s string) (ParsePolicy, error) {
	switch ParsePolicy(s) {
	case "", ParseSkip:
		return ParseSkip, nil
	case ParseFailFast:
		return ParseFailFast, nil
	default:
		return "", fmt.Errorf("unknown parse policy %q", s)
	}
}

const csvContentType = "text/csv"

type TransformUseCase struct {
	Storage    ObjectStorage
	Publisher  Publisher
	DestBucket string
	Policy     ParsePolicy
	Logger     *zap.Logger
}

func NewTransformUseCase(s ObjectStorage, p Publisher, destBucket string, policy ParsePolicy, logger *zap.Logger) *TransformUseCase {
	return &TransformUseCase{
		Storage:    s,
		Publisher:  p,
		DestBucket: destBucket,
		Policy:     policy,
		Logger:     logger,
	}
}

func (u *TransformUseCase) Stage() entity.Stage {
	return entity.StageTransform
}

func (u *TransformUseCase) Prepare(msg Message) (entity.Job, bool, error) {
	h, err := entity.ParseHandoffMessage(msg.Body)
	if err != nil {
		return entity.Job{}, false, Permanent(err)
	}
	return entity.Job{
		Stage:        entity.StageTransform,
		SourceBucket: h.Bucket,
		SourcePath:   h.Path,
		DestBucket:   u.DestBucket,
		DestPath:     h.Path,
	}, false, nil
}

func (u *TransformUseCase) Execute(ctx context.Context, job entity.Job) (entity.StageResult, error) {
	u.Logger.Info("Transforming readings",
		zap.String("bucket", job.SourceBucket),
		zap.String("path", job.SourcePath),
	)

	objects, err := u.Storage.List(ctx, job.SourceBucket, listPrefix(job.SourcePath))
	if err != nil {
		return entity.StageResult{}, fmt.Errorf("list %s/%s: %w", job.SourceBucket, job.SourcePath, err)
	}

	docs := make([]*entity.ColumnarDocument, 0, len(entity.Metrics))
	for _, m := range entity.Metrics {
		docs = append(docs, entity.NewColumnarDocument(m))
	}

	parsed, skipped := 0, 0
	for _, obj := range objects {
		data, err := u.Storage.Read(ctx, job.SourceBucket, obj.Key)
		if err != nil {
			return entity.StageResult{}, fmt.Errorf("read %s/%s: %w", job.SourceBucket, obj.Key, err)
		}

		reading, err := entity.ParseSensorReading(data)
		if err != nil {
			if u.Policy == ParseFailFast {
				return entity.StageResult{}, Permanent(fmt.Errorf("parse %s: %w", obj.Key, err))
			}
			u.Logger.Warn("Skipping malformed reading", zap.String("object", obj.Key), zap.Error(err))
			skipped++
			continue
		}

		for _, d := range docs {
			d.Append(reading)
		}
		parsed++
	}

	for _, d := range docs {
		key := d.ObjectKey(job.DestPath)
		if err := u.Storage.Upload(ctx, job.DestBucket, key, d.Bytes(), csvContentType); err != nil {
			return entity.StageResult{}, fmt.Errorf("upload %s/%s: %w", job.DestBucket, key, err)
		}
	}

	body, err := entity.HandoffMessage{Bucket: job.DestBucket, Path: job.DestPath}.Encode()
	if err != nil {
		return entity.StageResult{}, err
	}
	id, err := u.Publisher.Publish(ctx, body)
	if err != nil {
		return entity.StageResult{}, fmt.Errorf("publish handoff: %w", err)
	}

	u.Logger.Info("Published message ID",
		zap.String("published_id", id),
		zap.Int("readings", parsed),
		zap.Int("skipped", skipped),
	)
	return entity.StageResult{Objects: parsed, Skipped: skipped, PublishedID: id}, nil
}
