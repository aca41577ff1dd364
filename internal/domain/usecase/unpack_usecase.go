package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
	"github.com/edupgarcia/bulk-processing/pkg/utils"
)

type UnpackUseCase struct {
	Storage      ObjectStorage
	Publisher    Publisher
	DestBucket   string
	ScratchDir   string
	UniquePrefix bool
	Logger       *zap.Logger
}

func NewUnpackUseCase(s ObjectStorage, p Publisher, destBucket, scratchDir string, uniquePrefix bool, logger *zap.Logger) *UnpackUseCase {
	return &UnpackUseCase{
		Storage:      s,
		Publisher:    p,
		DestBucket:   destBucket,
		ScratchDir:   scratchDir,
		UniquePrefix: uniquePrefix,
		Logger:       logger,
	}
}

func (u *UnpackUseCase) Stage() entity.Stage {
	return entity.StageUnpack
}

// Prepare reads the notification from message attributes, falling back
// to an S3 event body when no event type attribute is present.
// Anything that is not an object-finalize notification is skipped.
func (u *UnpackUseCase) Prepare(msg Message) (entity.Job, bool, error) {
	n := entity.NotificationFromAttributes(msg.Attributes)
	if n.EventType == "" && len(msg.Body) > 0 {
		if ev, err := entity.NotificationFromS3Event(msg.Body); err == nil {
			n = ev
		}
	}
	if !n.IsFinalize() {
		return entity.Job{}, true, nil
	}
	if n.BucketID == "" || n.ObjectID == "" {
		return entity.Job{}, false, Permanent(fmt.Errorf("finalize notification without bucketId or objectId"))
	}

	prefix := DestinationPrefix(n.ObjectID)
	if u.UniquePrefix {
		prefix = UniqueDestinationPrefix(n.BucketID, n.ObjectID)
	}

	return entity.Job{
		Stage:        entity.StageUnpack,
		SourceBucket: n.BucketID,
		SourcePath:   n.ObjectID,
		DestBucket:   u.DestBucket,
		DestPath:     prefix,
	}, false, nil
}

func (u *UnpackUseCase) Execute(ctx context.Context, job entity.Job) (entity.StageResult, error) {
	u.Logger.Info("Extracting archive",
		zap.String("bucket", job.SourceBucket),
		zap.String("object", job.SourcePath),
		zap.String("prefix", job.DestPath),
	)

	scratch, err := os.MkdirTemp(u.ScratchDir, "unpack-")
	if err != nil {
		return entity.StageResult{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			u.Logger.Warn("Failed to remove scratch dir", zap.String("dir", scratch), zap.Error(err))
		}
	}()

	archive := filepath.Join(scratch, "archive.zip")
	extractDir := filepath.Join(scratch, "extract")

	if err := u.Storage.Download(ctx, job.SourceBucket, job.SourcePath, archive); err != nil {
		return entity.StageResult{}, fmt.Errorf("download %s/%s: %w", job.SourceBucket, job.SourcePath, err)
	}
	if err := os.Mkdir(extractDir, 0o755); err != nil {
		return entity.StageResult{}, fmt.Errorf("create extract dir: %w", err)
	}

	if _, err := utils.ExtractZip(archive, extractDir); err != nil {
		err = fmt.Errorf("extract %s/%s: %w", job.SourceBucket, job.SourcePath, err)
		if errors.Is(err, utils.ErrInvalidArchive) || errors.Is(err, utils.ErrUnsafeEntry) {
			return entity.StageResult{}, Permanent(err)
		}
		return entity.StageResult{}, err
	}
	if err := os.Remove(archive); err != nil {
		return entity.StageResult{}, fmt.Errorf("remove archive copy: %w", err)
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return entity.StageResult{}, fmt.Errorf("read extract dir: %w", err)
	}

	uploaded := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		key := objectKey(job.DestPath, e.Name())
		if err := u.Storage.UploadFile(ctx, job.DestBucket, key, filepath.Join(extractDir, e.Name())); err != nil {
			return entity.StageResult{}, fmt.Errorf("upload %s/%s: %w", job.DestBucket, key, err)
		}
		uploaded++
	}

	body, err := entity.HandoffMessage{Bucket: job.DestBucket, Path: job.DestPath}.Encode()
	if err != nil {
		return entity.StageResult{}, err
	}
	id, err := u.Publisher.Publish(ctx, body)
	if err != nil {
		return entity.StageResult{}, fmt.Errorf("publish handoff: %w", err)
	}

	u.Logger.Info("Published message ID", zap.String("published_id", id), zap.Int("files", uploaded))
	return entity.StageResult{Objects: uploaded, PublishedID: id}, nil
}
