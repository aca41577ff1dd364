package usecase

import (
	"context"
	"encoding/json"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

type ObjectInfo struct {
	Key  string
	Size int64
}

type ObjectStorage interface {
	Download(ctx context.Context, bucket, key, dstPath string) error
	UploadFile(ctx context.Context, bucket, key, srcPath string) error
	Upload(ctx context.Context, bucket, key string, body []byte, contentType string) error
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	Read(ctx context.Context, bucket, key string) ([]byte, error)
}

// Publisher returns the broker message id once the publish is confirmed.
type Publisher interface {
	Publish(ctx context.Context, body json.RawMessage) (string, error)
}

type RunLedger interface {
	StartRun(ctx context.Context, run *entity.Run) error
	FinishRun(ctx context.Context, run *entity.Run) error
}

type DeliveryTracker interface {
	IncrAttempts(ctx context.Context, stage entity.Stage, key string) (int, error)
	ClearAttempts(ctx context.Context, stage entity.Stage, key string) error
	SetStatus(ctx context.Context, stage entity.Stage, path string, status entity.RunStatus) error
}

// Message is a broker delivery stripped of transport details.
type Message struct {
	ID            string
	Attributes    map[string]string
	Body          []byte
	Redelivered   bool
	DeliveryCount int
}

type StageHandler interface {
	Stage() entity.Stage
	// Prepare decodes msg into a job. skip reports a message that should
	// be acknowledged without any work.
	Prepare(msg Message) (job entity.Job, skip bool, err error)
	Execute(ctx context.Context, job entity.Job) (entity.StageResult, error)
}
