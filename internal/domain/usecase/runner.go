package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"go.uber.org/zap"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

// Outcome tells the broker adapter how to settle a delivery.
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeRequeue
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRequeue:
		return "requeue"
	case OutcomeDeadLetter:
		return "dead-letter"
	default:
		return "unknown"
	}
}

// Runner drives one StageHandler per delivery. Ledger and Tracker are
// optional; their failures are logged and never change the outcome.
type Runner struct {
	Handler       StageHandler
	Ledger        RunLedger
	Tracker       DeliveryTracker
	MaxDeliveries int
	Logger        *zap.Logger
}

func NewRunner(h StageHandler, ledger RunLedger, tracker DeliveryTracker, maxDeliveries int, logger *zap.Logger) *Runner {
	return &Runner{
		Handler:       h,
		Ledger:        ledger,
		Tracker:       tracker,
		MaxDeliveries: maxDeliveries,
		Logger:        logger,
	}
}

func (r *Runner) Process(ctx context.Context, msg Message) Outcome {
	stage := r.Handler.Stage()
	log := r.Logger.With(zap.String("stage", string(stage)), zap.String("message_id", msg.ID))

	job, skip, err := r.Handler.Prepare(msg)
	if err != nil {
		log.Error("Failed to decode message", zap.Error(err))
		if IsPermanent(err) {
			return OutcomeDeadLetter
		}
		return OutcomeRequeue
	}
	if skip {
		log.Debug("Ignoring message")
		return OutcomeAck
	}

	job.Key = MessageKey(msg)
	attempt := r.attempt(ctx, log, stage, job.Key, msg)
	log = log.With(zap.String("path", job.DestPath), zap.Int("attempt", attempt))

	run := entity.NewRun(job, attempt)

	if r.MaxDeliveries > 0 && attempt > r.MaxDeliveries {
		log.Error("Delivery attempts exhausted", zap.Int("max_deliveries", r.MaxDeliveries))
		run.Status = entity.StatusFailedUnacked
		run.Error = "delivery attempts exhausted"
		r.startRun(ctx, log, run)
		r.clearAttempts(ctx, log, stage, job.Key)
		return OutcomeDeadLetter
	}

	run.Status = entity.StatusProcessing
	r.startRun(ctx, log, run)

	result, err := r.Handler.Execute(ctx, job)
	if err != nil {
		run.Status = entity.StatusFailedUnacked
		run.Error = err.Error()
		r.finishRun(ctx, log, run)

		if IsPermanent(err) {
			log.Error("Stage failed permanently", zap.Error(err))
			r.clearAttempts(ctx, log, stage, job.Key)
			return OutcomeDeadLetter
		}
		log.Warn("Stage failed, leaving message for redelivery", zap.Error(err))
		return OutcomeRequeue
	}

	run.Status = entity.StatusPublishedAndAcked
	run.Objects = result.Objects
	run.Skipped = result.Skipped
	run.PublishedID = result.PublishedID
	r.finishRun(ctx, log, run)
	r.clearAttempts(ctx, log, stage, job.Key)

	log.Info("Stage completed", zap.String("published_id", result.PublishedID), zap.Int("objects", result.Objects))
	return OutcomeAck
}

// MessageKey identifies a delivery across redeliveries: the broker
// message id, or a digest of the body and attributes when there is none.
func MessageKey(msg Message) string {
	if msg.ID != "" {
		return msg.ID
	}

	keys := make([]string, 0, len(msg.Attributes))
	for k := range msg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(msg.Attributes[k]))
		h.Write([]byte{0})
	}
	h.Write(msg.Body)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// attempt returns the 1-based delivery attempt. Without a tracker or a
// broker delivery count every delivery counts as the first.
func (r *Runner) attempt(ctx context.Context, log *zap.Logger, stage entity.Stage, key string, msg Message) int {
	if r.Tracker != nil {
		n, err := r.Tracker.IncrAttempts(ctx, stage, key)
		if err == nil {
			return n
		}
		log.Warn("Failed to count delivery attempt", zap.Error(err))
	}
	if msg.DeliveryCount > 0 {
		return msg.DeliveryCount + 1
	}
	return 1
}

func (r *Runner) startRun(ctx context.Context, log *zap.Logger, run *entity.Run) {
	r.setStatus(ctx, log, run)
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.StartRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to record run", zap.Error(err))
	}
}

func (r *Runner) finishRun(ctx context.Context, log *zap.Logger, run *entity.Run) {
	r.setStatus(ctx, log, run)
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to update run", zap.Error(err))
	}
}

func (r *Runner) setStatus(ctx context.Context, log *zap.Logger, run *entity.Run) {
	if r.Tracker == nil {
		return
	}
	if err := r.Tracker.SetStatus(context.WithoutCancel(ctx), run.Stage, run.DestPath, run.Status); err != nil {
		log.Warn("Failed to cache stage status", zap.Error(err))
	}
}

func (r *Runner) clearAttempts(ctx context.Context, log *zap.Logger, stage entity.Stage, key string) {
	if r.Tracker == nil {
		return
	}
	if err := r.Tracker.ClearAttempts(context.WithoutCancel(ctx), stage, key); err != nil {
		log.Warn("Failed to clear delivery attempts", zap.Error(err))
	}
}
