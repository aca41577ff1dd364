package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

var errInjected = errors.New("injected failure")

type fakeStorage struct {
	mu              sync.Mutex
	objects         map[string][]byte // "bucket/key" -> body
	types           map[string]string
	uploads         []string
	failOnNthUpload int
	failList        error
	failRead        error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStorage) put(bucket, key string, body []byte) {
	s.objects[bucket+"/"+key] = body
}

func (s *fakeStorage) get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return b, ok
}

func (s *fakeStorage) Download(_ context.Context, bucket, key, dstPath string) error {
	b, ok := s.get(bucket, key)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return os.WriteFile(dstPath, b, 0o644)
}

func (s *fakeStorage) UploadFile(ctx context.Context, bucket, key, srcPath string) error {
	b, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	return s.Upload(ctx, bucket, key, b, "")
}

func (s *fakeStorage) Upload(_ context.Context, bucket, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnNthUpload > 0 && len(s.uploads)+1 == s.failOnNthUpload {
		s.uploads = append(s.uploads, "FAILED:"+bucket+"/"+key)
		return errInjected
	}
	s.uploads = append(s.uploads, bucket+"/"+key)
	s.objects[bucket+"/"+key] = append([]byte(nil), body...)
	s.types[bucket+"/"+key] = contentType
	return nil
}

func (s *fakeStorage) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if s.failList != nil {
		return nil, s.failList
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for full, b := range s.objects {
		if !strings.HasPrefix(full, bucket+"/") {
			continue
		}
		key := strings.TrimPrefix(full, bucket+"/")
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fakeStorage) Read(_ context.Context, bucket, key string) ([]byte, error) {
	if s.failRead != nil {
		return nil, s.failRead
	}
	b, ok := s.get(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return b, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []json.RawMessage
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, body json.RawMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, body)
	return fmt.Sprintf("msg-%d", len(p.published)), nil
}

func (p *fakePublisher) handoffs(t *testing.T) []entity.HandoffMessage {
	t.Helper()
	var out []entity.HandoffMessage
	for _, b := range p.published {
		h, err := entity.ParseHandoffMessage(b)
		if err != nil {
			t.Fatalf("ParseHandoffMessage failed: %v", err)
		}
		out = append(out, h)
	}
	return out
}

type fakeLedger struct {
	started  []entity.Run
	finished []entity.Run
	err      error
}

func (l *fakeLedger) StartRun(_ context.Context, run *entity.Run) error {
	l.started = append(l.started, *run)
	return l.err
}

func (l *fakeLedger) FinishRun(_ context.Context, run *entity.Run) error {
	l.finished = append(l.finished, *run)
	return l.err
}

type fakeTracker struct {
	attempts map[string]int
	statuses map[string]entity.RunStatus
	cleared  []string
	incrErr  error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{attempts: map[string]int{}, statuses: map[string]entity.RunStatus{}}
}

func (f *fakeTracker) IncrAttempts(_ context.Context, stage entity.Stage, key string) (int, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.attempts[string(stage)+":"+key]++
	return f.attempts[string(stage)+":"+key], nil
}

func (f *fakeTracker) ClearAttempts(_ context.Context, stage entity.Stage, key string) error {
	delete(f.attempts, string(stage)+":"+key)
	f.cleared = append(f.cleared, key)
	return nil
}

func (f *fakeTracker) SetStatus(_ context.Context, stage entity.Stage, path string, status entity.RunStatus) error {
	f.statuses[string(stage)+":"+path] = status
	return nil
}

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		if err != nil {
			t.Fatalf("zip Create failed: %v", err)
		}
		if _, err := f.Write([]byte(e.body)); err != nil {
			t.Fatalf("zip Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close failed: %v", err)
	}
	return buf.Bytes()
}

func readingJSON(id string, temp, hum, pres string, ts int64) string {
	return fmt.Sprintf(`{"id":%q,"temperature":%s,"humidity":%s,"pressure":%s,"timestamp":%d}`, id, temp, hum, pres, ts)
}

func finalizeMessage(bucket, object string) Message {
	return Message{
		ID: "notif-1",
		Attributes: map[string]string{
			entity.AttrEventType: entity.EventObjectFinalize,
			entity.AttrBucketID:  bucket,
			entity.AttrObjectID:  object,
		},
	}
}

func handoffMessage(t *testing.T, bucket, path string) Message {
	t.Helper()
	b, err := json.Marshal(entity.HandoffMessage{Bucket: bucket, Path: path})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return Message{ID: "handoff-1", Body: b}
}

func scratchEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	return names
}
