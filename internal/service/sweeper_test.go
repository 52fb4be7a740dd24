package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/logging"
	"github.com/kube-rca/ingest/internal/model"
)

var sweepNow = time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)

type uploadedBlob struct {
	container string
	name      string
	content   []byte
}

type fakeBlobs struct {
	uploads []uploadedBlob
	err     error
}

func (b *fakeBlobs) Upload(ctx context.Context, container, blobName string, content []byte) error {
	if b.err != nil {
		return b.err
	}
	b.uploads = append(b.uploads, uploadedBlob{container: container, name: blobName, content: content})
	return nil
}

func seedEvents(store *fakeStore, tenant *uuid.UUID, n int, age time.Duration) {
	trace := "at Worker.Run()"
	for i := 0; i < n; i++ {
		store.events = append(store.events, model.LogEvent{
			ID:         uuid.New(),
			TenantID:   tenant,
			Level:      model.LevelError,
			Message:    "boom",
			StackTrace: &trace,
			Timestamp:  sweepNow.Add(-age).Add(time.Duration(i) * time.Second),
		})
	}
}

func newTestSweeper(t *testing.T, store *fakeStore, blobs BlobUploader, batch int) *Sweeper {
	t.Helper()
	s, err := NewSweeper(store, blobs, config.SweeperConfig{BatchSize: batch}, logging.Discard())
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestRetentionUsesPlanPerTenant(t *testing.T) {
	store := newFakeStore()
	free, pro := uuid.New(), uuid.New()
	store.tenants = []uuid.UUID{free, pro}
	store.setPlan(pro, model.PlanPro, model.SubscriptionActive)

	seedEvents(store, &free, 2500, 10*24*time.Hour)
	seedEvents(store, &free, 4, 24*time.Hour)
	seedEvents(store, &pro, 6, 10*24*time.Hour)
	seedEvents(store, nil, 3, 8*24*time.Hour)

	s := newTestSweeper(t, store, nil, 1000)
	deleted, err := s.RunRetention(context.Background())
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if deleted != 2503 {
		t.Fatalf("deleted = %d, want 2503", deleted)
	}
	if store.eventCount() != 10 {
		t.Fatalf("remaining = %d, want 10 (recent free + pro within 30 days)", store.eventCount())
	}
}

func TestArchivalUploadsCompressedBatches(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	seedEvents(store, &tenant, 3, 40*24*time.Hour)
	seedEvents(store, &tenant, 2, 5*24*time.Hour)

	blobs := &fakeBlobs{}
	s := newTestSweeper(t, store, blobs, 2)
	archived, err := s.RunArchival(context.Background())
	if err != nil {
		t.Fatalf("archival: %v", err)
	}
	if archived != 3 || len(blobs.uploads) != 2 {
		t.Fatalf("archived = %d in %d blobs, want 3 in 2", archived, len(blobs.uploads))
	}
	if store.eventCount() != 2 {
		t.Fatalf("remaining = %d, want 2", store.eventCount())
	}

	nameRe := regexp.MustCompile(`^2026/02/13/batch_030000_[0-9a-f]{32}\.json\.zst$`)
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	total := 0
	for _, up := range blobs.uploads {
		if up.container != "archived-logs" {
			t.Fatalf("container = %q", up.container)
		}
		if !nameRe.MatchString(up.name) {
			t.Fatalf("unexpected blob name %q", up.name)
		}
		raw, err := dec.DecodeAll(up.content, nil)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if strings.Contains(string(raw), "stackTrace") {
			t.Fatalf("stack traces must not be archived")
		}
		var events []model.LogEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			t.Fatalf("archive is not a json array: %v", err)
		}
		total += len(events)
	}
	if total != 3 {
		t.Fatalf("archived events = %d, want 3", total)
	}
}

func TestArchivalKeepsEventsWhenUploadFails(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	seedEvents(store, &tenant, 3, 40*24*time.Hour)

	s := newTestSweeper(t, store, &fakeBlobs{err: errors.New("disk full")}, 10)
	if _, err := s.RunArchival(context.Background()); err == nil {
		t.Fatalf("expected upload error")
	}
	if store.eventCount() != 3 {
		t.Fatalf("events must survive a failed upload")
	}
}

func TestRunOnceArchivesBeforeRetention(t *testing.T) {
	store := newFakeStore()
	tenant := uuid.New()
	store.tenants = []uuid.UUID{tenant}
	seedEvents(store, &tenant, 5, 40*24*time.Hour)

	blobs := &fakeBlobs{}
	s := newTestSweeper(t, store, blobs, 100)
	s.RunOnce(context.Background())

	if len(blobs.uploads) != 1 {
		t.Fatalf("old events should be archived before retention deletes them")
	}
	if store.eventCount() != 0 {
		t.Fatalf("remaining = %d, want 0", store.eventCount())
	}
}
