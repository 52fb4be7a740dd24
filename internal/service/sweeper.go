// 저장소 정리 작업 정의
//
//   - retention: 요금제 보존 기간이 지난 LogEvent 삭제 (host + 모든 테넌트)
//   - archival: 30일이 지난 LogEvent를 zstd JSON으로 blob에 올린 뒤 삭제
//
// Incident는 어느 작업에서도 건드리지 않는다. 배치 사이에 트랜잭션을 잡지 않으므로
// 중간에 멈춰도 다음 실행이 이어서 처리한다.

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/metrics"
	"github.com/kube-rca/ingest/internal/model"
)

const (
	defaultSweepBatchSize   = 1000
	defaultArchiveAfterDays = 30
	defaultArchiveContainer = "archived-logs"
)

type sweeperStore interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	GetLimits(ctx context.Context, tenantID *uuid.UUID) (model.PlanLimits, error)
	DeleteLogEventsBefore(ctx context.Context, tenantID *uuid.UUID, cutoff time.Time, batchSize int) (int, error)
	ListLogEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.LogEvent, error)
	DeleteLogEvents(ctx context.Context, ids []uuid.UUID) error
}

// BlobUploader - 아카이브 저장소
type BlobUploader interface {
	Upload(ctx context.Context, container, blobName string, content []byte) error
}

type Sweeper struct {
	store        sweeperStore
	blobs        BlobUploader
	batchSize    int
	archiveAfter time.Duration
	container    string
	encoder      *zstd.Encoder
	logger       *slog.Logger
	now          func() time.Time
}

func NewSweeper(store sweeperStore, blobs BlobUploader, cfg config.SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	days := cfg.ArchiveAfterDays
	if days <= 0 {
		days = defaultArchiveAfterDays
	}
	container := cfg.ArchiveContainer
	if container == "" {
		container = defaultArchiveContainer
	}
	return &Sweeper{
		store:        store,
		blobs:        blobs,
		batchSize:    batch,
		archiveAfter: time.Duration(days) * 24 * time.Hour,
		container:    container,
		encoder:      enc,
		logger:       logger.With("component", "sweeper"),
		now:          time.Now,
	}, nil
}

// Run - interval마다 archival 후 retention을 순서대로 실행. 두 작업이 겹치지 않는다.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.blobs != nil {
		if n, err := s.RunArchival(ctx); err != nil {
			s.logger.Error("log archival failed", "archived", n, "error", err)
		}
	}
	if n, err := s.RunRetention(ctx); err != nil {
		s.logger.Error("data retention failed", "deleted", n, "error", err)
	}
}

// RunRetention - host와 모든 테넌트에 대해 보존 기간이 지난 이벤트 삭제
//
// 한 테넌트의 실패는 로그만 남기고 다음 테넌트로 진행한다. 마지막 에러를 반환한다.
func (s *Sweeper) RunRetention(ctx context.Context) (int, error) {
	ids, err := s.store.ListTenantIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	tenants := make([]*uuid.UUID, 0, len(ids)+1)
	tenants = append(tenants, nil)
	for i := range ids {
		tenants = append(tenants, &ids[i])
	}

	total := 0
	var lastErr error
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := s.retainTenant(ctx, tenantID)
		total += n
		if err != nil {
			lastErr = err
			s.logger.Error("retention failed for tenant", "tenant_id", model.TenantGroup(tenantID), "error", err)
		}
	}
	s.logger.Info("data retention complete", "deleted", total)
	return total, lastErr
}

func (s *Sweeper) retainTenant(ctx context.Context, tenantID *uuid.UUID) (int, error) {
	limits, err := s.store.GetLimits(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().AddDate(0, 0, -limits.RetentionDays)

	total := 0
	for {
		n, err := s.store.DeleteLogEventsBefore(ctx, tenantID, cutoff, s.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		metrics.EventsSwept("retention", n)
		if n < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Info("deleted expired log events",
			"tenant_id", model.TenantGroup(tenantID), "plan", limits.Plan, "retention_days", limits.RetentionDays, "deleted", total)
	}
	return total, nil
}

// RunArchival - 오래된 이벤트를 배치 단위로 업로드 후 삭제
func (s *Sweeper) RunArchival(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.archiveAfter)
	total := 0

	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		batch, err := s.store.ListLogEventsBefore(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list archivable events: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		name := s.blobName(cutoff)
		content, ids, err := s.encodeBatch(batch)
		if err != nil {
			return total, err
		}
		if err := s.blobs.Upload(ctx, s.container, name, content); err != nil {
			return total, fmt.Errorf("failed to upload %s: %w", name, err)
		}
		if err := s.store.DeleteLogEvents(ctx, ids); err != nil {
			return total, fmt.Errorf("failed to delete archived events: %w", err)
		}

		total += len(batch)
		metrics.EventsSwept("archival", len(batch))
		s.logger.Info("archived log events", "count", len(batch), "blob", name)

		if len(batch) < s.batchSize {
			break
		}
	}
	return total, nil
}

// blobName - {cutoff:yyyy/MM/dd}/batch_{HHmmss}_{uuid hex}.json.zst
func (s *Sweeper) blobName(cutoff time.Time) string {
	return fmt.Sprintf("%s/batch_%s_%s.json.zst",
		cutoff.Format("2006/01/02"),
		s.now().UTC().Format("150405"),
		strings.ReplaceAll(uuid.NewString(), "-", ""),
	)
}

// encodeBatch - 스택 트레이스는 아카이브에 포함하지 않는다
func (s *Sweeper) encodeBatch(batch []model.LogEvent) ([]byte, []uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(batch))
	archived := make([]model.LogEvent, 0, len(batch))
	for _, e := range batch {
		ids = append(ids, e.ID)
		e.StackTrace = nil
		archived = append(archived, e)
	}
	raw, err := json.Marshal(archived)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal archive batch: %w", err)
	}
	return s.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), ids, nil
}
