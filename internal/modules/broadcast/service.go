package broadcast

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/pkg/cron"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/pagination"
	"github.com/membergate/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotImportable marks a broadcast the importer refuses to turn into
// content, either private or missing a subject.
var ErrNotImportable = errors.New("broadcast: not importable")

// ImportReport summarizes one import run.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Service syncs email broadcasts between the upstream platform and local
// content rows. Imported rows keep the upstream id so repeated runs are
// idempotent.
type Service struct {
	db  *gorm.DB
	kit *kit.Client
	log *zap.Logger
}

func NewService(db *gorm.DB, kitClient *kit.Client, log *zap.Logger) *Service {
	return &Service{db: db, kit: kitClient, log: log}
}

// ListImported returns locally imported broadcast content, newest first.
func (s *Service) ListImported(q pagination.Query) ([]models.ContentModel, response.Pagination, error) {
	tx := s.db.Model(&models.ContentModel{}).
		Where("broadcast_id <> ''").
		Order("created_at DESC")
	var items []models.ContentModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// Import pulls public upstream broadcasts and creates a content row for
// each one not seen before. Private and subjectless broadcasts are skipped.
func (s *Service) Import(ctx context.Context) (ImportReport, error) {
	broadcasts, err := s.kit.Broadcasts(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("fetch broadcasts: %w", err)
	}

	var report ImportReport
	for _, b := range broadcasts {
		ok, err := s.importOne(b)
		if err != nil {
			s.log.Warn("broadcast import skipped", zap.String("broadcast_id", b.ID), zap.Error(err))
			report.Skipped++
			continue
		}
		if ok {
			report.Imported++
		} else {
			report.Skipped++
		}
	}
	return report, nil
}

func (s *Service) importOne(b kit.Broadcast) (bool, error) {
	if !b.Public || strings.TrimSpace(b.Subject) == "" {
		return false, ErrNotImportable
	}

	var count int64
	if err := s.db.Model(&models.ContentModel{}).Where("broadcast_id = ?", b.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	m := &models.ContentModel{
		Slug:        s.uniqueSlug(Slugify(b.Subject)),
		Title:       b.Subject,
		Text:        b.Content,
		Published:   true,
		BroadcastID: b.ID,
	}
	if err := s.db.Create(m).Error; err != nil {
		return false, err
	}
	return true, nil
}

// Export creates an upstream broadcast draft from a content row and links
// the row to it. Content already linked to a broadcast is not re-exported.
func (s *Service) Export(ctx context.Context, contentID string) (*kit.Broadcast, error) {
	var m models.ContentModel
	if err := s.db.First(&m, "id = ?", contentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if m.BroadcastID != "" {
		return nil, fmt.Errorf("broadcast: content %s already linked to broadcast %s", m.ID, m.BroadcastID)
	}

	b, err := s.kit.CreateBroadcast(ctx, m.Title, m.Text)
	if err != nil {
		return nil, fmt.Errorf("create broadcast: %w", err)
	}
	if err := s.db.Model(&m).Update("broadcast_id", b.ID).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// SyncJob wraps Import as a scheduled background job.
func (s *Service) SyncJob(interval time.Duration) cron.Job {
	return cron.Job{
		Name:        "broadcast_sync",
		Description: "Import new public broadcasts as content",
		Interval:    interval,
		Fn: func(ctx context.Context) error {
			report, err := s.Import(ctx)
			if err != nil {
				return err
			}
			s.log.Info("broadcast sync finished",
				zap.Int("imported", report.Imported),
				zap.Int("skipped", report.Skipped),
			)
			return nil
		},
	}
}

// uniqueSlug appends a numeric suffix until the slug is free. Collisions
// are rare enough that a linear probe is fine.
func (s *Service) uniqueSlug(base string) string {
	slug := base
	for i := 2; ; i++ {
		var count int64
		if err := s.db.Model(&models.ContentModel{}).Where("slug = ?", slug).Count(&count).Error; err != nil || count == 0 {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

var slugStripper = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a url-safe slug from a broadcast subject.
func Slugify(subject string) string {
	slug := strings.ToLower(strings.TrimSpace(subject))
	slug = slugStripper.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "broadcast"
	}
	return slug
}
