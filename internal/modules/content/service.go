package content

import (
	"errors"
	"fmt"
	"strings"

	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/pkg/pagination"
	"github.com/membergate/core/internal/pkg/response"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) List(q pagination.Query) ([]models.ContentModel, response.Pagination, error) {
	tx := s.db.Model(&models.ContentModel{}).Order("created_at DESC")
	var items []models.ContentModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) GetBySlug(slug string) (*models.ContentModel, error) {
	var m models.ContentModel
	if err := s.db.Where("slug = ?", slug).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *Service) GetByID(id string) (*models.ContentModel, error) {
	var m models.ContentModel
	if err := s.db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// HasRestricted reports whether any published content carries an access
// rule. Used by the cache compatibility check.
func (s *Service) HasRestricted() (bool, error) {
	var count int64
	err := s.db.Model(&models.ContentModel{}).
		Where("restrict_rule <> '' AND published = ?", true).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) Create(dto *CreateContentDTO) (*models.ContentModel, error) {
	if err := validateRestrict(dto.Restrict); err != nil {
		return nil, err
	}

	var count int64
	s.db.Model(&models.ContentModel{}).Where("slug = ?", dto.Slug).Count(&count)
	if count > 0 {
		return nil, ErrSlugExists
	}

	m := models.ContentModel{
		Slug:     dto.Slug,
		Title:    dto.Title,
		Text:     dto.Text,
		Restrict: strings.TrimSpace(dto.Restrict),
	}
	if dto.Published != nil {
		m.Published = *dto.Published
	} else {
		m.Published = true
	}
	return &m, s.db.Create(&m).Error
}

func (s *Service) Update(id string, dto *UpdateContentDTO) (*models.ContentModel, error) {
	m, err := s.GetByID(id)
	if err != nil || m == nil {
		return m, err
	}

	updates := map[string]interface{}{}
	if dto.Slug != nil {
		updates["slug"] = *dto.Slug
	}
	if dto.Title != nil {
		updates["title"] = *dto.Title
	}
	if dto.Text != nil {
		updates["text"] = *dto.Text
	}
	if dto.Restrict != nil {
		if err := validateRestrict(*dto.Restrict); err != nil {
			return nil, err
		}
		updates["restrict_rule"] = strings.TrimSpace(*dto.Restrict)
	}
	if dto.Published != nil {
		updates["published"] = *dto.Published
	}
	if err := s.db.Model(m).Updates(updates).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Delete(id string) error {
	return s.db.Delete(&models.ContentModel{}, "id = ?", id).Error
}

var ErrSlugExists = fmt.Errorf("slug already exists")

// validateRestrict rejects rule strings the author typo'd. A malformed
// value that somehow reaches the database still renders as public, but we
// refuse to save one knowingly.
func validateRestrict(s string) error {
	if _, ok := models.ParseRule(s); !ok {
		return fmt.Errorf("invalid restrict rule %q", s)
	}
	return nil
}
