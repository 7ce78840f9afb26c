package settings

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/membergate/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const optionKey = "restrict_content"

// Service manages the persisted restrict-content settings record.
type Service struct {
	db  *gorm.DB
	mu  sync.RWMutex
	cur *Restrict
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the current settings with defaults applied, loading from the
// options table if not cached.
func (s *Service) Get() (Restrict, error) {
	s.mu.RLock()
	if s.cur != nil {
		defer s.mu.RUnlock()
		return *s.cur, nil
	}
	s.mu.RUnlock()

	return s.load()
}

func (s *Service) load() (Restrict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opt models.OptionModel
	err := s.db.Where("name = ?", optionKey).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := DefaultRestrict()
		s.cur = &def
		_ = s.persist(def)
		return def, nil
	}
	if err != nil {
		return Restrict{}, err
	}

	var stored Restrict
	if err := json.Unmarshal([]byte(opt.Value), &stored); err != nil {
		return Restrict{}, err
	}
	merged := applyDefaults(stored)
	s.cur = &merged
	return merged, nil
}

// Patch merges the given partial update into the current settings and
// persists the result. Blank values in the patch reset the key to default.
func (s *Service) Patch(partial map[string]json.RawMessage) (Restrict, error) {
	current, err := s.Get()
	if err != nil {
		return Restrict{}, err
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return Restrict{}, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(currentJSON, &merged); err != nil {
		return Restrict{}, err
	}
	for k, v := range partial {
		merged[k] = v
	}
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return Restrict{}, err
	}

	var updated Restrict
	if err := json.Unmarshal(mergedJSON, &updated); err != nil {
		return Restrict{}, err
	}
	updated = applyDefaults(updated)

	s.mu.Lock()
	s.cur = &updated
	s.mu.Unlock()

	return updated, s.persist(updated)
}

func (s *Service) persist(r Restrict) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	opt := models.OptionModel{Name: optionKey, Value: string(data)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}

// Invalidate clears the in-memory cache, forcing a DB reload on next Get.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = nil
}
