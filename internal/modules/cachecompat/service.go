package cachecompat

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"

	"github.com/membergate/core/internal/middleware"
	"github.com/membergate/core/internal/modules/content"
	"go.uber.org/zap"
)

// Page caches that are unaware of the subscriber cookie will happily serve
// an unlocked render to anonymous visitors, or a locked one to members.
// Every cache layer in front of the app therefore has to exclude the
// cookie, and this package tracks whether each one actually does.

// Registrar is one cache layer that can be taught to vary on a cookie.
type Registrar interface {
	Name() string
	RegisterExcludedCookie(name string) error
	IsExcluded(name string) (bool, error)
}

// RegistrarStatus reports one registrar's view of a cookie.
type RegistrarStatus struct {
	Name     string `json:"name"`
	Excluded bool   `json:"excluded"`
	Error    string `json:"error,omitempty"`
}

// Status is the admin-facing compatibility report.
type Status struct {
	Cookie        string            `json:"cookie"`
	Registrars    []RegistrarStatus `json:"registrars"`
	HasRestricted bool              `json:"has_restricted_content"`
	Warning       string            `json:"warning,omitempty"`
}

const restrictedWarning = "Restricted content exists but a cache layer does not exclude the subscriber cookie. Cached pages may leak member-only content or lock out members."

type Service struct {
	cookie     string
	registrars []Registrar
	contents   *content.Service
	log        *zap.Logger
}

func NewService(cookie string, contents *content.Service, log *zap.Logger, registrars ...Registrar) *Service {
	return &Service{cookie: cookie, registrars: registrars, contents: contents, log: log}
}

// EnsureExcluded registers the subscriber cookie with every cache layer.
// Failures are collected per layer, not short-circuited, so one broken
// registrar cannot block the rest.
func (s *Service) EnsureExcluded() []RegistrarStatus {
	out := make([]RegistrarStatus, 0, len(s.registrars))
	for _, r := range s.registrars {
		st := RegistrarStatus{Name: r.Name()}
		if err := r.RegisterExcludedCookie(s.cookie); err != nil {
			st.Error = err.Error()
			s.log.Warn("cookie exclusion failed", zap.String("registrar", r.Name()), zap.Error(err))
		} else {
			st.Excluded = true
		}
		out = append(out, st)
	}
	return out
}

// Report checks every registrar and raises the warning when restricted
// content exists behind an unaware cache.
func (s *Service) Report() Status {
	st := Status{Cookie: s.cookie}

	allExcluded := true
	for _, r := range s.registrars {
		rs := RegistrarStatus{Name: r.Name()}
		excluded, err := r.IsExcluded(s.cookie)
		if err != nil {
			rs.Error = err.Error()
			allExcluded = false
		} else {
			rs.Excluded = excluded
			if !excluded {
				allExcluded = false
			}
		}
		st.Registrars = append(st.Registrars, rs)
	}

	hasRestricted, err := s.contents.HasRestricted()
	if err != nil {
		s.log.Warn("restricted content check failed", zap.Error(err))
	}
	st.HasRestricted = hasRestricted
	if hasRestricted && !allExcluded {
		st.Warning = restrictedWarning
	}
	return st
}

// PageCacheRegistrar adapts the in-process page cache middleware.
type PageCacheRegistrar struct {
	cache *middleware.PageCache
}

func NewPageCacheRegistrar(cache *middleware.PageCache) *PageCacheRegistrar {
	return &PageCacheRegistrar{cache: cache}
}

func (r *PageCacheRegistrar) Name() string { return "page-cache" }

func (r *PageCacheRegistrar) RegisterExcludedCookie(name string) error {
	r.cache.ExcludeCookie(name)
	return nil
}

func (r *PageCacheRegistrar) IsExcluded(name string) (bool, error) {
	return r.cache.IsCookieExcluded(name), nil
}

// FileRegistrar maintains an exclusion list on disk for cache layers that
// live outside the process, such as a CDN or reverse proxy whose config is
// generated from this file.
type FileRegistrar struct {
	path string
}

func NewFileRegistrar(path string) *FileRegistrar { return &FileRegistrar{path: path} }

func (r *FileRegistrar) Name() string { return "exclusion-file" }

type exclusionFile struct {
	ExcludedCookies []string `json:"excluded_cookies"`
}

func (r *FileRegistrar) RegisterExcludedCookie(name string) error {
	f, err := r.read()
	if err != nil {
		return err
	}
	if slices.Contains(f.ExcludedCookies, name) {
		return nil
	}
	f.ExcludedCookies = append(f.ExcludedCookies, name)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

func (r *FileRegistrar) IsExcluded(name string) (bool, error) {
	f, err := r.read()
	if err != nil {
		return false, err
	}
	return slices.Contains(f.ExcludedCookies, name), nil
}

func (r *FileRegistrar) read() (exclusionFile, error) {
	var f exclusionFile
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, err
	}
	return f, nil
}
