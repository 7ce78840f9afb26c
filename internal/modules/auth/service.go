package auth

import (
	"errors"
	"time"

	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// adminTokenTTL is fixed: admin sessions are short-lived compared to the
// subscriber cookie, which has its own configurable lifetime.
const adminTokenTTL = 14 * 24 * time.Hour

var (
	errUserNotFound           = errors.New("auth: user not found")
	errWrongPassword          = errors.New("auth: wrong password")
	errOwnerAlreadyRegistered = errors.New("auth: owner already registered")
)

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// Login verifies credentials and returns a signed admin token. Failed
// attempts are slowed down uniformly so timing does not reveal whether the
// username exists.
func (s *Service) Login(username, password string) (string, error) {
	var u models.UserModel
	if err := s.db.Select("id, password").
		Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			time.Sleep(3 * time.Second)
			return "", errUserNotFound
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		time.Sleep(3 * time.Second)
		return "", errWrongPassword
	}
	return token.SignAdmin(u.ID, adminTokenTTL)
}

// Register creates the single owner account. It refuses once any user
// exists.
func (s *Service) Register(dto *RegisterDTO) (*models.UserModel, error) {
	var count int64
	s.db.Model(&models.UserModel{}).Count(&count)
	if count > 0 {
		return nil, errOwnerAlreadyRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	name := dto.Name
	if name == "" {
		name = dto.Username
	}
	u := models.UserModel{Username: dto.Username, Password: string(hash), Name: name}
	return &u, s.db.Create(&u).Error
}

// Me loads the account behind an authenticated request.
func (s *Service) Me(userID string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
