package models

// UserModel is a site administrator account. Visitors are never stored
// here; subscriber identity lives on the upstream platform.
type UserModel struct {
	Base
	Username string `json:"username" gorm:"uniqueIndex;not null"`
	Name     string `json:"name"`
	Password string `json:"-"        gorm:"not null"` // bcrypt hash
}

func (UserModel) TableName() string { return "users" }
