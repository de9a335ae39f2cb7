package models

import "gorm.io/gorm"

// User represents an account in the system.
type User struct {
	gorm.Model
	Username     string `gorm:"size:255;unique;not null"`
	Email        string `gorm:"size:255;unique;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	DisplayName  string `gorm:"size:255"`
	AvatarURL    string `gorm:"size:512"`
	Bio          string
	IsPrivate    bool `gorm:"not null;default:false"`

	Posts []Post `gorm:"foreignKey:AuthorID"`
}
