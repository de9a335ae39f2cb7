package models

import "gorm.io/gorm"

// BlockedUser is a directed block edge. Visibility treats a block in either
// direction as mutual invisibility, and creating one removes any Friendship
// between the pair.
type BlockedUser struct {
	gorm.Model
	BlockerID uint `gorm:"not null;uniqueIndex:idx_blocks_pair"`
	BlockedID uint `gorm:"not null;uniqueIndex:idx_blocks_pair"`

	Blocked User `gorm:"foreignKey:BlockedID"`
}
