package models

import "gorm.io/gorm"

// Account is the identity anchor that owns challenges. It is created
// lazily on the first challenge start and never deleted.
type Account struct {
	gorm.Model
	Name       string      `gorm:"uniqueIndex;not null" json:"name"`
	Challenges []Challenge `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
