package model

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string // dashboard role of a restaurant team member

const (
	RoleOwner   UserRole = "owner"
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"
)

// User is a restaurant team member who signs in to the staff dashboard.
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	Role         UserRole       `gorm:"type:varchar(20);default:'staff'" json:"role"`
	RestaurantID uint           `gorm:"not null;index" json:"restaurant_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Restaurant *Restaurant `gorm:"foreignKey:RestaurantID" json:"restaurant,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// CanManage reports whether the role may see analytics and exports.
func (r UserRole) CanManage() bool {
	return r == RoleOwner || r == RoleManager
}
