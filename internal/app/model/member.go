package model

import "time"

// Member is a guest's loyalty identity. The number never changes once
// assigned.
type Member struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Number     string    `gorm:"type:varchar(16);uniqueIndex;not null" json:"number"`
	LastName   string    `gorm:"not null" json:"last_name"`
	CustomerID uint      `gorm:"uniqueIndex;not null" json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`

	Customer Customer `gorm:"foreignKey:CustomerID" json:"customer"`
}

func (Member) TableName() string {
	return "members"
}

// Customer holds contact and payment details for a member.
type Customer struct {
	ID                   uint      `gorm:"primarykey" json:"id"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Email                string    `gorm:"index" json:"email"`
	Phone                string    `json:"phone"`
	PINHash              string    `gorm:"column:pin_hash" json:"-"`
	StripeCustomerID     string    `json:"-"`
	DefaultPaymentMethod string    `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}

// HasPaymentMethod reports whether a saved card can be charged off-session.
func (c Customer) HasPaymentMethod() bool {
	return c.StripeCustomerID != "" && c.DefaultPaymentMethod != ""
}
