package model

import "time"

type Restaurant struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	Name               string    `gorm:"not null" json:"name"`
	Addr1              string    `json:"addr1"`
	Addr2              string    `json:"addr2"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Zip                string    `json:"zip"`
	Phone              string    `json:"phone"`
	OmnivoreLocationID string    `gorm:"uniqueIndex;not null" json:"omnivore_location_id"`
	StripeAccountID    string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Restaurant) TableName() string {
	return "restaurants"
}
