package model

import "time"

// Review is a guest's rating of a closed tab. One per ticket link.
type Review struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	TicketLinkID uint      `gorm:"uniqueIndex;not null" json:"ticket_link_id"`
	MemberID     uint      `gorm:"not null;index" json:"member_id"`
	RestaurantID uint      `gorm:"not null;index" json:"restaurant_id"`
	Rating       int       `gorm:"not null;check:chk_reviews_rating,rating >= 1 AND rating <= 5" json:"rating"`
	Comment      string    `gorm:"type:text" json:"comment"`
	CreatedAt    time.Time `json:"created_at"`

	TicketLink *TicketLink `gorm:"foreignKey:TicketLinkID" json:"-"`
}

func (Review) TableName() string {
	return "reviews"
}
