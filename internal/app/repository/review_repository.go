package repository

import (
	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
)

// RatingStats summarizes reviews for one restaurant.
type RatingStats struct {
	Count        int64         `json:"count"`
	Average      float64       `json:"average"`
	Distribution map[int]int64 `json:"distribution"`
}

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateReview creates a review
func (r *ReviewRepository) CreateReview(review *model.Review) error {
	return r.db.Create(review).Error
}

// GetReviewByTicketLinkID finds the review of a closed tab
func (r *ReviewRepository) GetReviewByTicketLinkID(ticketLinkID uint) (*model.Review, error) {
	var review model.Review
	if err := r.db.Where("ticket_link_id = ?", ticketLinkID).First(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// GetReviewsByRestaurantID lists reviews newest first
func (r *ReviewRepository) GetReviewsByRestaurantID(restaurantID uint, offset, limit int) ([]model.Review, int64, error) {
	var reviews []model.Review
	var total int64

	query := r.db.Model(&model.Review{}).Where("restaurant_id = ?", restaurantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reviews).Error
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

// GetRatingStats aggregates rating count, average and 1-5 distribution
func (r *ReviewRepository) GetRatingStats(restaurantID uint) (*RatingStats, error) {
	var rows []struct {
		Rating int
		Count  int64
	}
	err := r.db.Model(&model.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("restaurant_id = ?", restaurantID).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &RatingStats{Distribution: map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	var sum int64
	for _, row := range rows {
		stats.Distribution[row.Rating] = row.Count
		stats.Count += row.Count
		sum += int64(row.Rating) * row.Count
	}
	if stats.Count > 0 {
		stats.Average = float64(sum) / float64(stats.Count)
	}
	return stats, nil
}
