package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
)

var (
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrReviewAlreadyExists = errors.New("tab already reviewed")
	ErrTabNotClosed        = errors.New("tab is not closed")
)

type ReviewService struct {
	reviewRepo *repository.ReviewRepository
	memberRepo repository.MemberRepository
	linkRepo   repository.TicketLinkRepository
}

func NewReviewService(reviewRepo *repository.ReviewRepository, memberRepo repository.MemberRepository, linkRepo repository.TicketLinkRepository) *ReviewService {
	return &ReviewService{
		reviewRepo: reviewRepo,
		memberRepo: memberRepo,
		linkRepo:   linkRepo,
	}
}

// RatingAnalytics is the dashboard view of a restaurant's ratings
type RatingAnalytics struct {
	*repository.RatingStats
	Recent []model.Review `json:"recent"`
}

// Submit rates a closed tab owned by the member
func (s *ReviewService) Submit(memberNumber string, linkID uint, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	member, err := s.memberRepo.FindByNumber(memberNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	link, err := s.linkRepo.FindByID(linkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if link.MemberID != member.ID {
		return nil, ErrLinkNotFound
	}
	if link.Status != model.TicketLinkClosed {
		return nil, ErrTabNotClosed
	}

	review := &model.Review{
		TicketLinkID: link.ID,
		MemberID:     member.ID,
		RestaurantID: link.RestaurantID,
		Rating:       rating,
		Comment:      strings.TrimSpace(comment),
	}
	if err := s.reviewRepo.CreateReview(review); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, ErrReviewAlreadyExists
		}
		return nil, err
	}
	return review, nil
}

// Analytics returns count, average, distribution and the latest reviews
func (s *ReviewService) Analytics(restaurantID uint) (*RatingAnalytics, error) {
	stats, err := s.reviewRepo.GetRatingStats(restaurantID)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.reviewRepo.GetReviewsByRestaurantID(restaurantID, 0, 20)
	if err != nil {
		return nil, err
	}
	return &RatingAnalytics{RatingStats: stats, Recent: recent}, nil
}
