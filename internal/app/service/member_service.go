package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/util"
)

const maxEnrollAttempts = 5

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrMemberNumberExhausted = errors.New("could not allocate a unique member number")
)

type EnrollInput struct {
	FirstName            string
	LastName             string
	Email                string
	Phone                string
	PIN                  string
	StripeCustomerID     string
	DefaultPaymentMethod string
}

type MemberService interface {
	Enroll(input EnrollInput) (*model.Member, error)
	GetByNumber(number string) (*model.Member, error)
}

type memberService struct {
	memberRepo repository.MemberRepository
	db         *gorm.DB
	newNumber  func(lastName string) string
}

func NewMemberService(memberRepo repository.MemberRepository, db *gorm.DB) MemberService {
	return &memberService{
		memberRepo: memberRepo,
		db:         db,
		newNumber:  util.MemberNumber,
	}
}

// Enroll creates a customer and its member. A member number collision is
// retried with a new random suffix.
func (s *memberService) Enroll(input EnrollInput) (*model.Member, error) {
	lastName := strings.TrimSpace(input.LastName)
	if lastName == "" {
		return nil, fmt.Errorf("%w: last name is required", ErrInvalidInput)
	}
	pinHash, err := util.HashPIN(input.PIN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	for attempt := 1; attempt <= maxEnrollAttempts; attempt++ {
		member := &model.Member{
			Number:   s.newNumber(lastName),
			LastName: lastName,
			Customer: model.Customer{
				FirstName:            strings.TrimSpace(input.FirstName),
				LastName:             lastName,
				Email:                strings.ToLower(strings.TrimSpace(input.Email)),
				Phone:                strings.TrimSpace(input.Phone),
				PINHash:              pinHash,
				StripeCustomerID:     input.StripeCustomerID,
				DefaultPaymentMethod: input.DefaultPaymentMethod,
			},
		}

		// One transaction per attempt so a failed insert leaves no
		// orphaned customer behind.
		err := s.db.Transaction(func(tx *gorm.DB) error {
			return s.memberRepo.WithTx(tx).Create(member)
		})
		if err == nil {
			logger.Info("Member enrolled", map[string]interface{}{
				"member_id": member.ID,
				"number":    member.Number,
				"attempt":   attempt,
			})
			return member, nil
		}
		if !apperrors.IsUniqueViolation(err) {
			return nil, err
		}
		logger.Warn("Member number collision, retrying", map[string]interface{}{
			"number":  member.Number,
			"attempt": attempt,
		})
	}
	return nil, ErrMemberNumberExhausted
}

func (s *memberService) GetByNumber(number string) (*model.Member, error) {
	member, err := s.memberRepo.FindByNumber(number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}
