package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/pkg/logger"
)

type MemberRepository interface {
	WithTx(tx *gorm.DB) MemberRepository
	Create(member *model.Member) error
	FindByID(id uint) (*model.Member, error)
	FindByNumber(number string) (*model.Member, error)
}

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) WithTx(tx *gorm.DB) MemberRepository {
	return &memberRepository{db: tx}
}

// Create inserts the member and, when not yet saved, its customer.
func (r *memberRepository) Create(member *model.Member) error {
	logger.Debug("Creating member in database", map[string]interface{}{
		"number": member.Number,
	})

	if err := r.db.Create(member).Error; err != nil {
		logger.Warn("Failed to create member in database", map[string]interface{}{
			"number": member.Number,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

func (r *memberRepository) FindByID(id uint) (*model.Member, error) {
	var member model.Member
	if err := r.db.Preload("Customer").First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// FindByNumber matches case-insensitively; numbers are stored upper case.
func (r *memberRepository) FindByNumber(number string) (*model.Member, error) {
	var member model.Member
	err := r.db.Preload("Customer").
		Where("number = ?", strings.ToUpper(strings.TrimSpace(number))).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}
