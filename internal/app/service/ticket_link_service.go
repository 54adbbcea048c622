package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	apperrors "github.com/ikkim/tabline-backend/internal/errors"
	"github.com/ikkim/tabline-backend/pkg/logger"
)

var (
	ErrLinkNotFound   = errors.New("ticket link not found")
	ErrLinkNotPending = errors.New("ticket link is not pending")
	ErrInvalidStatus  = errors.New("invalid ticket link status")
)

// OpenSnapshot is what the dashboard shows for an open tab until it closes.
type OpenSnapshot struct {
	TicketNumber        string
	ServerName          string
	LastKnownTotalCents int64
}

// TicketLinkService owns the link lifecycle. It only moves links forward:
// pending rows are created or re-stamped, opened, or deleted. Closing is
// done by the settlement service.
type TicketLinkService interface {
	CreatePending(memberID uint, restaurant *model.Restaurant, ticketID, ticketNumber, smsMessageID string) (*model.TicketLink, error)
	Open(memberID uint, restaurant *model.Restaurant, ticketID string, snap OpenSnapshot) (*model.TicketLink, error)
	Cancel(restaurantID, linkID uint) error
	GetForRestaurant(restaurantID, linkID uint) (*model.TicketLink, error)
	List(restaurantID uint, status model.TicketLinkStatus, limit int) ([]model.TicketLink, error)
	SweepPending(olderThan time.Duration) (int64, error)
}

type ticketLinkService struct {
	linkRepo repository.TicketLinkRepository
	events   EventPublisher
	db       *gorm.DB
	now      func() time.Time
}

func NewTicketLinkService(linkRepo repository.TicketLinkRepository, events EventPublisher, db *gorm.DB) TicketLinkService {
	return &ticketLinkService{
		linkRepo: linkRepo,
		events:   publisherOrNoop(events),
		db:       db,
		now:      time.Now,
	}
}

// CreatePending records that a verification SMS went out. An existing
// pending row for the same (member, restaurant, ticket) is re-stamped rather
// than duplicated.
func (s *ticketLinkService) CreatePending(memberID uint, restaurant *model.Restaurant, ticketID, ticketNumber, smsMessageID string) (*model.TicketLink, error) {
	now := s.now()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()
	repo := s.linkRepo.WithTx(tx)

	link, err := repo.FindLatestPending(memberID, restaurant.ID, ticketID, true)
	switch {
	case err == nil:
		if _, err := repo.RestampPending(link.ID, smsMessageID, now); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to re-stamp pending link: %w", err)
		}
		link.SMSMessageID = smsMessageID
		link.SMSSentAt = &now
	case errors.Is(err, gorm.ErrRecordNotFound):
		link = &model.TicketLink{
			MemberID:     memberID,
			RestaurantID: restaurant.ID,
			TicketID:     ticketID,
			TicketNumber: ticketNumber,
			Status:       model.TicketLinkPending,
			SMSMessageID: smsMessageID,
			SMSSentAt:    &now,
		}
		if err := repo.Create(link); err != nil {
			tx.Rollback()
			if apperrors.IsUniqueViolation(err) {
				return nil, ErrConcurrentModification
			}
			return nil, fmt.Errorf("failed to create pending link: %w", err)
		}
	default:
		tx.Rollback()
		return nil, fmt.Errorf("failed to load pending link: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.events.PublishToRestaurant(restaurant.ID, EventLinkPending, map[string]interface{}{
		"ticket_link_id": link.ID,
		"ticket_id":      ticketID,
		"ticket_number":  ticketNumber,
	})
	return link, nil
}

// Open moves the most recent pending link to open. An already open link for
// the same triple is returned unchanged, and a fresh open row is created when
// no pending row exists.
func (s *ticketLinkService) Open(memberID uint, restaurant *model.Restaurant, ticketID string, snap OpenSnapshot) (*model.TicketLink, error) {
	now := s.now()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()
	repo := s.linkRepo.WithTx(tx)

	existing, err := repo.FindOpen(memberID, restaurant.ID, ticketID)
	if err == nil {
		tx.Rollback()
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, fmt.Errorf("failed to load open link: %w", err)
	}

	var link *model.TicketLink
	pending, err := repo.FindLatestPending(memberID, restaurant.ID, ticketID, true)
	switch {
	case err == nil:
		n, err := repo.MarkOpen(pending.ID, snap.ServerName, snap.LastKnownTotalCents, now)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to open link: %w", err)
		}
		if n == 0 {
			tx.Rollback()
			return nil, ErrConcurrentModification
		}
		link = pending
		link.Status = model.TicketLinkOpen
		link.ServerName = snap.ServerName
		link.LastKnownTotalCents = snap.LastKnownTotalCents
		link.OpenedAt = &now
	case errors.Is(err, gorm.ErrRecordNotFound):
		link = &model.TicketLink{
			MemberID:            memberID,
			RestaurantID:        restaurant.ID,
			TicketID:            ticketID,
			TicketNumber:        snap.TicketNumber,
			Status:              model.TicketLinkOpen,
			ServerName:          snap.ServerName,
			LastKnownTotalCents: snap.LastKnownTotalCents,
			OpenedAt:            &now,
		}
		if err := repo.Create(link); err != nil {
			tx.Rollback()
			if apperrors.IsUniqueViolation(err) {
				return nil, ErrConcurrentModification
			}
			return nil, fmt.Errorf("failed to create open link: %w", err)
		}
	default:
		tx.Rollback()
		return nil, fmt.Errorf("failed to load pending link: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.Info("Ticket link opened", map[string]interface{}{
		"ticket_link_id": link.ID,
		"member_id":      memberID,
		"restaurant_id":  restaurant.ID,
		"ticket_id":      ticketID,
	})
	s.events.PublishToRestaurant(restaurant.ID, EventLinkOpened, map[string]interface{}{
		"ticket_link_id": link.ID,
		"ticket_id":      ticketID,
		"server_name":    link.ServerName,
	})
	return link, nil
}

func (s *ticketLinkService) GetForRestaurant(restaurantID, linkID uint) (*model.TicketLink, error) {
	link, err := s.linkRepo.FindByID(linkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if link.RestaurantID != restaurantID {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// Cancel deletes a pending link. Open and closed links cannot be cancelled.
func (s *ticketLinkService) Cancel(restaurantID, linkID uint) error {
	link, err := s.GetForRestaurant(restaurantID, linkID)
	if err != nil {
		return err
	}
	if link.Status != model.TicketLinkPending {
		return ErrLinkNotPending
	}

	n, err := s.linkRepo.DeletePending(link.ID)
	if err != nil {
		return fmt.Errorf("failed to delete pending link: %w", err)
	}
	if n == 0 {
		return ErrLinkNotPending
	}

	logger.Info("Pending ticket link cancelled", map[string]interface{}{
		"ticket_link_id": link.ID,
		"restaurant_id":  restaurantID,
	})
	return nil
}

func (s *ticketLinkService) List(restaurantID uint, status model.TicketLinkStatus, limit int) ([]model.TicketLink, error) {
	switch status {
	case "", model.TicketLinkPending, model.TicketLinkOpen, model.TicketLinkClosed:
	default:
		return nil, ErrInvalidStatus
	}
	return s.linkRepo.ListByRestaurant(restaurantID, status, limit)
}

// SweepPending deletes pending links that were never verified.
func (s *ticketLinkService) SweepPending(olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	n, err := s.linkRepo.DeletePendingOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Swept stale pending ticket links", map[string]interface{}{
			"deleted": n,
			"cutoff":  cutoff,
		})
	}
	return n, nil
}
