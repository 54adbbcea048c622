package repository

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/pkg/logger"
)

// CloseSnapshot is written onto a link in the same statement that moves it
// from open to closed.
type CloseSnapshot struct {
	ServerName      string
	SubtotalCents   int64
	TaxCents        int64
	DiscountsCents  int64
	TotalCents      int64
	TipCents        int64
	PaidCents       int64
	ItemsJSON       datatypes.JSON
	RawTicketJSON   datatypes.JSON
	POSRef          string
	PaymentIntentID string
	Restaurant      model.Restaurant
	ClosedAt        time.Time
}

// TicketLinkRepository exposes only forward transitions: pending to open,
// open to closed, and deletion of pending rows. Every transition is a
// conditional update on the expected prior status and reports the number of
// rows it changed.
type TicketLinkRepository interface {
	WithTx(tx *gorm.DB) TicketLinkRepository

	Create(link *model.TicketLink) error
	FindByID(id uint) (*model.TicketLink, error)
	FindLatestPending(memberID, restaurantID uint, ticketID string, lock bool) (*model.TicketLink, error)
	FindOpen(memberID, restaurantID uint, ticketID string) (*model.TicketLink, error)
	FindOpenByMember(memberID uint) (*model.TicketLink, error)
	FindOpenByTicket(restaurantID uint, ticketID string) ([]model.TicketLink, error)
	FindClosedByMember(memberID uint) ([]model.TicketLink, error)
	FindClosedByRestaurant(restaurantID uint, from, to time.Time) ([]model.TicketLink, error)
	ListByRestaurant(restaurantID uint, status model.TicketLinkStatus, limit int) ([]model.TicketLink, error)

	RestampPending(id uint, smsMessageID string, sentAt time.Time) (int64, error)
	MarkOpen(id uint, serverName string, lastKnownTotalCents int64, openedAt time.Time) (int64, error)
	ClaimSettlement(id uint, now time.Time, lease time.Duration) (int64, error)
	ReleaseSettlement(id uint) error
	RecordRefund(id uint, paymentIntentID string) error
	MarkClosed(id uint, snap CloseSnapshot) (int64, error)
	DeletePending(id uint) (int64, error)
	DeletePendingOlderThan(cutoff time.Time) (int64, error)
}

type ticketLinkRepository struct {
	db *gorm.DB
}

func NewTicketLinkRepository(db *gorm.DB) TicketLinkRepository {
	return &ticketLinkRepository{db: db}
}

func (r *ticketLinkRepository) WithTx(tx *gorm.DB) TicketLinkRepository {
	return &ticketLinkRepository{db: tx}
}

func (r *ticketLinkRepository) Create(link *model.TicketLink) error {
	logger.Debug("Creating ticket link in database", map[string]interface{}{
		"member_id":     link.MemberID,
		"restaurant_id": link.RestaurantID,
		"ticket_id":     link.TicketID,
		"status":        link.Status,
	})

	if err := r.db.Create(link).Error; err != nil {
		logger.Error("Failed to create ticket link in database", err, map[string]interface{}{
			"member_id": link.MemberID,
			"ticket_id": link.TicketID,
			"status":    link.Status,
		})
		return err
	}
	return nil
}

func (r *ticketLinkRepository) FindByID(id uint) (*model.TicketLink, error) {
	var link model.TicketLink
	if err := r.db.Preload("Member.Customer").Preload("Restaurant").First(&link, id).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *ticketLinkRepository) FindLatestPending(memberID, restaurantID uint, ticketID string, lock bool) (*model.TicketLink, error) {
	q := r.db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var link model.TicketLink
	err := q.Where("member_id = ? AND restaurant_id = ? AND ticket_id = ? AND status = ?",
		memberID, restaurantID, ticketID, model.TicketLinkPending).
		Order("created_at DESC, id DESC").
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *ticketLinkRepository) FindOpen(memberID, restaurantID uint, ticketID string) (*model.TicketLink, error) {
	var link model.TicketLink
	err := r.db.Where("member_id = ? AND restaurant_id = ? AND ticket_id = ? AND status = ?",
		memberID, restaurantID, ticketID, model.TicketLinkOpen).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindOpenByMember returns the member's most recently opened link.
func (r *ticketLinkRepository) FindOpenByMember(memberID uint) (*model.TicketLink, error) {
	var link model.TicketLink
	err := r.db.Preload("Restaurant").
		Where("member_id = ? AND status = ?", memberID, model.TicketLinkOpen).
		Order("opened_at DESC, id DESC").
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *ticketLinkRepository) FindOpenByTicket(restaurantID uint, ticketID string) ([]model.TicketLink, error) {
	var links []model.TicketLink
	err := r.db.Where("restaurant_id = ? AND ticket_id = ? AND status = ?", restaurantID, ticketID, model.TicketLinkOpen).
		Order("id ASC").
		Find(&links).Error
	return links, err
}

func (r *ticketLinkRepository) FindClosedByMember(memberID uint) ([]model.TicketLink, error) {
	var links []model.TicketLink
	err := r.db.Where("member_id = ? AND status = ?", memberID, model.TicketLinkClosed).
		Order("closed_at DESC, id DESC").
		Find(&links).Error
	return links, err
}

func (r *ticketLinkRepository) FindClosedByRestaurant(restaurantID uint, from, to time.Time) ([]model.TicketLink, error) {
	logger.Debug("Finding closed ticket links for export", map[string]interface{}{
		"restaurant_id": restaurantID,
		"from":          from,
		"to":            to,
	})

	var links []model.TicketLink
	err := r.db.Preload("Member").
		Where("restaurant_id = ? AND status = ? AND closed_at >= ? AND closed_at < ?",
			restaurantID, model.TicketLinkClosed, from, to).
		Order("closed_at ASC").
		Find(&links).Error
	if err != nil {
		logger.Error("Failed to find closed ticket links", err, map[string]interface{}{
			"restaurant_id": restaurantID,
		})
		return nil, err
	}
	return links, nil
}

func (r *ticketLinkRepository) ListByRestaurant(restaurantID uint, status model.TicketLinkStatus, limit int) ([]model.TicketLink, error) {
	q := r.db.Preload("Member").Where("restaurant_id = ?", restaurantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	var links []model.TicketLink
	err := q.Order("updated_at DESC, id DESC").Limit(limit).Find(&links).Error
	return links, err
}

func (r *ticketLinkRepository) RestampPending(id uint, smsMessageID string, sentAt time.Time) (int64, error) {
	res := r.db.Model(&model.TicketLink{}).
		Where("id = ? AND status = ?", id, model.TicketLinkPending).
		Updates(map[string]interface{}{
			"sms_message_id": smsMessageID,
			"sms_sent_at":    sentAt,
		})
	return res.RowsAffected, res.Error
}

func (r *ticketLinkRepository) MarkOpen(id uint, serverName string, lastKnownTotalCents int64, openedAt time.Time) (int64, error) {
	logger.Debug("Transitioning ticket link to open", map[string]interface{}{
		"ticket_link_id": id,
	})

	res := r.db.Model(&model.TicketLink{}).
		Where("id = ? AND status = ?", id, model.TicketLinkPending).
		Updates(map[string]interface{}{
			"status":                 model.TicketLinkOpen,
			"server_name":            serverName,
			"last_known_total_cents": lastKnownTotalCents,
			"opened_at":              openedAt,
		})
	if res.Error != nil {
		logger.Error("Failed to open ticket link", res.Error, map[string]interface{}{
			"ticket_link_id": id,
		})
	}
	return res.RowsAffected, res.Error
}

// ClaimSettlement takes the settlement lease on an open link. A lease older
// than the given duration is considered abandoned.
func (r *ticketLinkRepository) ClaimSettlement(id uint, now time.Time, lease time.Duration) (int64, error) {
	res := r.db.Model(&model.TicketLink{}).
		Where("id = ? AND status = ? AND (settling_at IS NULL OR settling_at < ?)",
			id, model.TicketLinkOpen, now.Add(-lease)).
		Update("settling_at", now)
	return res.RowsAffected, res.Error
}

func (r *ticketLinkRepository) ReleaseSettlement(id uint) error {
	return r.db.Model(&model.TicketLink{}).
		Where("id = ? AND status = ?", id, model.TicketLinkOpen).
		Update("settling_at", nil).Error
}

// RecordRefund appends a refunded payment intent to the link.
func (r *ticketLinkRepository) RecordRefund(id uint, paymentIntentID string) error {
	res := r.db.Model(&model.TicketLink{}).
		Where("id = ?", id).
		Update("refunded_intent_ids", gorm.Expr("COALESCE(refunded_intent_ids, '') || ?", paymentIntentID+" "))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ticketLinkRepository) MarkClosed(id uint, snap CloseSnapshot) (int64, error) {
	logger.Debug("Transitioning ticket link to closed", map[string]interface{}{
		"ticket_link_id": id,
		"total_cents":    snap.TotalCents,
		"paid_cents":     snap.PaidCents,
	})

	res := r.db.Model(&model.TicketLink{}).
		Where("id = ? AND status = ?", id, model.TicketLinkOpen).
		Updates(map[string]interface{}{
			"status":            model.TicketLinkClosed,
			"server_name":       snap.ServerName,
			"subtotal_cents":    snap.SubtotalCents,
			"tax_cents":         snap.TaxCents,
			"discounts_cents":   snap.DiscountsCents,
			"total_cents":       snap.TotalCents,
			"tip_cents":         snap.TipCents,
			"paid_cents":        snap.PaidCents,
			"items_json":        snap.ItemsJSON,
			"raw_ticket_json":   snap.RawTicketJSON,
			"pos_ref":           snap.POSRef,
			"payment_intent_id": snap.PaymentIntentID,
			"merchant_name":     snap.Restaurant.Name,
			"merchant_addr1":    snap.Restaurant.Addr1,
			"merchant_addr2":    snap.Restaurant.Addr2,
			"merchant_city":     snap.Restaurant.City,
			"merchant_state":    snap.Restaurant.State,
			"merchant_zip":      snap.Restaurant.Zip,
			"merchant_phone":    snap.Restaurant.Phone,
			"closed_at":         snap.ClosedAt,
			"settling_at":       nil,
		})
	if res.Error != nil {
		logger.Error("Failed to close ticket link", res.Error, map[string]interface{}{
			"ticket_link_id": id,
		})
	}
	return res.RowsAffected, res.Error
}

func (r *ticketLinkRepository) DeletePending(id uint) (int64, error) {
	res := r.db.Where("id = ? AND status = ?", id, model.TicketLinkPending).Delete(&model.TicketLink{})
	return res.RowsAffected, res.Error
}

func (r *ticketLinkRepository) DeletePendingOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("status = ? AND created_at < ?", model.TicketLinkPending, cutoff).Delete(&model.TicketLink{})
	if res.Error != nil {
		logger.Error("Failed to delete stale pending links", res.Error, map[string]interface{}{
			"cutoff": cutoff,
		})
	}
	return res.RowsAffected, res.Error
}
