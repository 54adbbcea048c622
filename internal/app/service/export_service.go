package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/internal/storage"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/money"
)

var ErrInvalidRange = errors.New("invalid export date range")

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet     = "Closed Tabs"
	maxExportRange  = 366 * 24 * time.Hour
	exportURLTTL    = 15 * time.Minute
)

// ObjectStore uploads a file and hands back a download link.
// *storage.S3Storage satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte, ttl time.Duration) (*storage.StoredObject, error)
}

// ExportResult carries either a download URL (uploaded) or the workbook
// bytes to stream.
type ExportResult struct {
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type"`
	Rows        int                   `json:"rows"`
	Object      *storage.StoredObject `json:"object,omitempty"`
	Content     []byte                `json:"-"`
}

type ExportService interface {
	ExportClosed(ctx context.Context, restaurantID uint, from, to time.Time) (*ExportResult, error)
}

type exportService struct {
	linkRepo repository.TicketLinkRepository
	store    ObjectStore
}

// NewExportService streams workbooks when store is nil.
func NewExportService(linkRepo repository.TicketLinkRepository, store ObjectStore) ExportService {
	return &exportService{linkRepo: linkRepo, store: store}
}

var exportHeader = []interface{}{
	"Closed At", "Ticket", "Member", "Server",
	"Subtotal", "Tax", "Discounts", "Total", "Tip", "Paid",
	"Payment Intent", "POS Ref",
}

func (s *exportService) ExportClosed(ctx context.Context, restaurantID uint, from, to time.Time) (*ExportResult, error) {
	if !to.After(from) || to.Sub(from) > maxExportRange {
		return nil, ErrInvalidRange
	}

	links, err := s.linkRepo.FindClosedByRestaurant(restaurantID, from, to)
	if err != nil {
		return nil, err
	}

	content, err := buildWorkbook(links)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{
		Filename:    fmt.Sprintf("closed-tabs-%s-%s.xlsx", from.Format("20060102"), to.Format("20060102")),
		ContentType: xlsxContentType,
		Rows:        len(links),
	}

	if s.store == nil {
		result.Content = content
		return result, nil
	}

	key := storage.ObjectKey(fmt.Sprintf("exports/%d", restaurantID), result.Filename, time.Now())
	obj, err := s.store.Upload(ctx, key, xlsxContentType, content, exportURLTTL)
	if err != nil {
		logger.Error("Failed to upload export", err, map[string]interface{}{
			"restaurant_id": restaurantID,
			"key":           key,
		})
		return nil, err
	}
	result.Object = obj

	logger.Info("Closed tab export uploaded", map[string]interface{}{
		"restaurant_id": restaurantID,
		"rows":          len(links),
		"key":           key,
	})
	return result, nil
}

func buildWorkbook(links []model.TicketLink) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, err
	}

	for i, l := range links {
		var closedAt, member string
		if l.ClosedAt != nil {
			closedAt = l.ClosedAt.Format("2006-01-02 15:04")
		}
		if l.Member != nil {
			member = l.Member.Number
		}
		row := []interface{}{
			closedAt, l.TicketNumber, member, l.ServerName,
			dollars(l.SubtotalCents), dollars(l.TaxCents), dollars(l.DiscountsCents),
			dollars(l.TotalCents), dollars(l.TipCents), dollars(l.PaidCents),
			l.PaymentIntentID, l.POSRef,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func dollars(cents int64) string {
	return money.FormatDollars(cents)
}
