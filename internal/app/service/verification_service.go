package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/money"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
	"github.com/ikkim/tabline-backend/pkg/session"
	"github.com/ikkim/tabline-backend/pkg/util"
	"github.com/ikkim/tabline-backend/pkg/verifytoken"
)

var (
	// ErrInvalidLink covers tampered, expired, burned and mismatched tokens
	// alike so callers cannot tell them apart.
	ErrInvalidLink     = errors.New("invalid or expired link")
	ErrInvalidPIN      = errors.New("incorrect pin")
	ErrTooManyAttempts = errors.New("too many pin attempts")
	ErrSessionFailure  = errors.New("failed to start session")
)

type VerificationConfig struct {
	MaxAge         time.Duration
	MaxPINAttempts int
	PriceMode      money.PriceMode
}

// VerifyPrompt is what the PIN page shows.
type VerifyPrompt struct {
	MemberNumber   string
	RestaurantName string
	TicketID       string
}

type VerifyResult struct {
	Link      *model.TicketLink
	SessionID string
}

type VerificationService interface {
	Inspect(ctx context.Context, memberNumber, token string) (*VerifyPrompt, error)
	VerifyPIN(ctx context.Context, memberNumber, token, pin string) (*VerifyResult, error)
}

type verificationService struct {
	memberRepo     repository.MemberRepository
	restaurantRepo repository.RestaurantRepository
	links          TicketLinkService
	pos            POSGateway
	codec          *verifytoken.Codec
	ledger         VerificationLedger
	sessions       *session.Manager
	config         VerificationConfig
}

func NewVerificationService(
	memberRepo repository.MemberRepository,
	restaurantRepo repository.RestaurantRepository,
	links TicketLinkService,
	pos POSGateway,
	codec *verifytoken.Codec,
	ledger VerificationLedger,
	sessions *session.Manager,
	config VerificationConfig,
) VerificationService {
	if config.MaxAge <= 0 {
		config.MaxAge = verifytoken.DefaultMaxAge
	}
	if config.MaxPINAttempts <= 0 {
		config.MaxPINAttempts = 5
	}
	return &verificationService{
		memberRepo:     memberRepo,
		restaurantRepo: restaurantRepo,
		links:          links,
		pos:            pos,
		codec:          codec,
		ledger:         ledger,
		sessions:       sessions,
		config:         config,
	}
}

// checkToken validates the token, the member it names, and that it has not
// been used yet.
func (s *verificationService) checkToken(ctx context.Context, memberNumber, token string) (*verifytoken.Claims, *model.Restaurant, error) {
	claims, err := s.codec.Validate(token, s.config.MaxAge)
	if err != nil {
		return nil, nil, ErrInvalidLink
	}
	if !strings.EqualFold(claims.Member, strings.TrimSpace(memberNumber)) {
		return nil, nil, ErrInvalidLink
	}

	burned, err := s.ledger.IsBurned(ctx, claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check token: %w", err)
	}
	if burned {
		return nil, nil, ErrInvalidLink
	}

	restaurant, err := s.restaurantRepo.FindByLocationID(claims.Location)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidLink
		}
		return nil, nil, err
	}
	return claims, restaurant, nil
}

func (s *verificationService) Inspect(ctx context.Context, memberNumber, token string) (*VerifyPrompt, error) {
	claims, restaurant, err := s.checkToken(ctx, memberNumber, token)
	if err != nil {
		return nil, err
	}
	return &VerifyPrompt{
		MemberNumber:   claims.Member,
		RestaurantName: restaurant.Name,
		TicketID:       claims.Ticket,
	}, nil
}

// VerifyPIN checks the PIN for a verification token and, on success, opens
// the ticket link, burns the token and starts a member session.
func (s *verificationService) VerifyPIN(ctx context.Context, memberNumber, token, pin string) (*VerifyResult, error) {
	claims, restaurant, err := s.checkToken(ctx, memberNumber, token)
	if err != nil {
		return nil, err
	}
	log := logger.WithContext(map[string]interface{}{
		"member_number": claims.Member,
		"ticket_id":     claims.Ticket,
	})

	attempts, err := s.ledger.Attempts(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read attempts: %w", err)
	}
	if attempts >= int64(s.config.MaxPINAttempts) {
		return nil, ErrTooManyAttempts
	}

	member, err := s.memberRepo.FindByNumber(claims.Member)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidLink
		}
		return nil, err
	}

	if !util.ValidPIN(pin) || !util.VerifyPIN(member.Customer.PINHash, pin) {
		n, err := s.ledger.IncrAttempts(ctx, claims.ID, s.config.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to record attempt: %w", err)
		}
		log.Warn("Incorrect PIN", map[string]interface{}{
			"attempts": n,
		})
		if n >= int64(s.config.MaxPINAttempts) {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidPIN
	}

	ticket, err := s.pos.GetTicket(ctx, restaurant.OmnivoreLocationID, claims.Ticket)
	if err != nil {
		if errors.Is(err, omnivore.ErrNotFound) {
			return nil, ErrTicketUnavailable
		}
		log.Error("Failed to fetch ticket from POS", err)
		return nil, ErrPOSUnavailable
	}
	if !money.IsOpen(ticket) {
		return nil, ErrTicketUnavailable
	}
	items, err := s.pos.GetTicketItems(ctx, restaurant.OmnivoreLocationID, claims.Ticket)
	if err != nil {
		items = nil
	}
	totals := money.Normalize(ticket, items, s.config.PriceMode).Totals

	link, err := s.links.Open(member.ID, restaurant, claims.Ticket, OpenSnapshot{
		TicketNumber:        money.TicketNumber(ticket),
		ServerName:          money.ServerName(ticket),
		LastKnownTotalCents: totals.TotalCents,
	})
	if err != nil {
		return nil, err
	}

	// A lost race here means another request already used the token and
	// opened the same link, which is harmless.
	if _, err := s.ledger.Burn(ctx, claims.ID, s.config.MaxAge); err != nil {
		log.Error("Failed to burn verification token", err)
	}

	sessionID, err := s.sessions.Create(ctx, session.Member{
		MemberNumber: member.Number,
		CustomerID:   member.CustomerID,
	})
	if err != nil {
		log.Error("Failed to create member session", err)
		return nil, ErrSessionFailure
	}

	return &VerifyResult{Link: link, SessionID: sessionID}, nil
}
