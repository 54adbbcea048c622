package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/app/repository"
	"github.com/ikkim/tabline-backend/pkg/logger"
	"github.com/ikkim/tabline-backend/pkg/money"
	"github.com/ikkim/tabline-backend/pkg/pos/omnivore"
	"github.com/ikkim/tabline-backend/pkg/verifytoken"
)

var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrLastNameMismatch   = errors.New("last name does not match member")
	ErrLinkTargetRequired = errors.New("ticket_id or check_hint is required")
	ErrTicketNotFound     = errors.New("no matching open ticket")
	ErrTicketUnavailable  = errors.New("ticket is no longer open")
	ErrNoPhoneOnFile      = errors.New("member has no phone on file")
	ErrSMSFailed          = errors.New("failed to send verification sms")
	ErrPOSUnavailable     = errors.New("pos unavailable")
	ErrRestaurantNotFound = errors.New("restaurant not found")
)

type LinkRequest struct {
	RestaurantID uint
	MemberNumber string
	LastName     string
	TicketID     string
	CheckHint    string
}

// Candidate is one open ticket offered to staff for disambiguation.
type Candidate struct {
	TicketID string `json:"ticket_id"`
	Label    string `json:"label"`
}

type LinkResult struct {
	Sent         bool        `json:"sent"`
	Multiple     bool        `json:"multiple"`
	Candidates   []Candidate `json:"candidates,omitempty"`
	TicketLinkID uint        `json:"ticket_link_id,omitempty"`
}

type LinkingConfig struct {
	PublicBaseURL string
	PriceMode     money.PriceMode
}

// LinkingService lets staff attach a member to an open POS ticket without
// the member knowing the ticket id.
type LinkingService interface {
	Link(ctx context.Context, req LinkRequest) (*LinkResult, error)
	Resend(ctx context.Context, restaurantID, linkID uint) (*model.TicketLink, error)
	Cancel(restaurantID, linkID uint) error
}

type linkingService struct {
	memberRepo     repository.MemberRepository
	restaurantRepo repository.RestaurantRepository
	links          TicketLinkService
	pos            POSGateway
	codec          *verifytoken.Codec
	messenger      Messenger
	config         LinkingConfig
}

func NewLinkingService(
	memberRepo repository.MemberRepository,
	restaurantRepo repository.RestaurantRepository,
	links TicketLinkService,
	pos POSGateway,
	codec *verifytoken.Codec,
	messenger Messenger,
	config LinkingConfig,
) LinkingService {
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")
	return &linkingService{
		memberRepo:     memberRepo,
		restaurantRepo: restaurantRepo,
		links:          links,
		pos:            pos,
		codec:          codec,
		messenger:      messenger,
		config:         config,
	}
}

func (s *linkingService) Link(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	log := logger.WithContext(map[string]interface{}{
		"restaurant_id": req.RestaurantID,
		"member_number": req.MemberNumber,
	})

	ticketID := strings.TrimSpace(req.TicketID)
	hint := strings.TrimSpace(req.CheckHint)
	if ticketID == "" && hint == "" {
		return nil, ErrLinkTargetRequired
	}

	member, err := s.memberRepo.FindByNumber(req.MemberNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	if lastName := strings.TrimSpace(req.LastName); lastName != "" && !strings.EqualFold(lastName, member.LastName) {
		log.Warn("Link rejected: last name mismatch")
		return nil, ErrLastNameMismatch
	}

	restaurant, err := s.restaurant(req.RestaurantID)
	if err != nil {
		return nil, err
	}

	var ticket omnivore.Ticket
	if ticketID != "" {
		ticket, err = s.pos.GetTicket(ctx, restaurant.OmnivoreLocationID, ticketID)
		if err != nil {
			if errors.Is(err, omnivore.ErrNotFound) {
				return nil, ErrTicketNotFound
			}
			log.Error("Failed to fetch ticket from POS", err, map[string]interface{}{
				"ticket_id": ticketID,
			})
			return nil, ErrPOSUnavailable
		}
		if !money.IsOpen(ticket) {
			return nil, ErrTicketUnavailable
		}
	} else {
		candidates, err := s.matchTickets(ctx, restaurant.OmnivoreLocationID, hint)
		if err != nil {
			log.Error("Failed to list open tickets from POS", err)
			return nil, ErrPOSUnavailable
		}
		switch len(candidates) {
		case 0:
			return nil, ErrTicketNotFound
		case 1:
			ticket = candidates[0]
		default:
			result := &LinkResult{Multiple: true}
			for _, t := range candidates {
				result.Candidates = append(result.Candidates, Candidate{
					TicketID: money.TicketID(t),
					Label:    s.label(t),
				})
			}
			log.Info("Multiple tickets match hint", map[string]interface{}{
				"hint":  hint,
				"count": len(candidates),
			})
			return result, nil
		}
	}

	link, err := s.sendVerification(ctx, member, restaurant, money.TicketID(ticket), money.TicketNumber(ticket))
	if err != nil {
		return nil, err
	}

	log.Info("Verification link sent", map[string]interface{}{
		"ticket_link_id": link.ID,
		"ticket_id":      link.TicketID,
	})
	return &LinkResult{Sent: true, TicketLinkID: link.ID}, nil
}

// Resend issues a fresh token for a pending link and texts it again.
func (s *linkingService) Resend(ctx context.Context, restaurantID, linkID uint) (*model.TicketLink, error) {
	link, err := s.links.GetForRestaurant(restaurantID, linkID)
	if err != nil {
		return nil, err
	}
	if link.Status != model.TicketLinkPending {
		return nil, ErrLinkNotPending
	}
	if link.Member == nil || link.Restaurant == nil {
		return nil, fmt.Errorf("ticket link %d is missing member or restaurant", link.ID)
	}
	return s.sendVerification(ctx, link.Member, link.Restaurant, link.TicketID, link.TicketNumber)
}

func (s *linkingService) Cancel(restaurantID, linkID uint) error {
	return s.links.Cancel(restaurantID, linkID)
}

// sendVerification texts the verification URL and records the pending link.
func (s *linkingService) sendVerification(ctx context.Context, member *model.Member, restaurant *model.Restaurant, ticketID, ticketNumber string) (*model.TicketLink, error) {
	phone := strings.TrimSpace(member.Customer.Phone)
	if phone == "" {
		return nil, ErrNoPhoneOnFile
	}

	token, err := s.codec.Issue(member.Number, restaurant.OmnivoreLocationID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification token: %w", err)
	}

	body := fmt.Sprintf("%s: confirm your tab (check #%s) at %s",
		restaurant.Name, ticketNumber, s.VerifyURL(member.Number, token))
	result := s.messenger.Send(ctx, phone, body)
	if !result.OK {
		logger.Warn("Verification SMS failed", map[string]interface{}{
			"member_number": member.Number,
			"error":         result.Error,
		})
		return nil, ErrSMSFailed
	}

	return s.links.CreatePending(member.ID, restaurant, ticketID, ticketNumber, result.ID)
}

// VerifyURL builds <base>/verify/<member>?t=<token>.
func (s *linkingService) VerifyURL(memberNumber, token string) string {
	return s.config.PublicBaseURL + "/verify/" + url.PathEscape(memberNumber) + "?t=" + url.QueryEscape(token)
}

func (s *linkingService) matchTickets(ctx context.Context, locationID, hint string) ([]omnivore.Ticket, error) {
	tickets, err := s.pos.ListOpenTickets(ctx, locationID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(hint)
	var matches []omnivore.Ticket
	for _, t := range tickets {
		if strings.Contains(money.MatchString(t), needle) {
			matches = append(matches, t)
		}
	}
	return matches, nil
}

// label renders "#<number> · <server> · $<due>".
func (s *linkingService) label(ticket omnivore.Ticket) string {
	due := money.Normalize(ticket, nil, s.config.PriceMode).Totals.DueCents
	server := money.ServerName(ticket)
	if server == "" {
		server = "-"
	}
	return fmt.Sprintf("#%s · %s · $%s", money.TicketNumber(ticket), server, money.FormatDollars(due))
}

func (s *linkingService) restaurant(id uint) (*model.Restaurant, error) {
	restaurant, err := s.restaurantRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("failed to load restaurant: %w", err)
	}
	return restaurant, nil
}
