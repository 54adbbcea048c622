// Package session stores server-side, expiring session records keyed by an
// opaque id. Each record carries exactly one typed payload.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMember         Kind = "member"
	KindCustomerSignup Kind = "customer_signup"
	KindOwnerSignup    Kind = "owner_signup"
	KindStaffAccept    Kind = "staff_accept"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrWrongKind = errors.New("session kind mismatch")
)

// Payload is implemented by every typed session body.
type Payload interface {
	SessionKind() Kind
}

// Member is a logged-in guest.
type Member struct {
	MemberNumber string `json:"member_number"`
	CustomerID   uint   `json:"customer_id"`
}

func (Member) SessionKind() Kind { return KindMember }

// CustomerSignup tracks a guest part way through signup.
type CustomerSignup struct {
	Step          string `json:"step"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PhoneVerified bool   `json:"phone_verified"`
	EmailVerified bool   `json:"email_verified"`
}

func (CustomerSignup) SessionKind() Kind { return KindCustomerSignup }

// OwnerSignup tracks a restaurant owner part way through onboarding.
type OwnerSignup struct {
	Step           string `json:"step"`
	Email          string `json:"email"`
	RestaurantName string `json:"restaurant_name"`
	LocationID     string `json:"location_id"`
}

func (OwnerSignup) SessionKind() Kind { return KindOwnerSignup }

// StaffAccept tracks acceptance of a staff, manager or owner invite.
type StaffAccept struct {
	InviteToken  string `json:"invite_token"`
	RestaurantID uint   `json:"restaurant_id"`
	Role         string `json:"role"`
	Email        string `json:"email"`
}

func (StaffAccept) SessionKind() Kind { return KindStaffAccept }

// Record is the stored envelope.
type Record struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type Store interface {
	Save(ctx context.Context, rec *Record, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// Manager creates and loads typed sessions on top of a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create stores payload under a fresh id and returns it.
func (m *Manager) Create(ctx context.Context, payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	now := m.now()
	rec := &Record{
		ID:        uuid.NewString(),
		Kind:      payload.SessionKind(),
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, rec, m.ttl); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Load decodes the session id into out, whose kind must match the record.
func (m *Manager) Load(ctx context.Context, id string, out Payload) error {
	if id == "" {
		return ErrNotFound
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.ExpiresAt.IsZero() && !m.now().Before(rec.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return ErrNotFound
	}
	if rec.Kind != out.SessionKind() {
		return ErrWrongKind
	}
	if err := json.Unmarshal(rec.Data, out); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	return nil
}

// Destroy ends a session. Unknown ids are not an error.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}
