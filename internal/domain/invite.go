package domain

import (
	"context"
	"time"
)

// InviteStatus is the lifecycle state of an invite token.
type InviteStatus string

const (
	InviteStatusPending InviteStatus = "PENDING"
	InviteStatusUsed    InviteStatus = "USED"
	InviteStatusExpired InviteStatus = "EXPIRED"
)

// InviteToken is a single-use numeric credential that authorizes one enrollment of Email into SiteID.
// swagger:model InviteToken
type InviteToken struct {
	ID        string       `json:"id"`
	Token     string       `json:"token"`
	Email     string       `json:"email"`
	SiteID    string       `json:"site_id"`
	Status    InviteStatus `json:"status"`
	ExpiresAt time.Time    `json:"expires_at"`
	CreatedAt time.Time    `json:"created_at"`
	UsedAt    *time.Time   `json:"used_at,omitempty"`
}

// NewInviteToken returns a PENDING token expiring ttl after createdAt.
func NewInviteToken(token, email, siteID string, createdAt time.Time, ttl time.Duration) *InviteToken {
	return &InviteToken{
		Token:     token,
		Email:     email,
		SiteID:    siteID,
		Status:    InviteStatusPending,
		ExpiresAt: createdAt.Add(ttl),
		CreatedAt: createdAt,
	}
}

// StatusAt reports the effective status at now. A PENDING token past its expiry is EXPIRED
// even when the stored row still says PENDING.
func (t *InviteToken) StatusAt(now time.Time) InviteStatus {
	if t.Status == InviteStatusPending && !now.Before(t.ExpiresAt) {
		return InviteStatusExpired
	}
	return t.Status
}

// Redeemable reports whether the token may still be consumed at now.
func (t *InviteToken) Redeemable(now time.Time) bool {
	return t.StatusAt(now) == InviteStatusPending
}

// InviteRepository defines storage for invite tokens.
type InviteRepository interface {
	// Create persists a new PENDING token. Stale PENDING rows with the same value are marked
	// EXPIRED first; a live PENDING row with the same value yields ErrTokenCollision.
	Create(ctx context.Context, inv *InviteToken) error
	// FindPending returns the token with status PENDING and expires_at > now, or ErrNotFound.
	FindPending(ctx context.Context, token string, now time.Time) (*InviteToken, error)
	ListBySiteID(ctx context.Context, siteID string, params PaginationParams) ([]*InviteToken, int, error)
}

// SiteRepository answers existence questions about sites owned by the CRUD layer.
type SiteRepository interface {
	Exists(ctx context.Context, siteID string) (bool, error)
}

// InviteService issues and validates invite tokens.
type InviteService interface {
	GenerateInvite(ctx context.Context, email, siteID string) (*InviteToken, error)
	ValidateInvite(ctx context.Context, token string) (*InviteToken, error)
	ListSiteInvites(ctx context.Context, siteID string, params PaginationParams) ([]*InviteToken, int, error)
}
