package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"accesscontrol/internal/domain"
	"accesscontrol/internal/lib/sl"
)

const (
	inviteTokenMin        = 100000
	inviteTokenMax        = 999999
	maxTokenAllocAttempts = 5
	DefaultInviteTTL      = 24 * time.Hour
	defaultContextTimeout = 10 * time.Second
)

var inviteTokenRegexp = regexp.MustCompile(`^\d{6}$`)

type inviteService struct {
	inviteRepo     domain.InviteRepository
	siteRepo       domain.SiteRepository
	emailService   domain.EmailService
	logger         *slog.Logger
	ttl            time.Duration
	contextTimeout time.Duration
	now            func() time.Time
	generate       func() (string, error)
}

// NewInviteService creates an InviteService. emailService may be nil, in which case tokens are
// only returned to the caller.
func NewInviteService(inviteRepo domain.InviteRepository, siteRepo domain.SiteRepository, emailService domain.EmailService, logger *slog.Logger, ttl time.Duration) domain.InviteService {
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	return &inviteService{
		inviteRepo:     inviteRepo,
		siteRepo:       siteRepo,
		emailService:   emailService,
		logger:         logger.With(sl.Module("services.invite")),
		ttl:            ttl,
		contextTimeout: defaultContextTimeout,
		now:            time.Now,
		generate:       generateInviteToken,
	}
}

func (s *inviteService) GenerateInvite(ctx context.Context, email, siteID string) (*domain.InviteToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	email = strings.TrimSpace(strings.ToLower(email))
	siteID = strings.TrimSpace(siteID)
	if email == "" || siteID == "" {
		return nil, fmt.Errorf("%w: email and site_id are required", domain.ErrInvalidInput)
	}

	exists, err := s.siteRepo.Exists(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("check site: %w", err)
	}
	if !exists {
		return nil, domain.ErrSiteNotFound
	}

	inv, err := s.persistWithRetry(ctx, email, siteID)
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, inv)
	return inv, nil
}

// persistWithRetry draws fresh token values until one does not collide with a live PENDING token.
func (s *inviteService) persistWithRetry(ctx context.Context, email, siteID string) (*domain.InviteToken, error) {
	for attempt := 1; attempt <= maxTokenAllocAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate invite token: %w", err)
		}
		inv := domain.NewInviteToken(value, email, siteID, s.now(), s.ttl)
		err = s.inviteRepo.Create(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if errors.Is(err, domain.ErrTokenCollision) {
			s.logger.Debug("invite token collision, regenerating", "attempt", attempt)
			continue
		}
		if errors.Is(err, domain.ErrSiteNotFound) {
			return nil, domain.ErrSiteNotFound
		}
		return nil, fmt.Errorf("store invite token: %w", err)
	}
	return nil, domain.ErrTokenSpaceExhausted
}

// deliver sends the invite email. Delivery is best-effort: the token is already persisted and
// is returned to the issuer either way.
func (s *inviteService) deliver(ctx context.Context, inv *domain.InviteToken) {
	if s.emailService == nil {
		return
	}
	data := &domain.InviteEmailData{
		Email:          inv.Email,
		Token:          inv.Token,
		SiteID:         inv.SiteID,
		ExpiresInHours: int(s.ttl / time.Hour),
	}
	if err := s.emailService.SendInvite(ctx, data); err != nil {
		s.logger.WarnContext(ctx, "invite email not delivered",
			"email", inv.Email,
			"site_id", inv.SiteID,
			sl.Secret("token", inv.Token),
			sl.Err(err),
		)
	}
}

func (s *inviteService) ValidateInvite(ctx context.Context, token string) (*domain.InviteToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	token = strings.TrimSpace(token)
	if !inviteTokenRegexp.MatchString(token) {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	inv, err := s.inviteRepo.FindPending(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("find invite token: %w", err)
	}
	return inv, nil
}

func (s *inviteService) ListSiteInvites(ctx context.Context, siteID string, params domain.PaginationParams) ([]*domain.InviteToken, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return nil, 0, fmt.Errorf("%w: site_id is required", domain.ErrInvalidInput)
	}
	exists, err := s.siteRepo.Exists(ctx, siteID)
	if err != nil {
		return nil, 0, fmt.Errorf("check site: %w", err)
	}
	if !exists {
		return nil, 0, domain.ErrSiteNotFound
	}
	invs, total, err := s.inviteRepo.ListBySiteID(ctx, siteID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list invite tokens: %w", err)
	}
	now := s.now()
	for _, inv := range invs {
		inv.Status = inv.StatusAt(now)
	}
	return invs, total, nil
}

// generateInviteToken returns a uniformly random integer in [100000, 999999] as a string.
func generateInviteToken() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(inviteTokenMax-inviteTokenMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+inviteTokenMin, 10), nil
}
