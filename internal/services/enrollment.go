package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"accesscontrol/internal/domain"
	"accesscontrol/internal/lib/sl"
)

type enrollmentService struct {
	store          domain.EnrollmentStore
	invites        domain.InviteRepository
	photos         domain.PhotoStore
	syncer         domain.DeviceSyncService
	publisher      domain.EventPublisher
	logger         *slog.Logger
	contextTimeout time.Duration
	now            func() time.Time
}

// NewEnrollmentService creates the enrollment coordinator. photos may be nil when photo upload is disabled.
func NewEnrollmentService(store domain.EnrollmentStore, invites domain.InviteRepository, photos domain.PhotoStore, syncer domain.DeviceSyncService, publisher domain.EventPublisher, logger *slog.Logger, timeout time.Duration) domain.EnrollmentService {
	if timeout <= 0 {
		timeout = defaultContextTimeout
	}
	return &enrollmentService{
		store:          store,
		invites:        invites,
		photos:         photos,
		syncer:         syncer,
		publisher:      publisher,
		logger:         logger.With(sl.Module("services.enrollment")),
		contextTimeout: timeout,
		now:            time.Now,
	}
}

// CompleteEnrollment redeems token and creates the resident. Token lookup, resident insert
// and token consumption share one transaction; the conditional PENDING->USED update is what
// guarantees single use. Device sync starts after commit and is never awaited.
func (s *enrollmentService) CompleteEnrollment(ctx context.Context, token string, fields domain.ResidentFields, photo *domain.PhotoUpload) (*domain.Resident, error) {
	fields.Normalize()
	if missing := fields.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidInput, strings.Join(missing, ", "))
	}
	token = strings.TrimSpace(token)
	if !inviteTokenRegexp.MatchString(token) {
		return nil, domain.ErrInvalidOrExpiredToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if hasPhoto(photo) {
		// nothing is written to photo storage for a token that cannot be redeemed
		if err := s.checkRedeemable(ctx, token); err != nil {
			return nil, err
		}
	}
	photoRef, err := s.storePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}

	var resident *domain.Resident
	err = s.store.WithinTx(ctx, func(tx domain.EnrollmentTx) error {
		now := s.now()
		inv, err := tx.GetTokenForUpdate(ctx, token, now)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("get invite token: %w", err)
		}
		if !inv.Redeemable(now) {
			return domain.ErrInvalidOrExpiredToken
		}

		r := domain.NewResidentFromInvite(inv, fields, photoRef, now)
		if err := tx.CreateResident(ctx, r); err != nil {
			return fmt.Errorf("create resident: %w", err)
		}

		affected, err := tx.SetTokenUsed(ctx, inv.ID, now)
		if err != nil {
			return fmt.Errorf("consume invite token: %w", err)
		}
		if affected == 0 {
			// consumed by a concurrent enrollment
			return domain.ErrInvalidOrExpiredToken
		}
		resident = r
		return nil
	})
	if err != nil {
		s.discardPhoto(ctx, photoRef)
		if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			return nil, domain.ErrInvalidOrExpiredToken
		}
		s.logger.ErrorContext(ctx, "enrollment transaction failed", sl.Secret("token", token), sl.Err(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	s.logger.InfoContext(ctx, "resident enrolled", "resident_id", resident.ID, "site_id", resident.SiteID)
	s.publisher.Publish(domain.EventResidentCreated, domain.ResidentCreatedPayload{
		ResidentID: resident.ID,
		SiteID:     resident.SiteID,
	})
	s.syncer.Dispatch(resident)
	return resident, nil
}

func hasPhoto(photo *domain.PhotoUpload) bool {
	return photo != nil && len(photo.Data) > 0
}

// checkRedeemable is a read-only lookup ahead of the transaction. The transaction still
// decides; this only keeps invalid tokens from reaching photo storage.
func (s *enrollmentService) checkRedeemable(ctx context.Context, token string) error {
	if s.invites == nil {
		return nil
	}
	_, err := s.invites.FindPending(ctx, token, s.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrInvalidOrExpiredToken
	default:
		s.logger.ErrorContext(ctx, "invite lookup failed", sl.Secret("token", token), sl.Err(err))
		return fmt.Errorf("%w: find invite token: %v", domain.ErrStorageFailure, err)
	}
}

func (s *enrollmentService) storePhoto(ctx context.Context, photo *domain.PhotoUpload) (string, error) {
	if !hasPhoto(photo) {
		return "", nil
	}
	if s.photos == nil {
		return "", fmt.Errorf("%w: photo upload is not enabled", domain.ErrInvalidInput)
	}
	ref, err := s.photos.Store(ctx, photo.Data, photo.ContentType)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return "", err
		}
		return "", fmt.Errorf("%w: store photo: %v", domain.ErrStorageFailure, err)
	}
	return ref, nil
}

// discardPhoto removes a photo stored for an enrollment that did not commit.
func (s *enrollmentService) discardPhoto(ctx context.Context, ref string) {
	if ref == "" || s.photos == nil {
		return
	}
	// the request context may already be done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.photos.Delete(ctx, ref); err != nil {
		s.logger.WarnContext(ctx, "orphan photo not removed", "photo", ref, sl.Err(err))
	}
}

// Shutdown waits for in-flight device fan-outs.
func (s *enrollmentService) Shutdown(ctx context.Context) error {
	return s.syncer.Wait(ctx)
}
