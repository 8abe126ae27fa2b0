package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"accesscontrol/internal/domain"
	"accesscontrol/internal/lib/sl"
)

// DefaultDeviceSyncTimeout bounds a single credential push.
const DefaultDeviceSyncTimeout = 5 * time.Second

type deviceSyncService struct {
	registry    domain.DeviceRegistry
	pusher      domain.CredentialPusher
	publisher   domain.EventPublisher
	logger      *slog.Logger
	timeout     time.Duration
	maxParallel int
	now         func() time.Time
	tracker     *syncTracker
	inflight    sync.WaitGroup
}

// NewDeviceSyncService creates the device fan-out. timeout applies to each device separately;
// maxParallel caps concurrent pushes per fan-out, 0 means one goroutine per device.
func NewDeviceSyncService(registry domain.DeviceRegistry, pusher domain.CredentialPusher, publisher domain.EventPublisher, logger *slog.Logger, timeout time.Duration, maxParallel int) domain.DeviceSyncService {
	if timeout <= 0 {
		timeout = DefaultDeviceSyncTimeout
	}
	return &deviceSyncService{
		registry:    registry,
		pusher:      pusher,
		publisher:   publisher,
		logger:      logger.With(sl.Module("services.device_sync")),
		timeout:     timeout,
		maxParallel: maxParallel,
		now:         time.Now,
		tracker:     newSyncTracker(),
	}
}

// Dispatch starts the fan-out for a committed resident and returns without waiting.
// The fan-out is not tied to any request context and always runs to completion.
func (s *deviceSyncService) Dispatch(resident *domain.Resident) <-chan *domain.SyncReport {
	done := make(chan *domain.SyncReport, 1)
	snapshot := *resident
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		done <- s.run(&snapshot)
	}()
	return done
}

func (s *deviceSyncService) run(resident *domain.Resident) *domain.SyncReport {
	ctx := context.Background()
	log := s.logger.With("resident_id", resident.ID, "site_id", resident.SiteID)
	started := s.now()

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	devices, err := s.registry.ListActiveBySite(listCtx, resident.SiteID)
	cancel()
	if err != nil {
		log.Error("device sync aborted: list devices", sl.Err(err))
		s.tracker.begin(resident, nil, started)
		return s.finish(resident, fmt.Sprintf("list devices: %v", err))
	}

	devices = uniqueDevices(devices)
	s.tracker.begin(resident, devices, started)
	log.Info("device sync started", "devices", len(devices))

	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for _, device := range devices {
		g.Go(func() error {
			outcome := s.pushOne(ctx, device, resident)
			if !s.tracker.record(resident.ID, outcome) {
				return nil
			}
			if outcome.State == domain.SyncFailed {
				log.Warn("device sync failed",
					"device_id", device.ID,
					"reason", outcome.Reason,
					"detail", outcome.Detail,
				)
			}
			s.publisher.Publish(domain.EventDeviceSyncOutcome, domain.DeviceSyncOutcomePayload{
				ResidentID: resident.ID,
				DeviceID:   device.ID,
				Outcome:    outcome.State,
				Reason:     outcome.Reason,
			})
			return nil
		})
	}
	// tasks record failures as outcomes and always return nil
	g.Wait()

	report := s.finish(resident, "")
	log.Info("device sync complete",
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return report
}

// finish closes the report and publishes the summary event exactly once per fan-out.
func (s *deviceSyncService) finish(resident *domain.Resident, errMsg string) *domain.SyncReport {
	report := s.tracker.complete(resident.ID, s.now(), errMsg)
	s.publisher.Publish(domain.EventDeviceSyncComplete, domain.DeviceSyncCompletePayload{
		ResidentID: resident.ID,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
	})
	return report
}

// pushOne runs a single push under its own deadline. The deadline is enforced here as well,
// so a collaborator that ignores ctx still yields a timeout outcome.
func (s *deviceSyncService) pushOne(ctx context.Context, device *domain.Device, resident *domain.Resident) *domain.SyncOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("%w: push panicked: %v", domain.ErrDeviceUnreachable, p)
			}
		}()
		errc <- s.pusher.PushCredential(ctx, device, resident)
	}()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = fmt.Errorf("%w: no response within %s", domain.ErrDeviceTimeout, s.timeout)
	}

	finished := s.now()
	outcome := &domain.SyncOutcome{DeviceID: device.ID, FinishedAt: &finished}
	if err == nil {
		outcome.State = domain.SyncSucceeded
		return outcome
	}
	outcome.State = domain.SyncFailed
	outcome.Reason = domain.ClassifyPushError(err)
	outcome.Detail = err.Error()
	return outcome
}

func (s *deviceSyncService) Status(residentID string) (*domain.SyncReport, bool) {
	return s.tracker.get(residentID)
}

func (s *deviceSyncService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// uniqueDevices drops repeated device IDs so each device gets exactly one outcome.
func uniqueDevices(devices []*domain.Device) []*domain.Device {
	seen := make(map[string]struct{}, len(devices))
	out := make([]*domain.Device, 0, len(devices))
	for _, d := range devices {
		if d == nil {
			continue
		}
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}
