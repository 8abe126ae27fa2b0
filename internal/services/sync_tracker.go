package services

import (
	"sort"
	"sync"
	"time"

	"accesscontrol/internal/domain"
)

// reportRetention is how long completed reports stay queryable.
const reportRetention = 24 * time.Hour

// syncTracker holds the latest sync report per resident.
type syncTracker struct {
	mu      sync.Mutex
	reports map[string]*domain.SyncReport
}

func newSyncTracker() *syncTracker {
	return &syncTracker{reports: make(map[string]*domain.SyncReport)}
}

// begin registers a fan-out with every snapshot device PENDING, replacing any previous report.
func (t *syncTracker) begin(resident *domain.Resident, devices []*domain.Device, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(startedAt)
	report := &domain.SyncReport{
		ResidentID: resident.ID,
		SiteID:     resident.SiteID,
		StartedAt:  startedAt,
		Devices:    make(map[string]*domain.SyncOutcome, len(devices)),
		Succeeded:  []string{},
		Failed:     []string{},
	}
	for _, d := range devices {
		report.Devices[d.ID] = &domain.SyncOutcome{DeviceID: d.ID, State: domain.SyncPending}
	}
	t.reports[resident.ID] = report
}

// record stores a terminal outcome. It returns false when the device is unknown or already terminal.
func (t *syncTracker) record(residentID string, outcome *domain.SyncOutcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	report, ok := t.reports[residentID]
	if !ok {
		return false
	}
	current, ok := report.Devices[outcome.DeviceID]
	if !ok || current.State != domain.SyncPending {
		return false
	}
	cp := *outcome
	report.Devices[outcome.DeviceID] = &cp
	return true
}

// complete stamps the report and derives the sorted succeeded/failed sets.
func (t *syncTracker) complete(residentID string, at time.Time, errMsg string) *domain.SyncReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report, ok := t.reports[residentID]
	if !ok {
		return &domain.SyncReport{ResidentID: residentID, Succeeded: []string{}, Failed: []string{}, Error: errMsg}
	}
	succeeded := make([]string, 0, len(report.Devices))
	failed := make([]string, 0, len(report.Devices))
	for id, o := range report.Devices {
		switch o.State {
		case domain.SyncSucceeded:
			succeeded = append(succeeded, id)
		case domain.SyncPending:
			// never answered
			o.State = domain.SyncFailed
			o.Reason = domain.FailureTimeout
			failed = append(failed, id)
		default:
			failed = append(failed, id)
		}
	}
	sort.Strings(succeeded)
	sort.Strings(failed)
	report.Succeeded = succeeded
	report.Failed = failed
	report.Error = errMsg
	completedAt := at
	report.CompletedAt = &completedAt
	return copyReport(report)
}

func (t *syncTracker) get(residentID string) (*domain.SyncReport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	report, ok := t.reports[residentID]
	if !ok {
		return nil, false
	}
	return copyReport(report), true
}

func (t *syncTracker) pruneLocked(now time.Time) {
	for id, r := range t.reports {
		if r.CompletedAt != nil && now.Sub(*r.CompletedAt) > reportRetention {
			delete(t.reports, id)
		}
	}
}

func copyReport(r *domain.SyncReport) *domain.SyncReport {
	cp := *r
	cp.Devices = make(map[string]*domain.SyncOutcome, len(r.Devices))
	for id, o := range r.Devices {
		oc := *o
		cp.Devices[id] = &oc
	}
	cp.Succeeded = append([]string{}, r.Succeeded...)
	cp.Failed = append([]string{}, r.Failed...)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
