package domain

import (
	"context"
	"errors"
	"time"
)

// Device is a physical access-control unit at a site.
// swagger:model Device
type Device struct {
	ID     string `json:"id"`
	SiteID string `json:"site_id"`
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	Active bool   `json:"active"`
}

// DeviceRegistry lists devices. It is owned by the CRUD layer; the core only reads it.
type DeviceRegistry interface {
	ListActiveBySite(ctx context.Context, siteID string) ([]*Device, error)
}

// CredentialPusher sends a resident's credential to one device. Errors wrap
// ErrDeviceUnreachable, ErrDeviceRejected or ErrDeviceTimeout.
type CredentialPusher interface {
	PushCredential(ctx context.Context, device *Device, resident *Resident) error
}

// SyncState is the per-device state of one enrollment's sync.
type SyncState string

const (
	SyncPending   SyncState = "PENDING"
	SyncSucceeded SyncState = "SUCCEEDED"
	SyncFailed    SyncState = "FAILED"
)

// FailureReason classifies a FAILED outcome.
type FailureReason string

const (
	FailureUnreachable FailureReason = "unreachable"
	FailureRejected    FailureReason = "rejected"
	FailureTimeout     FailureReason = "timeout"
)

// ClassifyPushError maps a push error to its failure reason. Unclassified errors count as unreachable.
func ClassifyPushError(err error) FailureReason {
	switch {
	case errors.Is(err, ErrDeviceTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrDeviceRejected):
		return FailureRejected
	default:
		return FailureUnreachable
	}
}

// SyncOutcome is the result for one (resident, device) pair.
// swagger:model SyncOutcome
type SyncOutcome struct {
	DeviceID   string        `json:"device_id"`
	State      SyncState     `json:"state"`
	Reason     FailureReason `json:"reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// SyncReport aggregates every device outcome of one enrollment.
// swagger:model SyncReport
type SyncReport struct {
	ResidentID  string                  `json:"resident_id"`
	SiteID      string                  `json:"site_id"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Devices     map[string]*SyncOutcome `json:"devices"`
	Succeeded   []string                `json:"succeeded"`
	Failed      []string                `json:"failed"`
	Error       string                  `json:"error,omitempty"`
}

// Complete reports whether every device in the snapshot reached a terminal state.
func (r *SyncReport) Complete() bool {
	return r.CompletedAt != nil
}

// DeviceSyncService propagates a committed resident to the active devices of its site.
type DeviceSyncService interface {
	// Dispatch starts the fan-out and returns immediately. The channel receives the final
	// report once and is then closed.
	Dispatch(resident *Resident) <-chan *SyncReport
	// Status returns a copy of the latest report for residentID.
	Status(residentID string) (*SyncReport, bool)
	// Wait blocks until all in-flight fan-outs have finished or ctx is done.
	Wait(ctx context.Context) error
}
