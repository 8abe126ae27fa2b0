package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accesscontrol/internal/domain"
)

type enrollmentFixture struct {
	db        *memDB
	registry  *fakeRegistry
	pusher    *scriptedPusher
	publisher *recordingPublisher
	syncer    *deviceSyncService
	invites   *inviteService
	svc       *enrollmentService
	clock     *atomic.Pointer[time.Time]
}

func newEnrollmentFixture(t *testing.T, devices ...*domain.Device) *enrollmentFixture {
	t.Helper()
	f := &enrollmentFixture{
		db:        newMemDB("S1"),
		registry:  newFakeRegistry("S1", devices...),
		pusher:    newScriptedPusher(),
		publisher: &recordingPublisher{},
		clock:     &atomic.Pointer[time.Time]{},
	}
	start := fixedNow
	f.clock.Store(&start)
	now := func() time.Time { return *f.clock.Load() }

	f.syncer = NewDeviceSyncService(f.registry, f.pusher, f.publisher, discardLogger(), 300*time.Millisecond, 0).(*deviceSyncService)
	f.invites = newTestInviteService(f.db, nil)
	f.invites.now = now
	f.svc = NewEnrollmentService(f.db, f.db, nil, f.syncer, f.publisher, discardLogger(), 0).(*enrollmentService)
	f.svc.now = now
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.syncer.Wait(ctx)
	})
	return f
}

func (f *enrollmentFixture) advance(d time.Duration) {
	next := f.clock.Load().Add(d)
	f.clock.Store(&next)
}

func (f *enrollmentFixture) issue(t *testing.T, email string) *domain.InviteToken {
	t.Helper()
	inv, err := f.invites.GenerateInvite(context.Background(), email, "S1")
	require.NoError(t, err)
	return inv
}

func (f *enrollmentFixture) waitSyncComplete(t *testing.T, residentID string) *domain.SyncReport {
	t.Helper()
	var report *domain.SyncReport
	require.Eventually(t, func() bool {
		r, ok := f.syncer.Status(residentID)
		if !ok || !r.Complete() {
			return false
		}
		report = r
		return true
	}, 5*time.Second, 5*time.Millisecond)
	return report
}

var aliceFields = domain.ResidentFields{Name: "Alice", Document: "123", Phone: "555"}

func TestEnrollmentService_IssueVerifyEnrollAndReject(t *testing.T) {
	ctx := context.Background()
	f := newEnrollmentFixture(t, device("D1", "S1"))

	inv := f.issue(t, "alice@example.com")

	verified, err := f.invites.ValidateInvite(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", verified.Email)
	assert.Equal(t, "S1", verified.SiteID)

	resident, err := f.svc.CompleteEnrollment(ctx, inv.Token, aliceFields, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resident.ID)
	assert.Equal(t, "alice@example.com", resident.Email)
	assert.Equal(t, "S1", resident.SiteID)
	assert.Equal(t, domain.ResidentTypeResident, resident.Type)
	assert.True(t, resident.Active)

	_, err = f.svc.CompleteEnrollment(ctx, inv.Token, aliceFields, nil)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	stored := f.db.token(inv.Token)
	require.NotNil(t, stored)
	assert.Equal(t, domain.InviteStatusUsed, stored.Status)
	require.NotNil(t, stored.UsedAt)
	assert.Equal(t, 1, f.db.residentCount())

	_, err = f.invites.ValidateInvite(ctx, inv.Token)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	report := f.waitSyncComplete(t, resident.ID)
	assert.Equal(t, []string{"D1"}, report.Succeeded)
	assert.Empty(t, report.Failed)
}

func TestEnrollmentService_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	const attempts = 16
	f := newEnrollmentFixture(t)
	inv := f.issue(t, "alice@example.com")

	// Every attempt reads the token before any of them consumes it, so the
	// conditional update is the only thing standing between them.
	var arrived sync.WaitGroup
	arrived.Add(attempts)
	f.db.afterGet = func() {
		arrived.Done()
		arrived.Wait()
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
		other     atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrInvalidOrExpiredToken):
				rejected.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(attempts-1), rejected.Load())
	assert.Equal(t, int32(0), other.Load())
	assert.Equal(t, 1, f.db.residentCount())
	assert.Len(t, f.publisher.ofType(domain.EventResidentCreated), 1)
}

func TestEnrollmentService_ExpiredToken(t *testing.T) {
	f := newEnrollmentFixture(t)
	inv := f.issue(t, "alice@example.com")

	f.advance(24*time.Hour + time.Second)

	_, err := f.invites.ValidateInvite(context.Background(), inv.Token)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	_, err = f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)

	stored := f.db.token(inv.Token)
	assert.Equal(t, domain.InviteStatusPending, stored.Status)
	assert.Equal(t, domain.InviteStatusExpired, stored.StatusAt(*f.clock.Load()))
	assert.Equal(t, 0, f.db.residentCount())
}

func TestEnrollmentService_LastSecondBeforeExpiry(t *testing.T) {
	f := newEnrollmentFixture(t)
	inv := f.issue(t, "alice@example.com")

	f.advance(24*time.Hour - time.Second)

	_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
	require.NoError(t, err)
}

func TestEnrollmentService_EmailComesFromToken(t *testing.T) {
	f := newEnrollmentFixture(t)
	inv := f.issue(t, "alice@example.com")

	// ResidentFields has no email field; whatever the client believes its address is,
	// the resident is bound to the invited email.
	resident, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, domain.ResidentFields{
		Name:     "Mallory",
		Document: "999",
		Phone:    "mallory@evil.example",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, inv.Email, resident.Email)
	assert.Equal(t, inv.SiteID, resident.SiteID)
}

func TestEnrollmentService_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		fields domain.ResidentFields
	}{
		{"missing name", domain.ResidentFields{Document: "123", Phone: "555"}},
		{"missing document", domain.ResidentFields{Name: "Alice", Phone: "555"}},
		{"blank phone", domain.ResidentFields{Name: "Alice", Document: "123", Phone: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			inv := f.issue(t, "alice@example.com")
			f.db.beginErr = errors.New("store must not be touched")

			_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, tt.fields, nil)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, domain.InviteStatusPending, f.db.token(inv.Token).Status)
		})
	}
}

func TestEnrollmentService_StorageFailureLeavesTokenPending(t *testing.T) {
	tests := []struct {
		name  string
		setup func(db *memDB)
	}{
		{"begin fails", func(db *memDB) { db.beginErr = errBoom }},
		{"insert fails", func(db *memDB) { db.createResidentErr = errBoom }},
		{"commit fails", func(db *memDB) { db.commitErr = errBoom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEnrollmentFixture(t, device("D1", "S1"))
			inv := f.issue(t, "alice@example.com")
			tt.setup(f.db)

			_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
			require.ErrorIs(t, err, domain.ErrStorageFailure)
			assert.Equal(t, domain.InviteStatusPending, f.db.token(inv.Token).Status)
			assert.Equal(t, 0, f.db.residentCount())
			assert.Empty(t, f.publisher.snapshot())
			assert.Equal(t, 0, f.pusher.callCount("D1"))

			// the same token works once storage recovers
			f.db.beginErr, f.db.createResidentErr, f.db.commitErr = nil, nil, nil
			_, err = f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
			require.NoError(t, err)
		})
	}
}

func TestEnrollmentService_ReturnsWhileDevicePushBlocks(t *testing.T) {
	release := make(chan struct{})
	f := newEnrollmentFixture(t, device("D1", "S1"))
	f.syncer.timeout = time.Hour
	started := make(chan struct{})
	f.pusher.on("D1", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	t.Cleanup(func() { close(release) })

	inv := f.issue(t, "alice@example.com")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("enrollment blocked on device push")
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("device push never started")
	}
	assert.Empty(t, f.publisher.ofType(domain.EventDeviceSyncOutcome))
}

func TestEnrollmentService_SlowAndSilentDevices(t *testing.T) {
	f := newEnrollmentFixture(t, device("D1", "S1"), device("D2", "S1"))
	d1Release := make(chan struct{})
	d2Release := make(chan struct{})
	t.Cleanup(func() { close(d2Release) })
	var d1Done atomic.Bool
	f.pusher.on("D1", func(ctx context.Context) error {
		<-d1Release
		d1Done.Store(true)
		return nil
	})
	f.pusher.on("D2", blockForever(d2Release))

	inv := f.issue(t, "alice@example.com")
	resident, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
	require.NoError(t, err)
	assert.False(t, d1Done.Load(), "enrollment waited for a device")

	close(d1Release)
	report := f.waitSyncComplete(t, resident.ID)
	assert.Equal(t, []string{"D1"}, report.Succeeded)
	assert.Equal(t, []string{"D2"}, report.Failed)
	assert.Equal(t, domain.FailureTimeout, report.Devices["D2"].Reason)

	complete := f.publisher.ofType(domain.EventDeviceSyncComplete)
	require.Len(t, complete, 1)
	payload := complete[0].Payload.(domain.DeviceSyncCompletePayload)
	assert.Equal(t, resident.ID, payload.ResidentID)
	assert.Equal(t, []string{"D1"}, payload.Succeeded)
	assert.Equal(t, []string{"D2"}, payload.Failed)
}

func TestEnrollmentService_ResidentCreatedPublishedFirst(t *testing.T) {
	f := newEnrollmentFixture(t, device("D1", "S1"), device("D2", "S1"), device("D3", "S1"))
	f.pusher.on("D2", unreachable)

	inv := f.issue(t, "alice@example.com")
	resident, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
	require.NoError(t, err)
	f.waitSyncComplete(t, resident.ID)

	require.Eventually(t, func() bool {
		return len(f.publisher.ofType(domain.EventDeviceSyncComplete)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	events := f.publisher.snapshot()
	require.Len(t, events, 5)
	assert.Equal(t, domain.EventResidentCreated, events[0].Type)
	created := events[0].Payload.(domain.ResidentCreatedPayload)
	assert.Equal(t, resident.ID, created.ResidentID)
	assert.Equal(t, "S1", created.SiteID)
	for _, e := range events[1:4] {
		assert.Equal(t, domain.EventDeviceSyncOutcome, e.Type)
	}
	assert.Equal(t, domain.EventDeviceSyncComplete, events[4].Type)
}

func TestEnrollmentService_MalformedTokenSkipsStore(t *testing.T) {
	f := newEnrollmentFixture(t)
	f.db.beginErr = errors.New("store must not be touched")

	_, err := f.svc.CompleteEnrollment(context.Background(), "12ab56", aliceFields, nil)
	require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
}

// fakePhotoStore implements domain.PhotoStore for tests. With ref empty it hands out
// a fresh ref per call.
type fakePhotoStore struct {
	ref string
	err error

	mu      sync.Mutex
	got     []byte
	stored  []string
	deleted []string
}

func (f *fakePhotoStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = data
	if f.err != nil {
		return "", f.err
	}
	ref := f.ref
	if ref == "" {
		ref = fmt.Sprintf("/uploads/%d.jpg", len(f.stored)+1)
	}
	f.stored = append(f.stored, ref)
	return ref, nil
}

func (f *fakePhotoStore) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakePhotoStore) counts() (stored, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored), len(f.deleted)
}

var jpegPhoto = &domain.PhotoUpload{Data: []byte{0xff, 0xd8}, ContentType: "image/jpeg"}

func TestEnrollmentService_Photo(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakePhotoStore
		noStore  bool
		wantErr  error
		wantPath string
	}{
		{name: "stored reference is kept", store: &fakePhotoStore{ref: "/uploads/abc.jpg"}, wantPath: "/uploads/abc.jpg"},
		{name: "rejected photo", store: &fakePhotoStore{err: domain.ErrInvalidInput}, wantErr: domain.ErrInvalidInput},
		{name: "photo backend down", store: &fakePhotoStore{err: errBoom}, wantErr: domain.ErrStorageFailure},
		{name: "uploads disabled", noStore: true, wantErr: domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			if tt.noStore {
				f.svc.photos = nil
			} else {
				f.svc.photos = tt.store
			}
			inv := f.issue(t, "alice@example.com")

			resident, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, &domain.PhotoUpload{Data: []byte{0xff, 0xd8}, ContentType: "image/jpeg"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.InviteStatusPending, f.db.token(inv.Token).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, resident.Photo)
		})
	}
}

func TestEnrollmentService_PhotoNotStoredForUnredeemableToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *enrollmentFixture) string
	}{
		{name: "never issued", setup: func(t *testing.T, f *enrollmentFixture) string { return "123456" }},
		{name: "expired", setup: func(t *testing.T, f *enrollmentFixture) string {
			inv := f.issue(t, "alice@example.com")
			f.advance(25 * time.Hour)
			return inv.Token
		}},
		{name: "already used", setup: func(t *testing.T, f *enrollmentFixture) string {
			inv := f.issue(t, "alice@example.com")
			_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
			require.NoError(t, err)
			return inv.Token
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEnrollmentFixture(t)
			photos := &fakePhotoStore{}
			f.svc.photos = photos
			token := tt.setup(t, f)

			_, err := f.svc.CompleteEnrollment(context.Background(), token, aliceFields, jpegPhoto)
			require.ErrorIs(t, err, domain.ErrInvalidOrExpiredToken)
			assert.Nil(t, photos.got, "photo written for a token that cannot be redeemed")
			stored, _ := photos.counts()
			assert.Equal(t, 0, stored)
		})
	}
}

func TestEnrollmentService_PhotoLookupFailure(t *testing.T) {
	f := newEnrollmentFixture(t)
	photos := &fakePhotoStore{}
	f.svc.photos = photos
	inv := f.issue(t, "alice@example.com")
	f.db.findErr = errBoom

	_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, jpegPhoto)
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Nil(t, photos.got)
	assert.Equal(t, domain.InviteStatusPending, f.db.token(inv.Token).Status)
}

func TestEnrollmentService_PhotoRemovedWhenTransactionFails(t *testing.T) {
	f := newEnrollmentFixture(t)
	photos := &fakePhotoStore{}
	f.svc.photos = photos
	inv := f.issue(t, "alice@example.com")
	f.db.commitErr = errBoom

	_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, jpegPhoto)
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Equal(t, []string{"/uploads/1.jpg"}, photos.deleted)
	assert.Equal(t, 0, f.db.residentCount())
}

func TestEnrollmentService_ConcurrentRedemptionKeepsOnlyWinnerPhoto(t *testing.T) {
	const attempts = 8
	f := newEnrollmentFixture(t)
	photos := &fakePhotoStore{}
	f.svc.photos = photos
	inv := f.issue(t, "alice@example.com")

	var arrived sync.WaitGroup
	arrived.Add(attempts)
	f.db.afterGet = func() {
		arrived.Done()
		arrived.Wait()
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner *domain.Resident
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, jpegPhoto)
			if err == nil {
				mu.Lock()
				winner = r
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, winner)
	stored, deleted := photos.counts()
	assert.Equal(t, attempts, stored)
	assert.Equal(t, attempts-1, deleted)
	assert.NotContains(t, photos.deleted, winner.Photo)
}

func TestEnrollmentService_Shutdown(t *testing.T) {
	release := make(chan struct{})
	f := newEnrollmentFixture(t, device("D1", "S1"))
	f.syncer.timeout = time.Hour
	f.pusher.on("D1", blockForever(release))

	inv := f.issue(t, "alice@example.com")
	_, err := f.svc.CompleteEnrollment(context.Background(), inv.Token, aliceFields, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.svc.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, f.svc.Shutdown(context.Background()))
}
