package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"accesscontrol/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memDB is an in-memory stand-in for the relational store. It implements the invite
// repository, the site lookup and the enrollment transaction with a conditional
// PENDING->USED update, which is all the single-use guarantee relies on.
type memDB struct {
	mu        sync.Mutex
	sites     map[string]bool
	tokens    map[string]*domain.InviteToken
	residents map[string]*domain.Resident
	seq       int

	forcedCollisions  int
	createCalls       int
	existsErr         error
	findErr           error
	beginErr          error
	commitErr         error
	createResidentErr error
	afterGet          func()
}

func newMemDB(sites ...string) *memDB {
	db := &memDB{
		sites:     make(map[string]bool),
		tokens:    make(map[string]*domain.InviteToken),
		residents: make(map[string]*domain.Resident),
	}
	for _, s := range sites {
		db.sites[s] = true
	}
	return db
}

func (m *memDB) nextIDLocked(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memDB) Exists(ctx context.Context, siteID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sites[siteID], nil
}

func (m *memDB) Create(ctx context.Context, inv *domain.InviteToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.forcedCollisions > 0 {
		m.forcedCollisions--
		return domain.ErrTokenCollision
	}
	if !m.sites[inv.SiteID] {
		return domain.ErrSiteNotFound
	}
	for _, existing := range m.tokens {
		if existing.Token != inv.Token || existing.Status != domain.InviteStatusPending {
			continue
		}
		if existing.ExpiresAt.After(inv.CreatedAt) {
			return domain.ErrTokenCollision
		}
		existing.Status = domain.InviteStatusExpired
	}
	inv.ID = m.nextIDLocked("invite")
	cp := *inv
	m.tokens[inv.ID] = &cp
	return nil
}

func (m *memDB) FindPending(ctx context.Context, token string, now time.Time) (*domain.InviteToken, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findPendingLocked(token, now)
}

func (m *memDB) findPendingLocked(token string, now time.Time) (*domain.InviteToken, error) {
	for _, t := range m.tokens {
		if t.Token == token && t.Status == domain.InviteStatusPending && t.ExpiresAt.After(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDB) ListBySiteID(ctx context.Context, siteID string, params domain.PaginationParams) ([]*domain.InviteToken, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.InviteToken
	for _, t := range m.tokens {
		if t.SiteID == siteID {
			cp := *t
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := params.Offset()
	if start > total {
		start = total
	}
	end := start + params.Limit()
	if params.Limit() == 0 || end > total {
		end = total
	}
	return all[start:end], total, nil
}

// put inserts a token directly, bypassing collision handling.
func (m *memDB) put(inv *domain.InviteToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == "" {
		inv.ID = m.nextIDLocked("invite")
	}
	cp := *inv
	m.tokens[inv.ID] = &cp
}

func (m *memDB) token(value string) *domain.InviteToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == value {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (m *memDB) residentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.residents)
}

func (m *memDB) WithinTx(ctx context.Context, fn func(tx domain.EnrollmentTx) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	tx := &memTx{db: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if m.commitErr != nil {
		tx.rollback()
		return m.commitErr
	}
	tx.commit()
	return nil
}

type memTx struct {
	db        *memDB
	residents []*domain.Resident
	consumed  []string
}

func (tx *memTx) GetTokenForUpdate(ctx context.Context, token string, now time.Time) (*domain.InviteToken, error) {
	tx.db.mu.Lock()
	inv, err := tx.db.findPendingLocked(token, now)
	tx.db.mu.Unlock()
	if tx.db.afterGet != nil {
		tx.db.afterGet()
	}
	return inv, err
}

func (tx *memTx) CreateResident(ctx context.Context, r *domain.Resident) error {
	if tx.db.createResidentErr != nil {
		return tx.db.createResidentErr
	}
	tx.db.mu.Lock()
	r.ID = tx.db.nextIDLocked("resident")
	tx.db.mu.Unlock()
	tx.residents = append(tx.residents, r)
	return nil
}

func (tx *memTx) SetTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) (int64, error) {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	t, ok := tx.db.tokens[tokenID]
	if !ok || t.Status != domain.InviteStatusPending {
		return 0, nil
	}
	t.Status = domain.InviteStatusUsed
	at := usedAt
	t.UsedAt = &at
	tx.consumed = append(tx.consumed, tokenID)
	return 1, nil
}

func (tx *memTx) rollback() {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for _, id := range tx.consumed {
		if t, ok := tx.db.tokens[id]; ok {
			t.Status = domain.InviteStatusPending
			t.UsedAt = nil
		}
	}
}

func (tx *memTx) commit() {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for _, r := range tx.residents {
		cp := *r
		tx.db.residents[r.ID] = &cp
	}
}

// fakeEmailService implements domain.EmailService for tests.
type fakeEmailService struct {
	mu   sync.Mutex
	sent []*domain.InviteEmailData
	err  error
}

func (f *fakeEmailService) SendInvite(ctx context.Context, data *domain.InviteEmailData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return f.err
}

// recordedEvent is one Publish call.
type recordedEvent struct {
	Type    domain.EventType
	Payload any
}

// recordingPublisher implements domain.EventPublisher and keeps every event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(eventType domain.EventType, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Payload: payload})
}

func (p *recordingPublisher) snapshot() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

func (p *recordingPublisher) ofType(eventType domain.EventType) []recordedEvent {
	var out []recordedEvent
	for _, e := range p.snapshot() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeRegistry implements domain.DeviceRegistry for tests.
type fakeRegistry struct {
	mu      sync.Mutex
	devices map[string][]*domain.Device
	err     error
	calls   int
}

func newFakeRegistry(siteID string, devices ...*domain.Device) *fakeRegistry {
	return &fakeRegistry{devices: map[string][]*domain.Device{siteID: devices}}
}

func (f *fakeRegistry) ListActiveBySite(ctx context.Context, siteID string) ([]*domain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]*domain.Device(nil), f.devices[siteID]...), nil
}

func (f *fakeRegistry) add(siteID string, d *domain.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[siteID] = append(f.devices[siteID], d)
}

// scriptedPusher implements domain.CredentialPusher with a behaviour per device ID.
// Devices without a script succeed.
type scriptedPusher struct {
	mu      sync.Mutex
	scripts map[string]func(ctx context.Context) error
	calls   map[string]int
}

func newScriptedPusher() *scriptedPusher {
	return &scriptedPusher{
		scripts: make(map[string]func(ctx context.Context) error),
		calls:   make(map[string]int),
	}
}

func (p *scriptedPusher) on(deviceID string, fn func(ctx context.Context) error) *scriptedPusher {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[deviceID] = fn
	return p
}

func (p *scriptedPusher) PushCredential(ctx context.Context, device *domain.Device, resident *domain.Resident) error {
	p.mu.Lock()
	p.calls[device.ID]++
	fn := p.scripts[device.ID]
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (p *scriptedPusher) callCount(deviceID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[deviceID]
}

func device(id, siteID string) *domain.Device {
	return &domain.Device{ID: id, SiteID: siteID, Name: "Door " + id, IP: "10.0.0.1", Port: 80, Active: true}
}

func unreachable(ctx context.Context) error {
	return fmt.Errorf("%w: connection refused", domain.ErrDeviceUnreachable)
}

// blockForever ignores ctx and only returns once release is closed.
func blockForever(release <-chan struct{}) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		<-release
		return nil
	}
}

func awaitReport(t *testing.T, ch <-chan *domain.SyncReport) *domain.SyncReport {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "report channel closed without a report")
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync report")
		return nil
	}
}

var errBoom = errors.New("boom")
