package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hmis/hmis/internal/platform/db"
)

// fakeTx satisfies pgx.Tx so batch code paths that open savepoints can run
// against the in-memory mocks.
type fakeTx struct{}

func (fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(ctx context.Context) error          { return nil }
func (fakeTx) Rollback(ctx context.Context) error        { return nil }
func (fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (fakeTx) Conn() *pgx.Conn                                               { return nil }

func txContext() context.Context {
	return context.WithValue(context.Background(), db.DBTxKey, pgx.Tx(fakeTx{}))
}

// --- device repository ---

type mockDeviceRepo struct {
	devices map[string]*Device
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[string]*Device)}
}

func (m *mockDeviceRepo) Create(ctx context.Context, d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	m.devices[d.DeviceID] = &cp
	return nil
}

func (m *mockDeviceRepo) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeviceRepo) GetByDeviceAndUser(ctx context.Context, deviceID string, userID uuid.UUID) (*Device, error) {
	d, ok := m.devices[deviceID]
	if !ok || d.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeviceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Device, error) {
	var out []*Device
	for _, d := range m.devices {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDeviceRepo) Update(ctx context.Context, d *Device) error {
	if _, ok := m.devices[d.DeviceID]; !ok {
		return pgx.ErrNoRows
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.devices[d.DeviceID] = &cp
	return nil
}

func (m *mockDeviceRepo) Delete(ctx context.Context, deviceID string) error {
	if _, ok := m.devices[deviceID]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.devices, deviceID)
	return nil
}

func (m *mockDeviceRepo) SetActive(ctx context.Context, deviceID string, active bool) error {
	d, ok := m.devices[deviceID]
	if !ok {
		return pgx.ErrNoRows
	}
	d.IsActive = active
	return nil
}

func (m *mockDeviceRepo) TouchLastSync(ctx context.Context, deviceID string, at time.Time) error {
	d, ok := m.devices[deviceID]
	if !ok {
		return pgx.ErrNoRows
	}
	d.LastSync = &at
	return nil
}

func (m *mockDeviceRepo) Statistics(ctx context.Context) (*DeviceStatistics, error) {
	stats := &DeviceStatistics{ByType: make(map[string]int), ByOS: make(map[string]int)}
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	for _, d := range m.devices {
		stats.TotalDevices++
		if d.IsActive {
			stats.ActiveDevices++
		} else {
			stats.InactiveDevices++
		}
		stats.ByType[d.DeviceType]++
		os := "unknown"
		if d.OSVersion != nil {
			os = *d.OSVersion
		}
		stats.ByOS[os]++
		if d.LastSync != nil && d.LastSync.After(cutoff) {
			stats.SyncedLast7d++
		}
	}
	return stats, nil
}

// --- record repository ---

type mockRecordRepo struct {
	records map[uuid.UUID]*OfflineSyncRecord
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[uuid.UUID]*OfflineSyncRecord)}
}

func (m *mockRecordRepo) Create(ctx context.Context, rec *OfflineSyncRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*OfflineSyncRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (m *mockRecordRepo) Update(ctx context.Context, rec *OfflineSyncRecord) error {
	if _, ok := m.records[rec.ID]; !ok {
		return pgx.ErrNoRows
	}
	rec.UpdatedAt = time.Now()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRecordRepo) byDevice(deviceID string) []*OfflineSyncRecord {
	var out []*OfflineSyncRecord
	for _, rec := range m.records {
		if rec.DeviceID == deviceID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *mockRecordRepo) ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]*OfflineSyncRecord, int, error) {
	all := m.byDevice(deviceID)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRecordRepo) ListConflicts(ctx context.Context, deviceID string) ([]*OfflineSyncRecord, error) {
	var out []*OfflineSyncRecord
	for _, rec := range m.byDevice(deviceID) {
		if rec.SyncStatus == StatusConflict {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) StatusSummary(ctx context.Context, deviceID string) ([]StatusCount, error) {
	counts := make(map[string]*StatusCount)
	for _, rec := range m.byDevice(deviceID) {
		sc, ok := counts[rec.SyncStatus]
		if !ok {
			sc = &StatusCount{SyncStatus: rec.SyncStatus}
			counts[rec.SyncStatus] = sc
		}
		sc.Count++
		if rec.SyncDate != nil && (sc.LastSyncDate == nil || rec.SyncDate.After(*sc.LastSyncDate)) {
			sc.LastSyncDate = rec.SyncDate
		}
	}
	var out []StatusCount
	for _, sc := range counts {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncStatus < out[j].SyncStatus })
	return out, nil
}

func (m *mockRecordRepo) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	n := 0
	for id, rec := range m.records {
		if rec.DeviceID == deviceID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// --- session repository ---

type mockSessionRepo struct {
	sessions map[uuid.UUID]*SyncSession
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[uuid.UUID]*SyncSession)}
}

func (m *mockSessionRepo) Create(ctx context.Context, s *SyncSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByToken(ctx context.Context, deviceID, token string) (*SyncSession, error) {
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && s.SyncToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockSessionRepo) Update(ctx context.Context, s *SyncSession) error {
	if _, ok := m.sessions[s.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) SupersedeOpen(ctx context.Context, deviceID string, at time.Time) (int, error) {
	n := 0
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && s.Status != SessionCompleted {
			s.Status = SessionCompleted
			s.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	n := 0
	for id, s := range m.sessions {
		if s.DeviceID == deviceID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- user directory ---

type mockDirectory struct {
	users map[uuid.UUID]*UserInfo
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{users: make(map[uuid.UUID]*UserInfo)}
}

func (m *mockDirectory) addUser(active bool) uuid.UUID {
	id := uuid.New()
	m.users[id] = &UserInfo{ID: id, Active: active, Role: "health_worker"}
	return id
}

func (m *mockDirectory) FindByID(ctx context.Context, id uuid.UUID) (*UserInfo, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// --- entity store ---

type storedEntity struct {
	data      map[string]interface{}
	updatedAt time.Time
	deleted   bool
}

// mockStore is an in-memory EntityStore that counts writes so tests can
// assert which resolutions touch the domain.
type mockStore struct {
	entityType string
	entities   map[string]*storedEntity
	writes     int
	failNext   error
}

func newMockStore(entityType string) *mockStore {
	return &mockStore{entityType: entityType, entities: make(map[string]*storedEntity)}
}

func (m *mockStore) EntityType() string { return m.entityType }

func (m *mockStore) checkFail() error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	return nil
}

func (m *mockStore) Create(ctx context.Context, data map[string]interface{}, createdBy string) (string, error) {
	if err := m.checkFail(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.entities[id] = &storedEntity{data: data, updatedAt: time.Now()}
	m.writes++
	return id, nil
}

func (m *mockStore) CreateWithID(ctx context.Context, id string, data map[string]interface{}, createdBy string) (string, error) {
	if err := m.checkFail(); err != nil {
		return "", err
	}
	m.entities[id] = &storedEntity{data: data, updatedAt: time.Now()}
	m.writes++
	return id, nil
}

func (m *mockStore) Update(ctx context.Context, id string, data map[string]interface{}) error {
	if err := m.checkFail(); err != nil {
		return err
	}
	e, ok := m.entities[id]
	if !ok || e.deleted {
		return ErrNotFound
	}
	e.data = data
	e.updatedAt = time.Now()
	m.writes++
	return nil
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	if err := m.checkFail(); err != nil {
		return err
	}
	if e, ok := m.entities[id]; ok {
		e.deleted = true
		e.updatedAt = time.Now()
	}
	m.writes++
	return nil
}

func (m *mockStore) UpdatedAt(ctx context.Context, id string) (time.Time, error) {
	e, ok := m.entities[id]
	if !ok || e.deleted {
		return time.Time{}, ErrNotFound
	}
	return e.updatedAt, nil
}

func (m *mockStore) ChangedSince(ctx context.Context, since time.Time) ([]ChangedRow, error) {
	var out []ChangedRow
	for id, e := range m.entities {
		if e.updatedAt.After(since) {
			row := ChangedRow{ID: id, Deleted: e.deleted, UpdatedAt: e.updatedAt}
			if !e.deleted {
				row.Data = e.data
			}
			out = append(out, row)
		}
	}
	return out, nil
}
