package store

import (
	"sort"
	"sync"
	"time"

	"docvault/pkg/domain"
)

// MemoryStore keeps all records in-process. It is the default backend and
// the one tests construct directly.
type MemoryStore struct {
	mu sync.RWMutex

	users      map[int64]domain.User
	documents  map[int64]domain.Document
	activities map[int64]domain.Activity
	ingestions map[int64]domain.Ingestion

	userOrder      []int64
	documentOrder  []int64
	activityOrder  []int64
	ingestionOrder []int64

	nextUserID      int64
	nextDocumentID  int64
	nextActivityID  int64
	nextIngestionID int64

	now func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:           make(map[int64]domain.User),
		documents:       make(map[int64]domain.Document),
		activities:      make(map[int64]domain.Activity),
		ingestions:      make(map[int64]domain.Ingestion),
		nextUserID:      1,
		nextDocumentID:  1,
		nextActivityID:  1,
		nextIngestionID: 1,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// CreateUser assigns the next user id, stamps createdAt, and stores the record.
func (m *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextUserID
	m.nextUserID++
	u.CreatedAt = m.now()
	m.users[u.ID] = u
	m.userOrder = append(m.userOrder, u.ID)
	return u, nil
}

func (m *MemoryStore) GetUser(id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByUsername scans users in creation order and returns the first match.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok && u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok && u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

// UpdateUser merges non-nil fields into the stored record.
func (m *MemoryStore) UpdateUser(id int64, upd domain.UserUpdate) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	m.users[id] = u
	return u, true, nil
}

func (m *MemoryStore) DeleteUser(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	m.userOrder = removeID(m.userOrder, id)
	return true, nil
}

func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// CreateDocument assigns the next document id and stamps both timestamps.
// Starred always starts false.
func (m *MemoryStore) CreateDocument(d domain.Document) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.nextDocumentID
	m.nextDocumentID++
	now := m.now()
	d.CreatedAt = now
	d.ModifiedAt = now
	d.Starred = false
	m.documents[d.ID] = d
	m.documentOrder = append(m.documentOrder, d.ID)
	return d, nil
}

func (m *MemoryStore) GetDocument(id int64) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

func (m *MemoryStore) ListDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.documentOrder))
	for _, id := range m.documentOrder {
		if d, ok := m.documents[id]; ok {
			res = append(res, d)
		}
	}
	return res, nil
}

func (m *MemoryStore) ListDocumentsByOwner(userID int64) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.documentOrder))
	for _, id := range m.documentOrder {
		if d, ok := m.documents[id]; ok && d.UserID == userID {
			res = append(res, d)
		}
	}
	return res, nil
}

// UpdateDocument merges non-nil fields and restamps modifiedAt.
// The owning userId is immutable.
func (m *MemoryStore) UpdateDocument(id int64, upd domain.DocumentUpdate) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	if upd.Name != nil {
		d.Name = *upd.Name
	}
	if upd.Type != nil {
		d.Type = *upd.Type
	}
	if upd.Size != nil {
		d.Size = *upd.Size
	}
	if upd.Path != nil {
		d.Path = *upd.Path
	}
	if upd.Starred != nil {
		d.Starred = *upd.Starred
	}
	d.ModifiedAt = m.now()
	m.documents[id] = d
	return d, true, nil
}

func (m *MemoryStore) DeleteDocument(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return false, nil
	}
	delete(m.documents, id)
	m.documentOrder = removeID(m.documentOrder, id)
	return true, nil
}

// SetDocumentStarred flips only the starred flag. Unlike UpdateDocument it
// leaves modifiedAt untouched.
func (m *MemoryStore) SetDocumentStarred(id int64, starred bool) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	d.Starred = starred
	m.documents[id] = d
	return d, true, nil
}

func (m *MemoryStore) CreateActivity(a domain.Activity) (domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextActivityID
	m.nextActivityID++
	a.CreatedAt = m.now()
	m.activities[a.ID] = a
	m.activityOrder = append(m.activityOrder, a.ID)
	return a, nil
}

// ListActivities returns activities most-recent-first. Timestamp ties keep
// insertion order.
func (m *MemoryStore) ListActivities(limit int) ([]domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActivitiesLocked(limit, func(domain.Activity) bool { return true }), nil
}

func (m *MemoryStore) ListUserActivities(userID int64, limit int) ([]domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActivitiesLocked(limit, func(a domain.Activity) bool { return a.UserID == userID }), nil
}

func (m *MemoryStore) listActivitiesLocked(limit int, keep func(domain.Activity) bool) []domain.Activity {
	res := make([]domain.Activity, 0, len(m.activityOrder))
	for _, id := range m.activityOrder {
		if a, ok := m.activities[id]; ok && keep(a) {
			res = append(res, a)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res
}

// CreateIngestion stores a new ingestion; completedAt starts null.
func (m *MemoryStore) CreateIngestion(i domain.Ingestion) (domain.Ingestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i.ID = m.nextIngestionID
	m.nextIngestionID++
	i.CreatedAt = m.now()
	i.CompletedAt = nil
	m.ingestions[i.ID] = i
	m.ingestionOrder = append(m.ingestionOrder, i.ID)
	return i, nil
}

func (m *MemoryStore) GetIngestion(id int64) (domain.Ingestion, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.ingestions[id]
	return i, ok, nil
}

func (m *MemoryStore) ListIngestions() ([]domain.Ingestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Ingestion, 0, len(m.ingestionOrder))
	for _, id := range m.ingestionOrder {
		if i, ok := m.ingestions[id]; ok {
			res = append(res, i)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// SetIngestionStatus applies a forward status transition. Backward or
// repeated transitions leave the record unchanged. Terminal statuses stamp
// completedAt once. Logs are replaced only when a new value is supplied.
func (m *MemoryStore) SetIngestionStatus(id int64, status domain.IngestionStatus, logs string) (domain.Ingestion, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.ingestions[id]
	if !ok {
		return domain.Ingestion{}, false, nil
	}
	if !i.Status.CanTransitionTo(status) {
		return i, true, nil
	}
	i.Status = status
	if logs != "" {
		i.Logs = logs
	}
	if status.Terminal() && i.CompletedAt == nil {
		done := m.now()
		i.CompletedAt = &done
	}
	m.ingestions[id] = i
	return i, true, nil
}

func removeID(order []int64, id int64) []int64 {
	filtered := order[:0]
	for _, item := range order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
