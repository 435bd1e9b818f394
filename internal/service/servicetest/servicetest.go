// Package servicetest provides in-memory stores and recorders for tests of
// the service layer and the handlers above it.
package servicetest

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
)

// Users is an in-memory user store enforcing unique e-mail addresses.
type Users struct {
	mu      sync.Mutex
	byID    map[string]models.User
	FailAll error
}

func NewUsers() *Users {
	return &Users{byID: map[string]models.User{}}
}

func (m *Users) FindByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return models.User{}, m.FailAll
	}
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *Users) FindByID(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return models.User{}, m.FailAll
	}
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *Users) FindByFederation(ctx context.Context, provider, providerID string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Federation != nil && u.Federation.Provider == provider && u.Federation.ProviderID == providerID {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *Users) Create(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateKey
		}
	}
	m.byID[user.ID] = user
	return nil
}

func (m *Users) Save(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	if _, ok := m.byID[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	for id, u := range m.byID {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicateKey
		}
	}
	m.byID[user.ID] = user
	return nil
}

func (m *Users) RecordLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	u, ok := m.byID[id]
	if !ok || !u.Active() {
		return repository.ErrUserNotFound
	}
	u.RecordLogin(at)
	m.byID[id] = u
	return nil
}

func (m *Users) IncrementOTPAttempts(ctx context.Context, id, codeHash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return 0, m.FailAll
	}
	u, ok := m.byID[id]
	if !ok || codeHash == "" || u.OTP.Hash != codeHash {
		return 0, repository.ErrChallengeNotFound
	}
	u.OTP.Attempts++
	m.byID[id] = u
	return u.OTP.Attempts, nil
}

func (m *Users) ConsumeChallenge(ctx context.Context, id, codeHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	u, ok := m.byID[id]
	if !ok || codeHash == "" || u.OTP.Hash != codeHash {
		return repository.ErrChallengeNotFound
	}
	u.MarkVerified(at)
	m.byID[id] = u
	return nil
}

func (m *Users) SaveFederation(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll != nil {
		return m.FailAll
	}
	u, ok := m.byID[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Federation = user.Federation
	u.Avatar = user.Avatar
	u.EmailVerified = u.EmailVerified || user.EmailVerified
	u.UpdatedAt = user.UpdatedAt
	m.byID[user.ID] = u
	return nil
}

func (m *Users) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *Users) CountAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

func (m *Users) List(ctx context.Context, filter repository.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.User
	for _, u := range m.byID {
		if filter.Query != "" && !strings.Contains(u.Email, filter.Query) && !strings.Contains(u.Name, filter.Query) {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })

	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func (m *Users) Get(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *Users) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type Sessions struct {
	mu   sync.Mutex
	rows []models.Session
}

func (m *Sessions) Create(ctx context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.UserID == session.UserID && s.TokenHash == session.TokenHash {
			return repository.ErrDuplicateKey
		}
	}
	m.rows = append(m.rows, session)
	return nil
}

func (m *Sessions) FindActiveByHash(ctx context.Context, tokenHash string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.TokenHash == tokenHash && !s.Revoked() {
			return s, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (m *Sessions) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].TokenHash == tokenHash && !m.rows[i].Revoked() {
			revoked := at
			m.rows[i].RevokedAt = &revoked
		}
	}
	return nil
}

func (m *Sessions) RevokeByID(ctx context.Context, userID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].UserID == userID && !m.rows[i].Revoked() {
			revoked := at
			m.rows[i].RevokedAt = &revoked
			return nil
		}
	}
	return repository.ErrSessionNotFound
}

func (m *Sessions) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].UserID == userID && !m.rows[i].Revoked() {
			revoked := at
			m.rows[i].RevokedAt = &revoked
			n++
		}
	}
	return n, nil
}

func (m *Sessions) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.rows {
		if s.UserID == userID && s.Active(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Sessions) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, s := range m.rows {
		if s.UserID == userID {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.rows = kept
	return n, nil
}

func (m *Sessions) All() []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Session(nil), m.rows...)
}

type SentCode struct {
	To   string
	Code string
}

// Sender records verification codes instead of mailing them.
type Sender struct {
	mu   sync.Mutex
	sent []SentCode
	Err  error
}

func (r *Sender) SendVerificationCode(ctx context.Context, to, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, SentCode{To: to, Code: code})
	return nil
}

func (r *Sender) Last() SentCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return SentCode{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *Sender) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type Assets struct {
	mu      sync.Mutex
	Deleted []string
}

func (r *Assets) DeleteAsset(ctx context.Context, publicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted = append(r.Deleted, publicID)
	return nil
}

// AvatarStore keeps uploaded objects in memory.
type AvatarStore struct {
	Objects map[string][]byte
	Types   map[string]string
	Err     error
}

func NewAvatarStore() *AvatarStore {
	return &AvatarStore{Objects: map[string][]byte{}, Types: map[string]string{}}
}

func (m *AvatarStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.Objects[key] = data
	m.Types[key] = contentType
	return nil
}

func (m *AvatarStore) URL(key string) string {
	return "https://cdn.oceanstella.test/" + key
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
