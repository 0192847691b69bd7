package application_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/clubsync/internal/domain/model"
	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockCredentialStore struct {
	mu     sync.Mutex
	creds  map[string]model.Credential
	writes int
	getErr error
	putErr error
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	m := &mockCredentialStore{creds: make(map[string]model.Credential)}
	for _, c := range creds {
		m.creds[c.UserID] = c
	}
	return m
}

func (m *mockCredentialStore) Get(_ context.Context, userID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.creds[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockCredentialStore) Upsert(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.writes++
	m.creds[cred.UserID] = cred
	return nil
}

func (m *mockCredentialStore) get(userID string) model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[userID]
}

func (m *mockCredentialStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type mockMemberStore struct {
	mu      sync.Mutex
	members map[string]model.Member
	listErr error
	linked  map[string]string
}

func newMockMemberStore(members ...model.Member) *mockMemberStore {
	m := &mockMemberStore{members: make(map[string]model.Member), linked: make(map[string]string)}
	for _, mem := range members {
		m.members[mem.UserID] = mem
	}
	return m
}

func (m *mockMemberStore) Get(_ context.Context, userID string) (*model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[userID]
	if !ok {
		return nil, nil
	}
	return &mem, nil
}

func (m *mockMemberStore) ListEligible(_ context.Context) ([]model.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.Member, 0, len(m.members))
	for _, mem := range m.members {
		if mem.IsActive {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *mockMemberStore) LinkAthlete(_ context.Context, userID, athleteID, athleteName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := m.members[userID]
	mem.UserID = userID
	mem.StravaAthleteID = athleteID
	mem.StravaAthleteName = athleteName
	mem.IsActive = true
	m.members[userID] = mem
	m.linked[userID] = athleteID
	return nil
}

func (m *mockMemberStore) SetMonthlyGoal(_ context.Context, userID string, goalKm *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[userID]
	if !ok {
		return driven.ErrMemberNotFound
	}
	mem.MonthlyGoalKm = goalKm
	m.members[userID] = mem
	return nil
}

type mockOAuth struct {
	mu           sync.Mutex
	refresh      func(refreshToken string) (*model.TokenBundle, error)
	exchange     func(code string) (*model.TokenBundle, error)
	refreshCalls int
}

func (m *mockOAuth) AuthCodeURL(state, redirectURI string) string {
	return "https://strava.test/authorize?state=" + state + "&redirect_uri=" + redirectURI
}

func (m *mockOAuth) ExchangeCode(_ context.Context, code, _ string) (*model.TokenBundle, error) {
	return m.exchange(code)
}

func (m *mockOAuth) Refresh(_ context.Context, refreshToken string) (*model.TokenBundle, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()
	return m.refresh(refreshToken)
}

func (m *mockOAuth) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}

// mockActivities serves pages from list, keyed by access token when byToken is set.
type mockActivities struct {
	mu       sync.Mutex
	list     func(token string, page driven.ActivityPage) ([]model.RawActivity, error)
	detail   func(id string) (*model.RawActivity, error)
	requests []driven.ActivityPage
}

func (m *mockActivities) ListActivities(_ context.Context, token string, page driven.ActivityPage) ([]model.RawActivity, error) {
	m.mu.Lock()
	m.requests = append(m.requests, page)
	m.mu.Unlock()
	return m.list(token, page)
}

func (m *mockActivities) GetActivity(_ context.Context, _, id string) (*model.RawActivity, error) {
	return m.detail(id)
}

func (m *mockActivities) pagesRequested() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := make([]int, 0, len(m.requests))
	for _, r := range m.requests {
		pages = append(pages, r.Page)
	}
	return pages
}

// memActivityStore is an in-memory driven.ActivityStore that counts writes.
type memActivityStore struct {
	mu      sync.Mutex
	rows    map[string]model.Activity
	nextID  int64
	writes  int
	readErr error
	putErr  error
}

func newMemActivityStore() *memActivityStore {
	return &memActivityStore{rows: make(map[string]model.Activity)}
}

func (s *memActivityStore) GetByExternalID(_ context.Context, provider, externalID string) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	a, ok := s.rows[provider+"/"+externalID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memActivityStore) Upsert(_ context.Context, a model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.writes++
	key := a.Provider + "/" + a.ExternalID
	if existing, ok := s.rows[key]; ok {
		a.ID = existing.ID
	} else {
		s.nextID++
		a.ID = s.nextID
	}
	s.rows[key] = a
	return nil
}

func (s *memActivityStore) ListByUser(_ context.Context, userID string, from, to time.Time) ([]model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Activity
	for _, a := range s.rows {
		if a.UserID == userID && !a.StartDate.Before(from) && a.StartDate.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *memActivityStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memActivityStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type mockObjectStore struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *mockObjectStore) Upload(_ context.Context, path string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.paths = append(m.paths, path)
	return path, nil
}

func (m *mockObjectStore) PublicURL(string) string { return "" }

// --- Helpers ---

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func f64(v float64) *float64 { return &v }

func rawRun(id string, start time.Time, meters float64, moving int) model.RawActivity {
	return model.RawActivity{
		ExternalID:         id,
		Name:               "Run " + id,
		Type:               "Run",
		SportType:          "Run",
		DistanceMeters:     meters,
		MovingTimeSeconds:  moving,
		ElapsedTimeSeconds: moving + 60,
		StartDate:          start,
		Payload:            []byte(`{"id":` + id + `}`),
	}
}
