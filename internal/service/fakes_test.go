package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/platformx/platformx/internal/model"
	"github.com/platformx/platformx/internal/provider"
	"github.com/platformx/platformx/internal/repository"
	"github.com/platformx/platformx/internal/usage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for the Postgres repository.
type memStore struct {
	mu         sync.Mutex
	baseModels map[string]*model.BaseModel
	models     map[string]*model.DerivedModelDetails
	datasets   map[string]*model.Dataset
	threads    []*model.ThreadEntry
	favourites map[string]map[string]bool
	users      map[string]*model.User
	keys       map[string]*model.APIKey
}

func newMemStore() *memStore {
	return &memStore{
		baseModels: map[string]*model.BaseModel{},
		models:     map[string]*model.DerivedModelDetails{},
		datasets:   map[string]*model.Dataset{},
		favourites: map[string]map[string]bool{},
		users:      map[string]*model.User{},
		keys:       map[string]*model.APIKey{},
	}
}

func (m *memStore) addModel(dm model.DerivedModel, base model.BaseModel, records ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseModels[base.ID] = &base
	dm.BaseModelID = base.ID
	m.models[dm.ID] = &model.DerivedModelDetails{DerivedModel: dm, BaseModel: base}
	if len(records) > 0 {
		m.datasets[dm.ID] = &model.Dataset{ID: "ds-" + dm.ID, DerivedModelID: dm.ID, Data: records}
	}
}

func (m *memStore) GetDerivedModelDetails(_ context.Context, id string) (*model.DerivedModelDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.models[id]
	if !ok {
		return nil, repository.ErrDerivedModelNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) GetDatasetByModelID(_ context.Context, modelID string) (*model.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.datasets[modelID]
	if !ok {
		return nil, repository.ErrDatasetNotFound
	}
	return ds, nil
}

func (m *memStore) GetBaseModelByID(_ context.Context, id string) (*model.BaseModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, ok := m.baseModels[id]
	if !ok {
		return nil, repository.ErrBaseModelNotFound
	}
	return bm, nil
}

func (m *memStore) ListBaseModels(_ context.Context) ([]*model.BaseModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BaseModel
	for _, bm := range m.baseModels {
		out = append(out, bm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpsertBaseModels(_ context.Context, models []*model.BaseModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bm := range models {
		m.baseModels[bm.ID] = bm
	}
	return nil
}

func (m *memStore) CreateDerivedModel(_ context.Context, dm *model.DerivedModel, ds *model.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	base, ok := m.baseModels[dm.BaseModelID]
	if !ok {
		return repository.ErrBaseModelNotFound
	}
	m.models[dm.ID] = &model.DerivedModelDetails{DerivedModel: *dm, BaseModel: *base}
	m.datasets[dm.ID] = ds
	return nil
}

func (m *memStore) ListPublicDerivedModels(_ context.Context, filter repository.DerivedModelFilter) ([]*model.DerivedModelDetails, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DerivedModelDetails
	for _, d := range m.models {
		if !d.IsPublic {
			continue
		}
		if filter.Category != "" && filter.Category != model.FilterAll && d.Category != filter.Category {
			continue
		}
		out = append(out, d)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) ListDerivedModelsByOwner(_ context.Context, ownerID string) ([]*model.DerivedModelDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DerivedModelDetails
	for _, d := range m.models {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) ListPublicCategories(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, d := range m.models {
		if d.IsPublic && !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) AddFavourite(_ context.Context, fav *model.Favourite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[fav.DerivedModelID]; !ok {
		return repository.ErrDerivedModelNotFound
	}
	if m.favourites[fav.UserID] == nil {
		m.favourites[fav.UserID] = map[string]bool{}
	}
	m.favourites[fav.UserID][fav.DerivedModelID] = true
	return nil
}

func (m *memStore) RemoveFavourite(_ context.Context, userID, modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.favourites[userID][modelID] {
		return repository.ErrFavouriteNotFound
	}
	delete(m.favourites[userID], modelID)
	return nil
}

func (m *memStore) ListFavouriteModels(_ context.Context, userID string) ([]*model.DerivedModelDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DerivedModelDetails
	for id := range m.favourites[userID] {
		out = append(out, m.models[id])
	}
	return out, nil
}

func (m *memStore) AppendThreadEntry(_ context.Context, entry *model.ThreadEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, entry)
	return nil
}

func (m *memStore) CountThreadEntriesSince(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.threads {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListThreadEntries(_ context.Context, userID, threadID string) ([]*model.ThreadEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ThreadEntry
	for _, e := range m.threads {
		if e.UserID == userID && e.ThreadID == threadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListThreadSummaries(_ context.Context, userID string, _ int) ([]*model.ThreadSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byThread := map[string]*model.ThreadSummary{}
	for _, e := range m.threads {
		if e.UserID != userID {
			continue
		}
		s, ok := byThread[e.ThreadID]
		if !ok {
			s = &model.ThreadSummary{ThreadID: e.ThreadID}
			byThread[e.ThreadID] = s
		}
		s.ModelID, s.LastPrompt, s.LastEntryAt = e.ModelID, e.Prompt, e.CreatedAt
		s.EntryCount++
	}
	out := []*model.ThreadSummary{}
	for _, s := range byThread {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) GetOrCreateUser(_ context.Context, user *model.User) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return u, nil
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) UpdateUserProfile(_ context.Context, id, name string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.Name = name
	return u, nil
}

func (m *memStore) UpdateUserWallet(_ context.Context, id, walletAddress string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.WalletAddress = walletAddress
	return u, nil
}

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
	return nil
}

func (m *memStore) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	return k, nil
}

func (m *memStore) ListAPIKeysByUserID(_ context.Context, userID string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) RevokeAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.IsRevoked() {
		return repository.ErrAPIKeyNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	return nil
}

func (m *memStore) RotateAPIKey(_ context.Context, oldKeyID string, newKey *model.APIKey) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[oldKeyID]
	if !ok || k.IsRevoked() {
		return time.Time{}, repository.ErrAPIKeyNotFound
	}
	now := time.Now().UTC()
	k.RevokedAt = &now
	m.keys[newKey.ID] = newKey
	return now, nil
}

func (m *memStore) entriesFor(threadID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.threads {
		if e.ThreadID == threadID {
			n++
		}
	}
	return n
}

// fakeBilling marks the listed users as subscribed.
type fakeBilling map[string]bool

func (f fakeBilling) IsActive(_ context.Context, userID string) (bool, error) {
	return f[userID], nil
}

// fakeProvider records requests and answers with a fixed reply.
type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []provider.Request
}

func (p *fakeProvider) Generate(_ context.Context, req provider.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fakeUsage struct {
	mu     sync.Mutex
	events []usage.EventPayload
}

func (u *fakeUsage) PublishAsync(event usage.EventPayload) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, event)
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) InvalidateUserAuthContexts(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return nil
}
