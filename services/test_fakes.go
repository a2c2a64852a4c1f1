package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lborres/pulsetrack/core"
)

// FakeStorageProvider is a test-only fake implementing core.Storage.
// It keeps everything in maps and exposes error fields for behavior
// injection.
type FakeStorageProvider struct {
	mu sync.RWMutex

	users         map[string]*core.User
	accounts      map[string]*core.Account
	sessions      map[string]*core.SessionRecord // key: token hash
	profiles      map[string]*core.Profile
	notifications []core.NotificationEvent
	feeds         map[int]fakeFeed
	nextID        int

	CreateSessionErr error
	CreateProfileErr error
	UpdateProfileErr error
	MarkReadErr      error
	ListErr          error

	// call log
	ListCalls      []string
	SubscribeCalls []string
	Unsubscribes   int
	ProfilePatches []core.ProfilePatch
}

type fakeFeed struct {
	userID string
	fn     func(core.NotificationEvent)
}

var _ core.Storage = (*FakeStorageProvider)(nil)

func NewFakeStorageProvider() *FakeStorageProvider {
	return &FakeStorageProvider{
		users:    make(map[string]*core.User),
		accounts: make(map[string]*core.Account),
		sessions: make(map[string]*core.SessionRecord),
		profiles: make(map[string]*core.Profile),
		feeds:    make(map[int]fakeFeed),
	}
}

func (f *FakeStorageProvider) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// Users

func (f *FakeStorageProvider) CreateUser(_ context.Context, u *core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return core.ErrUserExists
		}
	}
	if u.ID == "" {
		u.ID = f.newID("user")
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *FakeStorageProvider) GetUserByID(_ context.Context, id string) (*core.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *FakeStorageProvider) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (f *FakeStorageProvider) UpdateUser(_ context.Context, u *core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return core.ErrUserNotFound
	}
	u.UpdatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *FakeStorageProvider) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

// Accounts

func (f *FakeStorageProvider) CreateAccount(_ context.Context, a *core.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = f.newID("account")
	}
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *FakeStorageProvider) GetAccountByID(_ context.Context, id string) (*core.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, errors.New("account not found")
	}
	cp := *a
	return &cp, nil
}

func (f *FakeStorageProvider) GetAccountByUserAndProvider(_ context.Context, userID, providerID string) ([]*core.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*core.Account
	for _, a := range f.accounts {
		if a.UserID == userID && a.ProviderID == providerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *FakeStorageProvider) UpdateAccount(_ context.Context, a *core.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[a.ID]; !ok {
		return errors.New("account not found")
	}
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *FakeStorageProvider) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

// Sessions

func (f *FakeStorageProvider) CreateSession(_ context.Context, s *core.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateSessionErr != nil {
		return f.CreateSessionErr
	}
	cp := *s
	f.sessions[s.TokenHash] = &cp
	return nil
}

func (f *FakeStorageProvider) GetSessionByHash(_ context.Context, tokenHash string) (*core.SessionRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.sessions[tokenHash]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateSession overwrites a stored record, letting tests age a session.
func (f *FakeStorageProvider) UpdateSession(_ context.Context, s *core.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.TokenHash]; !ok {
		return core.ErrSessionNotFound
	}
	cp := *s
	f.sessions[s.TokenHash] = &cp
	return nil
}

func (f *FakeStorageProvider) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[tokenHash]; !ok {
		return core.ErrSessionNotFound
	}
	delete(f.sessions, tokenHash)
	return nil
}

func (f *FakeStorageProvider) DeleteUserSessions(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for hash, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (f *FakeStorageProvider) DeleteExpiredSessions(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	now := time.Now()
	for hash, s := range f.sessions {
		if now.After(s.ExpiresAt) {
			delete(f.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (f *FakeStorageProvider) SessionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions)
}

// Profiles

func (f *FakeStorageProvider) CreateProfile(_ context.Context, p *core.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateProfileErr != nil {
		return f.CreateProfileErr
	}
	if _, exists := f.profiles[p.ID]; exists {
		return core.ErrUserExists
	}
	cp := *p
	f.profiles[p.ID] = &cp
	return nil
}

func (f *FakeStorageProvider) GetProfile(_ context.Context, id string) (*core.Profile, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, core.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *FakeStorageProvider) UpdateProfile(_ context.Context, id string, patch core.ProfilePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProfilePatches = append(f.ProfilePatches, patch)
	if f.UpdateProfileErr != nil {
		return f.UpdateProfileErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return core.ErrProfileNotFound
	}
	patch.Apply(p)
	return nil
}

// Notifications

func (f *FakeStorageProvider) ListByUser(_ context.Context, userID string) ([]core.NotificationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls = append(f.ListCalls, userID)
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []core.NotificationEvent
	for _, e := range f.notifications {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Insert stores e and delivers it to the matching feeds synchronously.
func (f *FakeStorageProvider) Insert(_ context.Context, e *core.NotificationEvent) error {
	f.mu.Lock()
	if e.ID == "" {
		e.ID = f.newID("notification")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	f.notifications = append(f.notifications, *e)
	var targets []func(core.NotificationEvent)
	keys := make([]int, 0, len(f.feeds))
	for k := range f.feeds {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if f.feeds[k].userID == e.UserID {
			targets = append(targets, f.feeds[k].fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range targets {
		fn(*e)
	}
	return nil
}

func (f *FakeStorageProvider) MarkRead(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarkReadErr != nil {
		return f.MarkReadErr
	}
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].UserID == userID {
			f.notifications[i].Read = true
			return nil
		}
	}
	return core.ErrNotificationNotFound
}

func (f *FakeStorageProvider) SubscribeInserts(_ context.Context, userID string, fn func(core.NotificationEvent)) (core.Disposer, error) {
	f.mu.Lock()
	f.SubscribeCalls = append(f.SubscribeCalls, userID)
	f.nextID++
	key := f.nextID
	f.feeds[key] = fakeFeed{userID: userID, fn: fn}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.feeds, key)
			f.Unsubscribes++
			f.mu.Unlock()
		})
	}, nil
}

func (f *FakeStorageProvider) ActiveFeeds() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.feeds)
}

// Calls returns copies of the recorded list and subscribe calls.
func (f *FakeStorageProvider) Calls() (lists, subscribes []string, unsubscribes int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.ListCalls...), append([]string(nil), f.SubscribeCalls...), f.Unsubscribes
}

func (f *FakeStorageProvider) Notification(id string) (core.NotificationEvent, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.notifications {
		if e.ID == id {
			return e, true
		}
	}
	return core.NotificationEvent{}, false
}

// FakeCache is a test-only fake implementing core.SessionCache.
type FakeCache struct {
	mu      sync.Mutex
	entries map[string]*core.SessionRecord
	GetErr  error
	SetErr  error
	Gets    int
	Sets    int
}

func NewFakeCache() *FakeCache {
	return &FakeCache{entries: make(map[string]*core.SessionRecord)}
}

func (f *FakeCache) Get(tokenHash string) (*core.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	s, ok := f.entries[tokenHash]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return s, nil
}

func (f *FakeCache) Set(tokenHash string, session *core.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sets++
	if f.SetErr != nil {
		return f.SetErr
	}
	f.entries[tokenHash] = session
	return nil
}

func (f *FakeCache) Delete(tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, tokenHash)
	return nil
}

func (f *FakeCache) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]*core.SessionRecord)
	return nil
}

func (f *FakeCache) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// FakeIdentityProvider is a scriptable core.IdentityProvider.
type FakeIdentityProvider struct {
	mu sync.Mutex

	Session   *core.Session
	SubjectID string

	SignInErr  error
	SignUpErr  error
	SignOutErr error
	ResetErr   error
	UpdateErr  error
	RefreshErr error

	// When SignInGate is set, SignInWithPassword signals SignInEntered and
	// blocks until the gate is closed.
	SignInEntered chan struct{}
	SignInGate    chan struct{}

	// call log, in order
	Calls       []string
	SignUpClaim core.Claims
	ResetURL    string
	Updated     core.Credentials
}

var _ core.IdentityProvider = (*FakeIdentityProvider)(nil)

func (f *FakeIdentityProvider) record(call string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
}

func (f *FakeIdentityProvider) GetSession(_ context.Context, token string) (*core.Session, error) {
	f.record("GetSession")
	if f.Session == nil || f.Session.Token != token {
		return nil, core.ErrInvalidToken
	}
	cp := *f.Session
	return &cp, nil
}

func (f *FakeIdentityProvider) SignInWithPassword(_ context.Context, email, _ string) (*core.Session, error) {
	f.record("SignInWithPassword")
	if f.SignInGate != nil {
		close(f.SignInEntered)
		<-f.SignInGate
	}
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	if f.Session != nil {
		cp := *f.Session
		return &cp, nil
	}
	return &core.Session{SubjectID: "u1", Role: core.RolePatient, Email: email, Token: "token-u1"}, nil
}

func (f *FakeIdentityProvider) SignUp(_ context.Context, _, _ string, claims core.Claims) (string, error) {
	f.record("SignUp")
	f.SignUpClaim = claims
	if f.SignUpErr != nil {
		return "", f.SignUpErr
	}
	return f.SubjectID, nil
}

func (f *FakeIdentityProvider) SignOut(context.Context, string) error {
	f.record("SignOut")
	return f.SignOutErr
}

func (f *FakeIdentityProvider) SendPasswordReset(_ context.Context, _, redirectURL string) error {
	f.record("SendPasswordReset")
	f.ResetURL = redirectURL
	return f.ResetErr
}

func (f *FakeIdentityProvider) UpdateCredentials(_ context.Context, _ string, c core.Credentials) error {
	f.record("UpdateCredentials")
	f.Updated = c
	return f.UpdateErr
}

func (f *FakeIdentityProvider) Refresh(_ context.Context, token string) (*core.Session, error) {
	f.record("Refresh")
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return &core.Session{SubjectID: "u1", Role: core.RolePatient, Token: token + "-refreshed"}, nil
}

func (f *FakeIdentityProvider) ConfirmPasswordReset(context.Context, string, string) error {
	f.record("ConfirmPasswordReset")
	return nil
}

// FakePushProvider is a core.PushProvider that records sends and lets
// tests emit foreground messages.
type FakePushProvider struct {
	mu           sync.Mutex
	Token        string
	TokenErr     error
	SendErr      error
	Sent         []core.PushMessage
	listeners    map[int]func(core.PushMessage)
	next         int
	Unsubscribes int
}

var _ core.PushProvider = (*FakePushProvider)(nil)

func (f *FakePushProvider) RegistrationToken(context.Context, string) (string, error) {
	return f.Token, f.TokenErr
}

func (f *FakePushProvider) OnForegroundMessage(fn func(core.PushMessage)) core.Disposer {
	f.mu.Lock()
	if f.listeners == nil {
		f.listeners = make(map[int]func(core.PushMessage))
	}
	f.next++
	key := f.next
	f.listeners[key] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, key)
			f.Unsubscribes++
			f.mu.Unlock()
		})
	}
}

func (f *FakePushProvider) Send(_ context.Context, token string, msg core.PushMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	msg.Token = token
	f.Sent = append(f.Sent, msg)
	return nil
}

// Emit delivers msg to every registered foreground listener.
func (f *FakePushProvider) Emit(msg core.PushMessage) {
	f.mu.Lock()
	fns := make([]func(core.PushMessage), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (f *FakePushProvider) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// FakeTransport records every message it is asked to send.
type FakeTransport struct {
	mu   sync.Mutex
	Err  error
	Sent []string // "to|body"
}

func (f *FakeTransport) Send(_ context.Context, to, body string) (*core.TransportReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Sent = append(f.Sent, to+"|"+body)
	return &core.TransportReceipt{SID: fmt.Sprintf("SM%d", len(f.Sent)), Status: "queued", To: to}, nil
}

// FakeMailer keeps sent mail in memory.
type FakeMailer struct {
	mu   sync.Mutex
	Mail []FakeMail
}

type FakeMail struct {
	To, Subject, Body string
}

func (f *FakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mail = append(f.Mail, FakeMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *FakeMailer) Last() (FakeMail, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Mail) == 0 {
		return FakeMail{}, false
	}
	return f.Mail[len(f.Mail)-1], true
}

// FakeTokenStore is an in-memory core.OneTimeTokenStore that ignores ttl.
type FakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{tokens: make(map[string]string)}
}

func (f *FakeTokenStore) Save(_ context.Context, token, subjectID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = subjectID
	return nil
}

func (f *FakeTokenStore) Consume(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return "", core.ErrInvalidResetToken
	}
	delete(f.tokens, token)
	return id, nil
}
