// Copyright (c) 2026 Northlink Communications. All rights reserved.

// In-memory implementations of the auth repository contracts.
//
// These mirror the Postgres semantics, including the rotation guard and
// the single-primary MFA invariant, so the engine behaves identically in
// tests. Expired sessions are never evicted automatically; callers run
// DeleteExpired the same way the janitor does in production.

package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// # Credential Repository

// MemoryCredentialRepository is a mutex-guarded CredentialRepository.
type MemoryCredentialRepository struct {
	mu          sync.Mutex
	credentials map[string]*Credential
}

// NewMemoryCredentialRepository creates an empty in-memory repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{credentials: make(map[string]*Credential)}
}

func cloneCredential(credential *Credential) *Credential {
	clone := *credential
	return &clone
}

// Create stores a copy of the credential after validation.
func (repository *MemoryCredentialRepository) Create(_ context.Context, credential *Credential) error {
	if err := credential.Validate(); err != nil {
		return err
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = now

	repository.credentials[credential.ID] = cloneCredential(credential)
	return nil
}

// FindForLogin matches a normalized identifier against usernames and
// emails, newest active row first.
func (repository *MemoryCredentialRepository) FindForLogin(_ context.Context, identifier string, provider Provider) (*Credential, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	matchesIdentifier := func(credential *Credential) bool {
		if credential.Provider != provider {
			return false
		}
		return strings.EqualFold(credential.Username, identifier) ||
			(credential.Email != "" && strings.EqualFold(credential.Email, identifier))
	}

	match := repository.newest(func(credential *Credential) bool {
		return credential.IsActive && matchesIdentifier(credential)
	})
	if match == nil {
		if repository.newest(matchesIdentifier) != nil {
			return nil, ErrAccountDisabled
		}
		return nil, ErrInvalidCredentials
	}

	return cloneCredential(match), nil
}

// FindByPrincipal returns the newest active credential for a principal.
func (repository *MemoryCredentialRepository) FindByPrincipal(_ context.Context, principal Principal, provider Provider) (*Credential, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	match := repository.newest(func(credential *Credential) bool {
		return credential.Provider == provider && credential.IsActive && credential.Principal == principal
	})
	if match == nil {
		return nil, ErrAccountNotFound
	}

	return cloneCredential(match), nil
}

// FindByEmail returns the newest active local credential carrying the email.
func (repository *MemoryCredentialRepository) FindByEmail(_ context.Context, email string) (*Credential, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	match := repository.newest(func(credential *Credential) bool {
		return credential.Provider == ProviderLocal && credential.IsActive &&
			credential.Email != "" && strings.EqualFold(credential.Email, email)
	})
	if match == nil {
		return nil, ErrAccountNotFound
	}

	return cloneCredential(match), nil
}

// newest returns the most recently created credential passing the filter.
// Caller holds the lock.
func (repository *MemoryCredentialRepository) newest(accept func(*Credential) bool) *Credential {
	var match *Credential
	for _, credential := range repository.credentials {
		if !accept(credential) {
			continue
		}
		if match == nil || credential.CreatedAt.After(match.CreatedAt) {
			match = credential
		}
	}
	return match
}

// RecordFailure increments the counter and opens the lockout window at
// the threshold, under one lock acquisition.
func (repository *MemoryCredentialRepository) RecordFailure(_ context.Context, credentialID string, maxAttempts int, lockFor time.Duration) (*Credential, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	credential, ok := repository.credentials[credentialID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	credential.FailedAttempts++
	if credential.FailedAttempts >= maxAttempts {
		lockedUntil := time.Now().UTC().Add(lockFor)
		credential.LockedUntil = &lockedUntil
	}
	credential.UpdatedAt = time.Now().UTC()

	return cloneCredential(credential), nil
}

// RecordSuccess clears failure state and stamps the login time.
func (repository *MemoryCredentialRepository) RecordSuccess(_ context.Context, credentialID string, at time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	credential, ok := repository.credentials[credentialID]
	if !ok {
		return ErrAccountNotFound
	}

	at = at.UTC()
	credential.FailedAttempts = 0
	credential.LockedUntil = nil
	credential.LastLoginAt = &at
	credential.UpdatedAt = time.Now().UTC()

	return nil
}

// UpdatePassword swaps the hash and resets gating state.
func (repository *MemoryCredentialRepository) UpdatePassword(_ context.Context, credentialID string, newHash string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	credential, ok := repository.credentials[credentialID]
	if !ok {
		return ErrAccountNotFound
	}

	credential.PasswordHash = newHash
	credential.FailedAttempts = 0
	credential.LockedUntil = nil
	credential.MustChangePassword = false
	credential.UpdatedAt = time.Now().UTC()

	return nil
}

// # MFA Method Repository

// MemoryMFAMethodRepository is a mutex-guarded MFAMethodRepository.
type MemoryMFAMethodRepository struct {
	mu      sync.Mutex
	methods map[string]*MFAMethod
}

// NewMemoryMFAMethodRepository creates an empty in-memory repository.
func NewMemoryMFAMethodRepository() *MemoryMFAMethodRepository {
	return &MemoryMFAMethodRepository{methods: make(map[string]*MFAMethod)}
}

func cloneMethod(method *MFAMethod) *MFAMethod {
	clone := *method
	return &clone
}

// Create stores a copy of the method.
func (repository *MemoryMFAMethodRepository) Create(_ context.Context, method *MFAMethod) error {
	if err := method.Principal.Validate(); err != nil {
		return err
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	now := time.Now().UTC()
	if method.CreatedAt.IsZero() {
		method.CreatedAt = now
	}
	method.UpdatedAt = now

	if method.IsPrimary && method.Enabled && repository.primaryOf(method.Principal) != nil {
		return ErrPrimaryMFAConflict
	}

	repository.methods[method.ID] = cloneMethod(method)
	return nil
}

// FindByID returns a method by id.
func (repository *MemoryMFAMethodRepository) FindByID(_ context.Context, id string) (*MFAMethod, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	method, ok := repository.methods[id]
	if !ok {
		return nil, ErrMFAMethodNotFound
	}

	return cloneMethod(method), nil
}

// FindPrimary returns the enabled primary method of the given type.
func (repository *MemoryMFAMethodRepository) FindPrimary(_ context.Context, principal Principal, methodType MethodType) (*MFAMethod, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	for _, method := range repository.methods {
		if method.Principal == principal && method.MethodType == methodType && method.Enabled && method.IsPrimary {
			return cloneMethod(method), nil
		}
	}

	return nil, ErrMFAMethodNotFound
}

// primaryOf returns the principal's enabled primary method, if any.
// Caller holds the lock.
func (repository *MemoryMFAMethodRepository) primaryOf(principal Principal) *MFAMethod {
	for _, method := range repository.methods {
		if method.Principal == principal && method.Enabled && method.IsPrimary {
			return method
		}
	}
	return nil
}

// Promote enables the method, marks it primary, and demotes siblings in
// the same critical section, matching the transactional SQL behavior.
func (repository *MemoryMFAMethodRepository) Promote(_ context.Context, id string, verifiedAt time.Time) (*MFAMethod, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	method, ok := repository.methods[id]
	if !ok {
		return nil, ErrMFAMethodNotFound
	}

	for _, sibling := range repository.methods {
		if sibling.ID != id && sibling.Principal == method.Principal && sibling.IsPrimary {
			sibling.IsPrimary = false
			sibling.UpdatedAt = time.Now().UTC()
		}
	}

	verifiedAt = verifiedAt.UTC()
	method.Enabled = true
	method.IsPrimary = true
	method.VerifiedAt = &verifiedAt
	method.UpdatedAt = time.Now().UTC()

	return cloneMethod(method), nil
}

// # Session Repository

// MemorySessionRepository is a mutex-guarded SessionRepository.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionRepository creates an empty in-memory repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*Session)}
}

func cloneSession(session *Session) *Session {
	clone := *session
	if session.PreviousTokenHash != nil {
		previous := *session.PreviousTokenHash
		clone.PreviousTokenHash = &previous
	}
	return &clone
}

// Create stores a copy of the session.
func (repository *MemorySessionRepository) Create(_ context.Context, session *Session) error {
	if err := session.Principal.Validate(); err != nil {
		return err
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}
	if session.Status == "" {
		session.Status = SessionActive
	}

	repository.sessions[session.ID] = cloneSession(session)
	return nil
}

// Rotate performs the guarded swap under the lock: only an active,
// unrevoked, unexpired session matching the current hash rotates.
func (repository *MemorySessionRepository) Rotate(_ context.Context, currentTokenHash, newTokenHash, ipAddress, userAgent string) (*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	now := time.Now().UTC()
	for _, session := range repository.sessions {
		if session.TokenHash != currentTokenHash {
			continue
		}
		if session.Status != SessionActive || session.RevokedAt != nil || !session.ExpiresAt.After(now) {
			break
		}

		previous := session.TokenHash
		session.PreviousTokenHash = &previous
		session.TokenHash = newTokenHash
		session.TokenRotatedAt = &now
		session.LastSeenAt = now
		if ipAddress != "" {
			session.IPAddress = ipAddress
		}
		if userAgent != "" {
			session.UserAgent = userAgent
		}

		return cloneSession(session), nil
	}

	return nil, ErrSessionNotFound
}

// FindByTokenHash looks a session up by its current hash, any status.
func (repository *MemorySessionRepository) FindByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	for _, session := range repository.sessions {
		if session.TokenHash == tokenHash {
			return cloneSession(session), nil
		}
	}

	return nil, ErrSessionNotFound
}

// FindActiveByPreviousTokenHash finds the live session whose superseded
// hash matches.
func (repository *MemorySessionRepository) FindActiveByPreviousTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	for _, session := range repository.sessions {
		if session.Status == SessionActive && session.RevokedAt == nil &&
			session.PreviousTokenHash != nil && *session.PreviousTokenHash == tokenHash {
			return cloneSession(session), nil
		}
	}

	return nil, ErrSessionNotFound
}

// FindByID returns a session by id.
func (repository *MemorySessionRepository) FindByID(_ context.Context, id string) (*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	session, ok := repository.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return cloneSession(session), nil
}

// MarkExpired transitions an active session to expired.
func (repository *MemorySessionRepository) MarkExpired(_ context.Context, sessionID string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if session, ok := repository.sessions[sessionID]; ok && session.Status == SessionActive {
		session.Status = SessionExpired
	}

	return nil
}

// Revoke terminates one session; terminal rows are untouched.
func (repository *MemorySessionRepository) Revoke(_ context.Context, sessionID string, at time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if session, ok := repository.sessions[sessionID]; ok && session.Status == SessionActive {
		at = at.UTC()
		session.Status = SessionRevoked
		session.RevokedAt = &at
	}

	return nil
}

// RevokeAll terminates every active session a principal holds.
func (repository *MemorySessionRepository) RevokeAll(_ context.Context, principal Principal, at time.Time) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	at = at.UTC()
	var revoked int64
	for _, session := range repository.sessions {
		if session.Principal == principal && session.Status == SessionActive {
			session.Status = SessionRevoked
			stamp := at
			session.RevokedAt = &stamp
			revoked++
		}
	}

	return revoked, nil
}

// RevokeOthers terminates every active session except keepSessionID.
func (repository *MemorySessionRepository) RevokeOthers(_ context.Context, principal Principal, keepSessionID string, at time.Time) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	at = at.UTC()
	var revoked int64
	for _, session := range repository.sessions {
		if session.Principal == principal && session.ID != keepSessionID && session.Status == SessionActive {
			session.Status = SessionRevoked
			stamp := at
			session.RevokedAt = &stamp
			revoked++
		}
	}

	return revoked, nil
}

// ListActive returns active, unexpired sessions, newest first.
func (repository *MemorySessionRepository) ListActive(_ context.Context, principal Principal) ([]*Session, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	now := time.Now().UTC()
	sessions := make([]*Session, 0)
	for _, session := range repository.sessions {
		if session.Principal == principal && session.Status == SessionActive && session.ExpiresAt.After(now) {
			sessions = append(sessions, cloneSession(session))
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	return sessions, nil
}

// DeleteExpired removes overdue and terminal sessions older than cutoff.
func (repository *MemorySessionRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	cutoff = cutoff.UTC()
	var deleted int64
	for id, session := range repository.sessions {
		if !session.ExpiresAt.After(cutoff) || (session.Status != SessionActive && !session.LastSeenAt.After(cutoff)) {
			delete(repository.sessions, id)
			deleted++
		}
	}

	return deleted, nil
}

// # Used Reset Token Store

// MemoryUsedResetTokenStore is a mutex-guarded UsedResetTokenStore.
type MemoryUsedResetTokenStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

// NewMemoryUsedResetTokenStore creates an empty in-memory store.
func NewMemoryUsedResetTokenStore() *MemoryUsedResetTokenStore {
	return &MemoryUsedResetTokenStore{used: make(map[string]time.Time)}
}

// MarkUsed remembers a token id until its natural expiry.
func (store *MemoryUsedResetTokenStore) MarkUsed(_ context.Context, tokenID string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.used[tokenID] = time.Now().UTC().Add(ttl)
	return nil
}

// IsUsed reports whether a token id was consumed and is still inside its
// remembered window.
func (store *MemoryUsedResetTokenStore) IsUsed(_ context.Context, tokenID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	expiry, ok := store.used[tokenID]
	if !ok {
		return false, nil
	}
	if !expiry.After(time.Now().UTC()) {
		delete(store.used, tokenID)
		return false, nil
	}

	return true, nil
}
