// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlink/atlas/internal/auth"
	"github.com/northlink/atlas/internal/platform/apperr"
	"github.com/northlink/atlas/internal/platform/sec"
	"github.com/northlink/atlas/internal/rbac"
	"github.com/northlink/atlas/pkg/uuid"
)

const (
	testSigningSecret = "unit-test-signing-secret-32-bytes!!"
	testCipherKey     = "unit-test-totp-cipher-passphrase"
	testPassword      = "correct horse battery staple"
)

// captureMailer records sent reset tokens instead of delivering them.
type captureMailer struct {
	mu     sync.Mutex
	tokens []string
	emails []string
}

func (mailer *captureMailer) SendPasswordReset(_ context.Context, toEmail, _ string, resetToken string, _ time.Time) error {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	mailer.tokens = append(mailer.tokens, resetToken)
	mailer.emails = append(mailer.emails, toEmail)
	return nil
}

func (mailer *captureMailer) lastToken() string {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	if len(mailer.tokens) == 0 {
		return ""
	}
	return mailer.tokens[len(mailer.tokens)-1]
}

// engineFixture wires an Engine against the in-memory repositories with a
// real token service and a real TOTP cipher.
type engineFixture struct {
	credentials *auth.MemoryCredentialRepository
	methods     *auth.MemoryMFAMethodRepository
	sessions    *auth.MemorySessionRepository
	resetTokens *auth.MemoryUsedResetTokenStore
	tokens      *sec.TokenService
	mfa         *auth.MFAService
	mailer      *captureMailer
	engine      *auth.Engine
}

func newEngineFixture(t *testing.T, options auth.Options) *engineFixture {
	t.Helper()

	tokens, err := sec.NewTokenService(testSigningSecret, "HS256", "atlas-test")
	require.NoError(t, err)

	cipher, err := sec.NewSecretCipher(testCipherKey)
	require.NoError(t, err)

	fixture := &engineFixture{
		credentials: auth.NewMemoryCredentialRepository(),
		methods:     auth.NewMemoryMFAMethodRepository(),
		sessions:    auth.NewMemorySessionRepository(),
		resetTokens: auth.NewMemoryUsedResetTokenStore(),
		tokens:      tokens,
		mailer:      &captureMailer{},
	}
	fixture.mfa = auth.NewMFAService(fixture.methods, cipher, "Northlink Test")
	fixture.engine = auth.NewEngine(
		fixture.credentials,
		fixture.methods,
		fixture.sessions,
		fixture.resetTokens,
		&rbac.StaticLoader{Roles: []string{"subscriber"}, Scopes: []string{"billing:read"}},
		fixture.mailer,
		tokens,
		fixture.mfa,
		options,
	)
	return fixture
}

// seedSubscriber creates an active local credential and returns its principal.
func (fixture *engineFixture) seedSubscriber(t *testing.T, username, email, password string) auth.Principal {
	t.Helper()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)

	principal := auth.SubscriberPrincipal(uuid.New())
	require.NoError(t, fixture.credentials.Create(context.Background(), &auth.Credential{
		ID:           uuid.New(),
		Principal:    principal,
		Provider:     auth.ProviderLocal,
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		DisplayName:  "Test Subscriber",
		IsActive:     true,
	}))
	return principal
}

// enrollTOTP runs the full enrollment handshake and returns the shared secret.
func (fixture *engineFixture) enrollTOTP(t *testing.T, principal auth.Principal) string {
	t.Helper()

	setup, err := fixture.mfa.Setup(context.Background(), principal, "test device")
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	_, err = fixture.mfa.Confirm(context.Background(), setup.MethodID, code)
	require.NoError(t, err)

	return setup.Secret
}

/*
TestEngine_Login_Success checks the happy path: a correct password on an
active, unlocked account yields a token pair and an active session.
*/
func TestEngine_Login_Success(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "alice", "alice@northlink.net", testPassword)

	result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "alice",
		Password:   testPassword,
		IPAddress:  "203.0.113.9",
		UserAgent:  "atlas-test/1.0",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	assert.False(t, result.MFARequired)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.NotEmpty(t, result.Tokens.SessionID)

	// Access token carries identity, session, and the loaded grants.
	claims, err := fixture.tokens.Decode(result.Tokens.AccessToken, sec.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, principal.ID(), claims.PrincipalID)
	assert.Equal(t, string(auth.PrincipalSubscriber), claims.PrincipalType)
	assert.Equal(t, result.Tokens.SessionID, claims.SessionID)
	assert.Equal(t, []string{"subscriber"}, claims.Roles)
	assert.Equal(t, []string{"billing:read"}, claims.Scopes)

	sessions, err := fixture.engine.ListSessions(context.Background(), principal)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, result.Tokens.SessionID, sessions[0].ID)
	assert.Equal(t, "203.0.113.9", sessions[0].IPAddress)
}

/*
TestEngine_Login_IdentifierResolution checks that email and mixed-case
identifiers resolve to the same credential.
*/
func TestEngine_Login_IdentifierResolution(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "bob", "bob@northlink.net", testPassword)

	for _, identifier := range []string{"bob", "BOB", "bob@northlink.net", "Bob@Northlink.NET"} {
		result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
			Identifier: identifier,
			Password:   testPassword,
		})
		require.NoError(t, err, "identifier %q", identifier)
		require.NotNil(t, result.Tokens)
	}
}

/*
TestEngine_Login_Failures covers the rejection taxonomy: unknown
identifiers, wrong passwords, disabled accounts, and the must-change gate.
*/
func TestEngine_Login_Failures(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "carol", "carol@northlink.net", testPassword)

	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, fixture.credentials.Create(context.Background(), &auth.Credential{
		ID:           uuid.New(),
		Principal:    auth.SubscriberPrincipal(uuid.New()),
		Provider:     auth.ProviderLocal,
		Username:     "dormant",
		PasswordHash: hash,
		IsActive:     false,
	}))
	require.NoError(t, fixture.credentials.Create(context.Background(), &auth.Credential{
		ID:                 uuid.New(),
		Principal:          auth.SubscriberPrincipal(uuid.New()),
		Provider:           auth.ProviderLocal,
		Username:           "flagged",
		PasswordHash:       hash,
		IsActive:           true,
		MustChangePassword: true,
	}))

	tests := []struct {
		name       string
		identifier string
		password   string
		wantCode   string
	}{
		{"unknown_identifier", "nobody", testPassword, "INVALID_CREDENTIALS"},
		{"wrong_password", "carol", "not the password", "INVALID_CREDENTIALS"},
		{"empty_password", "carol", "", "INVALID_CREDENTIALS"},
		{"disabled_account", "dormant", testPassword, "ACCOUNT_DISABLED"},
		{"must_change_password", "flagged", testPassword, "PASSWORD_RESET_REQUIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
				Identifier: tt.identifier,
				Password:   tt.password,
			})
			assert.Nil(t, result)
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

/*
TestEngine_Login_Lockout drives an account to the failure threshold and
checks that the lock rejects even the correct password without touching
the counter.
*/
func TestEngine_Login_Lockout(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "dave", "dave@northlink.net", testPassword)

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		_, err := fixture.engine.Login(context.Background(), auth.LoginInput{
			Identifier: "dave",
			Password:   "wrong password",
		})
		require.Error(t, err)
		assert.True(t, apperr.HasCode(err, "INVALID_CREDENTIALS"))
	}

	// The window is open now. The correct password fails the same way a
	// wrong one does.
	_, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "dave",
		Password:   testPassword,
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "ACCOUNT_LOCKED"))

	_, err = fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "dave",
		Password:   "wrong password",
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "ACCOUNT_LOCKED"))
}

/*
TestEngine_Login_MFAChallenge checks that an enrolled primary TOTP method
turns login into a challenge, and that VerifyMFA trades the challenge
token plus a valid code for a session.
*/
func TestEngine_Login_MFAChallenge(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "erin", "erin@northlink.net", testPassword)
	secret := fixture.enrollTOTP(t, principal)

	result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "erin",
		Password:   testPassword,
	})
	require.NoError(t, err)
	assert.True(t, result.MFARequired)
	assert.NotEmpty(t, result.MFAToken)
	assert.Nil(t, result.Tokens)

	// A wrong code is rejected without burning the challenge token.
	_, err = fixture.engine.VerifyMFA(context.Background(), auth.VerifyMFAInput{
		MFAToken: result.MFAToken,
		Code:     "000000",
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_MFA_CODE"))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	verified, err := fixture.engine.VerifyMFA(context.Background(), auth.VerifyMFAInput{
		MFAToken: result.MFAToken,
		Code:     code,
	})
	require.NoError(t, err)
	require.NotNil(t, verified.Tokens)
	assert.NotEmpty(t, verified.Tokens.RefreshToken)
}

/*
TestEngine_VerifyMFA_RejectsWrongTokenType checks that an access token
cannot stand in for an MFA challenge token.
*/
func TestEngine_VerifyMFA_RejectsWrongTokenType(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "frank", "frank@northlink.net", testPassword)

	result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "frank",
		Password:   testPassword,
	})
	require.NoError(t, err)

	_, err = fixture.engine.VerifyMFA(context.Background(), auth.VerifyMFAInput{
		MFAToken: result.Tokens.AccessToken,
		Code:     "123456",
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))
}

/*
TestEngine_Refresh_RotationChain rotates a session through several tokens
and checks the replay outcomes: an ancient token is indistinguishable
from garbage, the immediately superseded one is treated as theft and
kills the session, and the current token dies with it.
*/
func TestEngine_Refresh_RotationChain(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "grace", "grace@northlink.net", testPassword)

	login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "grace",
		Password:   testPassword,
	})
	require.NoError(t, err)
	tokenR0 := login.Tokens.RefreshToken
	sessionID := login.Tokens.SessionID

	pair1, err := fixture.engine.Refresh(context.Background(), tokenR0, "", "")
	require.NoError(t, err)
	tokenR1 := pair1.RefreshToken
	assert.Equal(t, sessionID, pair1.SessionID)
	assert.NotEqual(t, tokenR0, tokenR1)

	pair2, err := fixture.engine.Refresh(context.Background(), tokenR1, "", "")
	require.NoError(t, err)
	tokenR2 := pair2.RefreshToken

	// R0 fell off the chain two rotations ago; nothing remembers it.
	_, err = fixture.engine.Refresh(context.Background(), tokenR0, "", "")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))

	// R1 is the superseded hash of a live session: replaying it is theft.
	_, err = fixture.engine.Refresh(context.Background(), tokenR1, "", "")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "REFRESH_REUSE_DETECTED"))

	session, err := fixture.sessions.FindByID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, auth.SessionRevoked, session.Status)

	// The revocation takes the legitimate holder down too.
	_, err = fixture.engine.Refresh(context.Background(), tokenR2, "", "")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))
}

/*
TestEngine_Refresh_ExpiredSession checks that presenting the current
token of an overdue session transitions it to expired instead of
rotating it.
*/
func TestEngine_Refresh_ExpiredSession(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{RefreshTokenTTL: 10 * time.Millisecond})
	fixture.seedSubscriber(t, "heidi", "heidi@northlink.net", testPassword)

	login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "heidi",
		Password:   testPassword,
	})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = fixture.engine.Refresh(context.Background(), login.Tokens.RefreshToken, "", "")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))

	session, err := fixture.sessions.FindByID(context.Background(), login.Tokens.SessionID)
	require.NoError(t, err)
	assert.Equal(t, auth.SessionExpired, session.Status)
}

/*
TestEngine_Logout checks that only the current token of an active session
can log out, and that stale or unknown tokens get a not-found.
*/
func TestEngine_Logout(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "ivan", "ivan@northlink.net", testPassword)

	login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "ivan",
		Password:   testPassword,
	})
	require.NoError(t, err)

	rotated, err := fixture.engine.Refresh(context.Background(), login.Tokens.RefreshToken, "", "")
	require.NoError(t, err)

	// The rotated-out token no longer identifies the session.
	err = fixture.engine.Logout(context.Background(), login.Tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_NOT_FOUND"))

	require.NoError(t, fixture.engine.Logout(context.Background(), rotated.RefreshToken))

	sessions, err := fixture.engine.ListSessions(context.Background(), principal)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Logging out twice is an error, not a silent success.
	err = fixture.engine.Logout(context.Background(), rotated.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_NOT_FOUND"))

	err = fixture.engine.Logout(context.Background(), "never-issued")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_NOT_FOUND"))
}

/*
TestEngine_RevokeOtherSessions checks that everything except the caller's
own session is terminated.
*/
func TestEngine_RevokeOtherSessions(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "judy", "judy@northlink.net", testPassword)

	var sessionIDs []string
	for i := 0; i < 3; i++ {
		login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
			Identifier: "judy",
			Password:   testPassword,
		})
		require.NoError(t, err)
		sessionIDs = append(sessionIDs, login.Tokens.SessionID)
	}

	keep := sessionIDs[2]
	revoked, err := fixture.engine.RevokeOtherSessions(context.Background(), principal, keep)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	sessions, err := fixture.engine.ListSessions(context.Background(), principal)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, keep, sessions[0].ID)
}

/*
TestEngine_ChangePassword covers the authenticated change: wrong current
password, unchanged password, and the session fallout of a successful
change.
*/
func TestEngine_ChangePassword(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "karen", "karen@northlink.net", testPassword)

	_, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "karen",
		Password:   testPassword,
	})
	require.NoError(t, err)
	second, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "karen",
		Password:   testPassword,
	})
	require.NoError(t, err)

	err = fixture.engine.ChangePassword(context.Background(), auth.ChangePasswordInput{
		Principal:       principal,
		SessionID:       second.Tokens.SessionID,
		CurrentPassword: "wrong password",
		NewPassword:     "a brand new passphrase",
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_CREDENTIALS"))

	err = fixture.engine.ChangePassword(context.Background(), auth.ChangePasswordInput{
		Principal:       principal,
		SessionID:       second.Tokens.SessionID,
		CurrentPassword: testPassword,
		NewPassword:     testPassword,
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "PASSWORD_UNCHANGED"))

	err = fixture.engine.ChangePassword(context.Background(), auth.ChangePasswordInput{
		Principal:       principal,
		SessionID:       second.Tokens.SessionID,
		CurrentPassword: testPassword,
		NewPassword:     "a brand new passphrase",
	})
	require.NoError(t, err)

	// The caller's session survives; the sibling does not.
	sessions, err := fixture.engine.ListSessions(context.Background(), principal)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.Tokens.SessionID, sessions[0].ID)

	_, err = fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "karen",
		Password:   testPassword,
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_CREDENTIALS"))

	result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "karen",
		Password:   "a brand new passphrase",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}

/*
TestEngine_PasswordReset_Flow runs the forgotten-password flow end to
end: request, consume, single-use enforcement, and full session fallout.
*/
func TestEngine_PasswordReset_Flow(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "leah", "leah@northlink.net", testPassword)

	login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "leah",
		Password:   testPassword,
	})
	require.NoError(t, err)

	require.NoError(t, fixture.engine.RequestPasswordReset(context.Background(), "Leah@Northlink.NET"))
	resetToken := fixture.mailer.lastToken()
	require.NotEmpty(t, resetToken)

	require.NoError(t, fixture.engine.ResetPassword(context.Background(), resetToken, "a freshly minted secret"))

	// Every session went down with the reset.
	sessions, err := fixture.engine.ListSessions(context.Background(), principal)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	_, err = fixture.engine.Refresh(context.Background(), login.Tokens.RefreshToken, "", "")
	require.Error(t, err)

	result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "leah",
		Password:   "a freshly minted secret",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	// The token was consumed; replaying it is dead on arrival.
	err = fixture.engine.ResetPassword(context.Background(), resetToken, "yet another secret")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))
}

/*
TestEngine_RequestPasswordReset_UnknownEmail checks that an unknown email
reports success and sends nothing, so the endpoint cannot enumerate
accounts.
*/
func TestEngine_RequestPasswordReset_UnknownEmail(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "mallory", "mallory@northlink.net", testPassword)

	require.NoError(t, fixture.engine.RequestPasswordReset(context.Background(), "stranger@example.com"))
	assert.Empty(t, fixture.mailer.lastToken())
}

/*
TestEngine_ResetPassword_RejectsBadTokens checks the token gate: garbage,
wrong-type, and unsigned inputs are all rejected the same way.
*/
func TestEngine_ResetPassword_RejectsBadTokens(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "nina", "nina@northlink.net", testPassword)

	login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "nina",
		Password:   testPassword,
	})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":          "not.a.token",
		"empty":            "",
		"wrong_token_type": login.Tokens.AccessToken,
	} {
		t.Run(name, func(t *testing.T) {
			err := fixture.engine.ResetPassword(context.Background(), token, "irrelevant new secret")
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))
		})
	}
}

// outageSessionRepository simulates a storage outage on the lookups the
// refresh flow uses to classify a rotation miss.
type outageSessionRepository struct {
	*auth.MemorySessionRepository
	outage error
}

func (repository *outageSessionRepository) FindByTokenHash(_ context.Context, _ string) (*auth.Session, error) {
	return nil, repository.outage
}

func (repository *outageSessionRepository) FindActiveByPreviousTokenHash(_ context.Context, _ string) (*auth.Session, error) {
	return nil, repository.outage
}

/*
TestEngine_Refresh_StorageOutageFailsClosed checks that a storage
failure while classifying a rotation miss propagates as an error instead
of being reported to the client as a dead token.
*/
func TestEngine_Refresh_StorageOutageFailsClosed(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	outage := errors.New("connection timed out")

	engine := auth.NewEngine(
		fixture.credentials,
		fixture.methods,
		&outageSessionRepository{MemorySessionRepository: fixture.sessions, outage: outage},
		fixture.resetTokens,
		nil,
		nil,
		fixture.tokens,
		fixture.mfa,
		auth.Options{},
	)

	_, err := engine.Refresh(context.Background(), "never-issued-token", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.False(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))
	assert.False(t, apperr.HasCode(err, "REFRESH_REUSE_DETECTED"))
}

/*
TestEngine_ResetPassword_EmailBinding checks that a reset token dies
when the account's email changes between issuance and consumption.
*/
func TestEngine_ResetPassword_EmailBinding(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	principal := fixture.seedSubscriber(t, "paula", "paula@northlink.net", testPassword)

	require.NoError(t, fixture.engine.RequestPasswordReset(context.Background(), "paula@northlink.net"))
	resetToken := fixture.mailer.lastToken()
	require.NotEmpty(t, resetToken)

	// The principal's email changes after the token went out: a newer
	// credential row now carries the new address.
	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, fixture.credentials.Create(context.Background(), &auth.Credential{
		ID:           uuid.New(),
		Principal:    principal,
		Provider:     auth.ProviderLocal,
		Username:     "paula-renamed",
		PasswordHash: hash,
		Email:        "paula.new@northlink.net",
		DisplayName:  "Test Subscriber",
		IsActive:     true,
		CreatedAt:    time.Now().UTC().Add(time.Hour),
	}))

	err = fixture.engine.ResetPassword(context.Background(), resetToken, "a freshly minted secret")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_OR_EXPIRED_TOKEN"))

	// The old password still works: the stale token changed nothing.
	result, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "paula",
		Password:   testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}

/*
TestEngine_PurgeExpiredSessions checks the janitor path end to end
through the engine.
*/
func TestEngine_PurgeExpiredSessions(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{RefreshTokenTTL: 10 * time.Millisecond})
	fixture.seedSubscriber(t, "oscar", "oscar@northlink.net", testPassword)

	login, err := fixture.engine.Login(context.Background(), auth.LoginInput{
		Identifier: "oscar",
		Password:   testPassword,
	})
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	deleted, err := fixture.engine.PurgeExpiredSessions(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = fixture.sessions.FindByID(context.Background(), login.Tokens.SessionID)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_NOT_FOUND"))
}
