// Copyright (c) 2026 Northlink Communications. All rights reserved.

/*
HTTP delivery layer for the authentication engine.

# Architecture

The handler is a thin mediation layer between the web and the [Engine]:
  - Protocol: RESTful JSON under /api/v1/auth.
  - Security: Refresh tokens travel in an HttpOnly cookie for browser
    clients; API clients may carry them in the request body instead.
  - Verification: Strict input validation before anything reaches the engine.

Status codes, headers, and JSON shapes live here and nowhere else.
*/

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/northlink/atlas/internal/platform/constants"
	"github.com/northlink/atlas/internal/platform/middleware"
	requestutil "github.com/northlink/atlas/internal/platform/request"
	"github.com/northlink/atlas/internal/platform/respond"
	"github.com/northlink/atlas/internal/platform/validate"
)

// # Definitions & Constructors

// CookiePolicy controls how the refresh token cookie is written. The
// values are resolved once at startup from environment and persisted
// settings.
//
// MaxAge is in seconds. When zero, the cookie lifetime follows the
// refresh token's own expiry instead.
type CookiePolicy struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// DefaultCookiePolicy returns the development-friendly defaults: Lax,
// not Secure, scoped to the auth route tree.
func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		Name:     constants.DefaultRefreshCookieName,
		Path:     constants.DefaultRefreshCookiePath,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	}
}

// Handler implements the authentication HTTP endpoints.
type Handler struct {
	engine  *Engine
	mfa     *MFAService
	cookies CookiePolicy
}

// NewHandler constructs a [Handler] with its engine dependency.
func NewHandler(engine *Engine, mfa *MFAService, cookies CookiePolicy) *Handler {
	if cookies.Name == "" {
		cookies = DefaultCookiePolicy()
	}
	return &Handler{engine: engine, mfa: mfa, cookies: cookies}
}

// Routes returns a [chi.Router] with the authentication route tree.
//
// # Endpoints
//   - POST /login                   : Password login, may return an MFA challenge.
//   - POST /mfa/verify              : Completes a challenged login.
//   - POST /refresh                 : Rotates the refresh token.
//   - POST /logout                  : Revokes the presented session.
//   - POST /forgot-password         : Starts the reset flow.
//   - POST /reset-password          : Consumes a reset token.
//   - POST /change-password         : Authenticated password change.
//   - POST /mfa/setup               : Enrolls a TOTP method.
//   - POST /mfa/confirm             : Confirms and promotes a method.
//   - GET  /sessions                : Lists the caller's active sessions.
//   - POST /sessions/revoke-others  : Revokes all but the caller's session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/mfa/verify", handler.verifyMFA)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/change-password", handler.changePassword)
		r.Post("/mfa/setup", handler.setupMFA)
		r.Post("/mfa/confirm", handler.confirmMFA)
		r.Get("/sessions", handler.listSessions)
		r.Post("/sessions/revoke-others", handler.revokeOtherSessions)
	})

	return router
}

// # Request Payloads

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Provider   string `json:"provider,omitempty"`
}

type verifyMFARequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type setupMFARequest struct {
	Label string `json:"label,omitempty"`
}

type confirmMFARequest struct {
	MethodID string `json:"method_id"`
	Code     string `json:"code"`
}

// # Handlers

/*
login authenticates a password and opens a session or an MFA challenge.

POST /api/v1/auth/login

Request:
  - Body: loginRequest (Identifier, Password, optional Provider)

Response:
  - 200: LoginResult: tokens, or mfa_required with a challenge token
  - 401: INVALID_CREDENTIALS
  - 403: ACCOUNT_LOCKED / ACCOUNT_DISABLED
  - 428: PASSWORD_RESET_REQUIRED
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		MaxLen(FieldIdentifier, input.Identifier, MaxLoginIdentifierLen).
		Required(FieldPassword, input.Password)
	if input.Provider != "" {
		validator.OneOf(FieldProvider, input.Provider,
			string(ProviderLocal), string(ProviderSSO), string(ProviderRADIUS))
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.engine.Login(request.Context(), LoginInput{
		Identifier: input.Identifier,
		Password:   input.Password,
		Provider:   Provider(input.Provider),
		IPAddress:  clientIP(request),
		UserAgent:  truncate(request.UserAgent(), MaxUserAgentLen),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if result.Tokens != nil {
		handler.setRefreshCookie(writer, result.Tokens)
	}

	respond.OK(writer, result)
}

/*
verifyMFA completes a challenged login.

POST /api/v1/auth/mfa/verify

Request:
  - Body: verifyMFARequest (MFAToken, Code)

Response:
  - 200: LoginResult with tokens
  - 401: INVALID_OR_EXPIRED_TOKEN / INVALID_MFA_CODE
*/
func (handler *Handler) verifyMFA(writer http.ResponseWriter, request *http.Request) {
	var input verifyMFARequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldMFAToken, input.MFAToken).
		Required(FieldCode, input.Code).
		TOTPCode(FieldCode, input.Code)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.engine.VerifyMFA(request.Context(), VerifyMFAInput{
		MFAToken:  input.MFAToken,
		Code:      input.Code,
		IPAddress: clientIP(request),
		UserAgent: truncate(request.UserAgent(), MaxUserAgentLen),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, result.Tokens)
	respond.OK(writer, result)
}

/*
refresh rotates the refresh token and issues a fresh access token.

POST /api/v1/auth/refresh

Description: The refresh token is read from the cookie when present,
from the body otherwise. Reuse of a superseded token revokes the whole
session and clears the cookie.

Response:
  - 200: TokenPair
  - 401: INVALID_OR_EXPIRED_TOKEN / REFRESH_REUSE_DETECTED
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	refreshToken := handler.refreshTokenFrom(request)
	if refreshToken == "" {
		respond.Error(writer, request, ErrInvalidOrExpiredToken)
		return
	}

	tokens, err := handler.engine.Refresh(
		request.Context(),
		refreshToken,
		clientIP(request),
		truncate(request.UserAgent(), MaxUserAgentLen),
	)
	if err != nil {
		handler.clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, tokens)
	respond.OK(writer, tokens)
}

/*
logout revokes the session behind the presented refresh token.

POST /api/v1/auth/logout

Response:
  - 204: Session revoked
  - 404: SESSION_NOT_FOUND (unknown, superseded, or already-terminal token)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	refreshToken := handler.refreshTokenFrom(request)

	err := handler.engine.Logout(request.Context(), refreshToken)
	handler.clearRefreshCookie(writer)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
forgotPassword starts the password-reset flow.

POST /api/v1/auth/forgot-password

Description: Responds 202 whether or not the email maps to an account.

Request:
  - Body: forgotPasswordRequest (Email)

Response:
  - 202: Accepted
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.engine.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusAccepted, respond.SuccessEnvelope{Data: map[string]any{
		"message": "If the email is registered, a reset link has been sent.",
	}})
}

/*
resetPassword consumes a reset token and installs a new password.

POST /api/v1/auth/reset-password

Request:
  - Body: resetPasswordRequest (Token, NewPassword)

Response:
  - 200: Confirmation message
  - 401: INVALID_OR_EXPIRED_TOKEN
  - 404: ACCOUNT_NOT_FOUND
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, MinPasswordLength).
		MaxLen(FieldNewPassword, input.NewPassword, MaxPasswordLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.engine.ResetPassword(request.Context(), input.Token, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"message": "Password has been reset. All sessions were signed out.",
	})
}

/*
changePassword performs an authenticated password change.

POST /api/v1/auth/change-password

Description: Revokes every other session; the caller's own survives.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Confirmation message
  - 401: INVALID_CREDENTIALS
  - 422: PASSWORD_UNCHANGED
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, MinPasswordLength).
		MaxLen(FieldNewPassword, input.NewPassword, MaxPasswordLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, err := PrincipalFrom(PrincipalType(claims.PrincipalType), claims.PrincipalID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.engine.ChangePassword(request.Context(), ChangePasswordInput{
		Principal:       principal,
		SessionID:       claims.SessionID,
		CurrentPassword: input.CurrentPassword,
		NewPassword:     input.NewPassword,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"message": "Password changed. Other sessions were signed out.",
	})
}

/*
setupMFA enrolls a new TOTP method for the caller.

POST /api/v1/auth/mfa/setup

Response:
  - 201: MFASetup (secret and provisioning URI, shown once)
*/
func (handler *Handler) setupMFA(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input setupMFARequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.MaxLen(FieldLabel, input.Label, 100)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, err := PrincipalFrom(PrincipalType(claims.PrincipalType), claims.PrincipalID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setup, err := handler.mfa.Setup(request.Context(), principal, input.Label)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, setup)
}

/*
confirmMFA proves possession of an enrolled secret and promotes the
method to the caller's primary factor.

POST /api/v1/auth/mfa/confirm

Request:
  - Body: confirmMFARequest (MethodID, Code)

Response:
  - 200: MFAMethod
  - 401: INVALID_MFA_CODE
  - 404: MFA_METHOD_NOT_FOUND
  - 409: PRIMARY_MFA_CONFLICT
*/
func (handler *Handler) confirmMFA(writer http.ResponseWriter, request *http.Request) {
	if _, err := requestutil.RequiredClaims(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input confirmMFARequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldMethodID, input.MethodID).
		UUID(FieldMethodID, input.MethodID).
		Required(FieldCode, input.Code).
		TOTPCode(FieldCode, input.Code)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	method, err := handler.mfa.Confirm(request.Context(), input.MethodID, input.Code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, method)
}

/*
listSessions returns the caller's active sessions, newest first.

GET /api/v1/auth/sessions

Response:
  - 200: []Session
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, err := PrincipalFrom(PrincipalType(claims.PrincipalType), claims.PrincipalID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.engine.ListSessions(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
revokeOtherSessions terminates every session except the caller's own.

POST /api/v1/auth/sessions/revoke-others

Response:
  - 200: Count of revoked sessions
*/
func (handler *Handler) revokeOtherSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, err := PrincipalFrom(PrincipalType(claims.PrincipalType), claims.PrincipalID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, err := handler.engine.RevokeOtherSessions(request.Context(), principal, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{"revoked": revoked})
}

// # Transport Helpers

// refreshTokenFrom extracts the refresh token, cookie first, body second.
func (handler *Handler) refreshTokenFrom(request *http.Request) string {
	if cookie, err := request.Cookie(handler.cookies.Name); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err == nil {
		return input.RefreshToken
	}

	return ""
}

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, tokens *TokenPair) {
	cookie := &http.Cookie{
		Name:     handler.cookies.Name,
		Value:    tokens.RefreshToken,
		Domain:   handler.cookies.Domain,
		Path:     handler.cookies.Path,
		Secure:   handler.cookies.Secure,
		HttpOnly: true,
		SameSite: handler.cookies.SameSite,
	}
	if handler.cookies.MaxAge > 0 {
		cookie.MaxAge = handler.cookies.MaxAge
	} else {
		cookie.Expires = tokens.RefreshExpiresAt
	}
	http.SetCookie(writer, cookie)
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     handler.cookies.Name,
		Value:    "",
		Domain:   handler.cookies.Domain,
		Path:     handler.cookies.Path,
		MaxAge:   -1,
		Secure:   handler.cookies.Secure,
		HttpOnly: true,
		SameSite: handler.cookies.SameSite,
	})
}

// clientIP extracts the caller's address, preferring proxy headers.
func clientIP(request *http.Request) string {
	if ip := request.Header.Get(constants.HeaderXRealIP); ip != "" {
		return ip
	}
	if ip := request.Header.Get(constants.HeaderXForwardedFor); ip != "" {
		return ip
	}
	return request.RemoteAddr
}

func truncate(value string, max int) string {
	if len(value) > max {
		return value[:max]
	}
	return value
}
