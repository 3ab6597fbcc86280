// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlink/atlas/internal/auth"
)

func loginThrough(t *testing.T, handler *auth.Handler, identifier, password string) *httptest.ResponseRecorder {
	t.Helper()

	body := `{"identifier":"` + identifier + `","password":"` + password + `"}`
	request := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	handler.Routes().ServeHTTP(recorder, request)
	return recorder
}

func refreshCookieOf(t *testing.T, recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("no %q cookie in response", name)
	return nil
}

/*
TestHandler_RefreshCookieLifetime checks how the cookie policy shapes
the refresh cookie: a configured max-age wins, otherwise the cookie
expires with the refresh token itself.
*/
func TestHandler_RefreshCookieLifetime(t *testing.T) {
	fixture := newEngineFixture(t, auth.Options{})
	fixture.seedSubscriber(t, "quinn", "quinn@northlink.net", testPassword)

	t.Run("configured_max_age", func(t *testing.T) {
		policy := auth.DefaultCookiePolicy()
		policy.MaxAge = 3600
		handler := auth.NewHandler(fixture.engine, fixture.mfa, policy)

		recorder := loginThrough(t, handler, "quinn", testPassword)
		require.Equal(t, http.StatusOK, recorder.Code)

		cookie := refreshCookieOf(t, recorder, policy.Name)
		assert.Equal(t, 3600, cookie.MaxAge)
		assert.True(t, cookie.Expires.IsZero())
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, policy.Path, cookie.Path)
	})

	t.Run("default_follows_token_expiry", func(t *testing.T) {
		handler := auth.NewHandler(fixture.engine, fixture.mfa, auth.DefaultCookiePolicy())

		recorder := loginThrough(t, handler, "quinn", testPassword)
		require.Equal(t, http.StatusOK, recorder.Code)

		cookie := refreshCookieOf(t, recorder, auth.DefaultCookiePolicy().Name)
		assert.Zero(t, cookie.MaxAge)
		assert.False(t, cookie.Expires.IsZero())
	})
}
