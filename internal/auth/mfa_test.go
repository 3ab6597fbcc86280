// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlink/atlas/internal/auth"
	"github.com/northlink/atlas/internal/platform/apperr"
	"github.com/northlink/atlas/internal/platform/sec"
	"github.com/northlink/atlas/pkg/uuid"
)

func newMFAService(t *testing.T) (*auth.MFAService, *auth.MemoryMFAMethodRepository) {
	t.Helper()

	cipher, err := sec.NewSecretCipher(testCipherKey)
	require.NoError(t, err)

	methods := auth.NewMemoryMFAMethodRepository()
	return auth.NewMFAService(methods, cipher, "Northlink Test"), methods
}

/*
TestMFAService_Setup checks enrollment output and that the stored secret
is encrypted, not the plaintext seed.
*/
func TestMFAService_Setup(t *testing.T) {
	service, methods := newMFAService(t)
	principal := auth.SubscriberPrincipal(uuid.New())

	setup, err := service.Setup(context.Background(), principal, "work phone")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.MethodID)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, setup.ProvisioningURI, "work%20phone")

	method, err := methods.FindByID(context.Background(), setup.MethodID)
	require.NoError(t, err)
	assert.False(t, method.Enabled)
	assert.False(t, method.IsPrimary)
	assert.NotEqual(t, setup.Secret, method.Secret)
	assert.False(t, strings.Contains(method.Secret, setup.Secret))
}

/*
TestMFAService_Confirm checks the possession proof: a valid code promotes
the method to enabled primary, a wrong code leaves it untouched.
*/
func TestMFAService_Confirm(t *testing.T) {
	service, methods := newMFAService(t)
	principal := auth.SubscriberPrincipal(uuid.New())

	setup, err := service.Setup(context.Background(), principal, "")
	require.NoError(t, err)

	_, err = service.Confirm(context.Background(), setup.MethodID, "000000")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_MFA_CODE"))

	method, err := methods.FindByID(context.Background(), setup.MethodID)
	require.NoError(t, err)
	assert.False(t, method.Enabled)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	promoted, err := service.Confirm(context.Background(), setup.MethodID, code)
	require.NoError(t, err)
	assert.True(t, promoted.Enabled)
	assert.True(t, promoted.IsPrimary)
	require.NotNil(t, promoted.VerifiedAt)

	enrolled, err := service.Enrolled(context.Background(), principal)
	require.NoError(t, err)
	assert.True(t, enrolled)
}

/*
TestMFAService_Confirm_UnknownMethod checks the not-found path.
*/
func TestMFAService_Confirm_UnknownMethod(t *testing.T) {
	service, _ := newMFAService(t)

	_, err := service.Confirm(context.Background(), uuid.New(), "123456")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "MFA_METHOD_NOT_FOUND"))
}

/*
TestMFAService_ConfirmSecondDevice checks that confirming a newer method
demotes the previous primary instead of conflicting with it.
*/
func TestMFAService_ConfirmSecondDevice(t *testing.T) {
	service, methods := newMFAService(t)
	principal := auth.SubscriberPrincipal(uuid.New())

	first, err := service.Setup(context.Background(), principal, "old phone")
	require.NoError(t, err)
	code, err := totp.GenerateCode(first.Secret, time.Now())
	require.NoError(t, err)
	_, err = service.Confirm(context.Background(), first.MethodID, code)
	require.NoError(t, err)

	second, err := service.Setup(context.Background(), principal, "new phone")
	require.NoError(t, err)
	code, err = totp.GenerateCode(second.Secret, time.Now())
	require.NoError(t, err)
	_, err = service.Confirm(context.Background(), second.MethodID, code)
	require.NoError(t, err)

	demoted, err := methods.FindByID(context.Background(), first.MethodID)
	require.NoError(t, err)
	assert.False(t, demoted.IsPrimary)

	primary, err := methods.FindPrimary(context.Background(), principal, auth.MethodTOTP)
	require.NoError(t, err)
	assert.Equal(t, second.MethodID, primary.ID)
}

/*
TestMFAService_VerifyCode covers login-time verification: valid code,
wrong code, and a principal with nothing enrolled.
*/
func TestMFAService_VerifyCode(t *testing.T) {
	service, _ := newMFAService(t)
	principal := auth.SubscriberPrincipal(uuid.New())

	err := service.VerifyCode(context.Background(), principal, "123456")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "MFA_METHOD_NOT_FOUND"))

	setup, err := service.Setup(context.Background(), principal, "")
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	_, err = service.Confirm(context.Background(), setup.MethodID, code)
	require.NoError(t, err)

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, service.VerifyCode(context.Background(), principal, code))

	err = service.VerifyCode(context.Background(), principal, "000000")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "INVALID_MFA_CODE"))
}

/*
TestMemoryMFAMethodRepository_PrimaryConflict checks the single-primary
invariant at the repository boundary.
*/
func TestMemoryMFAMethodRepository_PrimaryConflict(t *testing.T) {
	methods := auth.NewMemoryMFAMethodRepository()
	principal := auth.StaffPrincipal(uuid.New())

	require.NoError(t, methods.Create(context.Background(), &auth.MFAMethod{
		ID:         uuid.New(),
		Principal:  principal,
		MethodType: auth.MethodTOTP,
		Secret:     "sealed-a",
		Enabled:    true,
		IsPrimary:  true,
	}))

	err := methods.Create(context.Background(), &auth.MFAMethod{
		ID:         uuid.New(),
		Principal:  principal,
		MethodType: auth.MethodTOTP,
		Secret:     "sealed-b",
		Enabled:    true,
		IsPrimary:  true,
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "PRIMARY_MFA_CONFLICT"))
}
