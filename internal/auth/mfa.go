// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import (
	"context"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/northlink/atlas/internal/platform/apperr"
	"github.com/northlink/atlas/internal/platform/sec"
	"github.com/northlink/atlas/pkg/uuid"
)

// totpValidateOpts is the single verification window used everywhere:
// 30-second steps, six digits, SHA-1, and zero skew. A code is only
// accepted during the step it was generated in.
var totpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// MFASetup is what enrollment hands back to the client: the secret and
// provisioning URI are shown exactly once and never stored in the clear.
type MFASetup struct {
	MethodID        string `json:"method_id"`
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

/*
MFAService manages TOTP second factors: enrollment, confirmation, and
code verification. Secrets are encrypted with the service cipher before
they reach storage.
*/
type MFAService struct {
	methods MFAMethodRepository
	cipher  *sec.SecretCipher
	issuer  string
}

// NewMFAService wires an MFAService. The issuer names this deployment in
// authenticator apps.
func NewMFAService(methods MFAMethodRepository, cipher *sec.SecretCipher, issuer string) *MFAService {
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}
	return &MFAService{methods: methods, cipher: cipher, issuer: issuer}
}

/*
Setup enrolls a new, not-yet-enabled TOTP method for a principal.

Description: Generates a fresh seed, encrypts it for storage, and
returns the plaintext secret and otpauth:// URI for the client to load
into an authenticator. The method stays disabled and non-primary until
Confirm proves the client can produce codes from it.

Parameters:
  - context: context.Context
  - principal: Principal
  - label: string (account name shown in the authenticator)

Returns:
  - *MFASetup: Method id, plaintext secret, provisioning URI
  - error: Validation, cipher, or storage failures
*/
func (service *MFAService) Setup(context context.Context, principal Principal, label string) (*MFASetup, error) {
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	if label == "" {
		label = principal.ID()
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      service.issuer,
		AccountName: label,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	encryptedSecret, err := service.cipher.Encrypt(key.Secret())
	if err != nil {
		return nil, apperr.Configuration("failed to encrypt TOTP secret", err)
	}

	method := &MFAMethod{
		ID:         uuid.New(),
		Principal:  principal,
		MethodType: MethodTOTP,
		Label:      label,
		Secret:     encryptedSecret,
		Enabled:    false,
		IsPrimary:  false,
	}
	if err := service.methods.Create(context, method); err != nil {
		return nil, err
	}

	return &MFASetup{
		MethodID:        method.ID,
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}, nil
}

/*
Confirm proves possession of an enrolled secret and promotes the method
to the principal's enabled primary.

Parameters:
  - context: context.Context
  - methodID: string
  - code: string (current TOTP code)

Returns:
  - *MFAMethod: The promoted method
  - error: ErrMFAMethodNotFound, ErrInvalidMFACode, ErrPrimaryMFAConflict
*/
func (service *MFAService) Confirm(context context.Context, methodID string, code string) (*MFAMethod, error) {
	method, err := service.methods.FindByID(context, methodID)
	if err != nil {
		return nil, err
	}
	if method.MethodType != MethodTOTP {
		return nil, ErrMFAMethodNotFound
	}

	if err := service.validateCode(method, code); err != nil {
		return nil, err
	}

	return service.methods.Promote(context, methodID, time.Now().UTC())
}

/*
VerifyCode checks a login-time code against the principal's primary
TOTP method.

Parameters:
  - context: context.Context
  - principal: Principal
  - code: string

Returns:
  - error: ErrMFAMethodNotFound when nothing is enrolled,
    ErrInvalidMFACode when the code does not match the current step
*/
func (service *MFAService) VerifyCode(context context.Context, principal Principal, code string) error {
	method, err := service.methods.FindPrimary(context, principal, MethodTOTP)
	if err != nil {
		return err
	}

	return service.validateCode(method, code)
}

// Enrolled reports whether the principal has an enabled primary TOTP
// method, which is what gates login behind the MFA challenge.
func (service *MFAService) Enrolled(context context.Context, principal Principal) (bool, error) {
	_, err := service.methods.FindPrimary(context, principal, MethodTOTP)
	if err != nil {
		if apperr.HasCode(err, ErrMFAMethodNotFound.Code) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (service *MFAService) validateCode(method *MFAMethod, code string) error {
	secret, err := service.cipher.Decrypt(method.Secret)
	if err != nil {
		return apperr.Configuration("failed to decrypt TOTP secret", err)
	}

	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totpValidateOpts)
	if err != nil || !valid {
		return ErrInvalidMFACode
	}

	return nil
}
