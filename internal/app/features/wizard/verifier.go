// internal/app/features/wizard/verifier.go

package wizard

import (
	"context"

	"go.uber.org/zap"
)

// CodeVerifier checks a one-time code for a phone number.
type CodeVerifier interface {
	Verify(ctx context.Context, phone, code string) error
}

// OTPBackend is the slice of the API client the verifier needs.
type OTPBackend interface {
	VerifyOTP(ctx context.Context, phone, code string) error
}

// BackendVerifier checks codes against the backend. When TestCode is
// set (staging builds), a matching code is accepted locally so review
// devices work without SMS delivery.
type BackendVerifier struct {
	API      OTPBackend
	TestCode string
	Log      *zap.Logger
}

func (v *BackendVerifier) Verify(ctx context.Context, phone, code string) error {
	if v.TestCode != "" && code == v.TestCode {
		v.Log.Debug("otp accepted via test code", zap.String("phone", phone))
		return nil
	}
	return v.API.VerifyOTP(ctx, phone, code)
}
