// internal/app/features/wizard/wizard.go

// Package wizard drives the member onboarding flow: sign-in or sign-up
// entry, phone verification, profile capture, address capture, and the
// registration call that creates the principal.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/app/api"
	"github.com/memberlink/memberlink/internal/app/system/media"
	"github.com/memberlink/memberlink/internal/app/system/timeouts"
	"github.com/memberlink/memberlink/internal/domain/models"
)

var (
	// ErrInvalidTransition is returned when an operation is called in
	// a step that does not allow it.
	ErrInvalidTransition = errors.New("wizard: operation not valid in current step")
	// ErrValidation is returned alongside a FieldErrors map when form
	// input is rejected.
	ErrValidation = errors.New("wizard: validation failed")
)

// FieldErrors maps a form field name to its validation message. Every
// invalid field is reported in one pass so the user fixes the form
// once, not field by field.
type FieldErrors map[string]string

// Backend is the slice of the API client the wizard needs.
type Backend interface {
	Register(ctx context.Context, req api.RegistrationRequest) (api.AuthResult, error)
	Login(ctx context.Context, email, password string) (api.AuthResult, error)
	UpdateProfile(ctx context.Context, token string, req api.ProfileUpdateRequest) (models.UserProfile, error)
}

// SessionStore persists the session produced by registration or login.
type SessionStore interface {
	SaveSession(ctx context.Context, sess models.Session) error
}

// Wizard is the onboarding state machine. All methods are safe for the
// single-goroutine UI driver; the wizard does not lock internally.
type Wizard struct {
	API      Backend
	Store    SessionStore
	Verifier CodeVerifier
	Uploader media.Uploader
	Log      *zap.Logger

	state   models.WizardState
	editing bool
	token   string
}

// New creates a wizard at the sign-in step.
func New(backend Backend, store SessionStore, verifier CodeVerifier, uploader media.Uploader, logger *zap.Logger) *Wizard {
	return &Wizard{
		API:      backend,
		Store:    store,
		Verifier: verifier,
		Uploader: uploader,
		Log:      logger,
		state:    models.NewWizardState(),
	}
}

// State returns a copy of the current wizard state.
func (w *Wizard) State() models.WizardState {
	return w.state
}

// Step returns the current step.
func (w *Wizard) Step() models.StepID {
	return w.state.Step
}

/*─────────────────────────────────────────────────────────────────────────────*
| Entry points                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// SignIn performs password sign-in for a returning member. On success
// the session is persisted before the wizard reports completion, so a
// crash between the two can never strand an authenticated user.
func (w *Wizard) SignIn(ctx context.Context, email, password string) error {
	if w.state.Step != models.StepLogin {
		return ErrInvalidTransition
	}

	fields := FieldErrors{}
	if !emailPattern.MatchString(email) {
		fields["email"] = "enter a valid email address"
	}
	if password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	result, err := w.API.Login(reqCtx, email, password)
	if err != nil {
		return err
	}
	if err := w.persist(ctx, result); err != nil {
		return err
	}

	w.state.Step = models.StepComplete
	w.Log.Info("member signed in", zap.String("email", email))
	return nil
}

// SubmitPhone starts the phone sign-up path. The OTP screen follows.
func (w *Wizard) SubmitPhone(ctx context.Context, phone string) error {
	if w.state.Step != models.StepLogin {
		return ErrInvalidTransition
	}
	if !phonePattern.MatchString(phone) {
		return &ValidationError{Fields: FieldErrors{"phone": "enter a valid phone number"}}
	}

	w.state.Phone = phone
	w.state.Step = models.StepOtp
	return nil
}

// BeginEmailSignup starts the email sign-up path. Email principals must
// confirm their address, so the verification step is queued for after
// registration.
func (w *Wizard) BeginEmailSignup() error {
	if w.state.Step != models.StepLogin {
		return ErrInvalidTransition
	}
	w.state.RequiresEmailConfirmation = true
	w.state.Step = models.StepProfile
	return nil
}

// AcceptOAuth consumes a completed Google sync. A new principal
// continues to the profile step with the provider's assertion
// prefilled; a returning one is already signed in and the wizard
// completes.
func (w *Wizard) AcceptOAuth(isNewPrincipal bool, assertion models.OAuthAssertion) error {
	if w.state.Step != models.StepLogin {
		return ErrInvalidTransition
	}

	if !isNewPrincipal {
		w.state.Step = models.StepComplete
		return nil
	}

	w.state.OAuth = &assertion
	w.state.Profile.Name = assertion.Name
	w.state.Profile.Email = assertion.Email
	w.state.Profile.PhotoURL = assertion.PhotoURL
	w.state.Step = models.StepProfile
	return nil
}

// BeginEdit restarts the wizard at the profile step prefilled from the
// signed-in member's profile. SubmitProfile then updates the backend
// record instead of queueing a new registration.
func (w *Wizard) BeginEdit(sess models.Session) {
	w.state = models.NewWizardState()
	w.state.Profile = models.ProfileDraft{
		Name:        sess.Profile.Name,
		Email:       sess.Profile.Email,
		Phone:       sess.Profile.Phone,
		Gender:      sess.Profile.Gender,
		DateOfBirth: sess.Profile.DateOfBirth,
		PhotoURL:    sess.Profile.PhotoURL,
	}
	w.state.Step = models.StepProfile
	w.editing = true
	w.token = sess.Token
}

/*─────────────────────────────────────────────────────────────────────────────*
| OTP                                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

var otpPattern = regexp.MustCompile(`^\d{6}$`)

// SubmitOTP checks the one-time code. A code that is not exactly six
// digits is rejected locally; the verifier is never consulted for it.
func (w *Wizard) SubmitOTP(ctx context.Context, code string) error {
	if w.state.Step != models.StepOtp {
		return ErrInvalidTransition
	}
	if !otpPattern.MatchString(code) {
		return &ValidationError{Fields: FieldErrors{"otp": "enter the 6-digit code"}}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	if err := w.Verifier.Verify(reqCtx, w.state.Phone, code); err != nil {
		return err
	}

	w.state.Profile.Phone = w.state.Phone
	w.state.Step = models.StepProfile
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Profile                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)
)

// dateOfBirthLayout is the display form the backend also expects.
const dateOfBirthLayout = "02/01/2006"

// SubmitProfile validates and stores the profile form. photo, when
// non-nil, is uploaded best-effort: a failed upload logs a warning and
// the flow continues without a photo rather than blocking sign-up.
func (w *Wizard) SubmitProfile(ctx context.Context, draft models.ProfileDraft, photoName string, photo io.Reader) error {
	if w.state.Step != models.StepProfile {
		return ErrInvalidTransition
	}

	if fields := w.validateProfile(draft); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	if photo != nil && w.Uploader != nil {
		upCtx, cancel := context.WithTimeout(ctx, timeouts.Long())
		url, err := w.Uploader.Upload(upCtx, photoName, photo)
		cancel()
		if err != nil {
			w.Log.Warn("profile photo upload failed, continuing without photo", zap.Error(err))
		} else {
			draft.PhotoURL = url
		}
	}

	w.state.Profile = draft

	if w.editing {
		return w.applyEdit(ctx, draft)
	}

	w.state.Step = models.StepAddress
	return nil
}

// applyEdit pushes an edited profile to the backend and re-persists the
// session with the stored result.
func (w *Wizard) applyEdit(ctx context.Context, draft models.ProfileDraft) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	updated, err := w.API.UpdateProfile(reqCtx, w.token, api.ProfileUpdateRequest{
		Name:        draft.Name,
		Phone:       draft.Phone,
		Gender:      draft.Gender,
		DateOfBirth: draft.DateOfBirth,
		PhotoURL:    draft.PhotoURL,
	})
	if err != nil {
		return fmt.Errorf("wizard: update profile: %w", err)
	}

	if err := w.persist(ctx, api.AuthResult{Token: w.token, Profile: updated}); err != nil {
		return err
	}

	w.state.Step = models.StepComplete
	w.Log.Info("profile updated", zap.String("email", updated.Email))
	return nil
}

func (w *Wizard) validateProfile(draft models.ProfileDraft) FieldErrors {
	fields := FieldErrors{}

	if draft.Name == "" {
		fields["name"] = "name is required"
	}
	if !emailPattern.MatchString(draft.Email) {
		fields["email"] = "enter a valid email address"
	}
	if !phonePattern.MatchString(draft.Phone) {
		fields["phone"] = "enter a valid phone number"
	}
	if !models.ValidGender(draft.Gender) {
		fields["gender"] = "select a gender"
	}
	if _, err := time.Parse(dateOfBirthLayout, draft.DateOfBirth); err != nil {
		fields["dob"] = "enter date of birth as DD/MM/YYYY"
	}
	// Every registration sets a password; only an edit of an existing
	// profile skips it.
	if !w.editing && len(draft.Password) < 6 {
		fields["password"] = "password must be at least 6 characters"
	}
	return fields
}

/*─────────────────────────────────────────────────────────────────────────────*
| Address and registration                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// ConfirmAddress accepts the captured address and registers the
// principal. The session is persisted in one atomic store write before
// the step advances.
func (w *Wizard) ConfirmAddress(ctx context.Context, addr models.AddressDraft) error {
	if w.state.Step != models.StepAddress {
		return ErrInvalidTransition
	}

	w.state.Address = addr

	req := api.RegistrationRequest{
		Name:        w.state.Profile.Name,
		Email:       w.state.Profile.Email,
		Phone:       w.state.Profile.Phone,
		Gender:      w.state.Profile.Gender,
		DateOfBirth: w.state.Profile.DateOfBirth,
		Password:    w.state.Profile.Password,
		PhotoURL:    w.state.Profile.PhotoURL,
		Address:     addr,
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	result, err := w.API.Register(reqCtx, req)
	if err != nil {
		return fmt.Errorf("wizard: register: %w", err)
	}
	if err := w.persist(ctx, result); err != nil {
		return err
	}

	if w.state.RequiresEmailConfirmation {
		w.state.Step = models.StepVerification
	} else {
		w.state.Step = models.StepComplete
	}

	w.Log.Info("member registered",
		zap.String("email", w.state.Profile.Email),
		zap.Bool("pending_email_confirmation", w.state.RequiresEmailConfirmation))
	return nil
}

// Verified advances past the verification step once the poller reports
// the email confirmed.
func (w *Wizard) Verified() error {
	if w.state.Step != models.StepVerification {
		return ErrInvalidTransition
	}
	w.state.Step = models.StepComplete
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Navigation                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// Back moves one step toward the entry point. The verification and
// complete steps have no back edge; registration has already happened.
func (w *Wizard) Back() error {
	switch w.state.Step {
	case models.StepOtp:
		w.state.Step = models.StepLogin
	case models.StepProfile:
		if w.state.OAuth != nil || w.state.RequiresEmailConfirmation {
			w.state.Step = models.StepLogin
		} else {
			w.state.Step = models.StepOtp
		}
	case models.StepAddress:
		w.state.Step = models.StepProfile
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Reset returns the wizard to a fresh sign-in step, dropping all
// collected state.
func (w *Wizard) Reset() {
	w.state = models.NewWizardState()
	w.editing = false
	w.token = ""
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (w *Wizard) persist(ctx context.Context, result api.AuthResult) error {
	saveCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	sess := models.Session{Token: result.Token, Profile: result.Profile}
	if err := w.Store.SaveSession(saveCtx, sess); err != nil {
		return fmt.Errorf("wizard: persist session: %w", err)
	}
	return nil
}

// ValidationError carries per-field messages for a rejected form.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wizard: %d invalid fields", len(e.Fields))
}

// Is lets errors.Is(err, ErrValidation) match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
