package wizard_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/memberlink/memberlink/internal/app/api"
	"github.com/memberlink/memberlink/internal/app/features/wizard"
	"github.com/memberlink/memberlink/internal/domain/models"
)

type fakeBackend struct {
	mu         sync.Mutex
	events     []string
	loginErr   error
	regErr     error
	registered api.RegistrationRequest
}

func (b *fakeBackend) Register(ctx context.Context, req api.RegistrationRequest) (api.AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "register")
	b.registered = req
	if b.regErr != nil {
		return api.AuthResult{}, b.regErr
	}
	return api.AuthResult{
		Token:   "tok-reg",
		Profile: models.UserProfile{Name: req.Name, Email: req.Email},
	}, nil
}

func (b *fakeBackend) Login(ctx context.Context, email, password string) (api.AuthResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "login")
	if b.loginErr != nil {
		return api.AuthResult{}, b.loginErr
	}
	return api.AuthResult{Token: "tok-login", Profile: models.UserProfile{Email: email}}, nil
}

func (b *fakeBackend) UpdateProfile(ctx context.Context, token string, req api.ProfileUpdateRequest) (models.UserProfile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "update")
	return models.UserProfile{Name: req.Name, Email: "ada@example.org"}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	events *fakeBackend // shared event log
	saved  []models.Session
	err    error
}

func (s *fakeStore) SaveSession(ctx context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		s.events.mu.Lock()
		s.events.events = append(s.events.events, "persist")
		s.events.mu.Unlock()
	}
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, sess)
	return nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (v *fakeVerifier) Verify(ctx context.Context, phone, code string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

type fakeUploader struct {
	url string
	err error
}

func (u *fakeUploader) Upload(ctx context.Context, name string, data io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

func newTestWizard(t *testing.T) (*wizard.Wizard, *fakeBackend, *fakeStore, *fakeVerifier) {
	t.Helper()
	backend := &fakeBackend{}
	store := &fakeStore{events: backend}
	verifier := &fakeVerifier{}
	w := wizard.New(backend, store, verifier, &fakeUploader{url: "https://cdn/p.jpg"}, zap.NewNop())
	return w, backend, store, verifier
}

func validProfile() models.ProfileDraft {
	return models.ProfileDraft{
		Name:        "Ada Lovelace",
		Email:       "ada@example.org",
		Phone:       "+15551234567",
		Gender:      models.GenderFemale,
		DateOfBirth: "10/12/1815",
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Phone and OTP path                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

func TestPhonePath(t *testing.T) {
	w, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	if err := w.SubmitPhone(ctx, "+15551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	if got := w.Step(); got != models.StepOtp {
		t.Fatalf("Step = %q, want %q", got, models.StepOtp)
	}

	if err := w.SubmitOTP(ctx, "123456"); err != nil {
		t.Fatalf("SubmitOTP failed: %v", err)
	}
	if got := w.Step(); got != models.StepProfile {
		t.Errorf("Step = %q, want %q", got, models.StepProfile)
	}
	if got := w.State().Profile.Phone; got != "+15551234567" {
		t.Errorf("Profile.Phone = %q, want the submitted phone", got)
	}
}

func TestSubmitOTP_ShortCodeNeverReachesVerifier(t *testing.T) {
	w, _, _, verifier := newTestWizard(t)
	ctx := context.Background()

	if err := w.SubmitPhone(ctx, "+15551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}

	for _, code := range []string{"123", "", "12345", "1234567", "12345a"} {
		err := w.SubmitOTP(ctx, code)
		if !errors.Is(err, wizard.ErrValidation) {
			t.Errorf("SubmitOTP(%q) err = %v, want validation error", code, err)
		}
	}
	if verifier.calls != 0 {
		t.Errorf("verifier called %d times for malformed codes, want 0", verifier.calls)
	}
}

func TestSubmitOTP_WrongCode(t *testing.T) {
	w, _, _, verifier := newTestWizard(t)
	verifier.err = api.ErrInvalidCode
	ctx := context.Background()

	if err := w.SubmitPhone(ctx, "+15551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	if err := w.SubmitOTP(ctx, "654321"); !errors.Is(err, api.ErrInvalidCode) {
		t.Errorf("SubmitOTP err = %v, want ErrInvalidCode", err)
	}
	if got := w.Step(); got != models.StepOtp {
		t.Errorf("Step after rejected code = %q, want to stay at %q", got, models.StepOtp)
	}
}

func TestBackendVerifier_TestCode(t *testing.T) {
	otp := &otpRecorder{}
	v := &wizard.BackendVerifier{API: otp, TestCode: "123456", Log: zap.NewNop()}

	if err := v.Verify(context.Background(), "+15551234567", "123456"); err != nil {
		t.Fatalf("Verify with test code failed: %v", err)
	}
	if otp.calls != 0 {
		t.Errorf("backend consulted %d times for the test code, want 0", otp.calls)
	}

	if err := v.Verify(context.Background(), "+15551234567", "999999"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if otp.calls != 1 {
		t.Errorf("backend consulted %d times for a real code, want 1", otp.calls)
	}
}

type otpRecorder struct{ calls int }

func (o *otpRecorder) VerifyOTP(ctx context.Context, phone, code string) error {
	o.calls++
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Profile validation                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

func TestSubmitProfile_AllInvalidFieldsReported(t *testing.T) {
	w, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	if err := w.BeginEmailSignup(); err != nil {
		t.Fatalf("BeginEmailSignup failed: %v", err)
	}

	err := w.SubmitProfile(ctx, models.ProfileDraft{
		Name:        "",
		Email:       "not-an-email",
		Phone:       "abc",
		Gender:      "unknown",
		DateOfBirth: "1815-12-10",
		Password:    "pw",
	}, "", nil)

	var verr *wizard.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SubmitProfile err = %v, want ValidationError", err)
	}
	for _, field := range []string{"name", "email", "phone", "gender", "dob", "password"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("Fields missing %q; got %v", field, verr.Fields)
		}
	}
}

func TestSubmitProfile_PhonePathRequiresPassword(t *testing.T) {
	w, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	if err := w.SubmitPhone(ctx, "+15551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	if err := w.SubmitOTP(ctx, "123456"); err != nil {
		t.Fatalf("SubmitOTP failed: %v", err)
	}

	err := w.SubmitProfile(ctx, validProfile(), "", nil)

	var verr *wizard.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SubmitProfile err = %v, want ValidationError", err)
	}
	if _, ok := verr.Fields["password"]; !ok {
		t.Errorf("Fields missing %q; got %v", "password", verr.Fields)
	}
	if got := w.Step(); got != models.StepProfile {
		t.Errorf("Step = %q, want %q", got, models.StepProfile)
	}
}

func TestSubmitProfile_PhotoUploadFailureIsNotFatal(t *testing.T) {
	backend := &fakeBackend{}
	store := &fakeStore{}
	w := wizard.New(backend, store, &fakeVerifier{}, &fakeUploader{err: errors.New("cdn down")}, zap.NewNop())
	ctx := context.Background()

	if err := w.BeginEmailSignup(); err != nil {
		t.Fatalf("BeginEmailSignup failed: %v", err)
	}

	draft := validProfile()
	draft.Password = "hunter22"
	if err := w.SubmitProfile(ctx, draft, "p.jpg", strings.NewReader("img")); err != nil {
		t.Fatalf("SubmitProfile failed despite best-effort upload: %v", err)
	}
	if got := w.State().Profile.PhotoURL; got != "" {
		t.Errorf("PhotoURL = %q, want empty after failed upload", got)
	}
	if got := w.Step(); got != models.StepAddress {
		t.Errorf("Step = %q, want %q", got, models.StepAddress)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| OAuth entry                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func TestAcceptOAuth_NewPrincipal(t *testing.T) {
	w, _, _, _ := newTestWizard(t)

	assertion := models.OAuthAssertion{Name: "Ada", Email: "ada@example.org", PhotoURL: "https://p/1.jpg"}
	if err := w.AcceptOAuth(true, assertion); err != nil {
		t.Fatalf("AcceptOAuth failed: %v", err)
	}
	if got := w.Step(); got != models.StepProfile {
		t.Errorf("Step = %q, want %q", got, models.StepProfile)
	}
	if got := w.State().Profile.Email; got != "ada@example.org" {
		t.Errorf("Profile.Email = %q, want prefilled assertion email", got)
	}
}

func TestAcceptOAuth_ReturningPrincipal(t *testing.T) {
	w, _, _, _ := newTestWizard(t)

	if err := w.AcceptOAuth(false, models.OAuthAssertion{}); err != nil {
		t.Fatalf("AcceptOAuth failed: %v", err)
	}
	if got := w.Step(); got != models.StepComplete {
		t.Errorf("Step = %q, want %q", got, models.StepComplete)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Registration                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func advanceToAddress(t *testing.T, w *wizard.Wizard, emailSignup bool) {
	t.Helper()
	ctx := context.Background()

	if emailSignup {
		if err := w.BeginEmailSignup(); err != nil {
			t.Fatalf("BeginEmailSignup failed: %v", err)
		}
	} else {
		if err := w.SubmitPhone(ctx, "+15551234567"); err != nil {
			t.Fatalf("SubmitPhone failed: %v", err)
		}
		if err := w.SubmitOTP(ctx, "123456"); err != nil {
			t.Fatalf("SubmitOTP failed: %v", err)
		}
	}

	draft := validProfile()
	draft.Password = "hunter22"
	if err := w.SubmitProfile(ctx, draft, "", nil); err != nil {
		t.Fatalf("SubmitProfile failed: %v", err)
	}
}

func TestConfirmAddress_PersistsBeforeCompleting(t *testing.T) {
	w, backend, store, _ := newTestWizard(t)
	advanceToAddress(t, w, false)

	err := w.ConfirmAddress(context.Background(), models.AddressDraft{
		Street: "1 Main St", City: "Springfield", Country: "US",
	})
	if err != nil {
		t.Fatalf("ConfirmAddress failed: %v", err)
	}

	want := []string{"register", "persist"}
	if len(backend.events) < 2 || backend.events[len(backend.events)-2] != want[0] || backend.events[len(backend.events)-1] != want[1] {
		t.Errorf("event order = %v, want register then persist", backend.events)
	}
	if len(store.saved) != 1 || store.saved[0].Token != "tok-reg" {
		t.Errorf("saved sessions = %+v, want one with the registration token", store.saved)
	}
	if got := w.Step(); got != models.StepComplete {
		t.Errorf("Step = %q, want %q", got, models.StepComplete)
	}
}

func TestConfirmAddress_EmailPathQueuesVerification(t *testing.T) {
	w, _, _, _ := newTestWizard(t)
	advanceToAddress(t, w, true)

	err := w.ConfirmAddress(context.Background(), models.AddressDraft{
		Street: "1 Main St", City: "Springfield", Country: "US",
	})
	if err != nil {
		t.Fatalf("ConfirmAddress failed: %v", err)
	}
	if got := w.Step(); got != models.StepVerification {
		t.Errorf("Step = %q, want %q", got, models.StepVerification)
	}
}

func TestConfirmAddress_RegisterFailureDoesNotPersist(t *testing.T) {
	w, backend, store, _ := newTestWizard(t)
	backend.regErr = errors.New("backend down")
	advanceToAddress(t, w, false)

	err := w.ConfirmAddress(context.Background(), models.AddressDraft{Street: "x", City: "y", Country: "z"})
	if err == nil {
		t.Fatal("ConfirmAddress should fail when registration fails")
	}
	if len(store.saved) != 0 {
		t.Errorf("sessions persisted after failed registration: %+v", store.saved)
	}
	if got := w.Step(); got != models.StepAddress {
		t.Errorf("Step = %q, want to stay at %q", got, models.StepAddress)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Sign-in, back edges, edit mode                                               |
*─────────────────────────────────────────────────────────────────────────────*/

func TestSignIn_PersistsBeforeCompleting(t *testing.T) {
	w, backend, store, _ := newTestWizard(t)

	if err := w.SignIn(context.Background(), "ada@example.org", "hunter22"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	want := []string{"login", "persist"}
	if len(backend.events) != 2 || backend.events[0] != want[0] || backend.events[1] != want[1] {
		t.Errorf("event order = %v, want %v", backend.events, want)
	}
	if len(store.saved) != 1 || store.saved[0].Token != "tok-login" {
		t.Errorf("saved = %+v, want the login session", store.saved)
	}
	if got := w.Step(); got != models.StepComplete {
		t.Errorf("Step = %q, want %q", got, models.StepComplete)
	}
}

func TestBackEdges(t *testing.T) {
	w, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	if err := w.Back(); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("Back at login err = %v, want ErrInvalidTransition", err)
	}

	if err := w.SubmitPhone(ctx, "+15551234567"); err != nil {
		t.Fatalf("SubmitPhone failed: %v", err)
	}
	if err := w.Back(); err != nil {
		t.Fatalf("Back from otp failed: %v", err)
	}
	if got := w.Step(); got != models.StepLogin {
		t.Errorf("Step = %q, want %q", got, models.StepLogin)
	}
}

func TestOperationsOutOfStep(t *testing.T) {
	w, _, _, _ := newTestWizard(t)
	ctx := context.Background()

	if err := w.SubmitOTP(ctx, "123456"); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("SubmitOTP at login err = %v, want ErrInvalidTransition", err)
	}
	if err := w.ConfirmAddress(ctx, models.AddressDraft{}); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("ConfirmAddress at login err = %v, want ErrInvalidTransition", err)
	}
	if err := w.Verified(); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("Verified at login err = %v, want ErrInvalidTransition", err)
	}
}

func TestBeginEdit_UpdatesInsteadOfRegistering(t *testing.T) {
	w, backend, store, _ := newTestWizard(t)
	ctx := context.Background()

	w.BeginEdit(models.Session{
		Token:   "tok-live",
		Profile: models.UserProfile{Name: "Ada", Email: "ada@example.org", Phone: "+15551234567", Gender: models.GenderFemale, DateOfBirth: "10/12/1815"},
	})
	if got := w.Step(); got != models.StepProfile {
		t.Fatalf("Step = %q, want %q", got, models.StepProfile)
	}

	draft := w.State().Profile
	draft.Name = "Ada King"
	if err := w.SubmitProfile(ctx, draft, "", nil); err != nil {
		t.Fatalf("SubmitProfile failed: %v", err)
	}

	if len(backend.events) == 0 || backend.events[0] != "update" {
		t.Errorf("events = %v, want update, not register", backend.events)
	}
	if len(store.saved) != 1 || store.saved[0].Token != "tok-live" {
		t.Errorf("saved = %+v, want re-persisted session with original token", store.saved)
	}
	if got := w.Step(); got != models.StepComplete {
		t.Errorf("Step = %q, want %q", got, models.StepComplete)
	}
}
