// internal/domain/models/wizard.go
package models

// StepID identifies a state of the registration wizard.
type StepID string

const (
	StepLogin        StepID = "login"
	StepOtp          StepID = "otp"
	StepProfile      StepID = "profile"
	StepAddress      StepID = "address"
	StepVerification StepID = "verification"
	StepComplete     StepID = "complete"
)

// OAuthAssertion carries the canonical profile fields asserted by an
// external identity provider. When present on the wizard state, the
// profile step pre-fills from it and treats email/photo as read-only.
type OAuthAssertion struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url"`
}

// ProfileDraft is the output of the profile step before registration.
type ProfileDraft struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Gender      Gender `json:"gender"`
	DateOfBirth string `json:"date_of_birth"` // DD/MM/YYYY
	Password    string `json:"-"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// WizardState is the single owned state object for the registration wizard.
//
// It advances monotonically forward on success, can move exactly one step
// backward via an explicit "go back", and is discarded once StepComplete
// is reached (superseded by the Session).
type WizardState struct {
	Step StepID `json:"step"`

	Phone   string          `json:"phone,omitempty"`
	OAuth   *OAuthAssertion `json:"oauth,omitempty"`
	Profile ProfileDraft    `json:"profile"`
	Address AddressDraft    `json:"address"`

	// RequiresEmailConfirmation routes Address -> Verification instead of
	// Address -> Complete. Set when the entry path created a pending
	// principal whose email has not yet been confirmed.
	RequiresEmailConfirmation bool `json:"requires_email_confirmation,omitempty"`
}

// NewWizardState returns the wizard's sole initial state.
func NewWizardState() WizardState {
	return WizardState{Step: StepLogin}
}
