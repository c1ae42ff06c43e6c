// internal/domain/models/user.go
package models

// VerificationStatus tracks where a principal's email sits in the
// confirmation lifecycle.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
)

// Gender is the closed set offered by the profile step.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// AllGenders lists every selectable gender value. Used for validation.
var AllGenders = []Gender{GenderMale, GenderFemale, GenderOther}

// ValidGender reports whether g is a member of the closed set.
func ValidGender(g Gender) bool {
	for _, v := range AllGenders {
		if g == v {
			return true
		}
	}
	return false
}

// UserProfile is the cached profile snapshot for the signed-in principal.
//
// Email and PhotoURL may be pre-seeded from an OAuth assertion, in which
// case the profile step treats them as read-only.
type UserProfile struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Phone              string             `json:"phone"`
	Gender             Gender             `json:"gender,omitempty"`
	DateOfBirth        string             `json:"date_of_birth,omitempty"` // DD/MM/YYYY
	PhotoURL           string             `json:"photo_url,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
}
