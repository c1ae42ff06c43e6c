// internal/app/api/types.go
package api

import "github.com/memberlink/memberlink/internal/domain/models"

// ExternalIdentity is the payload for the identity-exchange endpoint,
// assembled from a third-party OAuth assertion.
type ExternalIdentity struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Photo      string `json:"photo"`
	ExternalID string `json:"externalId"`
}

// ExchangeResult is the backend's answer to an identity exchange.
type ExchangeResult struct {
	Token          string             `json:"token"`
	IsNewPrincipal bool               `json:"isNewPrincipal"`
	Profile        models.UserProfile `json:"profile"`
}

// RegistrationRequest is the full payload submitted when the wizard
// completes address capture.
type RegistrationRequest struct {
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Phone       string              `json:"phone"`
	Gender      models.Gender       `json:"gender"`
	DateOfBirth string              `json:"dob"`
	Password    string              `json:"password"`
	PhotoURL    string              `json:"profileImage,omitempty"`
	Address     models.AddressDraft `json:"address"`
}

// ProfileUpdateRequest is the payload for editing an existing profile.
type ProfileUpdateRequest struct {
	Name        string        `json:"name"`
	Phone       string        `json:"phone"`
	Gender      models.Gender `json:"gender"`
	DateOfBirth string        `json:"dob"`
	PhotoURL    string        `json:"profileImage,omitempty"`
}

// AuthResult is the success shape of registration and password sign-in.
type AuthResult struct {
	Token   string             `json:"token"`
	Profile models.UserProfile `json:"profile"`
}

// verificationStatusResponse is the success shape of the
// verification-status check.
type verificationStatusResponse struct {
	Verified bool `json:"verified"`
}

// apiError is the backend's error envelope.
type apiError struct {
	Message string `json:"message"`
}
