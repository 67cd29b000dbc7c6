package domain

// Role represents a member role in the association
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMembre Role = "MEMBRE"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMembre
}

// MemberStatus represents the standing of a member
type MemberStatus string

const (
	MemberActif   MemberStatus = "ACTIF"
	MemberInactif MemberStatus = "INACTIF"
	MemberBureau  MemberStatus = "BUREAU"
)

// Valid reports whether s is a known member status
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActif, MemberInactif, MemberBureau:
		return true
	}
	return false
}

// DuesStatus represents the lifecycle state of a dues record (cotisation)
type DuesStatus string

const (
	DuesAJour     DuesStatus = "A_JOUR"
	DuesExpire    DuesStatus = "EXPIRE"
	DuesEnAttente DuesStatus = "EN_ATTENTE"
)

// Valid reports whether s is a known dues status
func (s DuesStatus) Valid() bool {
	switch s {
	case DuesAJour, DuesExpire, DuesEnAttente:
		return true
	}
	return false
}

// MemberDuesState is the standing reported for a member's latest dues.
// It extends DuesStatus with the "no dues at all" case.
type MemberDuesState string

const (
	MemberDuesAJour  MemberDuesState = "A_JOUR"
	MemberDuesExpire MemberDuesState = "EXPIRE"
	MemberDuesNone   MemberDuesState = "AUCUNE_COTISATION"
)

// PaymentMode represents how a dues payment was made
type PaymentMode string

const (
	PaymentEspeces       PaymentMode = "ESPECES"
	PaymentCheque        PaymentMode = "CHEQUE"
	PaymentVirement      PaymentMode = "VIREMENT"
	PaymentCarteBancaire PaymentMode = "CARTE_BANCAIRE"
)

// Valid reports whether m is a known payment mode
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentEspeces, PaymentCheque, PaymentVirement, PaymentCarteBancaire:
		return true
	}
	return false
}

// RegistrationStatus represents the state of an event registration (inscription)
type RegistrationStatus string

const (
	RegistrationConfirmee RegistrationStatus = "CONFIRMEE"
	RegistrationEnAttente RegistrationStatus = "EN_ATTENTE"
	RegistrationAnnulee   RegistrationStatus = "ANNULEE"
)

// Actor is the identity on whose behalf an operation runs.
// MemberService.Authenticate produces it; self-service operations check it.
type Actor struct {
	MemberID string
	Role     Role
}

// NewActor returns the actor for an authenticated member
func NewActor(memberID string, role Role) Actor {
	return Actor{MemberID: memberID, Role: role}
}

// IsAdmin reports whether the actor holds the ADMIN role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanActFor reports whether the actor may operate on memberID's own resources
func (a Actor) CanActFor(memberID string) bool {
	return a.IsAdmin() || a.MemberID == memberID
}

// Authorize returns nil when the actor may act on memberID's resources.
// A zero actor is unauthenticated.
func (a Actor) Authorize(memberID string) error {
	if a.MemberID == "" {
		return ErrUnauthorized
	}
	if !a.CanActFor(memberID) {
		return ErrForbidden
	}
	return nil
}
