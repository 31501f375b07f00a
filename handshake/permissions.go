package handshake

import "timebank/session"

type Role string

const (
	RoleNone     Role = ""
	RoleProvider Role = "provider"
	RoleSeeker   Role = "seeker"
)

// Permissions is the set of actions the signed-in user may take on a record,
// plus the waiting states the UI displays.
type Permissions struct {
	IsProvider           bool
	IsSeeker             bool
	CanAccept            bool
	CanDecline           bool
	CanConfirmCompletion bool
	IsWaitingOnPartner   bool
	CanChat              bool
	CanRate              bool
}

// Role resolves which party the user acts as. The provider role wins when the
// user appears on both sides of the record.
func (p Permissions) Role() Role {
	switch {
	case p.IsProvider:
		return RoleProvider
	case p.IsSeeker:
		return RoleSeeker
	default:
		return RoleNone
	}
}

// Participant reports whether the user is either party.
func (p Permissions) Participant() bool {
	return p.IsProvider || p.IsSeeker
}

// Evaluate computes the permissions of identity on record. It is a pure
// function of its inputs.
func Evaluate(record Record, identity session.Identity) Permissions {
	p := Permissions{
		IsProvider: identity.Matches(record.ProviderUsername),
		IsSeeker:   identity.Matches(record.SeekerUsername),
	}

	p.CanAccept = p.IsProvider && record.Status == StatusProposed
	p.CanDecline = p.CanAccept

	if record.Status.Active() {
		switch p.Role() {
		case RoleProvider:
			p.CanConfirmCompletion = !record.ProviderConfirmed
			p.IsWaitingOnPartner = record.ProviderConfirmed && !record.SeekerConfirmed
		case RoleSeeker:
			p.CanConfirmCompletion = !record.SeekerConfirmed
			p.IsWaitingOnPartner = record.SeekerConfirmed && !record.ProviderConfirmed
		}
	}

	// Declined is terminal: no conversation is opened for it either.
	p.CanChat = p.Participant() && record.Status != StatusProposed && !record.Status.Terminal()
	p.CanRate = p.Participant() && record.Status == StatusCompleted
	return p
}
