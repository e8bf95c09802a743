package models

import (
	id "refahi/pkg/domain"
	dErrors "refahi/pkg/domain-errors"
	"refahi/pkg/participanthash"
)

// ParticipantInfo identifies a respondent: either a known member or an
// anonymous participant carrying an opaque salted hash. Exactly one of the
// two identity channels is populated; the factories enforce the invariant.
type ParticipantInfo struct {
	IsAnonymous     bool
	MemberID        id.MemberID
	ParticipantHash string
}

// NewParticipantInfo builds a ParticipantInfo from raw identity channels and
// fails unless exactly one of memberID/hash is set.
func NewParticipantInfo(memberID id.MemberID, hash string) (ParticipantInfo, error) {
	hasMember := !memberID.IsNil()
	hasHash := hash != ""
	switch {
	case hasMember && hasHash:
		return ParticipantInfo{}, dErrors.New(dErrors.CodeInvariantViolation, "participant cannot carry both a member id and an anonymous hash")
	case !hasMember && !hasHash:
		return ParticipantInfo{}, dErrors.New(dErrors.CodeInvariantViolation, "participant requires either a member id or an anonymous hash")
	case hasMember:
		return ParticipantForMember(memberID)
	default:
		return ParticipantForAnonymous(hash)
	}
}

// ParticipantForMember builds the identity of a known member.
func ParticipantForMember(memberID id.MemberID) (ParticipantInfo, error) {
	if memberID.IsNil() {
		return ParticipantInfo{}, dErrors.New(dErrors.CodeInvariantViolation, "member participant requires a member id")
	}
	return ParticipantInfo{MemberID: memberID}, nil
}

// ParticipantForAnonymous builds the identity of an anonymous respondent from
// a pre-derived opaque hash (see pkg/participanthash).
func ParticipantForAnonymous(hash string) (ParticipantInfo, error) {
	if hash == "" {
		return ParticipantInfo{}, dErrors.New(dErrors.CodeInvariantViolation, "anonymous participant requires a hash")
	}
	return ParticipantInfo{IsAnonymous: true, ParticipantHash: hash}, nil
}

// Identifier returns a stable string key for deduplication and audit.
func (p ParticipantInfo) Identifier() string {
	if p.IsAnonymous {
		return p.ParticipantHash
	}
	return p.MemberID.String()
}

// ShortIdentifier returns a truncated (<=8 char) identifier for privacy-safe
// logging. For anonymous hashes this is the prefix used by the approximate
// interference check in the rules package.
func (p ParticipantInfo) ShortIdentifier() string {
	return participanthash.Short(p.Identifier())
}

// Key returns a namespaced identity key. Member and anonymous identities live
// in separate namespaces so collisions across the two spaces are impossible
// by construction.
func (p ParticipantInfo) Key() string {
	if p.IsAnonymous {
		return "anonymous_" + participanthash.Short(p.ParticipantHash)
	}
	return "member_" + p.MemberID.String()
}

// Equal reports structural equality over the full identity.
func (p ParticipantInfo) Equal(other ParticipantInfo) bool {
	return p.IsAnonymous == other.IsAnonymous &&
		p.MemberID == other.MemberID &&
		p.ParticipantHash == other.ParticipantHash
}
