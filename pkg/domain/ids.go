package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "creditengine/pkg/domain-errors"
)

// Typed identifiers keep applications, decisions and documents from being
// mixed up at compile time. Relationships between aggregates are expressed with
// these IDs rather than embedded pointers.
type (
	UserID         uuid.UUID
	ApplicationID  uuid.UUID
	DecisionID     uuid.UUID
	DocumentID     uuid.UUID
	VerificationID uuid.UUID
)

const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is too long", kind)
	}
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be nil", kind)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID("application id", s)
	return ApplicationID(u), err
}

func ParseDecisionID(s string) (DecisionID, error) {
	u, err := parseUUID("decision id", s)
	return DecisionID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document id", s)
	return DocumentID(u), err
}

func NewApplicationID() ApplicationID   { return ApplicationID(uuid.New()) }
func NewDecisionID() DecisionID         { return DecisionID(uuid.New()) }
func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id ApplicationID) String() string  { return uuid.UUID(id).String() }
func (id DecisionID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DecisionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
