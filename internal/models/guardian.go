package models

import "time"

// GuardianRelationship enumerates the supported guardian relations.
type GuardianRelationship string

const (
	RelationFather        GuardianRelationship = "father"
	RelationMother        GuardianRelationship = "mother"
	RelationBrother       GuardianRelationship = "brother"
	RelationSister        GuardianRelationship = "sister"
	RelationUncle         GuardianRelationship = "uncle"
	RelationAunt          GuardianRelationship = "aunt"
	RelationGrandfather   GuardianRelationship = "grandfather"
	RelationGrandmother   GuardianRelationship = "grandmother"
	RelationLegalGuardian GuardianRelationship = "legal_guardian"
	RelationOther         GuardianRelationship = "other"
)

// Guardian is a contact person attached to an admission file. Exactly one
// guardian per file is the default; the first one created becomes default
// automatically.
type Guardian struct {
	ID              string               `db:"id" json:"id"`
	AdmissionFileID string               `db:"admission_file_id" json:"admission_file_id"`
	Name            string               `db:"name" json:"name"`
	Relationship    GuardianRelationship `db:"relationship" json:"relationship"`
	Phone           string               `db:"phone" json:"phone"`
	Email           string               `db:"email" json:"email,omitempty"`
	IsDefault       bool                 `db:"is_default" json:"is_default"`
	Active          bool                 `db:"active" json:"active"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
}
