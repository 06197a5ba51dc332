package types

import (
	"strings"
	"time"
)

// Gender values accepted by the record API.
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

// PatientRecord is the structured patient data extracted from the EMR and
// consumed by the record API and the injection payload builder.
type PatientRecord struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	BirthDate         string `json:"birth_date"` // YYYY-MM-DD
	Gender            string `json:"gender"`     // MALE, FEMALE, OTHER
	EHRPatientID      string `json:"ehr_patient_id"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

// MissingFields returns the names of required fields that are empty.
func (p *PatientRecord) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.FirstName) == "" {
		missing = append(missing, "first_name")
	}
	if strings.TrimSpace(p.LastName) == "" {
		missing = append(missing, "last_name")
	}
	if strings.TrimSpace(p.BirthDate) == "" {
		missing = append(missing, "birth_date")
	}
	if strings.TrimSpace(p.Gender) == "" {
		missing = append(missing, "gender")
	}
	if strings.TrimSpace(p.EHRPatientID) == "" {
		missing = append(missing, "ehr_patient_id")
	}
	return missing
}

// Validate checks required fields and the birth date format.
func (p *PatientRecord) Validate() error {
	if missing := p.MissingFields(); len(missing) > 0 {
		return NewError(ErrInvalidRecord, "missing required fields: "+strings.Join(missing, ", "))
	}
	if _, err := time.Parse("2006-01-02", p.BirthDate); err != nil {
		return NewError(ErrInvalidRecord, "birth_date must be YYYY-MM-DD").WithCause(err)
	}
	switch p.Gender {
	case GenderMale, GenderFemale, GenderOther:
	default:
		return NewError(ErrInvalidRecord, "gender must be MALE, FEMALE or OTHER")
	}
	return nil
}

// Merge copies non-empty fields from other into p, keeping existing values.
// Mirrors the collect-and-merge loop of multi-pass extraction.
func (p *PatientRecord) Merge(other *PatientRecord) {
	if other == nil {
		return
	}
	if p.FirstName == "" {
		p.FirstName = other.FirstName
	}
	if p.LastName == "" {
		p.LastName = other.LastName
	}
	if p.BirthDate == "" {
		p.BirthDate = other.BirthDate
	}
	if p.Gender == "" {
		p.Gender = other.Gender
	}
	if p.EHRPatientID == "" {
		p.EHRPatientID = other.EHRPatientID
	}
	if p.AdditionalContext == "" {
		p.AdditionalContext = other.AdditionalContext
	}
}
