package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *PatientRecord {
	return &PatientRecord{
		FirstName:    "Jane",
		LastName:     "Doe",
		BirthDate:    "1980-01-01",
		Gender:       GenderFemale,
		EHRPatientID: "EMR-001",
	}
}

func TestPatientRecord_Validate(t *testing.T) {
	require.NoError(t, validRecord().Validate())
}

func TestPatientRecord_Validate_Missing(t *testing.T) {
	p := validRecord()
	p.FirstName = "  "
	p.EHRPatientID = ""

	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, ErrInvalidRecord, GetErrorCode(err))
	assert.Contains(t, err.Error(), "first_name")
	assert.Contains(t, err.Error(), "ehr_patient_id")
}

func TestPatientRecord_Validate_BadDate(t *testing.T) {
	tests := []string{"01/01/1980", "1980-13-01", "1980-1-1", "yesterday"}
	for _, d := range tests {
		p := validRecord()
		p.BirthDate = d
		err := p.Validate()
		require.Error(t, err, "birth date %q should be rejected", d)
		assert.Equal(t, ErrInvalidRecord, GetErrorCode(err))
	}
}

func TestPatientRecord_Validate_BadGender(t *testing.T) {
	p := validRecord()
	p.Gender = "F"
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gender")
}

func TestPatientRecord_MissingFields(t *testing.T) {
	p := &PatientRecord{FirstName: "Jane"}
	missing := p.MissingFields()
	assert.ElementsMatch(t, []string{"last_name", "birth_date", "gender", "ehr_patient_id"}, missing)

	assert.Empty(t, validRecord().MissingFields())
}

func TestPatientRecord_Merge(t *testing.T) {
	p := &PatientRecord{FirstName: "Jane", Gender: GenderFemale}
	p.Merge(&PatientRecord{
		FirstName:    "OTHER", // must not overwrite
		LastName:     "Doe",
		BirthDate:    "1980-01-01",
		Gender:       GenderMale, // must not overwrite
		EHRPatientID: "EMR-001",
	})

	assert.Equal(t, "Jane", p.FirstName)
	assert.Equal(t, "Doe", p.LastName)
	assert.Equal(t, "1980-01-01", p.BirthDate)
	assert.Equal(t, GenderFemale, p.Gender)
	assert.Equal(t, "EMR-001", p.EHRPatientID)

	// nil merge is a no-op
	p.Merge(nil)
	assert.Equal(t, "Jane", p.FirstName)
}
