package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkkken/heidi/types"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) AnalyzeImage(context.Context, string, string) (string, error) {
	return f.response, f.err
}

func TestExtract(t *testing.T) {
	e := NewVisionExtractor(&fakeProvider{
		response: `{"first_name": "Jane", "last_name": "Doe", "birth_date": "1980-01-01", "gender": "female", "ehr_patient_id": "EMR-001"}`,
	}, nil)

	record, err := e.Extract(context.Background(), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "Jane", record.FirstName)
	assert.Equal(t, "Doe", record.LastName)
	assert.Equal(t, "1980-01-01", record.BirthDate)
	assert.Equal(t, types.GenderFemale, record.Gender, "gender normalized to upper case")
	assert.Equal(t, "EMR-001", record.EHRPatientID)
}

func TestExtract_PartialView(t *testing.T) {
	// a list view shows name only; empty fields stay empty
	e := NewVisionExtractor(&fakeProvider{
		response: `{"first_name": "Jane", "last_name": "Doe", "birth_date": "", "gender": "", "ehr_patient_id": ""}`,
	}, nil)

	record, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane", record.FirstName)
	assert.ElementsMatch(t, []string{"birth_date", "gender", "ehr_patient_id"}, record.MissingFields())
}

func TestExtract_FencedAndVerbose(t *testing.T) {
	e := NewVisionExtractor(&fakeProvider{
		response: "Here is what I can see:\n```json\n{\"first_name\": \"Jane\", \"last_name\": \"\", \"birth_date\": \"\", \"gender\": \"\", \"ehr_patient_id\": \"\"}\n```\nLet me know if you need more.",
	}, nil)

	record, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane", record.FirstName)
}

func TestExtract_Empty(t *testing.T) {
	e := NewVisionExtractor(&fakeProvider{
		response: `{"first_name": "", "last_name": "", "birth_date": "", "gender": "", "ehr_patient_id": ""}`,
	}, nil)

	_, err := e.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrExtractionEmpty, types.GetErrorCode(err))
}

func TestExtract_ProviderFailure(t *testing.T) {
	e := NewVisionExtractor(&fakeProvider{err: errors.New("overloaded")}, nil)

	_, err := e.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrLocatorUnavailable, types.GetErrorCode(err))
}

func TestExtract_Malformed(t *testing.T) {
	e := NewVisionExtractor(&fakeProvider{response: "I cannot read this screen."}, nil)

	_, err := e.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrLocatorUnavailable, types.GetErrorCode(err))
}
