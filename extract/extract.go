// Package extract reads structured patient details off an EMR screenshot.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/zkkken/heidi/locator"
	"github.com/zkkken/heidi/types"
)

// Extractor turns a screenshot of a patient detail view into a structured
// record. Fields the view does not show come back empty; callers merge
// results across views.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (*types.PatientRecord, error)
}

// VisionExtractor asks the vision provider to transcribe the visible
// demographics.
type VisionExtractor struct {
	provider locator.VisionProvider
	logger   *zap.Logger
}

// NewVisionExtractor creates an extractor over a vision provider.
func NewVisionExtractor(provider locator.VisionProvider, logger *zap.Logger) *VisionExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionExtractor{
		provider: provider,
		logger:   logger.With(zap.String("component", "extract")),
	}
}

// rawDetails is the JSON shape the prompt demands.
type rawDetails struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	BirthDate    string `json:"birth_date"`
	Gender       string `json:"gender"`
	EHRPatientID string `json:"ehr_patient_id"`
}

const extractPrompt = `You are reading a clinical records screen. Transcribe the patient demographics that are VISIBLE in this screenshot.

Respond with ONLY a JSON object, no markdown:
{"first_name": "", "last_name": "", "birth_date": "", "gender": "", "ehr_patient_id": ""}

Rules:
- birth_date in YYYY-MM-DD format. Convert whatever format the screen shows.
- gender as MALE, FEMALE or OTHER.
- Leave a field as an empty string when it is not visible. Never invent values.`

// Extract transcribes the demographics visible in the screenshot. An
// all-empty transcription is an EXTRACTION_EMPTY error; the caller decides
// whether to retry on another view.
func (e *VisionExtractor) Extract(ctx context.Context, image []byte) (*types.PatientRecord, error) {
	raw, err := e.provider.AnalyzeImage(ctx, base64.StdEncoding.EncodeToString(image), extractPrompt)
	if err != nil {
		return nil, types.NewError(types.ErrLocatorUnavailable, "vision request failed").WithCause(err)
	}

	block := jsonBlock(raw)
	var details rawDetails
	if err := json.Unmarshal([]byte(block), &details); err != nil {
		return nil, types.NewError(types.ErrLocatorUnavailable, "malformed extraction response").WithCause(err)
	}

	record := &types.PatientRecord{
		FirstName:    strings.TrimSpace(details.FirstName),
		LastName:     strings.TrimSpace(details.LastName),
		BirthDate:    strings.TrimSpace(details.BirthDate),
		Gender:       strings.ToUpper(strings.TrimSpace(details.Gender)),
		EHRPatientID: strings.TrimSpace(details.EHRPatientID),
	}

	if *record == (types.PatientRecord{}) {
		return nil, types.NewError(types.ErrExtractionEmpty, "no demographics visible in screenshot")
	}

	e.logger.Info("demographics extracted",
		zap.Strings("missing", record.MissingFields()))

	return record, nil
}

// jsonBlock isolates the outermost JSON object in possibly fenced or
// verbose model output.
func jsonBlock(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
