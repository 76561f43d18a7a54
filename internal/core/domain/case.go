package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// PipelineStatus tracks how far a case got through ingestion.
type PipelineStatus string

const (
	StatusProcessing PipelineStatus = "processing"
	StatusProcessed  PipelineStatus = "processed"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// TrafficLight is the substantive verdict on a legal title.
type TrafficLight string

const (
	LightGreen  TrafficLight = "green"
	LightYellow TrafficLight = "yellow"
	LightRed    TrafficLight = "red"
)

type FailureStage string

const (
	StageDispatch       FailureStage = "dispatch"
	StageDownload       FailureStage = "download"
	StageExtraction     FailureStage = "extraction"
	StageClassification FailureStage = "classification"
)

// Legacy single-field states, kept for clients of the original dashboard.
const (
	LegacyStateError               = "error"
	LegacyStateErrorClassification = "error_classification"
)

// Document formats accepted by the extractor. Fixed on purpose.
const (
	FormatPDF  = ".pdf"
	FormatDOCX = ".docx"
)

type VerdictDetails struct {
	DebtorName         string `json:"debtor_name,omitempty"`
	CreditorEntity     string `json:"creditor_entity,omitempty"`
	Amount             string `json:"amount,omitempty"`
	ResolutionDate     string `json:"resolution_date,omitempty"`
	EnforceabilityDate string `json:"enforceability_date,omitempty"`
	TitleType          string `json:"title_type,omitempty"`
}

// Verdict is the classifier output for one document.
// Fallback is set when the model reply could not be parsed; ParseErr then
// holds the reason and Light is always red.
type Verdict struct {
	Light       TrafficLight   `json:"light"`
	Details     VerdictDetails `json:"details"`
	Observation string         `json:"observation"`
	Fallback    bool           `json:"fallback"`
	ParseErr    error          `json:"-"`
}

type CaseRecord struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	FilePath        string          `json:"file_path"`
	Status          PipelineStatus  `json:"status"`
	Verdict         *TrafficLight   `json:"verdict,omitempty"`
	FailureStage    FailureStage    `json:"failure_stage,omitempty"`
	Title           *string         `json:"title"`
	Observations    string          `json:"observations"`
	Details         *VerdictDetails `json:"details,omitempty"`
	VerdictFallback bool            `json:"verdict_fallback"`
	MandatePath     *string         `json:"mandate_path,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LegacyState folds status and verdict back into the single overloaded value
// (processing, processed, green/yellow/red, error, error_classification).
func (c CaseRecord) LegacyState() string {
	switch c.Status {
	case StatusCompleted:
		if c.Verdict != nil {
			return string(*c.Verdict)
		}
		return string(LightRed)
	case StatusFailed:
		if c.FailureStage == StageClassification {
			return LegacyStateErrorClassification
		}
		return LegacyStateError
	default:
		return string(c.Status)
	}
}

func (c CaseRecord) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusFailed
}

// CaseUpdate is the partial write applied on a status transition.
// Nil pointers leave the stored column untouched.
type CaseUpdate struct {
	Status          PipelineStatus
	Verdict         *TrafficLight
	FailureStage    FailureStage
	Title           *string
	Observations    *string
	Details         *VerdictDetails
	VerdictFallback bool
}

var allowedTransitions = map[PipelineStatus][]PipelineStatus{
	StatusProcessing: {StatusProcessed, StatusFailed},
	StatusProcessed:  {StatusCompleted, StatusFailed},
}

// ValidateTransition rejects anything but forward moves of the state machine.
func ValidateTransition(from, to PipelineStatus) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return WrapError(ErrInvalidTransition, "validate transition", fmt.Errorf("%s -> %s", from, to))
}

// Validate checks the update is self-consistent for its target status.
func (u CaseUpdate) Validate() error {
	switch u.Status {
	case StatusCompleted:
		if u.Verdict == nil {
			return WrapError(ErrInvalidInput, "validate case update", fmt.Errorf("completed update without verdict"))
		}
	case StatusFailed:
		if u.FailureStage == "" {
			return WrapError(ErrInvalidInput, "validate case update", fmt.Errorf("failed update without stage"))
		}
		if u.Verdict != nil {
			return WrapError(ErrInvalidInput, "validate case update", fmt.Errorf("failed update with verdict"))
		}
	default:
		if u.Verdict != nil || u.FailureStage != "" {
			return WrapError(ErrInvalidInput, "validate case update", fmt.Errorf("%s update carries terminal fields", u.Status))
		}
	}
	return nil
}

// DocumentFormat returns the lower-cased extension of path.
func DocumentFormat(path string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
}

func IsSupportedFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatPDF, FormatDOCX:
		return true
	default:
		return false
	}
}

// ParseTrafficLight accepts the Spanish labels the model is asked for as well
// as the stored English values, case-insensitively.
func ParseTrafficLight(raw string) (TrafficLight, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "verde", "green":
		return LightGreen, true
	case "amarillo", "yellow":
		return LightYellow, true
	case "rojo", "red":
		return LightRed, true
	default:
		return "", false
	}
}

// FallbackObservation is recorded when the model reply cannot be parsed.
const FallbackObservation = "model did not return a valid JSON payload"

// UnratedObservation is recorded when the reply is a JSON object without a
// recognizable semaforo value.
const UnratedObservation = "model reply did not include a valid semaforo value"

// UnratedVerdict is the red fallback verdict for replies that parse but carry
// no usable traffic light.
func UnratedVerdict(parseErr error) Verdict {
	v := FallbackVerdict(parseErr)
	v.Observation = UnratedObservation
	return v
}

// FallbackVerdict is the red verdict used for unparsable model replies.
func FallbackVerdict(parseErr error) Verdict {
	return Verdict{
		Light:       LightRed,
		Observation: FallbackObservation,
		Fallback:    true,
		ParseErr:    WrapError(ErrUnparsableVerdict, "parse model reply", parseErr),
	}
}
