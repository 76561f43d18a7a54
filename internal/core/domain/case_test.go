package domain

import "testing"

func TestValidateTransitionForwardOnly(t *testing.T) {
	allowed := [][2]PipelineStatus{
		{StatusProcessing, StatusProcessed},
		{StatusProcessing, StatusFailed},
		{StatusProcessed, StatusCompleted},
		{StatusProcessed, StatusFailed},
	}
	for _, pair := range allowed {
		if err := ValidateTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("expected %s -> %s to be allowed, got %v", pair[0], pair[1], err)
		}
	}

	rejected := [][2]PipelineStatus{
		{StatusProcessing, StatusCompleted},
		{StatusProcessed, StatusProcessing},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusProcessing},
		{StatusCompleted, StatusProcessed},
	}
	for _, pair := range rejected {
		err := ValidateTransition(pair[0], pair[1])
		if !IsKind(err, ErrInvalidTransition) {
			t.Fatalf("expected %s -> %s to be rejected, got %v", pair[0], pair[1], err)
		}
	}
}

func TestLegacyStateFoldsStatusAndVerdict(t *testing.T) {
	yellow := LightYellow
	cases := []struct {
		rec  CaseRecord
		want string
	}{
		{CaseRecord{Status: StatusProcessing}, "processing"},
		{CaseRecord{Status: StatusProcessed}, "processed"},
		{CaseRecord{Status: StatusCompleted, Verdict: &yellow}, "yellow"},
		{CaseRecord{Status: StatusFailed, FailureStage: StageDownload}, "error"},
		{CaseRecord{Status: StatusFailed, FailureStage: StageExtraction}, "error"},
		{CaseRecord{Status: StatusFailed, FailureStage: StageClassification}, "error_classification"},
	}
	for _, tc := range cases {
		if got := tc.rec.LegacyState(); got != tc.want {
			t.Fatalf("LegacyState(%+v) = %q, want %q", tc.rec, got, tc.want)
		}
	}
}

func TestCaseUpdateValidate(t *testing.T) {
	red := LightRed
	if err := (CaseUpdate{Status: StatusCompleted}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected completed without verdict to fail, got %v", err)
	}
	if err := (CaseUpdate{Status: StatusFailed}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected failed without stage to fail, got %v", err)
	}
	if err := (CaseUpdate{Status: StatusProcessed, Verdict: &red}).Validate(); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected processed with verdict to fail, got %v", err)
	}
	if err := (CaseUpdate{Status: StatusCompleted, Verdict: &red}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDocumentFormatIsCaseInsensitive(t *testing.T) {
	if got := DocumentFormat("uploads/Resolucion.PDF"); got != FormatPDF {
		t.Fatalf("expected .pdf, got %q", got)
	}
	if !IsSupportedFormat(DocumentFormat("a/b/Titulo.DocX")) {
		t.Fatalf("expected .docx to be supported")
	}
	if IsSupportedFormat(DocumentFormat("scan.png")) || IsSupportedFormat(DocumentFormat("noext")) {
		t.Fatalf("expected unsupported formats to be rejected")
	}
}

func TestParseTrafficLight(t *testing.T) {
	for raw, want := range map[string]TrafficLight{
		"VERDE":      LightGreen,
		" amarillo ": LightYellow,
		"Rojo":       LightRed,
		"red":        LightRed,
	} {
		got, ok := ParseTrafficLight(raw)
		if !ok || got != want {
			t.Fatalf("ParseTrafficLight(%q) = %q,%v want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParseTrafficLight("pendiente"); ok {
		t.Fatalf("expected unknown label to be rejected")
	}
}

func TestFallbackVerdictIsRedAndFlagged(t *testing.T) {
	v := FallbackVerdict(errTest("no braces"))
	if v.Light != LightRed || !v.Fallback || v.Observation != FallbackObservation {
		t.Fatalf("unexpected fallback verdict: %+v", v)
	}
	if !IsKind(v.ParseErr, ErrUnparsableVerdict) {
		t.Fatalf("expected ErrUnparsableVerdict diagnostic, got %v", v.ParseErr)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
