package api

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"qline/internal/jobs"
	"qline/internal/lifecycle"
)

var labelCaser = cases.Title(language.English)

// LabelForState renders a stored state code as a human-readable label, e.g.
// FINAL_TEST_IN_PROGRESS becomes "Final Test In Progress".
func LabelForState(state jobs.State) string {
	return labelCaser.String(strings.ToLower(strings.ReplaceAll(string(state), "_", " ")))
}

// FromJob converts a jobs.Job into its transport representation.
func FromJob(job *jobs.Job) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		QLID:             job.QLID,
		PalletRef:        job.PalletRef,
		Category:         job.Category,
		Manufacturer:     job.Manufacturer,
		Model:            job.Model,
		State:            string(job.CurrentState),
		StateLabel:       LabelForState(job.CurrentState),
		StepIndex:        job.CurrentStepIndex,
		AssignedTech:     job.AssignedTech,
		AttemptCount:     job.AttemptCount,
		MaxAttempts:      job.MaxAttempts,
		FinalGrade:       job.FinalGrade,
		WarrantyEligible: job.WarrantyEligible,
		Disposition:      job.Disposition,
		Priority:         job.Priority,
		StartedAt:        formatTimePtr(job.StartedAt),
		CompletedAt:      formatTimePtr(job.CompletedAt),
		CreatedAt:        formatTime(job.CreatedAt),
		UpdatedAt:        formatTime(job.UpdatedAt),
	}
	for _, action := range lifecycle.ActionsFrom(job.CurrentState) {
		view.NextActions = append(view.NextActions, string(action))
	}
	return view
}

// FromJobs converts a slice of jobs.
func FromJobs(items []*jobs.Job) []JobView {
	if len(items) == 0 {
		return nil
	}
	views := make([]JobView, 0, len(items))
	for _, job := range items {
		views = append(views, FromJob(job))
	}
	return views
}

// FromTransition converts one audit-trail entry.
func FromTransition(tr *jobs.Transition) TransitionView {
	if tr == nil {
		return TransitionView{}
	}
	return TransitionView{
		Seq:       tr.Seq,
		FromState: string(tr.FromState),
		ToState:   string(tr.ToState),
		Action:    tr.Action,
		Actor:     tr.Actor,
		Reason:    tr.Reason,
		CreatedAt: formatTime(tr.CreatedAt),
	}
}

// FromTransitions converts a slice of transitions.
func FromTransitions(items []*jobs.Transition) []TransitionView {
	if len(items) == 0 {
		return nil
	}
	views := make([]TransitionView, 0, len(items))
	for _, tr := range items {
		views = append(views, FromTransition(tr))
	}
	return views
}

// FromStep converts one step completion.
func FromStep(step *jobs.StepCompletion) StepView {
	if step == nil {
		return StepView{}
	}
	return StepView{
		StateCode:       string(step.StateCode),
		StepCode:        step.StepCode,
		Checklist:       rawJSON(step.ChecklistJSON),
		Values:          rawJSON(step.ValuesJSON),
		Measurements:    rawJSON(step.MeasurementsJSON),
		Notes:           step.Notes,
		PhotoRefs:       rawJSON(step.PhotoRefsJSON),
		Actor:           step.Actor,
		DurationSeconds: step.DurationSeconds,
		CompletedAt:     formatTime(step.CompletedAt),
	}
}

// FromSteps converts a slice of step completions.
func FromSteps(items []*jobs.StepCompletion) []StepView {
	if len(items) == 0 {
		return nil
	}
	views := make([]StepView, 0, len(items))
	for _, step := range items {
		views = append(views, FromStep(step))
	}
	return views
}

// FromDiagnosis converts one diagnosis.
func FromDiagnosis(diag *jobs.Diagnosis) DiagnosisView {
	if diag == nil {
		return DiagnosisView{}
	}
	return DiagnosisView{
		ID:             diag.ID,
		QLID:           diag.QLID,
		DefectCode:     diag.DefectCode,
		Severity:       diag.Severity,
		Measurements:   rawJSON(diag.MeasurementsJSON),
		PhotoRefs:      rawJSON(diag.PhotoRefsJSON),
		ProposedAction: diag.ProposedAction,
		RequiredParts:  rawJSON(diag.RequiredPartsJSON),
		RepairStatus:   string(diag.RepairStatus),
		RepairedBy:     diag.RepairedBy,
		RepairedAt:     formatTimePtr(diag.RepairedAt),
		PartsUsed:      rawJSON(diag.PartsUsedJSON),
		CreatedBy:      diag.CreatedBy,
		CreatedAt:      formatTime(diag.CreatedAt),
	}
}

// FromDiagnoses converts a slice of diagnoses.
func FromDiagnoses(items []*jobs.Diagnosis) []DiagnosisView {
	if len(items) == 0 {
		return nil
	}
	views := make([]DiagnosisView, 0, len(items))
	for _, diag := range items {
		views = append(views, FromDiagnosis(diag))
	}
	return views
}

// FromCertification converts one certification.
func FromCertification(cert *jobs.Certification) CertificationView {
	if cert == nil {
		return CertificationView{}
	}
	return CertificationView{
		Serial:       cert.Serial,
		QLID:         cert.QLID,
		Level:        cert.Level,
		FinalGrade:   cert.FinalGrade,
		Warranty:     rawJSON(cert.WarrantyJSON),
		IssuedBy:     cert.IssuedBy,
		IssuedAt:     formatTime(cert.IssuedAt),
		IsRevoked:    cert.IsRevoked,
		RevokeReason: cert.RevokeReason,
		RevokedBy:    cert.RevokedBy,
		RevokedAt:    formatTimePtr(cert.RevokedAt),
	}
}

// FromCertifications converts a slice of certifications.
func FromCertifications(items []*jobs.Certification) []CertificationView {
	if len(items) == 0 {
		return nil
	}
	views := make([]CertificationView, 0, len(items))
	for _, cert := range items {
		views = append(views, FromCertification(cert))
	}
	return views
}

// FromHealth converts a health summary.
func FromHealth(health jobs.HealthSummary) HealthView {
	view := HealthView{
		Total:    health.Total,
		Active:   health.Active,
		Escaped:  health.Escaped,
		Terminal: health.Terminal,
		ByState:  make(map[string]int, len(health.ByState)),
	}
	for state, count := range health.ByState {
		view.ByState[string(state)] = count
	}
	return view
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// rawJSON passes stored JSON through untouched; invalid or empty documents
// are dropped rather than double-encoded.
func rawJSON(value string) json.RawMessage {
	if value == "" {
		return nil
	}
	if !json.Valid([]byte(value)) {
		return nil
	}
	return json.RawMessage(value)
}
