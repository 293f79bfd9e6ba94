package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes a job in a transport-friendly format.
type JobView struct {
	QLID             string `json:"qlid"`
	PalletRef        string `json:"palletRef,omitempty"`
	Category         string `json:"category,omitempty"`
	Manufacturer     string `json:"manufacturer,omitempty"`
	Model            string `json:"model,omitempty"`
	State            string `json:"state"`
	StateLabel       string `json:"stateLabel"`
	StepIndex        int    `json:"stepIndex"`
	AssignedTech     string `json:"assignedTech,omitempty"`
	AttemptCount     int    `json:"attemptCount"`
	MaxAttempts      int    `json:"maxAttempts"`
	FinalGrade       string `json:"finalGrade,omitempty"`
	WarrantyEligible *bool  `json:"warrantyEligible,omitempty"`
	Disposition      string `json:"disposition,omitempty"`
	Priority         int    `json:"priority"`
	StartedAt        string `json:"startedAt,omitempty"`
	CompletedAt      string `json:"completedAt,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`

	// NextActions enumerates the actions legal from the current state.
	NextActions []string `json:"nextActions,omitempty"`
}

// TransitionView is one audit-trail entry.
type TransitionView struct {
	Seq       int    `json:"seq"`
	FromState string `json:"fromState,omitempty"`
	ToState   string `json:"toState"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// StepView is operator-entered data for one step of one stage.
type StepView struct {
	StateCode       string          `json:"stateCode"`
	StepCode        string          `json:"stepCode"`
	Checklist       json.RawMessage `json:"checklist,omitempty"`
	Values          json.RawMessage `json:"values,omitempty"`
	Measurements    json.RawMessage `json:"measurements,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	PhotoRefs       json.RawMessage `json:"photoRefs,omitempty"`
	Actor           string          `json:"actor"`
	DurationSeconds int             `json:"durationSeconds,omitempty"`
	CompletedAt     string          `json:"completedAt,omitempty"`
}

// DiagnosisView is one defect record with its repair lifecycle.
type DiagnosisView struct {
	ID             int64           `json:"id"`
	QLID           string          `json:"qlid"`
	DefectCode     string          `json:"defectCode"`
	Severity       string          `json:"severity"`
	Measurements   json.RawMessage `json:"measurements,omitempty"`
	PhotoRefs      json.RawMessage `json:"photoRefs,omitempty"`
	ProposedAction string          `json:"proposedAction,omitempty"`
	RequiredParts  json.RawMessage `json:"requiredParts,omitempty"`
	RepairStatus   string          `json:"repairStatus"`
	RepairedBy     string          `json:"repairedBy,omitempty"`
	RepairedAt     string          `json:"repairedAt,omitempty"`
	PartsUsed      json.RawMessage `json:"partsUsed,omitempty"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      string          `json:"createdAt,omitempty"`
}

// CertificationView is one minted certification.
type CertificationView struct {
	Serial       string          `json:"serial"`
	QLID         string          `json:"qlid"`
	Level        string          `json:"level"`
	FinalGrade   string          `json:"finalGrade"`
	Warranty     json.RawMessage `json:"warranty,omitempty"`
	IssuedBy     string          `json:"issuedBy"`
	IssuedAt     string          `json:"issuedAt,omitempty"`
	IsRevoked    bool            `json:"isRevoked"`
	RevokeReason string          `json:"revokeReason,omitempty"`
	RevokedBy    string          `json:"revokedBy,omitempty"`
	RevokedAt    string          `json:"revokedAt,omitempty"`
}

// HealthView summarizes pipeline state for status output.
type HealthView struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Escaped  int            `json:"escaped"`
	Terminal int            `json:"terminal"`
	ByState  map[string]int `json:"byState"`
}

// ReportBundle is the full picture of one job.
type ReportBundle struct {
	Job            JobView             `json:"job"`
	Transitions    []TransitionView    `json:"transitions"`
	Steps          []StepView          `json:"steps"`
	Diagnoses      []DiagnosisView     `json:"diagnoses"`
	Certifications []CertificationView `json:"certifications"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// CertificationResponse wraps a certification plus whether this request
// minted it.
type CertificationResponse struct {
	Certification CertificationView `json:"certification"`
	Created       bool              `json:"created"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
