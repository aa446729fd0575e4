package model

import (
	"time"
)

// PartyInfo holds the extracted details for one driver on the joint report.
type PartyInfo struct {
	Name             string `json:"name"`
	IDNumber         string `json:"id_number,omitempty"`
	DriverLicense    string `json:"driver_license,omitempty"`
	VehiclePlate     string `json:"vehicle_plate"`
	VehicleType      string `json:"vehicle_type"`
	InsuranceCompany string `json:"insurance_company,omitempty"`
	InsurancePolicy  string `json:"insurance_policy,omitempty"`
}

// AccidentDetails captures when and where the accident happened.
type AccidentDetails struct {
	Date              string `json:"date"`
	Time              string `json:"time"`
	Location          string `json:"location"`
	WeatherConditions string `json:"weather_conditions,omitempty"`
	RoadConditions    string `json:"road_conditions,omitempty"`
}

// FormCheckboxes mirrors the checkbox sections of the Turkish joint accident
// report form (Kaza Tespit Tutanağı): section 12 marks vehicle damage zones,
// section 13 marks accident scenarios.
type FormCheckboxes struct {
	Section12Selections    []int  `json:"section_12_selections"`
	Section13Selections    []int  `json:"section_13_selections"`
	Section14InitialImpact string `json:"section_14_initial_impact,omitempty"`
}

// PhotoAnalysis is the model's description of one supplementary photo.
// PhotoID matches the photo's 1-based submission order.
type PhotoAnalysis struct {
	PhotoID         int      `json:"photo_id"`
	Description     string   `json:"description"`
	RelevantDamages []string `json:"relevant_damages,omitempty"`
}

// FaultAssessment is the preliminary, non-binding liability split between the
// two parties. Percentage pointers are nil when there is no signal; when both
// are set they sum to exactly 100.
type FaultAssessment struct {
	PreliminaryFaultParty *string  `json:"preliminary_fault_party,omitempty"`
	PartyAFaultPercentage *int     `json:"party_a_fault_percentage,omitempty"`
	PartyBFaultPercentage *int     `json:"party_b_fault_percentage,omitempty"`
	FaultIndicators       []string `json:"fault_indicators,omitempty"`
	ContestedPoints       []string `json:"contested_points,omitempty"`
}

// CaseAnalysis is the validated structured record extracted from a submission.
// Fields the provider failed to supply are listed in MissingInformation and
// reduce ExtractionConfidence; the record itself is always usable.
type CaseAnalysis struct {
	SessionID         string    `json:"session_id"`
	AnalysisTimestamp time.Time `json:"analysis_timestamp"`

	CaseSummary     string          `json:"case_summary"`
	AccidentDetails AccidentDetails `json:"accident_details"`
	PartyA          PartyInfo       `json:"party_a"`
	PartyB          PartyInfo       `json:"party_b"`
	FormCheckboxes  FormCheckboxes  `json:"form_checkboxes"`
	FaultAssessment FaultAssessment `json:"fault_assessment"`
	PhotoAnalyses   []PhotoAnalysis `json:"photo_analyses,omitempty"`

	WitnessStatements   []string `json:"witness_statements,omitempty"`
	LegalConsiderations []string `json:"legal_considerations,omitempty"`
	RecommendedActions  []string `json:"recommended_actions,omitempty"`

	ExtractionConfidence float64  `json:"extraction_confidence"`
	MissingInformation   []string `json:"missing_information"`
	DataInconsistencies  []string `json:"data_inconsistencies,omitempty"`
}

// Briefing is the rendered attorney briefing for one session. Immutable once
// produced; PDF is nil when PDF rendering is disabled.
type Briefing struct {
	SessionID   string    `json:"session_id"`
	HTML        string    `json:"-"`
	PDF         []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AnalysisOutcome is the result of one full pipeline run.
type AnalysisOutcome struct {
	Analysis *CaseAnalysis
	Briefing *Briefing
	// CleanupWarning is set when ephemeral storage could not be fully
	// purged. Non-fatal: the outcome is still valid.
	CleanupWarning string
}
