package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
	"github.com/go-pdf/fpdf"
)

// briefingTemplate is the fixed HTML skeleton of the attorney briefing. It
// only ever consumes the validated CaseAnalysis; rendering is deterministic:
// the same analysis and session ID always produce byte-identical HTML.
const briefingTemplate = `<!DOCTYPE html>
<html lang="tr">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Attorney Briefing - {{.SessionID}}</title>
<style>
body { font-family: 'Lato', -apple-system, 'Segoe UI', sans-serif; line-height: 1.6; color: #0A2240; max-width: 800px; margin: 0 auto; padding: 20px; background: #F0F4F8; }
.header { background: #0A2240; color: white; padding: 30px; border-radius: 8px; margin-bottom: 30px; }
.header h1 { margin: 0; font-weight: 700; }
.disclaimer { background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; border-radius: 4px; }
.section { background: white; padding: 25px; margin-bottom: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
.section h2 { color: #0A2240; font-weight: 700; border-bottom: 2px solid #2ECC71; padding-bottom: 10px; margin-bottom: 20px; }
.party-info { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
.party-card { border: 1px solid #e0e0e0; padding: 15px; border-radius: 6px; }
.info-row { display: flex; margin: 8px 0; }
.info-label { font-weight: bold; min-width: 120px; color: #6C757D; }
.fault-assessment { background: #e8f5e9; padding: 20px; border-radius: 6px; margin: 20px 0; }
.fault-indicator { background: #2ECC71; color: white; padding: 4px 8px; border-radius: 4px; display: inline-block; margin: 4px; }
.missing-info { color: #dc3545; font-style: italic; }
.confidence-meter { background: #e0e0e0; height: 20px; border-radius: 10px; overflow: hidden; margin: 10px 0; }
.confidence-fill { background: #2ECC71; height: 100%; }
.photo-note { margin: 15px 0; padding: 10px; background: #f8f9fa; border-radius: 4px; }
.timestamp { text-align: right; color: #6C757D; font-size: 0.9em; margin-top: 20px; }
</style>
</head>
<body>
<div class="header">
<h1>Attorney Briefing</h1>
<p style="margin: 10px 0 0 0;">Automated Traffic Accident Analysis &mdash; Session {{.SessionID}}</p>
</div>
<div class="disclaimer">
<strong>Important Notice:</strong> This document is an automated analysis for attorney review purposes only. It does not constitute legal advice. Using this service does not create an attorney-client relationship.
</div>
<div class="section">
<h2>Case Summary</h2>
<p>{{orDash .Analysis.CaseSummary}}</p>
</div>
<div class="section">
<h2>Party Information</h2>
<div class="party-info">
{{template "party" dict "Title" "Party A (Sürücü A)" "Party" .Analysis.PartyA}}
{{template "party" dict "Title" "Party B (Sürücü B)" "Party" .Analysis.PartyB}}
</div>
</div>
<div class="section">
<h2>Accident Details</h2>
<div class="info-row"><span class="info-label">Date:</span><span>{{orDash .Analysis.AccidentDetails.Date}}</span></div>
<div class="info-row"><span class="info-label">Time:</span><span>{{orDash .Analysis.AccidentDetails.Time}}</span></div>
<div class="info-row"><span class="info-label">Location:</span><span>{{orDash .Analysis.AccidentDetails.Location}}</span></div>
{{if .Analysis.AccidentDetails.WeatherConditions}}<div class="info-row"><span class="info-label">Weather:</span><span>{{.Analysis.AccidentDetails.WeatherConditions}}</span></div>{{end}}
{{if .Analysis.AccidentDetails.RoadConditions}}<div class="info-row"><span class="info-label">Road:</span><span>{{.Analysis.AccidentDetails.RoadConditions}}</span></div>{{end}}
</div>
{{if or .Analysis.FormCheckboxes.Section12Selections .Analysis.FormCheckboxes.Section13Selections}}
<div class="section">
<h2>Form Analysis</h2>
<div class="info-row"><span class="info-label">Damage Zones:</span><span>{{joinInts .Analysis.FormCheckboxes.Section12Selections}}</span></div>
<div class="info-row"><span class="info-label">Scenarios:</span><span>Boxes {{joinInts .Analysis.FormCheckboxes.Section13Selections}}</span></div>
{{if .Analysis.FormCheckboxes.Section14InitialImpact}}<div class="info-row"><span class="info-label">Initial Impact:</span><span>{{.Analysis.FormCheckboxes.Section14InitialImpact}}</span></div>{{end}}
</div>
{{end}}
<div class="section">
<h2>Fault Assessment</h2>
<div class="fault-assessment">
{{if .Analysis.FaultAssessment.PreliminaryFaultParty}}<p><strong>Preliminary Fault Party:</strong> {{.Analysis.FaultAssessment.PreliminaryFaultParty}}</p>{{else}}<p>No fault signal could be derived from the submitted documents.</p>{{end}}
{{if .Analysis.FaultAssessment.PartyAFaultPercentage}}<p><strong>Estimated Fault Distribution:</strong> Party A: {{.Analysis.FaultAssessment.PartyAFaultPercentage}}% &mdash; Party B: {{.Analysis.FaultAssessment.PartyBFaultPercentage}}%</p>{{end}}
{{if .Analysis.FaultAssessment.FaultIndicators}}<p><strong>Fault Indicators:</strong></p><div>{{range .Analysis.FaultAssessment.FaultIndicators}}<span class="fault-indicator">{{.}}</span>{{end}}</div>{{end}}
{{if .Analysis.FaultAssessment.ContestedPoints}}<p class="missing-info"><strong>Contested:</strong> {{join .Analysis.FaultAssessment.ContestedPoints}}</p>{{end}}
</div>
</div>
{{if .Analysis.PhotoAnalyses}}
<div class="section">
<h2>Photo Analysis</h2>
{{range .Analysis.PhotoAnalyses}}<div class="photo-note"><strong>Photo {{.PhotoID}}:</strong> {{.Description}}</div>
{{end}}</div>
{{end}}
{{if .Analysis.RecommendedActions}}
<div class="section">
<h2>Recommended Actions</h2>
<ul>
{{range .Analysis.RecommendedActions}}<li>{{.}}</li>
{{end}}</ul>
</div>
{{end}}
<div class="section">
<h2>Data Quality Assessment</h2>
<div class="info-row"><span class="info-label">Confidence:</span><span>{{.ConfidencePct}}%</span></div>
<div class="confidence-meter"><div class="confidence-fill" style="width: {{.ConfidencePct}}%"></div></div>
{{if .Analysis.MissingInformation}}<p class="missing-info"><strong>Missing Information:</strong> {{join .Analysis.MissingInformation}}</p>{{end}}
{{if .Analysis.DataInconsistencies}}<p class="missing-info"><strong>Inconsistencies:</strong> {{join .Analysis.DataInconsistencies}}</p>{{end}}
</div>
<div class="timestamp">Generated for session {{.SessionID}} at {{.Timestamp}}</div>
</body>
</html>
{{define "party"}}<div class="party-card">
<h3>{{.Title}}</h3>
<div class="info-row"><span class="info-label">Name:</span><span>{{orDash .Party.Name}}</span></div>
<div class="info-row"><span class="info-label">ID Number:</span><span>{{orDash .Party.IDNumber}}</span></div>
<div class="info-row"><span class="info-label">Vehicle Plate:</span><span>{{orDash .Party.VehiclePlate}}</span></div>
<div class="info-row"><span class="info-label">Vehicle Type:</span><span>{{orDash .Party.VehicleType}}</span></div>
<div class="info-row"><span class="info-label">Insurance:</span><span>{{orDash .Party.InsuranceCompany}}</span></div>
</div>{{end}}`

// BriefingRenderer assembles a CaseAnalysis into the final briefing
// artifacts. It never calls the inference provider and never sees raw
// uploaded bytes.
type BriefingRenderer struct {
	tmpl      *template.Template
	enablePDF bool
}

func NewBriefingRenderer(cfg *config.BriefingConfig) (*BriefingRenderer, error) {
	tmpl := template.New("briefing").Funcs(template.FuncMap{
		"orDash": func(s string) string {
			if strings.TrimSpace(s) == "" {
				return "Not provided"
			}
			return s
		},
		"join": func(items []string) string {
			return strings.Join(items, ", ")
		},
		"joinInts": func(items []int) string {
			if len(items) == 0 {
				return "Not specified"
			}
			parts := make([]string, len(items))
			for i, n := range items {
				parts[i] = fmt.Sprintf("%d", n)
			}
			return strings.Join(parts, ", ")
		},
		"dict": func(pairs ...any) map[string]any {
			m := make(map[string]any, len(pairs)/2)
			for i := 0; i+1 < len(pairs); i += 2 {
				key, _ := pairs[i].(string)
				m[key] = pairs[i+1]
			}
			return m
		},
	})
	tmpl, err := tmpl.Parse(briefingTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse briefing template: %w", err)
	}
	return &BriefingRenderer{tmpl: tmpl, enablePDF: cfg.EnablePDF}, nil
}

// Render produces the briefing for a session. The HTML depends only on the
// analysis and session ID; the generation timestamp comes from the analysis
// record so a re-render of the same record is byte-identical.
func (r *BriefingRenderer) Render(analysis *model.CaseAnalysis, sessionID string) (*model.Briefing, error) {
	data := map[string]any{
		"SessionID":     sessionID,
		"Analysis":      analysis,
		"ConfidencePct": int(analysis.ExtractionConfidence * 100),
		"Timestamp":     analysis.AnalysisTimestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render briefing html: %w", err)
	}

	briefing := &model.Briefing{
		SessionID:   sessionID,
		HTML:        buf.String(),
		GeneratedAt: analysis.AnalysisTimestamp,
	}

	if r.enablePDF {
		pdfBytes, err := r.renderPDF(analysis, sessionID)
		if err != nil {
			return nil, fmt.Errorf("render briefing pdf: %w", err)
		}
		briefing.PDF = pdfBytes
	}

	return briefing, nil
}

// renderPDF renders the same analysis as a compact PDF. It carries no
// information beyond what the HTML briefing shows.
func (r *BriefingRenderer) renderPDF(analysis *model.CaseAnalysis, sessionID string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Attorney Briefing "+sessionID, true)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 20)
	doc.SetTextColor(10, 34, 64)
	doc.CellFormat(0, 12, "Attorney Briefing", "", 1, "C", false, 0, "")

	doc.SetFont("Helvetica", "", 9)
	doc.SetTextColor(108, 117, 125)
	doc.MultiCell(0, 5, "This document is an automated analysis for attorney review purposes only. It does not constitute legal advice.", "1", "L", false)
	doc.Ln(4)

	section := func(title string) {
		doc.SetFont("Helvetica", "B", 13)
		doc.SetTextColor(10, 34, 64)
		doc.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		doc.SetTextColor(0, 0, 0)
	}

	section("Case Summary")
	doc.MultiCell(0, 5, orNA(analysis.CaseSummary), "", "L", false)
	doc.Ln(3)

	section("Party Information")
	rows := [][3]string{
		{"", "Party A", "Party B"},
		{"Name", orNA(analysis.PartyA.Name), orNA(analysis.PartyB.Name)},
		{"Vehicle Plate", orNA(analysis.PartyA.VehiclePlate), orNA(analysis.PartyB.VehiclePlate)},
		{"Vehicle Type", orNA(analysis.PartyA.VehicleType), orNA(analysis.PartyB.VehicleType)},
		{"Insurance", orNA(analysis.PartyA.InsuranceCompany), orNA(analysis.PartyB.InsuranceCompany)},
	}
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		doc.SetFont("Helvetica", style, 10)
		doc.CellFormat(45, 7, row[0], "1", 0, "L", false, 0, "")
		doc.CellFormat(70, 7, row[1], "1", 0, "L", false, 0, "")
		doc.CellFormat(70, 7, row[2], "1", 1, "L", false, 0, "")
	}
	doc.Ln(3)

	section("Accident Details")
	doc.MultiCell(0, 5, fmt.Sprintf("Date: %s\nTime: %s\nLocation: %s",
		orNA(analysis.AccidentDetails.Date),
		orNA(analysis.AccidentDetails.Time),
		orNA(analysis.AccidentDetails.Location)), "", "L", false)
	doc.Ln(3)

	if fa := analysis.FaultAssessment; fa.PreliminaryFaultParty != nil {
		section("Fault Assessment")
		line := "Preliminary fault party: " + *fa.PreliminaryFaultParty
		if fa.PartyAFaultPercentage != nil && fa.PartyBFaultPercentage != nil {
			line += fmt.Sprintf("\nFault distribution: Party A %d%% - Party B %d%%",
				*fa.PartyAFaultPercentage, *fa.PartyBFaultPercentage)
		}
		doc.MultiCell(0, 5, line, "", "L", false)
		doc.Ln(3)
	}

	if len(analysis.RecommendedActions) > 0 {
		section("Recommended Actions")
		for _, action := range analysis.RecommendedActions {
			doc.MultiCell(0, 5, "- "+action, "", "L", false)
		}
		doc.Ln(3)
	}

	doc.SetFont("Helvetica", "", 8)
	doc.SetTextColor(108, 117, 125)
	doc.CellFormat(0, 6, "Generated: "+analysis.AnalysisTimestamp.UTC().Format("2006-01-02 15:04:05 UTC"), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
