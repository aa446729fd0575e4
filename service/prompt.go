package service

// masterPrompt is the fixed structured-extraction instruction sent with every
// submission. The model must answer with a single JSON object matching the
// case-analysis schema; anything it cannot read from the documents stays
// empty rather than being invented.
const masterPrompt = `You are a legal intake analyst for a Turkish traffic-accident law practice.
You are given scans of a joint accident report form (Kaza Tespit Tutanağı) and
optional photos of the accident scene and vehicle damage.

Extract the following into a single JSON object, and only that object:

- case_summary: 2-4 sentence neutral summary of the accident.
- accident_details: {date, time, location, weather_conditions, road_conditions}.
- party_a, party_b: {name, id_number, driver_license, vehicle_plate,
  vehicle_type, insurance_company, insurance_policy} for each driver, in the
  order they appear on the form (left column is party A).
- form_checkboxes: {section_12_selections: [...], section_13_selections: [...],
  section_14_initial_impact} - the numbers of the boxes actually ticked in
  sections 12 (damage zones) and 13 (accident scenarios).
- fault_assessment: {preliminary_fault_party, party_a_fault_percentage,
  party_b_fault_percentage, fault_indicators: [...], contested_points: [...]}.
- photo_analyses: [{photo_id, description, relevant_damages: [...]}] - one
  entry per provided photo, photo_id matching the "Photo N" label.
- witness_statements, legal_considerations, recommended_actions: string lists.
- missing_information: names of fields you could not read from the documents.
- data_inconsistencies: contradictions between the form and the photos.

Rules:
- Never invent plates, names, dates or percentages. Leave unreadable fields
  empty and list them in missing_information.
- Fault percentages, when you state both, must sum to 100.
- Respond in the language of the briefing audience (English), keeping Turkish
  proper nouns as written on the form.`

// schemaID names the extraction schema version carried on every request so
// responses can be correlated to the shape they were asked for.
const schemaID = "case_analysis_v1"

// caseAnalysisSchema is the JSON schema handed to the provider's structured
// output mode. Top-level shape only; the extraction validator re-checks every
// field defensively regardless of what the provider claims to guarantee.
func caseAnalysisSchema() map[string]any {
	str := map[string]any{"type": "string"}
	strList := map[string]any{"type": "array", "items": str}
	intList := map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}
	party := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":              str,
			"id_number":         str,
			"driver_license":    str,
			"vehicle_plate":     str,
			"vehicle_type":      str,
			"insurance_company": str,
			"insurance_policy":  str,
		},
		"required": []string{"name", "vehicle_plate", "vehicle_type"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"case_summary": str,
			"accident_details": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":               str,
					"time":               str,
					"location":           str,
					"weather_conditions": str,
					"road_conditions":    str,
				},
				"required": []string{"date", "time", "location"},
			},
			"party_a": party,
			"party_b": party,
			"form_checkboxes": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"section_12_selections":     intList,
					"section_13_selections":     intList,
					"section_14_initial_impact": str,
				},
			},
			"fault_assessment": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"preliminary_fault_party":  str,
					"party_a_fault_percentage": map[string]any{"type": "integer"},
					"party_b_fault_percentage": map[string]any{"type": "integer"},
					"fault_indicators":         strList,
					"contested_points":         strList,
				},
			},
			"photo_analyses": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"photo_id":         map[string]any{"type": "integer"},
						"description":      str,
						"relevant_damages": strList,
					},
					"required": []string{"photo_id", "description"},
				},
			},
			"witness_statements":   strList,
			"legal_considerations": strList,
			"recommended_actions":  strList,
			"missing_information":  strList,
			"data_inconsistencies": strList,
		},
		"required": []string{"case_summary", "accident_details", "party_a", "party_b", "form_checkboxes", "fault_assessment"},
	}
}
