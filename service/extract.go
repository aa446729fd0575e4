package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/avocatt/accident-analyzer/model"
)

// ambiguityPenalty down-weights confidence when the model itself reports
// contested points or inconsistencies between documents.
const ambiguityPenalty = 0.8

// requiredFields is the set of fields a complete extraction supplies. The
// confidence score is the fraction of these that arrived present and
// well-typed.
var requiredFields = []string{
	"case_summary",
	"accident_details.date",
	"accident_details.time",
	"accident_details.location",
	"party_a.name",
	"party_a.vehicle_plate",
	"party_a.vehicle_type",
	"party_a.insurance_company",
	"party_b.name",
	"party_b.vehicle_plate",
	"party_b.vehicle_type",
	"party_b.insurance_company",
	"form_checkboxes.section_13_selections",
	"fault_assessment",
}

// ValidateExtraction coerces the provider's raw payload into a CaseAnalysis.
// Missing or mistyped fields degrade into MissingInformation entries and a
// reduced confidence score instead of failing the run; only a payload with no
// recoverable JSON object at all is fatal.
func ValidateExtraction(raw []byte) (*model.CaseAnalysis, error) {
	obj, err := decodeLooseJSON(raw)
	if err != nil {
		return nil, &model.ExtractionError{Err: err}
	}

	p := &fieldParser{obj: obj}
	analysis := &model.CaseAnalysis{}

	analysis.CaseSummary = p.str("case_summary")

	if details, ok := p.obj["accident_details"].(map[string]any); ok {
		dp := &fieldParser{obj: details, prefix: "accident_details.", missing: p.missing}
		analysis.AccidentDetails = model.AccidentDetails{
			Date:              dp.str("date"),
			Time:              dp.str("time"),
			Location:          dp.str("location"),
			WeatherConditions: dp.optStr("weather_conditions"),
			RoadConditions:    dp.optStr("road_conditions"),
		}
		p.missing = dp.missing
	} else {
		p.markMissing("accident_details.date", "accident_details.time", "accident_details.location")
	}

	analysis.PartyA = p.party("party_a")
	analysis.PartyB = p.party("party_b")

	if form, ok := p.obj["form_checkboxes"].(map[string]any); ok {
		fp := &fieldParser{obj: form, prefix: "form_checkboxes.", missing: p.missing}
		analysis.FormCheckboxes = model.FormCheckboxes{
			Section12Selections:    fp.optIntList("section_12_selections"),
			Section13Selections:    fp.intList("section_13_selections"),
			Section14InitialImpact: fp.optStr("section_14_initial_impact"),
		}
		p.missing = fp.missing
	} else {
		p.markMissing("form_checkboxes.section_13_selections")
	}

	if fault, ok := p.obj["fault_assessment"].(map[string]any); ok {
		fp := &fieldParser{obj: fault, prefix: "fault_assessment.", missing: p.missing}
		analysis.FaultAssessment = model.FaultAssessment{
			PreliminaryFaultParty: fp.optStrPtr("preliminary_fault_party"),
			PartyAFaultPercentage: fp.optIntPtr("party_a_fault_percentage"),
			PartyBFaultPercentage: fp.optIntPtr("party_b_fault_percentage"),
			FaultIndicators:       fp.optStrList("fault_indicators"),
			ContestedPoints:       fp.optStrList("contested_points"),
		}
		p.missing = fp.missing
	} else {
		p.markMissing("fault_assessment")
	}

	analysis.PhotoAnalyses = p.photoAnalyses("photo_analyses")
	analysis.WitnessStatements = p.optStrList("witness_statements")
	analysis.LegalConsiderations = p.optStrList("legal_considerations")
	analysis.RecommendedActions = p.optStrList("recommended_actions")
	analysis.DataInconsistencies = p.optStrList("data_inconsistencies")

	// Merge what the model itself flagged as unreadable with what we found
	// absent, without duplicates.
	analysis.MissingInformation = mergeMissing(p.missing, p.optStrList("missing_information"))

	normalizeFaultPercentages(&analysis.FaultAssessment)
	analysis.ExtractionConfidence = confidence(analysis, p.missing)

	return analysis, nil
}

// decodeLooseJSON extracts the outermost JSON object from a possibly
// fence-wrapped or chatter-padded model response.
func decodeLooseJSON(raw []byte) (map[string]any, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}

	// Models sometimes wrap JSON in markdown fences despite instructions.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return obj, nil
}

// fieldParser records per-field absence while pulling typed values out of an
// untrusted map. A wrong type counts the same as absence.
type fieldParser struct {
	obj     map[string]any
	prefix  string
	missing []string
}

func (p *fieldParser) markMissing(names ...string) {
	p.missing = append(p.missing, names...)
}

func (p *fieldParser) str(name string) string {
	if v, ok := p.obj[name].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	p.markMissing(p.prefix + name)
	return ""
}

func (p *fieldParser) optStr(name string) string {
	v, _ := p.obj[name].(string)
	return v
}

func (p *fieldParser) optStrPtr(name string) *string {
	if v, ok := p.obj[name].(string); ok && strings.TrimSpace(v) != "" {
		return &v
	}
	return nil
}

func (p *fieldParser) optIntPtr(name string) *int {
	switch v := p.obj[name].(type) {
	case float64:
		if v == math.Trunc(v) {
			n := int(v)
			return &n
		}
	case string:
		// Tolerate "70" or "70%": models drift on numeric types.
		var n int
		if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimSpace(v), "%"), "%d", &n); err == nil {
			return &n
		}
	}
	return nil
}

func (p *fieldParser) intList(name string) []int {
	out, ok := toIntList(p.obj[name])
	if !ok {
		p.markMissing(p.prefix + name)
	}
	return out
}

func (p *fieldParser) optIntList(name string) []int {
	out, _ := toIntList(p.obj[name])
	return out
}

func toIntList(v any) ([]int, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		f, ok := item.(float64)
		if !ok || f != math.Trunc(f) {
			continue
		}
		out = append(out, int(f))
	}
	return out, true
}

func (p *fieldParser) optStrList(name string) []string {
	arr, ok := p.obj[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (p *fieldParser) party(name string) model.PartyInfo {
	obj, ok := p.obj[name].(map[string]any)
	if !ok {
		p.markMissing(name+".name", name+".vehicle_plate", name+".vehicle_type", name+".insurance_company")
		return model.PartyInfo{}
	}
	pp := &fieldParser{obj: obj, prefix: name + ".", missing: p.missing}
	info := model.PartyInfo{
		Name:             pp.str("name"),
		IDNumber:         pp.optStr("id_number"),
		DriverLicense:    pp.optStr("driver_license"),
		VehiclePlate:     pp.str("vehicle_plate"),
		VehicleType:      pp.str("vehicle_type"),
		InsuranceCompany: pp.str("insurance_company"),
		InsurancePolicy:  pp.optStr("insurance_policy"),
	}
	p.missing = pp.missing
	return info
}

func (p *fieldParser) photoAnalyses(name string) []model.PhotoAnalysis {
	arr, ok := p.obj[name].([]any)
	if !ok {
		return nil
	}
	out := make([]model.PhotoAnalysis, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ip := &fieldParser{obj: obj}
		id := ip.optIntPtr("photo_id")
		desc := ip.optStr("description")
		if id == nil || desc == "" {
			continue
		}
		out = append(out, model.PhotoAnalysis{
			PhotoID:         *id,
			Description:     desc,
			RelevantDamages: ip.optStrList("relevant_damages"),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeFaultPercentages enforces the sum-to-100 invariant: rescale when
// both are present, derive the complement when one is, leave both nil when
// neither is. The model never gets to fabricate certainty here.
func normalizeFaultPercentages(fa *model.FaultAssessment) {
	a, b := fa.PartyAFaultPercentage, fa.PartyBFaultPercentage
	switch {
	case a != nil && b != nil:
		if *a < 0 || *a > 100 || *b < 0 || *b > 100 {
			fa.PartyAFaultPercentage = nil
			fa.PartyBFaultPercentage = nil
			return
		}
		sum := *a + *b
		if sum == 100 || sum <= 0 {
			if sum <= 0 {
				fa.PartyAFaultPercentage = nil
				fa.PartyBFaultPercentage = nil
			}
			return
		}
		// Proportional rescale; the rounding remainder goes to party A
		// so the two always total exactly 100.
		na := int(math.Round(float64(*a) * 100 / float64(sum)))
		nb := 100 - na
		fa.PartyAFaultPercentage = &na
		fa.PartyBFaultPercentage = &nb
	case a != nil:
		if *a < 0 || *a > 100 {
			fa.PartyAFaultPercentage = nil
			return
		}
		nb := 100 - *a
		fa.PartyBFaultPercentage = &nb
	case b != nil:
		if *b < 0 || *b > 100 {
			fa.PartyBFaultPercentage = nil
			return
		}
		na := 100 - *b
		fa.PartyAFaultPercentage = &na
	}
}

// confidence is the fraction of required fields present and well-typed,
// down-weighted when the model reported ambiguity, clamped to [0,1].
func confidence(analysis *model.CaseAnalysis, missing []string) float64 {
	missingSet := make(map[string]bool, len(missing))
	for _, m := range missing {
		missingSet[m] = true
	}

	present := 0
	for _, f := range requiredFields {
		if !missingSet[f] {
			present++
		}
	}

	score := float64(present) / float64(len(requiredFields))
	if len(analysis.DataInconsistencies) > 0 || len(analysis.FaultAssessment.ContestedPoints) > 0 {
		score *= ambiguityPenalty
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func mergeMissing(found, reported []string) []string {
	seen := make(map[string]bool, len(found)+len(reported))
	out := make([]string, 0, len(found)+len(reported))
	for _, lists := range [][]string{found, reported} {
		for _, m := range lists {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
