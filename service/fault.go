package service

import (
	"sort"
	"strconv"
	"strings"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
)

// Attribution says which party a scenario code implicates.
type Attribution int

const (
	AttributeNone Attribution = iota
	AttributePartyA
	AttributePartyB
	AttributeShared
)

// scenarioRules maps section 13 scenario codes of the joint accident report
// form to a preliminary attribution. The codes follow the standard form:
// maneuvering scenarios implicate the maneuvering driver (recorded as party
// B's column on the form when ticked there); rear-end and lane-change
// scenarios implicate the striking/merging vehicle.
var defaultScenarioRules = map[int]Attribution{
	1:  AttributeShared, // leaving a parked position
	2:  AttributePartyB, // opening a door into traffic
	3:  AttributePartyB, // rear-end collision while stopped
	4:  AttributePartyB, // rear-end collision in traffic
	5:  AttributePartyB, // reversing
	6:  AttributePartyB, // entering from a private way or parking lot
	7:  AttributeShared, // entering an intersection together
	8:  AttributePartyB, // failing to yield at a junction sign
	9:  AttributePartyB, // turning against oncoming traffic
	10: AttributePartyB, // changing lanes
	11: AttributePartyB, // overtaking
	12: AttributeShared, // both turning right/left simultaneously
	13: AttributePartyB, // disregarding a red light
	14: AttributeShared, // collision on a narrowing road
}

// narrativeCues are phrases in the model's narrative output that point at
// one party. Checked case-insensitively against the case summary and fault
// indicators.
type narrativeCue struct {
	phrase string
	attr   Attribution
}

var defaultNarrativeCues = []narrativeCue{
	{"party a at fault", AttributePartyA},
	{"party a is at fault", AttributePartyA},
	{"fault of party a", AttributePartyA},
	{"party a rear-ended", AttributePartyA},
	{"party a ran the red", AttributePartyA},
	{"party b at fault", AttributePartyB},
	{"party b is at fault", AttributePartyB},
	{"fault of party b", AttributePartyB},
	{"party b rear-ended", AttributePartyB},
	{"party b ran the red", AttributePartyB},
	{"both parties", AttributeShared},
	{"shared fault", AttributeShared},
}

// disagreementFlag is recorded in ContestedPoints when the checkbox signal
// and the narrative cues point at different parties.
const disagreementFlag = "checkbox selections disagree with narrative fault cues"

// FaultEngine derives a preliminary liability split from form checkbox
// selections and narrative cues. Pure: no I/O, deterministic for a given
// input. Checkbox selections are the primary signal; when narrative cues
// disagree, selections win and the disagreement is recorded rather than
// silently resolved.
type FaultEngine struct {
	scenarioRules      map[int]Attribution
	cues               []narrativeCue
	checkboxPrecedence bool
}

func NewFaultEngine(cfg *config.FaultConfig) *FaultEngine {
	precedence := true
	if cfg != nil && cfg.CheckboxPrecedence != nil {
		precedence = *cfg.CheckboxPrecedence
	}
	return &FaultEngine{
		scenarioRules:      defaultScenarioRules,
		cues:               defaultNarrativeCues,
		checkboxPrecedence: precedence,
	}
}

// WithRules overrides the scenario rule table. Used by tests and by
// deployments with jurisdiction-specific tables.
func (e *FaultEngine) WithRules(rules map[int]Attribution) *FaultEngine {
	e.scenarioRules = rules
	return e
}

// Assess produces the preliminary fault split. With no checkbox selections
// and no narrative signal the result is entirely nil: the engine never
// guesses.
func (e *FaultEngine) Assess(form model.FormCheckboxes, narrative string) model.FaultAssessment {
	checkboxAttr, indicators := e.fromCheckboxes(form)
	narrativeAttr := e.fromNarrative(narrative)

	attr := checkboxAttr
	var contested []string
	if checkboxAttr != AttributeNone && narrativeAttr != AttributeNone && checkboxAttr != narrativeAttr {
		contested = append(contested, disagreementFlag)
		if !e.checkboxPrecedence {
			attr = narrativeAttr
		}
	}
	if attr == AttributeNone {
		attr = narrativeAttr
	}

	if attr == AttributeNone {
		return model.FaultAssessment{}
	}

	fa := model.FaultAssessment{
		FaultIndicators: indicators,
		ContestedPoints: contested,
	}
	switch attr {
	case AttributePartyA:
		fa.PreliminaryFaultParty = strPtr("party_a")
		fa.PartyAFaultPercentage = intPtr(100)
		fa.PartyBFaultPercentage = intPtr(0)
	case AttributePartyB:
		fa.PreliminaryFaultParty = strPtr("party_b")
		fa.PartyAFaultPercentage = intPtr(0)
		fa.PartyBFaultPercentage = intPtr(100)
	case AttributeShared:
		fa.PreliminaryFaultParty = strPtr("shared")
		fa.PartyAFaultPercentage = intPtr(50)
		fa.PartyBFaultPercentage = intPtr(50)
	}
	return fa
}

// fromCheckboxes tallies scenario attributions over the ticked section 13
// boxes. Opposing attributions collapse to shared; unknown codes contribute
// nothing. Section 12 damage zones serve as indicators only.
func (e *FaultEngine) fromCheckboxes(form model.FormCheckboxes) (Attribution, []string) {
	var indicators []string

	votesA, votesB, votesShared := 0, 0, 0
	codes := append([]int(nil), form.Section13Selections...)
	sort.Ints(codes)
	for _, code := range codes {
		attr, ok := e.scenarioRules[code]
		if !ok {
			continue
		}
		switch attr {
		case AttributePartyA:
			votesA++
		case AttributePartyB:
			votesB++
		case AttributeShared:
			votesShared++
		}
		indicators = append(indicators, scenarioIndicator(code))
	}

	for _, zone := range form.Section12Selections {
		indicators = append(indicators, zoneIndicator(zone))
	}

	switch {
	case votesA == 0 && votesB == 0 && votesShared == 0:
		return AttributeNone, indicators
	case votesA > 0 && votesB > 0:
		return AttributeShared, indicators
	case votesShared > 0 && votesA == 0 && votesB == 0:
		return AttributeShared, indicators
	case votesA > 0:
		return AttributePartyA, indicators
	default:
		return AttributePartyB, indicators
	}
}

func (e *FaultEngine) fromNarrative(narrative string) Attribution {
	if strings.TrimSpace(narrative) == "" {
		return AttributeNone
	}
	lower := strings.ToLower(narrative)
	for _, cue := range e.cues {
		if strings.Contains(lower, cue.phrase) {
			return cue.attr
		}
	}
	return AttributeNone
}

func scenarioIndicator(code int) string {
	return "section 13 scenario " + strconv.Itoa(code)
}

func zoneIndicator(zone int) string {
	return "section 12 damage zone " + strconv.Itoa(zone)
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
