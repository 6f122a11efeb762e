// Package mapper translates health portrait fragments into graph upserts.
// Every function is pure: it returns ops and the fragments it dropped, and
// never touches the store.
package mapper

import (
	"strings"

	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

const (
	LabelPatient          = "Patient"
	LabelEncounter        = "Encounter"
	LabelHospital         = "Hospital"
	LabelDepartment       = "Department"
	LabelProvider         = "Provider"
	LabelCondition        = "Condition"
	LabelExamination      = "Examination"
	LabelFinding          = "Finding"
	LabelBodyPart         = "BodyPart"
	LabelLabReport        = "LabTestReport"
	LabelLabItem          = "LabTestItem"
	LabelAllergen         = "Allergen"
	LabelFamilyHistory    = "FamilyHistoryFact"
	LabelPastEvent        = "PastMedicalEvent"
	LabelSurgery          = "Surgery"
	LabelTrauma           = "Trauma"
	LabelBloodTransfusion = "BloodTransfusion"
	LabelVaccination      = "Vaccination"
	LabelLifestyleFact    = "LifestyleFact"
)

const (
	RelHadEncounter   = "HAD_ENCOUNTER"
	RelAtHospital     = "AT_HOSPITAL"
	RelInDepartment   = "IN_DEPARTMENT"
	RelHasDepartment  = "HAS_DEPARTMENT"
	RelTreatedBy      = "TREATED_BY"
	RelRecordedDiag   = "RECORDED_DIAGNOSIS"
	RelHadExamination = "HAD_EXAMINATION"
	RelHasFinding     = "HAS_FINDING"
	RelSuggests       = "SUGGESTS_CONDITION"
	RelLocatedIn      = "LOCATED_IN"
	RelHadLabTest     = "HAD_LAB_TEST"
	RelHasItem        = "HAS_ITEM"
	RelAllergicTo     = "HAS_ALLERGY_TO"
	RelFamilyHistory  = "HAS_FAMILY_HISTORY"
	RelOfCondition    = "OF_CONDITION"
	RelHadSurgery     = "HAD_SURGERY"
	RelHadTrauma      = "HAD_TRAUMA"
	RelHadTransfusion = "HAD_BLOOD_TRANSFUSION"
	RelHadVaccination = "HAD_VACCINATION"
	RelLifestyle      = "HAS_LIFESTYLE_FACT"
	RelSpouseOf       = "SPOUSE_OF"
	RelParentOf       = "PARENT_OF"
)

const (
	PropPatientID = "patientId"
	PropIDType    = "idType"
	PropIDValue   = "idValue"
)

// Concept names used in skip records and metrics.
const (
	conceptEncounter    = "encounter"
	conceptDiagnosis    = "diagnosis"
	conceptExamination  = "examination"
	conceptFinding      = "finding"
	conceptLabReport    = "lab_report"
	conceptLabItem      = "lab_item"
	conceptLabRow       = "lab_row"
	conceptExamRow      = "exam_row"
	conceptAllergy      = "allergy"
	conceptFamilyHist   = "family_history"
	conceptSurgery      = "surgery"
	conceptTrauma       = "trauma"
	conceptTransfusion  = "transfusion"
	conceptVaccination  = "vaccination"
	conceptLifestyle    = "lifestyle"
	conceptFamilyMember = "family_member"
)

// Skip records a fragment dropped by a data-quality gate.
type Skip struct {
	Concept string
	Reason  string
	Ref     string
}

type Result struct {
	Ops   []graph.Op
	Skips []Skip
}

func (r *Result) add(ops ...graph.Op) { r.Ops = append(r.Ops, ops...) }

func (r *Result) skip(concept, reason, ref string) {
	r.Skips = append(r.Skips, Skip{Concept: concept, Reason: reason, Ref: ref})
}

// Merge appends o's ops and skips to r.
func (r *Result) Merge(o Result) {
	r.Ops = append(r.Ops, o.Ops...)
	r.Skips = append(r.Skips, o.Skips...)
}

// PatientRef addresses the authoritative Subject node.
func PatientRef(patientID string) graph.NodeRef {
	return graph.NodeRef{Label: LabelPatient, Key: graph.Props{PropPatientID: patientID}}
}

func ref(label, key, value string) graph.NodeRef {
	return graph.NodeRef{Label: label, Key: graph.Props{key: value}}
}

func upsert(r graph.NodeRef, set graph.Props) graph.NodeUpsert {
	return graph.NodeUpsert{Label: r.Label, Key: r.Key, Set: set}
}

func edge(typ string, from, to graph.NodeRef, set graph.Props) graph.EdgeUpsert {
	return graph.EdgeUpsert{Type: typ, From: from, To: to, Set: set}
}

// instant parses a source timestamp; unparseable values become nil.
func instant(raw portrait.FlexString) any {
	if in, ok := timeparse.Parse(raw.String()); ok {
		return in
	}
	return nil
}

func isSentinel(v portrait.FlexString, sentinels map[string]struct{}) bool {
	_, ok := sentinels[strings.ToLower(v.String())]
	return ok
}

func sentinelSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[strings.ToLower(v)] = struct{}{}
	}
	return out
}
