package mapper

import (
	"strings"

	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
)

var (
	allergenSentinels = sentinelSet("无", "未知", "不详", "unknown")
	diseaseSentinels  = sentinelSet("不详", "未知", "unknown")
)

const unspecifiedRelative = "unspecified"

func Allergies(patientID string, allergies []portrait.Allergy) Result {
	var r Result
	patient := PatientRef(patientID)
	for _, a := range allergies {
		if !a.Allergen.Present() || isSentinel(a.Allergen, allergenSentinels) {
			r.skip(conceptAllergy, "empty_or_unknown_allergen", patientID)
			continue
		}
		allergen := ref(LabelAllergen, "name", a.Allergen.String())
		r.add(
			upsert(allergen, nil),
			edge(RelAllergicTo, patient, allergen, graph.Props{
				"allergyId":    a.AllergyID.Value(),
				"allergenType": a.AllergenType.Value(),
				"reaction":     a.Reaction.Value(),
				"reactionType": a.ReactionType.Value(),
				"recordedAt":   instant(a.RecordedAt),
			}),
		)
	}
	return r
}

// FamilyHistory links the subject to a shared (relative, condition) fact.
// Onset and recording time are per-subject and live on the edge.
func FamilyHistory(patientID string, records []portrait.FamilyHistory) Result {
	var r Result
	patient := PatientRef(patientID)
	for _, h := range records {
		if !h.Disease.Present() || isSentinel(h.Disease, diseaseSentinels) {
			r.skip(conceptFamilyHist, "empty_or_unknown_disease", patientID)
			continue
		}
		fact := graph.NodeRef{Label: LabelFamilyHistory, Key: graph.Props{
			"relative":      h.Relative.Or(unspecifiedRelative),
			"conditionName": h.Disease.String(),
		}}
		cond, condOps := condition("", h.Disease)
		r.add(upsert(fact, nil))
		r.add(condOps...)
		r.add(
			edge(RelOfCondition, fact, cond, nil),
			edge(RelFamilyHistory, patient, fact, graph.Props{
				"onsetAge":   h.OnsetAge.Value(),
				"recordedAt": instant(h.RecordedAt),
			}),
		)
	}
	return r
}

func pastEvent(patientID, relType, subtype, eventKey string, set graph.Props) []graph.Op {
	key := graph.Props{"eventKey": eventKey}
	return []graph.Op{
		graph.NodeUpsert{Label: LabelPastEvent, ExtraLabels: []string{subtype}, Key: key, Set: set},
		edge(relType, PatientRef(patientID), graph.NodeRef{Label: LabelPastEvent, Key: key}, nil),
	}
}

func eventKey(parts ...string) string { return strings.Join(parts, "|") }

func Surgeries(patientID string, surgeries []portrait.Surgery) Result {
	var r Result
	for _, s := range surgeries {
		if !s.Name.Present() {
			r.skip(conceptSurgery, "missing_name", patientID)
			continue
		}
		r.add(pastEvent(patientID, RelHadSurgery, LabelSurgery,
			eventKey(patientID, "surgery", s.Name.String(), s.Date.String()),
			graph.Props{
				"name":     s.Name.String(),
				"date":     instant(s.Date),
				"bodySite": s.BodySite.Value(),
				"code":     s.Code.Value(),
			})...)
	}
	return r
}

func Traumas(patientID string, traumas []portrait.Trauma) Result {
	var r Result
	for _, t := range traumas {
		if !t.BodySite.Present() || !t.Type.Present() {
			r.skip(conceptTrauma, "missing_body_site_or_type", patientID)
			continue
		}
		name := t.BodySite.String() + " " + t.Type.String()
		r.add(pastEvent(patientID, RelHadTrauma, LabelTrauma,
			eventKey(patientID, "trauma", name, t.Date.String()),
			graph.Props{
				"name":     name,
				"date":     instant(t.Date),
				"severity": t.Severity.Value(),
				"healed":   t.Healed.Value(),
				"traumaId": t.ID.Value(),
			})...)
	}
	return r
}

func Transfusions(patientID string, transfusions []portrait.Transfusion) Result {
	var r Result
	for _, t := range transfusions {
		if !t.Date.Present() && !t.VolumeML.Present() {
			r.skip(conceptTransfusion, "missing_date_and_volume", patientID)
			continue
		}
		r.add(pastEvent(patientID, RelHadTransfusion, LabelBloodTransfusion,
			eventKey(patientID, "transfusion", t.Date.String(), t.VolumeML.String()),
			graph.Props{
				"name":          "输血 " + t.VolumeML.String() + "ml",
				"date":          instant(t.Date),
				"volumeMl":      t.VolumeML.Value(),
				"address":       t.Address.Value(),
				"transfusionId": t.ID.Value(),
			})...)
	}
	return r
}

func Vaccinations(patientID string, vaccinations []portrait.Vaccination) Result {
	var r Result
	for _, v := range vaccinations {
		if !v.Name.Present() {
			r.skip(conceptVaccination, "missing_name", patientID)
			continue
		}
		key := patientID + "_" + v.Name.String() + "_" + v.Date.Or("no_date") + "_" + v.DoseNumber.String()
		r.add(pastEvent(patientID, RelHadVaccination, LabelVaccination, key, graph.Props{
			"name":         v.Name.String(),
			"date":         instant(v.Date),
			"doseNumber":   v.DoseNumber.String(),
			"manufacturer": v.Manufacturer.Value(),
			"lotNumber":    v.LotNumber.Value(),
			"vaccineCode":  v.Code.Value(),
		})...)
	}
	return r
}
