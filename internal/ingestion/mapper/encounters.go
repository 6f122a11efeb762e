package mapper

import (
	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
)

var encounterTypeNames = map[string]string{
	"1": "门诊",
	"2": "住院",
	"3": "体检",
}

const unknownEncounterType = "未知类型"

// Encounters maps visits, their organisational context and the diagnoses,
// examinations and lab reports nested under each visit.
func Encounters(patientID string, encounters []portrait.Encounter) Result {
	var r Result
	patient := PatientRef(patientID)
	for _, enc := range encounters {
		if !enc.EncounterID.Present() {
			r.skip(conceptEncounter, "missing_encounter_id", patientID)
			continue
		}
		id := enc.EncounterID.String()
		encRef := ref(LabelEncounter, "encounterId", id)
		typeName, ok := encounterTypeNames[enc.EncounterType.String()]
		if !ok {
			typeName = unknownEncounterType
		}
		r.add(
			upsert(encRef, graph.Props{
				"encounterType":  enc.EncounterType.Value(),
				"typeName":       typeName,
				"visitStartTime": instant(enc.VisitStartTime),
				"visitEndTime":   instant(enc.VisitEndTime),
			}),
			edge(RelHadEncounter, patient, encRef, nil),
		)
		r.Merge(encounterContext(encRef, enc))
		r.Merge(Diagnoses(id, enc.Diagnoses))
		r.Merge(Examinations(id, enc.Examinations))
		r.Merge(LabTests(id, enc.LabTests))
	}
	return r
}

func encounterContext(encRef graph.NodeRef, enc portrait.Encounter) Result {
	var r Result
	var hospital graph.NodeRef
	if enc.HospitalID.Present() {
		hospital = ref(LabelHospital, "hospitalId", enc.HospitalID.String())
		r.add(
			upsert(hospital, graph.Props{"name": enc.HospitalName.Value()}),
			edge(RelAtHospital, encRef, hospital, nil),
		)
	}
	if enc.DepartmentID.Present() {
		dept := ref(LabelDepartment, "departmentId", enc.DepartmentID.String())
		r.add(
			upsert(dept, graph.Props{"name": enc.DepartmentName.Value()}),
			edge(RelInDepartment, encRef, dept, nil),
		)
		if hospital.Label != "" {
			r.add(edge(RelHasDepartment, hospital, dept, nil))
		}
	}
	if enc.AttendingProviderID.Present() {
		doc := ref(LabelProvider, "providerId", enc.AttendingProviderID.String())
		r.add(
			upsert(doc, graph.Props{"name": enc.AttendingProviderName.Value()}),
			edge(RelTreatedBy, encRef, doc, nil),
		)
	}
	return r
}

// condition returns the ops that resolve a Condition and the ref that
// addresses it afterwards. A coded condition first claims a name-only node
// of the same name so the two spellings converge on one node.
func condition(code, name portrait.FlexString) (graph.NodeRef, []graph.Op) {
	switch {
	case code.Present():
		r := ref(LabelCondition, "code", code.String())
		var ops []graph.Op
		if name.Present() {
			// A name-only node is upgraded only while no node holds the code.
			ops = append(ops, graph.Claim{
				Label:  LabelCondition,
				Match:  graph.Props{"name": name.String()},
				Unless: "code",
				Assign: graph.Props{"code": code.String()},
				Absent: &graph.NodeRef{Label: r.Label, Key: r.Key},
			})
		}
		ops = append(ops, graph.NodeUpsert{Label: LabelCondition, Key: r.Key, Fill: graph.Props{"name": name.Value()}})
		return r, ops
	default:
		r := ref(LabelCondition, "name", name.String())
		return r, []graph.Op{graph.NodeUpsert{Label: LabelCondition, Key: r.Key}}
	}
}

func Diagnoses(encounterID string, diagnoses []portrait.Diagnosis) Result {
	var r Result
	encRef := ref(LabelEncounter, "encounterId", encounterID)
	for _, d := range diagnoses {
		if !d.Code.Present() && !d.Name.Present() {
			r.skip(conceptDiagnosis, "missing_code_and_name", encounterID)
			continue
		}
		cond, ops := condition(d.Code, d.Name)
		r.add(ops...)
		r.add(edge(RelRecordedDiag, encRef, cond, nil))
	}
	return r
}

func Examinations(encounterID string, exams []portrait.Examination) Result {
	var r Result
	encRef := ref(LabelEncounter, "encounterId", encounterID)
	for _, ex := range exams {
		if !ex.ReportID.Present() {
			r.skip(conceptExamination, "missing_report_id", encounterID)
			continue
		}
		reportID := ex.ReportID.String()
		exRef := ref(LabelExamination, "reportId", reportID)
		r.add(
			upsert(exRef, graph.Props{
				"timestamp":  instant(ex.Timestamp),
				"fullReport": ex.FullReport.Value(),
			}),
			edge(RelHadExamination, encRef, exRef, nil),
		)
		for _, f := range ex.Findings {
			if !f.Result.Present() {
				r.skip(conceptFinding, "missing_result", reportID)
				continue
			}
			r.add(findingOps(exRef, reportID, f)...)
		}
	}
	return r
}

func findingOps(exRef graph.NodeRef, reportID string, f portrait.Finding) []graph.Op {
	finding := graph.NodeRef{Label: LabelFinding, Key: graph.Props{"reportId": reportID, "name": f.Result.String()}}
	ops := []graph.Op{
		upsert(finding, graph.Props{
			"diagnosisId": f.DiagnosisID.Value(),
			"bodyPart":    f.BodyPart.Value(),
		}),
		edge(RelHasFinding, exRef, finding, nil),
	}
	cond, condOps := condition(f.Code, f.Result)
	ops = append(ops, condOps...)
	ops = append(ops, edge(RelSuggests, finding, cond, nil))
	if f.BodyPart.Present() {
		part := ref(LabelBodyPart, "name", f.BodyPart.String())
		ops = append(ops, upsert(part, nil), edge(RelLocatedIn, finding, part, nil))
	}
	return ops
}

func LabTests(encounterID string, tests []portrait.LabTest) Result {
	var r Result
	encRef := ref(LabelEncounter, "encounterId", encounterID)
	for _, lt := range tests {
		if !lt.ReportID.Present() {
			r.skip(conceptLabReport, "missing_report_id", encounterID)
			continue
		}
		reportID := lt.ReportID.String()
		reportRef := ref(LabelLabReport, "reportId", reportID)
		r.add(upsert(reportRef, nil), edge(RelHadLabTest, encRef, reportRef, nil))
		for _, it := range lt.Items {
			if !it.Name.Present() || !it.TestID.Present() {
				r.skip(conceptLabItem, "missing_name_or_test_id", reportID)
				continue
			}
			r.add(labItemOps(reportRef, it.Name, it.Code, it.TestID, graph.Props{
				"value":          it.Value.Value(),
				"textValue":      it.TextValue.Value(),
				"unit":           it.Unit.Value(),
				"referenceRange": it.ReferenceRange.Value(),
				"interpretation": it.Interpretation.Value(),
				"timestamp":      instant(it.Timestamp),
			})...)
		}
	}
	return r
}

// labItemOps links a report to a shared test catalog entry. Per-result
// values live on the HAS_ITEM edge keyed by test id.
func labItemOps(reportRef graph.NodeRef, name, code, testID portrait.FlexString, result graph.Props) []graph.Op {
	item := ref(LabelLabItem, "name", name.String())
	return []graph.Op{
		graph.NodeUpsert{Label: LabelLabItem, Key: item.Key, Fill: graph.Props{"code": code.Value()}},
		graph.EdgeUpsert{
			Type: RelHasItem,
			From: reportRef,
			To:   item,
			Key:  graph.Props{"testId": testID.String()},
			Set:  result,
		},
	}
}
