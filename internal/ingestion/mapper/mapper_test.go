package mapper

import (
	"context"
	"testing"

	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
)

func applyWithPatient(t *testing.T, pid string, r Result) *graph.MemoryStore {
	t.Helper()
	s := graph.NewMemoryStore()
	ops := append([]graph.Op{graph.NodeUpsert{Label: LabelPatient, Key: PatientRef(pid).Key}}, r.Ops...)
	if err := s.Apply(context.Background(), ops); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return s
}

func decode(t *testing.T, raw string) *portrait.Document {
	t.Helper()
	doc, err := portrait.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return doc
}

func hasSkip(r Result, concept, reason string) bool {
	for _, s := range r.Skips {
		if s.Concept == concept && s.Reason == reason {
			return true
		}
	}
	return false
}

func TestDiagnosisWithoutCodeOrNameIsSkipped(t *testing.T) {
	r := Diagnoses("E1", []portrait.Diagnosis{{}})
	if len(r.Ops) != 0 {
		t.Fatalf("ops: want=0 got=%d", len(r.Ops))
	}
	if !hasSkip(r, conceptDiagnosis, "missing_code_and_name") {
		t.Fatalf("skips: got=%v", r.Skips)
	}
}

func TestEncounterScenario(t *testing.T) {
	doc := decode(t, `{
		"patientId": "P1",
		"encounters": [{
			"encounterId": "E1",
			"encounterType": 2,
			"visitStartTime": "2023-05-01 08:30:00",
			"hospitalId": "H1", "hospitalName": "First Hospital",
			"departmentId": "D1", "departmentName": "Cardiology",
			"diagnoses": [
				{"diagnosisNo": "I10", "diagnosisName": "Hypertension"},
				{"diagnosisNo": "", "diagnosisName": ""}
			]
		}]
	}`)
	r := Encounters("P1", doc.Encounters)
	s := applyWithPatient(t, "P1", r)

	encs := s.Nodes(LabelEncounter)
	if len(encs) != 1 {
		t.Fatalf("encounters: want=1 got=%d", len(encs))
	}
	if encs[0].Props["typeName"] != "住院" {
		t.Fatalf("typeName: want=%q got=%v", "住院", encs[0].Props["typeName"])
	}
	conds := s.Nodes(LabelCondition)
	if len(conds) != 1 || conds[0].Props["code"] != "I10" || conds[0].Props["name"] != "Hypertension" {
		t.Fatalf("conditions: got=%v", conds)
	}
	if n := len(s.Edges(RelRecordedDiag)); n != 1 {
		t.Fatalf("diagnosis edges: want=1 got=%d", n)
	}
	if n := len(s.Edges(RelHasDepartment)); n != 1 {
		t.Fatalf("HAS_DEPARTMENT: want=1 got=%d", n)
	}
}

func TestNameOnlyConditionIsClaimedByCode(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()
	_, first := condition("", "Hypertension")
	_, second := condition("I10", "Hypertension")
	if err := s.Apply(ctx, append(first, second...)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	conds := s.Nodes(LabelCondition)
	if len(conds) != 1 {
		t.Fatalf("conditions: want=1 got=%d", len(conds))
	}
	if conds[0].Props["code"] != "I10" {
		t.Fatalf("code: want=I10 got=%v", conds[0].Props["code"])
	}
}

func TestClaimNeverDuplicatesExistingCode(t *testing.T) {
	s := graph.NewMemoryStore()
	ctx := context.Background()
	steps := [][2]portrait.FlexString{
		{"I10", "Hypertension"},
		{"", "高血压"},
		{"I10", "高血压"},
	}
	for i, st := range steps {
		_, ops := condition(st[0], st[1])
		if err := s.Apply(ctx, ops); err != nil {
			t.Fatalf("step %d Apply: %v", i, err)
		}
	}
	coded := s.Find(LabelCondition, graph.Props{"code": "I10"})
	if len(coded) != 1 {
		t.Fatalf("conditions with code I10: want=1 got=%d (%v)", len(coded), coded)
	}
	if coded[0].Props["name"] != "Hypertension" {
		t.Fatalf("coded name: want=Hypertension got=%v", coded[0].Props["name"])
	}
	local := s.Find(LabelCondition, graph.Props{"name": "高血压"})
	if len(local) != 1 {
		t.Fatalf("name-only node: want=1 got=%d", len(local))
	}
	if _, ok := local[0].Props["code"]; ok {
		t.Fatalf("name-only node must keep no code, got=%v", local[0].Props)
	}
}

func TestLabItemsShareCatalogEntry(t *testing.T) {
	doc := decode(t, `{
		"encounters": [{
			"encounterId": "E1",
			"labTests": [
				{"reportId": "R1", "items": [
					{"labtestIndexName": " GLU ", "labtestIndexCode": "2345-7", "testId": "t1", "value": 5.4, "unit": "mmol/L"},
					{"labtestIndexName": "GLU", "testId": "t2", "value": "6.1"},
					{"labtestIndexName": "HGB"}
				]},
				{"items": [{"labtestIndexName": "X", "testId": "t9"}]}
			]
		}]
	}`)
	r := Encounters("P1", doc.Encounters)
	if !hasSkip(r, conceptLabItem, "missing_name_or_test_id") {
		t.Fatalf("expected lab item skip, got=%v", r.Skips)
	}
	if !hasSkip(r, conceptLabReport, "missing_report_id") {
		t.Fatalf("expected lab report skip, got=%v", r.Skips)
	}
	s := applyWithPatient(t, "P1", r)
	items := s.Nodes(LabelLabItem)
	if len(items) != 1 {
		t.Fatalf("lab items: want=1 got=%d", len(items))
	}
	if items[0].Props["code"] != "2345-7" {
		t.Fatalf("code: want=2345-7 got=%v", items[0].Props["code"])
	}
	has := s.Edges(RelHasItem)
	if len(has) != 2 {
		t.Fatalf("HAS_ITEM: want=2 got=%d", len(has))
	}
	for _, e := range has {
		if e.Props["testId"] == "t1" && e.Props["value"] != "5.4" {
			t.Fatalf("t1 value: want=5.4 got=%v", e.Props["value"])
		}
	}
}

func TestExaminationFindings(t *testing.T) {
	doc := decode(t, `{"encounters": [{
		"encounterId": "E1",
		"examinations": [{
			"reportId": "X1",
			"timestamp": "2023-05-01 10:00:00",
			"findings": [
				{"diagnosisResult": "肺结节", "bodyPart": "肺"},
				{"diagnosisResult": ""}
			]
		}]
	}]}`)
	r := Encounters("P1", doc.Encounters)
	if !hasSkip(r, conceptFinding, "missing_result") {
		t.Fatalf("expected finding skip, got=%v", r.Skips)
	}
	s := applyWithPatient(t, "P1", r)
	if n := len(s.Nodes(LabelFinding)); n != 1 {
		t.Fatalf("findings: want=1 got=%d", n)
	}
	if n := len(s.Edges(RelSuggests)); n != 1 {
		t.Fatalf("SUGGESTS_CONDITION: want=1 got=%d", n)
	}
	if n := len(s.Find(LabelBodyPart, graph.Props{"name": "肺"})); n != 1 {
		t.Fatalf("body part: want=1 got=%d", n)
	}
}

func TestClinicalEventsGroupByDay(t *testing.T) {
	doc := decode(t, `{
		"jyList": [
			{"bgfbsj": "2023-05-01 08:00:00", "jyxmdm": "GLU", "jyxmmc": "血糖", "jyjg": "5.1"},
			{"bgfbsj": "2023-05-01 17:45:00", "jyxmmc": "血红蛋白", "jyjg": "130"},
			{"bgfbsj": "2023-05-03", "jyxmdm": "GLU", "jyxmmc": "血糖", "jyjg": "6.0"},
			{"bgfbsj": "不详", "jyxmmc": "尿酸"},
			{"bgfbsj": "2023-05-03"}
		],
		"jcList": [
			{"bgfbsj": "2023-05-01 11:00:00", "jcxmmc": "胸部CT", "jcbw": "胸部", "jcjg": "未见异常"}
		]
	}`)
	r := ClinicalEvents("P1", doc.LabRows, doc.ExamRows)
	if !hasSkip(r, conceptLabRow, "missing_report_date") || !hasSkip(r, conceptLabRow, "missing_name") {
		t.Fatalf("skips: got=%v", r.Skips)
	}
	s := applyWithPatient(t, "P1", r)

	encs := s.Nodes(LabelEncounter)
	if len(encs) != 2 {
		t.Fatalf("synthetic encounters: want=2 got=%d", len(encs))
	}
	day1 := SyntheticEncounterID("P1", "2023-05-01")
	if n := len(s.Find(LabelEncounter, graph.Props{"encounterId": day1, "synthetic": true})); n != 1 {
		t.Fatalf("encounter %s: want=1 got=%d", day1, n)
	}
	if n := len(s.Nodes(LabelLabReport)); n != 2 {
		t.Fatalf("lab reports: want=2 got=%d", n)
	}
	if n := len(s.Edges(RelHasItem)); n != 3 {
		t.Fatalf("HAS_ITEM: want=3 got=%d", n)
	}
	if n := len(s.Find(LabelExamination, graph.Props{"reportId": day1 + ":exam:胸部CT"})); n != 1 {
		t.Fatalf("exam: want=1 got=%d", n)
	}
	if n := len(s.Edges(RelLocatedIn)); n != 1 {
		t.Fatalf("LOCATED_IN: want=1 got=%d", n)
	}
}

func TestAllergySentinelsAreDropped(t *testing.T) {
	r := Allergies("P1", []portrait.Allergy{
		{Allergen: "Unknown"},
		{Allergen: "无"},
		{Allergen: ""},
		{Allergen: "青霉素", Reaction: "皮疹"},
	})
	if len(r.Skips) != 3 {
		t.Fatalf("skips: want=3 got=%d", len(r.Skips))
	}
	s := applyWithPatient(t, "P1", r)
	allergens := s.Nodes(LabelAllergen)
	if len(allergens) != 1 || allergens[0].Props["name"] != "青霉素" {
		t.Fatalf("allergens: got=%v", allergens)
	}
	edges := s.Edges(RelAllergicTo)
	if len(edges) != 1 || edges[0].Props["reaction"] != "皮疹" {
		t.Fatalf("allergy edge: got=%v", edges)
	}
	if _, ok := allergens[0].Props["reaction"]; ok {
		t.Fatalf("reaction must live on the edge")
	}
}

func TestFamilyHistoryFactIsShared(t *testing.T) {
	records := []portrait.FamilyHistory{
		{Disease: "糖尿病", Relative: "父亲", OnsetAge: "50"},
		{Disease: "不详", Relative: "母亲"},
	}
	r := FamilyHistory("P1", records)
	r2 := FamilyHistory("P2", records[:1])
	if len(r.Skips) != 1 {
		t.Fatalf("skips: want=1 got=%d", len(r.Skips))
	}
	s := graph.NewMemoryStore()
	ctx := context.Background()
	for _, pid := range []string{"P1", "P2"} {
		_ = s.Apply(ctx, []graph.Op{graph.NodeUpsert{Label: LabelPatient, Key: PatientRef(pid).Key}})
	}
	if err := s.Apply(ctx, append(r.Ops, r2.Ops...)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n := len(s.Nodes(LabelFamilyHistory)); n != 1 {
		t.Fatalf("facts: want=1 got=%d", n)
	}
	if n := len(s.Edges(RelFamilyHistory)); n != 2 {
		t.Fatalf("HAS_FAMILY_HISTORY: want=2 got=%d", n)
	}
	if n := len(s.Edges(RelOfCondition)); n != 1 {
		t.Fatalf("OF_CONDITION: want=1 got=%d", n)
	}
}

func TestPastEventKeys(t *testing.T) {
	r := Vaccinations("P1", []portrait.Vaccination{
		{Name: "乙肝疫苗", DoseNumber: "1"},
		{Name: "乙肝疫苗", Date: "2020-01-02", DoseNumber: "2"},
		{Date: "2020-01-02"},
	})
	if len(r.Skips) != 1 {
		t.Fatalf("skips: want=1 got=%d", len(r.Skips))
	}
	s := applyWithPatient(t, "P1", r)
	if n := len(s.Find(LabelVaccination, graph.Props{"eventKey": "P1_乙肝疫苗_no_date_1"})); n != 1 {
		t.Fatalf("no_date key: want=1 got=%d", n)
	}
	if n := len(s.Find(LabelPastEvent, graph.Props{"eventKey": "P1_乙肝疫苗_2020-01-02_2"})); n != 1 {
		t.Fatalf("dated key: want=1 got=%d", n)
	}

	tr := Transfusions("P1", []portrait.Transfusion{{}, {VolumeML: "400"}})
	if len(tr.Skips) != 1 || len(tr.Ops) != 2 {
		t.Fatalf("transfusions: skips=%d ops=%d", len(tr.Skips), len(tr.Ops))
	}
	up := tr.Ops[0].(graph.NodeUpsert)
	if up.Set["name"] != "输血 400ml" {
		t.Fatalf("name: want=%q got=%v", "输血 400ml", up.Set["name"])
	}

	tm := Traumas("P1", []portrait.Trauma{{BodySite: "左臂", Type: "骨折"}, {BodySite: "头部"}})
	if len(tm.Skips) != 1 {
		t.Fatalf("trauma skips: want=1 got=%d", len(tm.Skips))
	}
	if got := tm.Ops[0].(graph.NodeUpsert).Set["name"]; got != "左臂 骨折" {
		t.Fatalf("trauma name: want=%q got=%v", "左臂 骨折", got)
	}
}

func TestLifestyleUsesLatestRecord(t *testing.T) {
	doc := &portrait.Document{
		Smoking: []portrait.SmokingRecord{
			{Status: "吸烟", CreatedAt: "2021-01-01 00:00:00"},
			{Status: "已戒烟", CreatedAt: "2023-06-01 00:00:00"},
			{Status: "从不", CreatedAt: "bad"},
		},
		DietHabits: []portrait.DietHabit{{DietType: "荤素均衡"}},
	}
	r := Lifestyle("P1", doc)
	if !hasSkip(r, conceptLifestyle, "empty_"+FactFlavorPreference) {
		t.Fatalf("skips: got=%v", r.Skips)
	}
	s := applyWithPatient(t, "P1", r)
	if n := len(s.Find(LabelLifestyleFact, graph.Props{"type": FactSmokingStatus, "value": "已戒烟"})); n != 1 {
		t.Fatalf("smoking fact: want=1 got=%d", n)
	}
	if n := len(s.Nodes(LabelLifestyleFact)); n != 2 {
		t.Fatalf("facts: want=2 got=%d", n)
	}
}

func TestFamilyMemberDirection(t *testing.T) {
	doc := decode(t, `{"familyMembers": [
		{"relationship": 1, "idType": "01", "idValue": "S"},
		{"relationship": "2", "idType": "01", "idValue": "C", "gender": "2"},
		{"relationship": 4, "idType": "01", "idValue": "F", "relationshipName": "岳父"},
		{"relationship": 9, "idType": "01", "idValue": "Z"},
		{"relationship": 2, "idType": "01"},
		{"relationship": 2, "idType": "01", "idValue": "ME", "patientId": "P1"}
	]}`)
	r := FamilyMembers("P1", doc.FamilyMembers)
	for _, reason := range []string{"unknown_relationship", "missing_natural_id", "self_reference"} {
		if !hasSkip(r, conceptFamilyMember, reason) {
			t.Fatalf("missing skip %q in %v", reason, r.Skips)
		}
	}
	s := applyWithPatient(t, "P1", r)

	id := func(idValue string) int64 {
		n := s.Find(LabelPatient, RelativeRef("01", idValue).Key)
		if len(n) != 1 {
			t.Fatalf("relative %s: want=1 got=%d", idValue, len(n))
		}
		return n[0].ID
	}
	main := s.Find(LabelPatient, PatientRef("P1").Key)[0].ID

	spouse := s.Edges(RelSpouseOf)
	if len(spouse) != 1 || !spouse[0].Undirected {
		t.Fatalf("spouse: got=%v", spouse)
	}
	parents := s.Edges(RelParentOf)
	if len(parents) != 2 {
		t.Fatalf("PARENT_OF: want=2 got=%d", len(parents))
	}
	for _, e := range parents {
		switch e.Props["relationshipName"] {
		case "CHILD":
			if e.From != main || e.To != id("C") {
				t.Fatalf("child edge direction: %+v", e)
			}
		case "岳父":
			if e.From != id("F") || e.To != main {
				t.Fatalf("parent edge direction: %+v", e)
			}
		default:
			t.Fatalf("unexpected relationshipName %v", e.Props["relationshipName"])
		}
	}
	child := s.Find(LabelPatient, RelativeRef("01", "C").Key)[0]
	if child.Props["gender"] != "Female" {
		t.Fatalf("gender: want=Female got=%v", child.Props["gender"])
	}
}

func TestAllIsIdempotent(t *testing.T) {
	doc := decode(t, `{
		"patientId": "P1",
		"encounters": [{"encounterId": "E1", "diagnoses": [{"diagnosisNo": "I10", "diagnosisName": "Hypertension"}]}],
		"jyList": [{"bgfbsj": "2023-05-01", "jyxmmc": "血糖", "jyjg": "5"}],
		"allergyProfilesList": [{"allergen": "青霉素"}],
		"familyMembers": [{"relationship": 1, "idType": "01", "idValue": "S"}]
	}`)
	s := applyWithPatient(t, "P1", All("P1", doc))
	before := s.Canonical()
	if err := s.Apply(context.Background(), All("P1", doc).Ops); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	after := s.Canonical()
	if len(before) != len(after) {
		t.Fatalf("graph size changed: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("line %d changed:\n%s\n%s", i, before[i], after[i])
		}
	}
}
