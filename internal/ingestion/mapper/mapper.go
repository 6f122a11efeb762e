package mapper

import "github.com/yungbote/healthgraph-etl/internal/domain/portrait"

// All runs every concept family over doc. Families are independent; the
// subject node itself comes from identity resolution.
func All(patientID string, doc *portrait.Document) Result {
	var r Result
	if doc == nil {
		return r
	}
	r.Merge(Encounters(patientID, doc.Encounters))
	r.Merge(ClinicalEvents(patientID, doc.LabRows, doc.ExamRows))
	r.Merge(Allergies(patientID, doc.Allergies))
	r.Merge(FamilyHistory(patientID, doc.FamilyHistory))
	r.Merge(Surgeries(patientID, doc.Surgeries))
	r.Merge(Traumas(patientID, doc.Traumas))
	r.Merge(Transfusions(patientID, doc.Transfusions))
	r.Merge(Vaccinations(patientID, doc.Vaccinations))
	r.Merge(Lifestyle(patientID, doc))
	r.Merge(FamilyMembers(patientID, doc.FamilyMembers))
	return r
}
