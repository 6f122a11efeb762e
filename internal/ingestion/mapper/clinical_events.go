package mapper

import (
	"sort"

	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

// SyntheticEncounterID names the per-day encounter that groups a subject's
// unattached lab and exam reports.
func SyntheticEncounterID(patientID, day string) string {
	return "synthetic:" + patientID + ":" + day
}

type dayEvents struct {
	date  timeparse.Instant
	labs  []portrait.LabRow
	exams []portrait.ExamRow
}

// ClinicalEvents groups lab and exam rows that did not arrive attached to a
// visit by report date, one synthetic Encounter per subject per day.
func ClinicalEvents(patientID string, labs []portrait.LabRow, exams []portrait.ExamRow) Result {
	var r Result
	days := map[string]*dayEvents{}
	bucket := func(raw portrait.FlexString) *dayEvents {
		in, ok := timeparse.Parse(raw.String())
		if !ok {
			return nil
		}
		day := in.Day()
		d, ok := days[day]
		if !ok {
			date, _ := timeparse.Parse(day)
			d = &dayEvents{date: date}
			days[day] = d
		}
		return d
	}

	for _, row := range labs {
		if !row.Name.Present() {
			r.skip(conceptLabRow, "missing_name", patientID)
			continue
		}
		d := bucket(row.ReportTime)
		if d == nil {
			r.skip(conceptLabRow, "missing_report_date", patientID)
			continue
		}
		d.labs = append(d.labs, row)
	}
	for _, row := range exams {
		if !row.Name.Present() {
			r.skip(conceptExamRow, "missing_name", patientID)
			continue
		}
		d := bucket(row.ReportTime)
		if d == nil {
			r.skip(conceptExamRow, "missing_report_date", patientID)
			continue
		}
		d.exams = append(d.exams, row)
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	patient := PatientRef(patientID)
	for _, day := range keys {
		d := days[day]
		encID := SyntheticEncounterID(patientID, day)
		encRef := ref(LabelEncounter, "encounterId", encID)
		r.add(
			upsert(encRef, graph.Props{"synthetic": true, "encounterDate": d.date}),
			edge(RelHadEncounter, patient, encRef, nil),
		)
		if len(d.labs) > 0 {
			reportRef := ref(LabelLabReport, "reportId", encID+":lab")
			r.add(
				upsert(reportRef, graph.Props{"synthetic": true, "reportDate": d.date}),
				edge(RelHadLabTest, encRef, reportRef, nil),
			)
			for _, row := range d.labs {
				testID := row.Code
				if !testID.Present() {
					testID = row.Name
				}
				r.add(labItemOps(reportRef, row.Name, row.Code, testID, graph.Props{
					"value":          row.Value.Value(),
					"unit":           row.Unit.Value(),
					"referenceRange": row.ReferenceRange.Value(),
					"timestamp":      instant(row.ReportTime),
				})...)
			}
		}
		for _, row := range d.exams {
			exRef := ref(LabelExamination, "reportId", encID+":exam:"+row.Name.String())
			r.add(
				upsert(exRef, graph.Props{
					"synthetic":  true,
					"name":       row.Name.String(),
					"timestamp":  instant(row.ReportTime),
					"findings":   row.Findings.Value(),
					"fullReport": row.Description.Value(),
				}),
				edge(RelHadExamination, encRef, exRef, nil),
			)
			if row.BodyPart.Present() {
				part := ref(LabelBodyPart, "name", row.BodyPart.String())
				r.add(upsert(part, nil), edge(RelLocatedIn, exRef, part, nil))
			}
		}
	}
	return r
}
