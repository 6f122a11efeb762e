package mapper

import (
	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

const (
	FactSmokingStatus    = "SmokingStatus"
	FactAlcoholFrequency = "AlcoholFrequency"
	FactBMI              = "BMI"
	FactDietType         = "DietType"
	FactFlavorPreference = "FlavorPreference"
	FactSleepDuration    = "SleepDuration"
	FactSleepQuality     = "SleepQuality"
)

// latest returns the index of the record with the greatest createdAt.
// Unparseable timestamps rank below any parsed one; ties keep the first.
func latest[T any](records []T, createdAt func(T) portrait.FlexString) int {
	best := -1
	var bestAt timeparse.Instant
	for i, rec := range records {
		at, ok := timeparse.Parse(createdAt(rec).String())
		switch {
		case best < 0:
			best, bestAt = i, at
		case ok && (bestAt.IsZero() || at.Time.After(bestAt.Time)):
			best, bestAt = i, at
		}
	}
	return best
}

type lifestyleValue struct {
	factType string
	value    portrait.FlexString
}

func Lifestyle(patientID string, doc *portrait.Document) Result {
	var r Result
	patient := PatientRef(patientID)
	emit := func(source string, createdAt portrait.FlexString, values ...lifestyleValue) {
		for _, v := range values {
			if !v.value.Present() {
				r.skip(conceptLifestyle, "empty_"+v.factType, patientID)
				continue
			}
			fact := graph.NodeRef{Label: LabelLifestyleFact, Key: graph.Props{"type": v.factType, "value": v.value.String()}}
			r.add(
				upsert(fact, nil),
				edge(RelLifestyle, patient, fact, graph.Props{
					"recordedAt": instant(createdAt),
					"source":     source,
				}),
			)
		}
	}

	if i := latest(doc.Smoking, func(s portrait.SmokingRecord) portrait.FlexString { return s.CreatedAt }); i >= 0 {
		s := doc.Smoking[i]
		emit("personalSmokingHistoryList", s.CreatedAt, lifestyleValue{FactSmokingStatus, s.Status})
	}
	if i := latest(doc.Alcohol, func(a portrait.AlcoholRecord) portrait.FlexString { return a.CreatedAt }); i >= 0 {
		a := doc.Alcohol[i]
		emit("personalAlcoholHistoryList", a.CreatedAt, lifestyleValue{FactAlcoholFrequency, a.Frequency})
	}
	if i := latest(doc.PhysicalTraits, func(p portrait.PhysicalTraits) portrait.FlexString { return p.CreatedAt }); i >= 0 {
		p := doc.PhysicalTraits[i]
		emit("physicalTraitsList", p.CreatedAt, lifestyleValue{FactBMI, p.BMI})
	}
	if i := latest(doc.DietHabits, func(d portrait.DietHabit) portrait.FlexString { return d.CreatedAt }); i >= 0 {
		d := doc.DietHabits[i]
		emit("dietHabitsList", d.CreatedAt,
			lifestyleValue{FactDietType, d.DietType},
			lifestyleValue{FactFlavorPreference, d.FlavorType},
		)
	}
	if i := latest(doc.Sleep, func(s portrait.SleepAssessment) portrait.FlexString { return s.CreatedAt }); i >= 0 {
		s := doc.Sleep[i]
		emit("sleepAssessmentList", s.CreatedAt,
			lifestyleValue{FactSleepDuration, s.Duration},
			lifestyleValue{FactSleepQuality, s.Quality},
		)
	}
	return r
}
