// Package identity reconciles the authoritative Patient node with any stub
// created earlier from a natural identity (idType, idValue).
package identity

import (
	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/mapper"
	"github.com/yungbote/healthgraph-etl/internal/platform/etlerr"
	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

// Resolve returns the claim and subject upsert for doc, in that order.
//
// The claim only promotes a stub that has no patientId. Two nodes that both
// carry a patientId are never merged, even when they share a natural identity.
func Resolve(doc *portrait.Document) ([]graph.Op, error) {
	if doc == nil || !doc.PatientID.Present() {
		return nil, etlerr.ErrMissingSubjectID
	}
	pid := doc.PatientID.String()

	var ops []graph.Op
	if doc.IDType.Present() && doc.IDValue.Present() {
		ops = append(ops, graph.Claim{
			Label: mapper.LabelPatient,
			Match: graph.Props{
				mapper.PropIDType:  doc.IDType.String(),
				mapper.PropIDValue: doc.IDValue.String(),
			},
			Unless: mapper.PropPatientID,
			Assign: graph.Props{mapper.PropPatientID: pid},
		})
	}
	ops = append(ops, graph.NodeUpsert{
		Label: mapper.LabelPatient,
		Key:   mapper.PatientRef(pid).Key,
		Set:   Attributes(doc),
	})
	return ops, nil
}

// Attributes are overwritten on every run; an absent value removes the
// stored one.
func Attributes(doc *portrait.Document) graph.Props {
	return graph.Props{
		mapper.PropIDType:  doc.IDType.Value(),
		mapper.PropIDValue: doc.IDValue.Value(),
		"name":             doc.Name.Value(),
		"empi":             doc.EMPI.Value(),
		"gender":           doc.Gender.Value(),
		"maritalStatus":    doc.MaritalStatus.Value(),
		"birthDate":        parsed(doc.BirthDate),
		"createdAt":        parsed(doc.CreatedAt),
		"updateTime":       parsed(doc.UpdateTime),
	}
}

func parsed(raw portrait.FlexString) any {
	if in, ok := timeparse.Parse(raw.String()); ok {
		return in
	}
	return nil
}
