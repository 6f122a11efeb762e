package mapper

import (
	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
)

var genderNames = map[string]string{
	"1": "Male",
	"2": "Female",
}

// RelativeRef addresses a family member by natural identity. The node may
// be a stub or an already claimed Patient.
func RelativeRef(idType, idValue string) graph.NodeRef {
	return graph.NodeRef{Label: LabelPatient, Key: graph.Props{PropIDType: idType, PropIDValue: idValue}}
}

// FamilyMembers links the subject to relatives. A relative is created as a
// stub keyed by natural identity; its demographics are only written while
// no authoritative document has claimed it.
func FamilyMembers(patientID string, members []portrait.FamilyMember) Result {
	var r Result
	patient := PatientRef(patientID)
	for _, m := range members {
		if !m.Relationship.Known() {
			r.skip(conceptFamilyMember, "unknown_relationship", patientID)
			continue
		}
		if !m.IDType.Present() || !m.IDValue.Present() {
			r.skip(conceptFamilyMember, "missing_natural_id", patientID)
			continue
		}
		if m.PatientID.String() == patientID {
			r.skip(conceptFamilyMember, "self_reference", patientID)
			continue
		}

		relative := RelativeRef(m.IDType.String(), m.IDValue.String())
		var gender any
		if g, ok := genderNames[m.Gender.String()]; ok {
			gender = g
		}
		r.add(graph.NodeUpsert{
			Label: LabelPatient,
			Key:   relative.Key,
			StubPatch: &graph.Patch{
				Unless: PropPatientID,
				Props: graph.Props{
					"name":        m.Name.Value(),
					"gender":      gender,
					"birthDate":   instant(m.BirthDate),
					PropPatientID: m.PatientID.Value(),
				},
			},
		})

		kin := m.Relationship.Kinship
		set := graph.Props{"relationshipName": m.RelationshipName.Or(kin.String())}
		switch kin {
		case portrait.KinshipSpouse:
			r.add(graph.EdgeUpsert{Type: RelSpouseOf, From: patient, To: relative, Undirected: true, Set: set})
		case portrait.KinshipChild:
			r.add(edge(RelParentOf, patient, relative, set))
		case portrait.KinshipParent:
			r.add(edge(RelParentOf, relative, patient, set))
		}
	}
	return r
}
