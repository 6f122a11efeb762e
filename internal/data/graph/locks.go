package graph

import (
	"fmt"
	"sort"
)

// LockLabel marks the nodes used to serialise MERGEs on keys that have no
// uniqueness constraint. Neo4j only locks a MERGE against concurrent
// creation when a constraint backs the key, so without this two
// transactions can each create the same stub patient or name-only
// condition.
const LockLabel = "MergeLock"

// uniqueKeys is the single property each label is uniquely constrained on.
// It must agree with SchemaStatements.
var uniqueKeys = map[string]string{
	"Patient":          "patientId",
	"Encounter":        "encounterId",
	"Hospital":         "hospitalId",
	"Department":       "departmentId",
	"Provider":         "providerId",
	"LabTestReport":    "reportId",
	"LabTestItem":      "name",
	"Examination":      "reportId",
	"Allergen":         "name",
	"BodyPart":         "name",
	"PastMedicalEvent": "eventKey",
}

var lockCypher = fmt.Sprintf("UNWIND $keys AS key\nMERGE (l:`%s` {key: key})\nSET l.held = true", LockLabel)

// lockKey names the lock guarding a MERGE or MATCH on label and key. It is
// empty when a uniqueness constraint already serialises the key.
func lockKey(label string, key Props) string {
	if len(key) == 1 {
		if prop, ok := uniqueKeys[label]; ok {
			if _, keyed := key[prop]; keyed {
				return ""
			}
		}
	}
	return label + formatProps(key)
}

// locksFor lists the locks an op must hold, sorted so every statement
// acquires them in the same order.
func locksFor(op Op) []string {
	var keys []string
	add := func(label string, key Props) {
		if k := lockKey(label, key); k != "" {
			keys = append(keys, k)
		}
	}
	switch o := op.(type) {
	case NodeUpsert:
		add(o.Label, o.Key)
	case *NodeUpsert:
		add(o.Label, o.Key)
	case Claim:
		add(o.Label, o.Match)
		if o.Absent != nil {
			add(o.Absent.Label, o.Absent.Key)
		}
	case *Claim:
		return locksFor(*o)
	}
	sort.Strings(keys)
	return keys
}
