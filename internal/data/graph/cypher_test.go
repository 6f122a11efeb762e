package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

func TestRenderNodeUpsert(t *testing.T) {
	st, err := Render(NodeUpsert{
		Label:       "PastMedicalEvent",
		ExtraLabels: []string{"Surgery"},
		Key:         Props{"eventKey": "P1|surgery|appendectomy|"},
		Set:         Props{"name": "appendectomy", "date": nil},
		Fill:        Props{"code": "47.0"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"MERGE (n:`PastMedicalEvent` {`eventKey`: $key_eventKey})",
		"SET n:`Surgery`",
		"SET n += $set",
		"n.`code` = coalesce(n.`code`, $fill_code)",
	} {
		if !strings.Contains(st.Cypher, want) {
			t.Fatalf("cypher missing %q:\n%s", want, st.Cypher)
		}
	}
	set, _ := st.Params["set"].(map[string]any)
	if v, ok := set["date"]; !ok || v != nil {
		t.Fatalf("set.date: want explicit nil got=%v ok=%v", v, ok)
	}
	if st.Counted {
		t.Fatalf("node upsert should not be counted")
	}
}

func TestRenderEdgeIsCounted(t *testing.T) {
	st, err := Render(EdgeUpsert{
		Type:       "SPOUSE_OF",
		From:       NodeRef{"Patient", Props{"patientId": "A"}},
		To:         NodeRef{"Patient", Props{"idType": "01", "idValue": "X"}},
		Undirected: true,
		Set:        Props{"relationshipName": "丈夫"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !st.Counted {
		t.Fatalf("edge upsert must be counted")
	}
	if !strings.Contains(st.Cypher, "MERGE (a)-[r:`SPOUSE_OF`]-(b)") {
		t.Fatalf("undirected merge missing:\n%s", st.Cypher)
	}
	if !strings.Contains(st.Cypher, "MATCH (b:`Patient` {`idType`: $to_idType, `idValue`: $to_idValue})") {
		t.Fatalf("to match missing:\n%s", st.Cypher)
	}
	if !strings.HasSuffix(st.Cypher, "RETURN count(r) AS n") {
		t.Fatalf("count return missing:\n%s", st.Cypher)
	}
}

func TestRenderClaimAndStub(t *testing.T) {
	st, err := Render(Claim{Label: "Patient", Match: Props{"idType": "01", "idValue": "X"}, Unless: "patientId", Assign: Props{"patientId": "PX"}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(st.Cypher, "WHERE n.`patientId` IS NULL") {
		t.Fatalf("claim guard missing:\n%s", st.Cypher)
	}

	st, err = Render(NodeUpsert{
		Label:     "Patient",
		Key:       Props{"idType": "01", "idValue": "X"},
		StubPatch: &Patch{Unless: "patientId", Props: Props{"name": "Li", "gender": nil}},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(st.Cypher, "FOREACH (ignored IN CASE WHEN n.`patientId` IS NULL THEN [1] ELSE [] END | SET n += $stub)") {
		t.Fatalf("stub patch missing:\n%s", st.Cypher)
	}
	stub, _ := st.Params["stub"].(map[string]any)
	if _, ok := stub["gender"]; ok {
		t.Fatalf("stub params must drop nil values")
	}
}

func TestRenderClaimAbsentGuard(t *testing.T) {
	st, err := Render(Claim{
		Label:  "Condition",
		Match:  Props{"name": "Hypertension"},
		Unless: "code",
		Assign: Props{"code": "I10"},
		Absent: &NodeRef{Label: "Condition", Key: Props{"code": "I10"}},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "WHERE n.`code` IS NULL AND NOT EXISTS { MATCH (:`Condition` {`code`: $absent_code}) }"
	if !strings.Contains(st.Cypher, want) {
		t.Fatalf("absent guard missing:\n%s", st.Cypher)
	}
	if st.Params["absent_code"] != "I10" {
		t.Fatalf("absent_code: want=I10 got=%v", st.Params["absent_code"])
	}
}

func TestToParamTemporal(t *testing.T) {
	day := timeparse.Instant{Time: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), Precision: timeparse.Date}
	if _, ok := toParam(day).(neo4j.Date); !ok {
		t.Fatalf("date precision: want neo4j.Date got=%T", toParam(day))
	}
	ts := timeparse.Instant{Time: time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC), Precision: timeparse.DateTime}
	if _, ok := toParam(ts).(neo4j.LocalDateTime); !ok {
		t.Fatalf("datetime precision: want neo4j.LocalDateTime got=%T", toParam(ts))
	}
}
