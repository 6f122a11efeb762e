package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/mapper"
	"github.com/yungbote/healthgraph-etl/internal/platform/etlerr"
)

const (
	docP1 = `{
		"patientId": "P1",
		"name": "Zhang San",
		"encounters": [{
			"encounterId": "E1",
			"diagnoses": [{"diagnosisNo": "I10", "diagnosisName": "Hypertension"}]
		}]
	}`
	docA = `{
		"patientId": "A",
		"name": "Parent A",
		"familyMembers": [{
			"relationship": 2,
			"idType": "01",
			"idValue": "110101199001011234",
			"name": "Child X",
			"gender": "1",
			"birthDate": "1990-01-01"
		}]
	}`
	docX = `{
		"patientId": "X",
		"idType": "01",
		"idValue": "110101199001011234",
		"name": "Child X",
		"gender": "1",
		"birthDate": "1990-01-01",
		"maritalStatus": "未婚"
	}`
)

func mustDecode(t *testing.T, raw string) *portrait.Document {
	t.Helper()
	doc, err := portrait.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return doc
}

func newCoordinator(t *testing.T, store graph.Store) *Coordinator {
	t.Helper()
	c, err := New(store, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func ingestAll(t *testing.T, c *Coordinator, docs ...string) {
	t.Helper()
	for _, raw := range docs {
		if _, err := c.Ingest(context.Background(), mustDecode(t, raw)); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
}

func TestScenarioCountsStableAcrossRuns(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newCoordinator(t, store)

	check := func(run int) {
		st, _ := store.Stats(context.Background())
		want := map[string]int{mapper.LabelPatient: 1, mapper.LabelEncounter: 1, mapper.LabelCondition: 1}
		for label, n := range want {
			if st.Nodes[label] != n {
				t.Fatalf("run %d %s: want=%d got=%d", run, label, n, st.Nodes[label])
			}
		}
		if st.Edges[mapper.RelRecordedDiag] != 1 || st.Edges[mapper.RelHadEncounter] != 1 {
			t.Fatalf("run %d edges: got=%v", run, st.Edges)
		}
		cond := store.Find(mapper.LabelCondition, graph.Props{"code": "I10"})
		if len(cond) != 1 || cond[0].Props["name"] != "Hypertension" {
			t.Fatalf("run %d condition: got=%v", run, cond)
		}
	}

	ingestAll(t, c, docP1)
	check(1)
	first := store.Canonical()
	ingestAll(t, c, docP1)
	check(2)
	if strings.Join(first, "\n") != strings.Join(store.Canonical(), "\n") {
		t.Fatalf("second run changed the graph")
	}
}

func TestMissingPatientIDWritesNothing(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newCoordinator(t, store)
	_, err := c.Ingest(context.Background(), mustDecode(t, `{"encounters": [{"encounterId": "E1"}]}`))
	if !errors.Is(err, etlerr.ErrMissingSubjectID) {
		t.Fatalf("err: want ErrMissingSubjectID got=%v", err)
	}
	if k, ok := etlerr.KindOf(err); !ok || k != etlerr.KindSubject {
		t.Fatalf("kind: want=subject got=%v", k)
	}
	if n := len(store.Canonical()); n != 0 {
		t.Fatalf("graph: want empty got=%d lines", n)
	}
}

func TestClaimPromotesStub(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newCoordinator(t, store)
	ingestAll(t, c, docA)

	stubs := store.Find(mapper.LabelPatient, graph.Props{mapper.PropIDValue: "110101199001011234"})
	if len(stubs) != 1 {
		t.Fatalf("stub: want=1 got=%d", len(stubs))
	}
	if _, ok := stubs[0].Props[mapper.PropPatientID]; ok {
		t.Fatalf("stub should not carry a patientId yet")
	}

	ingestAll(t, c, docX)
	xs := store.Find(mapper.LabelPatient, graph.Props{mapper.PropIDValue: "110101199001011234"})
	if len(xs) != 1 {
		t.Fatalf("X nodes: want=1 got=%d", len(xs))
	}
	if xs[0].Props[mapper.PropPatientID] != "X" {
		t.Fatalf("patientId: want=X got=%v", xs[0].Props[mapper.PropPatientID])
	}
	if xs[0].Props["maritalStatus"] != "未婚" {
		t.Fatalf("maritalStatus: want=未婚 got=%v", xs[0].Props["maritalStatus"])
	}
	if n := len(store.Nodes(mapper.LabelPatient)); n != 2 {
		t.Fatalf("patients: want=2 got=%d", n)
	}

	a := store.Find(mapper.LabelPatient, mapper.PatientRef("A").Key)[0]
	edges := store.Edges(mapper.RelParentOf)
	if len(edges) != 1 || edges[0].From != a.ID || edges[0].To != xs[0].ID {
		t.Fatalf("PARENT_OF: got=%+v", edges)
	}
}

func TestClaimIsOrderIndependent(t *testing.T) {
	forward := graph.NewMemoryStore()
	ingestAll(t, newCoordinator(t, forward), docA, docX)

	reverse := graph.NewMemoryStore()
	ingestAll(t, newCoordinator(t, reverse), docX, docA)

	f, r := forward.Canonical(), reverse.Canonical()
	if strings.Join(f, "\n") != strings.Join(r, "\n") {
		t.Fatalf("graphs differ:\nforward:\n%s\nreverse:\n%s", strings.Join(f, "\n"), strings.Join(r, "\n"))
	}
}

func TestClaimNeverMergesAuthoritativeNodes(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newCoordinator(t, store)
	other := strings.Replace(docX, `"patientId": "X"`, `"patientId": "Y"`, 1)
	ingestAll(t, c, docX, other)

	nodes := store.Find(mapper.LabelPatient, graph.Props{mapper.PropIDValue: "110101199001011234"})
	if len(nodes) != 2 {
		t.Fatalf("patients sharing natural id: want=2 got=%d", len(nodes))
	}
}

func TestStubCarryingPatientIDConverges(t *testing.T) {
	withPID := strings.Replace(docA, `"birthDate": "1990-01-01"`, `"birthDate": "1990-01-01", "patientId": "X"`, 1)

	forward := graph.NewMemoryStore()
	ingestAll(t, newCoordinator(t, forward), withPID, docX)
	reverse := graph.NewMemoryStore()
	ingestAll(t, newCoordinator(t, reverse), docX, withPID)

	if n := len(forward.Find(mapper.LabelPatient, mapper.PatientRef("X").Key)); n != 1 {
		t.Fatalf("X nodes: want=1 got=%d", n)
	}
	if strings.Join(forward.Canonical(), "\n") != strings.Join(reverse.Canonical(), "\n") {
		t.Fatalf("graphs differ by ingestion order")
	}
}

type failingStore struct{ err error }

func (f failingStore) Apply(context.Context, []graph.Op) error { return f.err }

func TestStoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	c := newCoordinator(t, failingStore{err: boom})
	_, err := c.Ingest(context.Background(), mustDecode(t, docP1))
	if !errors.Is(err, boom) {
		t.Fatalf("err: want wrapped %v got=%v", boom, err)
	}
	if k, _ := etlerr.KindOf(err); k != etlerr.KindSubject {
		t.Fatalf("kind: want=subject got=%v", k)
	}
}

func TestSkipsAreReported(t *testing.T) {
	c := newCoordinator(t, graph.NewMemoryStore())
	res, err := c.Ingest(context.Background(), mustDecode(t, `{
		"patientId": "P1",
		"encounters": [{"encounterId": "E1", "diagnoses": [{}]}],
		"allergyProfilesList": [{"allergen": "unknown"}]
	}`))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Skips) != 2 {
		t.Fatalf("skips: want=2 got=%v", res.Skips)
	}
	if res.PatientID != "P1" || res.Ops == 0 {
		t.Fatalf("result: got=%+v", res)
	}
}
