package graph

import (
	"context"

	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

// SchemaStatements are the uniqueness constraints and lookup indexes for
// every keyed label. Keys with only a plain index (stub patients on
// (idType, idValue), conditions, findings, facts) are serialised through
// MergeLock nodes, whose own constraint makes the lock MERGE race-free.
var SchemaStatements = []string{
	"CREATE CONSTRAINT patient_id_unique IF NOT EXISTS FOR (p:Patient) REQUIRE p.patientId IS UNIQUE",
	"CREATE CONSTRAINT encounter_id_unique IF NOT EXISTS FOR (e:Encounter) REQUIRE e.encounterId IS UNIQUE",
	"CREATE CONSTRAINT hospital_id_unique IF NOT EXISTS FOR (h:Hospital) REQUIRE h.hospitalId IS UNIQUE",
	"CREATE CONSTRAINT department_id_unique IF NOT EXISTS FOR (d:Department) REQUIRE d.departmentId IS UNIQUE",
	"CREATE CONSTRAINT provider_id_unique IF NOT EXISTS FOR (p:Provider) REQUIRE p.providerId IS UNIQUE",
	"CREATE CONSTRAINT lab_report_id_unique IF NOT EXISTS FOR (r:LabTestReport) REQUIRE r.reportId IS UNIQUE",
	"CREATE CONSTRAINT lab_item_name_unique IF NOT EXISTS FOR (i:LabTestItem) REQUIRE i.name IS UNIQUE",
	"CREATE CONSTRAINT examination_id_unique IF NOT EXISTS FOR (x:Examination) REQUIRE x.reportId IS UNIQUE",
	"CREATE CONSTRAINT allergen_name_unique IF NOT EXISTS FOR (a:Allergen) REQUIRE a.name IS UNIQUE",
	"CREATE CONSTRAINT body_part_name_unique IF NOT EXISTS FOR (b:BodyPart) REQUIRE b.name IS UNIQUE",
	"CREATE CONSTRAINT past_event_key_unique IF NOT EXISTS FOR (e:PastMedicalEvent) REQUIRE e.eventKey IS UNIQUE",
	"CREATE CONSTRAINT merge_lock_key_unique IF NOT EXISTS FOR (l:MergeLock) REQUIRE l.key IS UNIQUE",
	"CREATE INDEX patient_natural_id IF NOT EXISTS FOR (p:Patient) ON (p.idType, p.idValue)",
	"CREATE INDEX condition_code IF NOT EXISTS FOR (c:Condition) ON (c.code)",
	"CREATE INDEX condition_name IF NOT EXISTS FOR (c:Condition) ON (c.name)",
	"CREATE INDEX finding_key IF NOT EXISTS FOR (f:Finding) ON (f.reportId, f.name)",
	"CREATE INDEX family_history_key IF NOT EXISTS FOR (f:FamilyHistoryFact) ON (f.relative, f.conditionName)",
	"CREATE INDEX lifestyle_key IF NOT EXISTS FOR (f:LifestyleFact) ON (f.type, f.value)",
}

// EnsureSchema applies SchemaStatements best-effort. Failures are logged and
// counted; ingestion works without them, only slower.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) (applied int) {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)
	for _, q := range SchemaStatements {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			logWarn(s.log, "neo4j schema init failed (continuing)", "statement", q, "error", err)
			continue
		}
		applied++
	}
	return applied
}

func logWarn(log *logger.Logger, msg string, kv ...interface{}) {
	if log != nil {
		log.Warn(msg, kv...)
	}
}
