package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/answer"
)

const testSchema = `
DROP TABLE IF EXISTS related_works, research_outputs, answers, versioned_questions, versioned_sections,
	versioned_templates, plan_members, project_members, project_fundings, affiliations, plans, projects CASCADE;

CREATE TABLE projects (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	abstract_text TEXT,
	start_date TEXT,
	end_date TEXT
);
CREATE TABLE affiliations (
	uri TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE project_fundings (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	affiliation_id TEXT REFERENCES affiliations(uri),
	status TEXT,
	grant_id TEXT,
	funder_project_number TEXT,
	funder_opportunity_number TEXT
);
CREATE TABLE versioned_templates (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	version TEXT
);
CREATE TABLE versioned_sections (
	id BIGSERIAL PRIMARY KEY,
	versioned_template_id BIGINT NOT NULL REFERENCES versioned_templates(id),
	name TEXT NOT NULL,
	introduction TEXT,
	display_order INT NOT NULL
);
CREATE TABLE versioned_questions (
	id BIGSERIAL PRIMARY KEY,
	versioned_section_id BIGINT NOT NULL REFERENCES versioned_sections(id),
	question_text TEXT NOT NULL,
	display_order INT NOT NULL
);
CREATE TABLE plans (
	id BIGSERIAL PRIMARY KEY,
	dmp_id TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	language TEXT,
	visibility TEXT NOT NULL,
	status TEXT,
	registered TIMESTAMPTZ,
	created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	modified TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	project_id BIGINT REFERENCES projects(id),
	versioned_template_id BIGINT REFERENCES versioned_templates(id)
);
CREATE TABLE project_members (
	id BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	given_name TEXT,
	surname TEXT,
	email TEXT,
	orcid TEXT,
	affiliation_id TEXT REFERENCES affiliations(uri)
);
CREATE TABLE plan_members (
	id BIGSERIAL PRIMARY KEY,
	plan_id BIGINT NOT NULL REFERENCES plans(id),
	project_member_id BIGINT NOT NULL REFERENCES project_members(id),
	roles TEXT[],
	is_primary_contact BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE answers (
	id BIGSERIAL PRIMARY KEY,
	plan_id BIGINT NOT NULL REFERENCES plans(id),
	versioned_question_id BIGINT NOT NULL REFERENCES versioned_questions(id),
	json JSONB
);
CREATE TABLE research_outputs (
	id BIGSERIAL PRIMARY KEY,
	plan_id BIGINT NOT NULL REFERENCES plans(id),
	title TEXT NOT NULL,
	output_type TEXT,
	description TEXT,
	personal_data TEXT,
	sensitive_data TEXT,
	release_date TEXT,
	repository_title TEXT,
	repository_url TEXT,
	license_ref TEXT,
	data_access TEXT,
	byte_size BIGINT,
	display_order INT NOT NULL DEFAULT 0
);
CREATE TABLE related_works (
	id BIGSERIAL PRIMARY KEY,
	plan_id BIGINT NOT NULL REFERENCES plans(id),
	work_type TEXT,
	relation_descriptor TEXT,
	identifier_type TEXT,
	identifier TEXT NOT NULL,
	citation TEXT,
	display_order INT NOT NULL DEFAULT 0
);
`

const testFixture = `
INSERT INTO affiliations (uri, name) VALUES ('https://ror.org/05rrcem69', 'UC Davis'), ('https://ror.org/021nxhr62', 'NSF');
INSERT INTO projects (id, title, start_date, end_date) VALUES (1, 'Survey', '2021-03-01', '2023-12-31');
INSERT INTO project_fundings (project_id, affiliation_id, status) VALUES (1, 'https://ror.org/021nxhr62', 'GRANTED');
INSERT INTO versioned_templates (id, name, version) VALUES (1, 'NSF-BIO', 'v2');
INSERT INTO versioned_sections (id, versioned_template_id, name, display_order) VALUES (1, 1, 'Sharing', 2), (2, 1, 'Collection', 1);
INSERT INTO versioned_questions (id, versioned_section_id, question_text, display_order) VALUES
	(1, 2, 'Second', 2), (2, 2, 'First', 1), (3, 1, 'Only', 1);
INSERT INTO plans (id, dmp_id, title, visibility, modified, project_id, versioned_template_id)
	VALUES (1, 'https://doi.org/10.48321/D1TEST', 'Integration Plan', 'PUBLIC', '2024-05-06T07:08:09.123456Z', 1, 1);
INSERT INTO project_members (id, project_id, given_name, surname, orcid, affiliation_id)
	VALUES (1, 1, 'Jane', 'Researcher', '0000-0002-1825-0097', 'https://ror.org/05rrcem69');
INSERT INTO plan_members (plan_id, project_member_id, roles, is_primary_contact) VALUES (1, 1, ARRAY['investigation','writing'], TRUE);
INSERT INTO answers (plan_id, versioned_question_id, json) VALUES (1, 2, '{"type":"number","answer":12}');
INSERT INTO research_outputs (plan_id, title, output_type, display_order) VALUES (1, 'Second output', 'dataset', 2), (1, 'First output', 'software', 1);
INSERT INTO related_works (plan_id, work_type, identifier_type, identifier) VALUES (1, 'article', 'doi', 'https://doi.org/10.1/a');
`

// testDatabaseURL skips the test unless a disposable database is configured
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("NARRATIVE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NARRATIVE_TEST_DATABASE_URL not set")
	}
	return url
}

func TestPostgresStoreLoadsPlan(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, testDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, testFixture); err != nil {
		t.Fatalf("insert fixture: %v", err)
	}

	s := NewPostgresStore(db)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if _, err := s.LoadPlanMetadata(ctx, "https://doi.org/10.48321/NOPE"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("missing plan err = %v, want ErrPlanNotFound", err)
	}

	meta, err := s.LoadPlanMetadata(ctx, "https://doi.org/10.48321/D1TEST")
	if err != nil {
		t.Fatalf("LoadPlanMetadata() error = %v", err)
	}
	if meta.InternalID != 1 || meta.Visibility != "PUBLIC" {
		t.Errorf("metadata = %+v", meta)
	}

	detail, err := s.LoadPlanDetail(ctx, meta.InternalID)
	if err != nil {
		t.Fatalf("LoadPlanDetail() error = %v", err)
	}
	if len(detail.Members) != 1 || len(detail.Members[0].Roles) != 2 {
		t.Errorf("members = %+v", detail.Members)
	}
	if len(detail.ResearchOutputs) != 2 || detail.ResearchOutputs[0].Title != "First output" {
		t.Errorf("research outputs not in display order: %+v", detail.ResearchOutputs)
	}

	plan, err := BuildPlan(detail)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if plan.Modified != "2024-05-06T07:08:09.123Z" {
		t.Errorf("Modified = %q", plan.Modified)
	}
	sections := plan.Sections()
	if len(sections) != 2 || sections[0].Title != "Collection" || sections[0].Questions[0].Text != "First" {
		t.Fatalf("narrative order = %+v", sections)
	}
	if got := answer.Scalar(answer.Resolve(sections[0].Questions[0].Answer)); got != "12" {
		t.Errorf("answer = %q, want 12", got)
	}
	if plan.Contact.Affiliation.Name != "UC Davis" {
		t.Errorf("contact affiliation = %+v", plan.Contact.Affiliation)
	}

	if _, err := s.LoadPlanDetail(ctx, 999); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("missing detail err = %v, want ErrPlanNotFound", err)
	}
}
