package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPlanNotFound means the source of record has no plan with the identifier
	ErrPlanNotFound = errors.New("plan not found")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) LoadPlanMetadata(ctx context.Context, dmpID string) (PlanMetadata, error) {
	var meta PlanMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dmp_id, modified, visibility
		FROM plans
		WHERE dmp_id = $1
	`, dmpID).Scan(&meta.InternalID, &meta.DMPID, &meta.Modified, &meta.Visibility)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanMetadata{}, ErrPlanNotFound
	}
	if err != nil {
		return PlanMetadata{}, fmt.Errorf("load plan metadata: %w", err)
	}
	return meta, nil
}

// LoadPlanDetail reads everything needed to build the canonical plan inside
// one read-only transaction so the snapshot is consistent.
func (s *PostgresStore) LoadPlanDetail(ctx context.Context, internalID int64) (PlanDetail, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return PlanDetail{}, fmt.Errorf("begin plan detail: %w", err)
	}
	defer tx.Rollback()

	var detail PlanDetail
	plan, err := loadPlanRow(ctx, tx, internalID)
	if err != nil {
		return PlanDetail{}, err
	}
	detail.Plan = &plan

	if plan.ProjectID != nil {
		if detail.Project, err = loadProject(ctx, tx, *plan.ProjectID); err != nil {
			return PlanDetail{}, err
		}
		if detail.Fundings, err = loadFundings(ctx, tx, *plan.ProjectID); err != nil {
			return PlanDetail{}, err
		}
	}
	if detail.Members, err = loadMembers(ctx, tx, internalID); err != nil {
		return PlanDetail{}, err
	}
	if plan.TemplateID != nil {
		if detail.Template, err = loadTemplate(ctx, tx, *plan.TemplateID); err != nil {
			return PlanDetail{}, err
		}
		if detail.Sections, err = loadSections(ctx, tx, *plan.TemplateID); err != nil {
			return PlanDetail{}, err
		}
		if detail.Questions, err = loadQuestions(ctx, tx, *plan.TemplateID); err != nil {
			return PlanDetail{}, err
		}
	}
	if detail.Answers, err = loadAnswers(ctx, tx, internalID); err != nil {
		return PlanDetail{}, err
	}
	if detail.ResearchOutputs, err = loadResearchOutputs(ctx, tx, internalID); err != nil {
		return PlanDetail{}, err
	}
	if detail.RelatedWorks, err = loadRelatedWorks(ctx, tx, internalID); err != nil {
		return PlanDetail{}, err
	}

	if err := tx.Commit(); err != nil {
		return PlanDetail{}, fmt.Errorf("commit plan detail: %w", err)
	}
	return detail, nil
}

func loadPlanRow(ctx context.Context, q querier, id int64) (PlanRow, error) {
	var (
		plan       PlanRow
		projectID  sql.NullInt64
		templateID sql.NullInt64
		registered sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, dmp_id, title, COALESCE(description, ''), COALESCE(language, ''),
		       visibility, COALESCE(status, ''), registered, created, modified,
		       project_id, versioned_template_id
		FROM plans
		WHERE id = $1
	`, id).Scan(
		&plan.ID,
		&plan.DMPID,
		&plan.Title,
		&plan.Description,
		&plan.Language,
		&plan.Visibility,
		&plan.Status,
		&registered,
		&plan.Created,
		&plan.Modified,
		&projectID,
		&templateID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRow{}, ErrPlanNotFound
	}
	if err != nil {
		return PlanRow{}, fmt.Errorf("load plan: %w", err)
	}
	if registered.Valid {
		plan.Registered = &registered.Time
	}
	if projectID.Valid {
		plan.ProjectID = &projectID.Int64
	}
	if templateID.Valid {
		plan.TemplateID = &templateID.Int64
	}
	return plan, nil
}

func loadProject(ctx context.Context, q querier, id int64) (*ProjectRow, error) {
	var project ProjectRow
	err := q.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(abstract_text, ''), COALESCE(start_date, ''), COALESCE(end_date, '')
		FROM projects
		WHERE id = $1
	`, id).Scan(&project.ID, &project.Title, &project.Abstract, &project.StartDate, &project.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return &project, nil
}

func loadFundings(ctx context.Context, q querier, projectID int64) ([]FundingRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pf.id, COALESCE(a.name, ''), COALESCE(pf.affiliation_id, ''), COALESCE(pf.status, ''),
		       COALESCE(pf.grant_id, ''), COALESCE(pf.funder_project_number, ''),
		       COALESCE(pf.funder_opportunity_number, '')
		FROM project_fundings pf
		LEFT JOIN affiliations a ON a.uri = pf.affiliation_id
		WHERE pf.project_id = $1
		ORDER BY pf.id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list fundings: %w", err)
	}
	defer rows.Close()

	items := make([]FundingRow, 0)
	for rows.Next() {
		var item FundingRow
		if err := rows.Scan(&item.ID, &item.FunderName, &item.FunderURI, &item.Status, &item.GrantID, &item.ProjectNumber, &item.OpportunityNumber); err != nil {
			return nil, fmt.Errorf("scan funding: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fundings: %w", err)
	}
	return items, nil
}

func loadMembers(ctx context.Context, q querier, planID int64) ([]MemberRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT plm.id, COALESCE(pm.given_name, ''), COALESCE(pm.surname, ''), COALESCE(pm.email, ''),
		       COALESCE(pm.orcid, ''), COALESCE(pm.affiliation_id, ''), COALESCE(a.name, ''),
		       COALESCE(array_to_string(plm.roles, '|'), ''), plm.is_primary_contact
		FROM plan_members plm
		JOIN project_members pm ON pm.id = plm.project_member_id
		LEFT JOIN affiliations a ON a.uri = pm.affiliation_id
		WHERE plm.plan_id = $1
		ORDER BY plm.is_primary_contact DESC, plm.id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]MemberRow, 0)
	for rows.Next() {
		var (
			item  MemberRow
			roles string
		)
		if err := rows.Scan(
			&item.ID,
			&item.GivenName,
			&item.Surname,
			&item.Email,
			&item.ORCID,
			&item.AffiliationURI,
			&item.AffiliationName,
			&roles,
			&item.IsPrimaryContact,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if roles != "" {
			item.Roles = strings.Split(roles, "|")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func loadTemplate(ctx context.Context, q querier, id int64) (*TemplateRow, error) {
	var tmpl TemplateRow
	err := q.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(version, '')
		FROM versioned_templates
		WHERE id = $1
	`, id).Scan(&tmpl.ID, &tmpl.Name, &tmpl.Description, &tmpl.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return &tmpl, nil
}

func loadSections(ctx context.Context, q querier, templateID int64) ([]SectionRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, COALESCE(introduction, ''), display_order
		FROM versioned_sections
		WHERE versioned_template_id = $1
		ORDER BY display_order ASC, id ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]SectionRow, 0)
	for rows.Next() {
		var item SectionRow
		if err := rows.Scan(&item.ID, &item.Name, &item.Introduction, &item.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return items, nil
}

func loadQuestions(ctx context.Context, q querier, templateID int64) ([]QuestionRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT vq.id, vq.versioned_section_id, vq.question_text, vq.display_order
		FROM versioned_questions vq
		JOIN versioned_sections vs ON vs.id = vq.versioned_section_id
		WHERE vs.versioned_template_id = $1
		ORDER BY vq.display_order ASC, vq.id ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	items := make([]QuestionRow, 0)
	for rows.Next() {
		var item QuestionRow
		if err := rows.Scan(&item.ID, &item.SectionID, &item.Text, &item.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

func loadAnswers(ctx context.Context, q querier, planID int64) ([]AnswerRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, versioned_question_id, COALESCE(json::text, '')
		FROM answers
		WHERE plan_id = $1
		ORDER BY id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	items := make([]AnswerRow, 0)
	for rows.Next() {
		var (
			item    AnswerRow
			payload string
		)
		if err := rows.Scan(&item.ID, &item.QuestionID, &payload); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		item.JSON = []byte(payload)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return items, nil
}

func loadResearchOutputs(ctx context.Context, q querier, planID int64) ([]ResearchOutputRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, COALESCE(output_type, ''), COALESCE(description, ''),
		       COALESCE(personal_data, ''), COALESCE(sensitive_data, ''), COALESCE(release_date, ''),
		       COALESCE(repository_title, ''), COALESCE(repository_url, ''), COALESCE(license_ref, ''),
		       COALESCE(data_access, ''), COALESCE(byte_size, 0)
		FROM research_outputs
		WHERE plan_id = $1
		ORDER BY display_order ASC, id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list research outputs: %w", err)
	}
	defer rows.Close()

	items := make([]ResearchOutputRow, 0)
	for rows.Next() {
		var item ResearchOutputRow
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.OutputType,
			&item.Description,
			&item.PersonalData,
			&item.SensitiveData,
			&item.ReleaseDate,
			&item.RepositoryTitle,
			&item.RepositoryURL,
			&item.LicenseRef,
			&item.DataAccess,
			&item.ByteSize,
		); err != nil {
			return nil, fmt.Errorf("scan research output: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate research outputs: %w", err)
	}
	return items, nil
}

func loadRelatedWorks(ctx context.Context, q querier, planID int64) ([]RelatedWorkRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, COALESCE(work_type, ''), COALESCE(relation_descriptor, ''),
		       COALESCE(identifier_type, ''), identifier, COALESCE(citation, '')
		FROM related_works
		WHERE plan_id = $1
		ORDER BY display_order ASC, id ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list related works: %w", err)
	}
	defer rows.Close()

	items := make([]RelatedWorkRow, 0)
	for rows.Next() {
		var item RelatedWorkRow
		if err := rows.Scan(&item.ID, &item.WorkType, &item.Descriptor, &item.IdentifierType, &item.Identifier, &item.Citation); err != nil {
			return nil, fmt.Errorf("scan related work: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related works: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
