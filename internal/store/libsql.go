package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/anvilops/flowline/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflow templates ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	def, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	tags, err := nullableJSONValue(wf.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, version, description, active, tags, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, wf.Version, wf.Description, boolInt(wf.Active), tags, string(def),
		timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.Name)
	}
	return err
}

const workflowColumns = `id, name, version, description, active, tags, definition, created_at, updated_at`

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	return scanWorkflow(row, id)
}

func (s *LibSQLStore) GetWorkflowByName(ctx context.Context, name string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
	return scanWorkflow(row, name)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner, ref string) (*Workflow, error) {
	wf := &Workflow{}
	var description, tags sql.NullString
	var active int
	var def string
	err := row.Scan(&wf.ID, &wf.Name, &wf.Version, &description, &active, &tags, &def,
		&wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("workflow", ref)
	}
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	wf.Active = active != 0
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &wf.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(def), &wf.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Definition != nil {
		def, err := json.Marshal(update.Definition)
		if err != nil {
			return fmt.Errorf("marshal definition: %w", err)
		}
		sets = append(sets, "definition = ?")
		args = append(args, string(def))
	}
	if update.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, boolInt(*update.Active))
	}
	if update.Tags != nil {
		tags, err := nullableJSONValue(*update.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	var conds []string
	var args []any
	if filter.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, boolInt(*filter.Active))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"
	query += limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows, "")
		if err != nil {
			return nil, err
		}
		// Tag filtering happens after scan: tags are stored as a JSON array.
		if filter.Tag != "" && !hasTag(wf.Tags, filter.Tag) {
			continue
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	execCtx, err := nullableJSONValue(exec.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, workflow_name, status, context, trigger_type, trigger_source, tenant_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkflowID, exec.WorkflowName, string(exec.Status), execCtx,
		string(exec.TriggerType), exec.TriggerSource, exec.TenantID, timeOrNow(exec.CreatedAt),
	)
	return err
}

const executionColumns = `id, workflow_id, workflow_name, status, context, result, error_message,
	trigger_type, trigger_source, tenant_id, created_at, started_at, completed_at`

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	return scanExecution(row, id)
}

func scanExecution(row rowScanner, ref string) (*Execution, error) {
	exec := &Execution{}
	var execCtx, result, errMsg, trigSource, tenant sql.NullString
	var started, completed sql.NullTime
	err := row.Scan(&exec.ID, &exec.WorkflowID, &exec.WorkflowName, &exec.Status,
		&execCtx, &result, &errMsg, &exec.TriggerType, &trigSource, &tenant,
		&exec.CreatedAt, &started, &completed)
	if err == sql.ErrNoRows {
		return nil, notFound("execution", ref)
	}
	if err != nil {
		return nil, err
	}
	exec.ErrorMessage = errMsg.String
	exec.TriggerSource = trigSource.String
	exec.TenantID = tenant.String
	if execCtx.Valid && execCtx.String != "" {
		if err := json.Unmarshal([]byte(execCtx.String), &exec.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &exec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if started.Valid {
		exec.StartedAt = &started.Time
	}
	if completed.Valid {
		exec.CompletedAt = &completed.Time
	}
	return exec, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Result != nil {
		result, err := nullableJSONValue(update.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		sets = append(sets, "result = ?")
		args = append(args, result)
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	var conds []string
	var args []any
	if filter.WorkflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	query += limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) CountExecutionsByStatus(ctx context.Context, workflowID string) (map[schema.ExecutionStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM executions`
	var args []any
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[schema.ExecutionStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[schema.ExecutionStatus(status)] = n
	}
	return counts, rows.Err()
}

// --- Execution steps ---

func (s *LibSQLStore) CreateStep(ctx context.Context, step *ExecutionStep) error {
	input, err := nullableJSONValue(step.InputData)
	if err != nil {
		return fmt.Errorf("marshal input_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_steps (id, execution_id, name, type, sequence_number, status, input_data, retry_count, max_retries)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.ExecutionID, step.Name, string(step.Type), step.SequenceNumber,
		string(step.Status), input, step.RetryCount, step.MaxRetries,
	)
	return err
}

func (s *LibSQLStore) UpdateStep(ctx context.Context, step *ExecutionStep) error {
	output, err := nullableJSONValue(step.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}
	details, err := nullableJSONValue(step.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal error_details: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_steps SET status = ?, output_data = ?, error_message = ?, error_details = ?,
		 retry_count = ?, started_at = ?, completed_at = ?, duration_seconds = ? WHERE id = ?`,
		string(step.Status), output, step.ErrorMessage, details,
		step.RetryCount, nullableTime(step.StartedAt), nullableTime(step.CompletedAt),
		step.DurationSeconds, step.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution step", step.ID)
}

func (s *LibSQLStore) ListSteps(ctx context.Context, executionID string) ([]*ExecutionStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, name, type, sequence_number, status, input_data, output_data,
		 error_message, error_details, retry_count, max_retries, started_at, completed_at, duration_seconds
		 FROM execution_steps WHERE execution_id = ? ORDER BY sequence_number`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ExecutionStep
	for rows.Next() {
		step := &ExecutionStep{}
		var input, output, errMsg, details sql.NullString
		var started, completed sql.NullTime
		var duration sql.NullInt64
		if err := rows.Scan(&step.ID, &step.ExecutionID, &step.Name, &step.Type,
			&step.SequenceNumber, &step.Status, &input, &output, &errMsg, &details,
			&step.RetryCount, &step.MaxRetries, &started, &completed, &duration); err != nil {
			return nil, err
		}
		step.ErrorMessage = errMsg.String
		step.DurationSeconds = duration.Int64
		if input.Valid && input.String != "" {
			if err := json.Unmarshal([]byte(input.String), &step.InputData); err != nil {
				return nil, fmt.Errorf("unmarshal input_data: %w", err)
			}
		}
		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &step.OutputData); err != nil {
				return nil, fmt.Errorf("unmarshal output_data: %w", err)
			}
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &step.ErrorDetails); err != nil {
				return nil, fmt.Errorf("unmarshal error_details: %w", err)
			}
		}
		if started.Valid {
			step.StartedAt = &started.Time
		}
		if completed.Valid {
			step.CompletedAt = &completed.Time
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

// --- Event log ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	payload, err := nullableJSONRaw(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (execution_id, step_name, event_type, payload) VALUES (?, ?, ?, ?)`,
		event.ExecutionID, event.StepName, event.Type, payload,
	)
	return err
}

func (s *LibSQLStore) ListEvents(ctx context.Context, executionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_name, event_type, payload, timestamp
		 FROM events WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var stepName, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &stepName, &e.Type, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.StepName = stepName.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Scheduled triggers ---

func (s *LibSQLStore) CreateScheduledTrigger(ctx context.Context, trig *ScheduledTrigger) error {
	params, err := nullableJSONValue(trig.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_triggers (id, workflow_name, cron_expression, params, tenant_id, enabled, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trig.ID, trig.WorkflowName, trig.CronExpression, params, trig.TenantID,
		boolInt(trig.Enabled), nullableTime(trig.NextRunAt), timeOrNow(trig.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) UpdateScheduledTrigger(ctx context.Context, id string, update ScheduledTriggerUpdate) error {
	var sets []string
	var args []any
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_triggers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled trigger", id)
}

func (s *LibSQLStore) ListScheduledTriggers(ctx context.Context, enabledOnly bool) ([]*ScheduledTrigger, error) {
	query := `SELECT id, workflow_name, cron_expression, params, tenant_id, enabled, last_run_at, next_run_at, created_at
		 FROM scheduled_triggers`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledTrigger
	for rows.Next() {
		trig := &ScheduledTrigger{}
		var params, tenant sql.NullString
		var enabled int
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&trig.ID, &trig.WorkflowName, &trig.CronExpression, &params,
			&tenant, &enabled, &lastRun, &nextRun, &trig.CreatedAt); err != nil {
			return nil, err
		}
		trig.TenantID = tenant.String
		trig.Enabled = enabled != 0
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &trig.Params); err != nil {
				return nil, fmt.Errorf("unmarshal params: %w", err)
			}
		}
		if lastRun.Valid {
			trig.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			trig.NextRunAt = &nextRun.Time
		}
		out = append(out, trig)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledTrigger(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_triggers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled trigger", id)
}

// --- Helpers ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// nullableJSONValue marshals v to a TEXT column value, NULL when empty.
func nullableJSONValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func nullableJSONRaw(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return string(raw), nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func limitOffset(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	s := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s
}
