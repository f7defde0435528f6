package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/anvilops/flowline/pkg/schema"
)

// MemoryStore is an in-memory Store used by tests and ephemeral deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*Workflow
	executions map[string]*Execution
	steps      map[string][]*ExecutionStep // execution ID -> steps in creation order
	events     []*Event
	triggers   map[string]*ScheduledTrigger
	nextEvent  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]*Workflow),
		executions: make(map[string]*Execution),
		steps:      make(map[string][]*ExecutionStep),
		triggers:   make(map[string]*ScheduledTrigger),
	}
}

func notFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", kind, id)
}

// --- Workflow templates ---

func (m *MemoryStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.workflows {
		if existing.Name == wf.Name {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.Name)
		}
	}
	m.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

func (m *MemoryStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, notFound("workflow", id)
	}
	return copyWorkflow(wf), nil
}

func (m *MemoryStore) GetWorkflowByName(ctx context.Context, name string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, wf := range m.workflows {
		if wf.Name == name {
			return copyWorkflow(wf), nil
		}
	}
	return nil, notFound("workflow", name)
}

func (m *MemoryStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return notFound("workflow", id)
	}
	if update.Description != nil {
		wf.Description = *update.Description
	}
	if update.Definition != nil {
		wf.Definition = *update.Definition
	}
	if update.Active != nil {
		wf.Active = *update.Active
	}
	if update.Tags != nil {
		wf.Tags = append([]string(nil), (*update.Tags)...)
	}
	wf.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Workflow
	for _, wf := range m.workflows {
		if filter.Active != nil && wf.Active != *filter.Active {
			continue
		}
		if filter.Tag != "" && !hasTag(wf.Tags, filter.Tag) {
			continue
		}
		out = append(out, copyWorkflow(wf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return notFound("workflow", id)
	}
	delete(m.workflows, id)
	for execID, exec := range m.executions {
		if exec.WorkflowID == id {
			delete(m.executions, execID)
			delete(m.steps, execID)
		}
	}
	return nil
}

// --- Executions ---

func (m *MemoryStore) CreateExecution(ctx context.Context, exec *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.executions[exec.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %s already exists", exec.ID)
	}
	m.executions[exec.ID] = copyExecution(exec)
	return nil
}

func (m *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, notFound("execution", id)
	}
	return copyExecution(exec), nil
}

func (m *MemoryStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return notFound("execution", id)
	}
	if update.Status != nil {
		exec.Status = *update.Status
	}
	if update.Result != nil {
		exec.Result = deepCopyMap(update.Result)
	}
	if update.ErrorMessage != nil {
		exec.ErrorMessage = *update.ErrorMessage
	}
	if update.StartedAt != nil {
		exec.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		exec.CompletedAt = update.CompletedAt
	}
	return nil
}

func (m *MemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Execution
	for _, exec := range m.executions {
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		if filter.TenantID != "" && exec.TenantID != filter.TenantID {
			continue
		}
		out = append(out, copyExecution(exec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (m *MemoryStore) CountExecutionsByStatus(ctx context.Context, workflowID string) (map[schema.ExecutionStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[schema.ExecutionStatus]int64)
	for _, exec := range m.executions {
		if workflowID != "" && exec.WorkflowID != workflowID {
			continue
		}
		counts[exec.Status]++
	}
	return counts, nil
}

// --- Execution steps ---

func (m *MemoryStore) CreateStep(ctx context.Context, step *ExecutionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[step.ExecutionID] = append(m.steps[step.ExecutionID], copyStep(step))
	return nil
}

func (m *MemoryStore) UpdateStep(ctx context.Context, step *ExecutionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.steps[step.ExecutionID] {
		if existing.ID == step.ID {
			m.steps[step.ExecutionID][i] = copyStep(step)
			return nil
		}
	}
	return notFound("execution step", step.ID)
}

func (m *MemoryStore) ListSteps(ctx context.Context, executionID string) ([]*ExecutionStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	steps := m.steps[executionID]
	out := make([]*ExecutionStep, len(steps))
	for i, s := range steps {
		out[i] = copyStep(s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

// --- Event log ---

func (m *MemoryStore) AppendEvent(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvent++
	e := *event
	e.ID = m.nextEvent
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, &e)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, executionID string) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Event
	for _, e := range m.events {
		if e.ExecutionID == executionID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

// --- Scheduled triggers ---

func (m *MemoryStore) CreateScheduledTrigger(ctx context.Context, trig *ScheduledTrigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.triggers[trig.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled trigger %s already exists", trig.ID)
	}
	t := *trig
	t.Params = deepCopyMap(trig.Params)
	m.triggers[trig.ID] = &t
	return nil
}

func (m *MemoryStore) UpdateScheduledTrigger(ctx context.Context, id string, update ScheduledTriggerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trig, ok := m.triggers[id]
	if !ok {
		return notFound("scheduled trigger", id)
	}
	if update.Enabled != nil {
		trig.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		trig.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		trig.NextRunAt = update.NextRunAt
	}
	return nil
}

func (m *MemoryStore) ListScheduledTriggers(ctx context.Context, enabledOnly bool) ([]*ScheduledTrigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ScheduledTrigger
	for _, trig := range m.triggers {
		if enabledOnly && !trig.Enabled {
			continue
		}
		t := *trig
		t.Params = deepCopyMap(trig.Params)
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteScheduledTrigger(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.triggers[id]; !ok {
		return notFound("scheduled trigger", id)
	}
	delete(m.triggers, id)
	return nil
}

// --- Maintenance / lifecycle ---

func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// --- Copy helpers ---

// Records are copied on every read and write so callers can never alias
// internal state. Step outputs go through a JSON round-trip since they are
// arbitrary values.

func copyWorkflow(wf *Workflow) *Workflow {
	out := *wf
	out.Tags = append([]string(nil), wf.Tags...)
	out.Definition.Steps = append([]schema.StepDefinition(nil), wf.Definition.Steps...)
	return &out
}

func copyExecution(exec *Execution) *Execution {
	out := *exec
	out.Context = deepCopyMap(exec.Context)
	out.Result = deepCopyMap(exec.Result)
	return &out
}

func copyStep(step *ExecutionStep) *ExecutionStep {
	out := *step
	out.InputData = deepCopyMap(step.InputData)
	out.ErrorDetails = deepCopyMap(step.ErrorDetails)
	out.OutputData = deepCopyAny(step.OutputData)
	return &out
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out, _ := deepCopyAny(in).(map[string]any)
	return out
}

func deepCopyAny(in any) any {
	if in == nil {
		return nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return in
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return in
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
