package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"platform-core/internal/core"
	"platform-core/internal/store"
	"platform-core/internal/webhooks"
)

// Service records and queries audit trail entries.
type Service struct {
	store  *store.Store
	events *webhooks.Service
}

func NewService(s *store.Store, events *webhooks.Service) *Service {
	return &Service{store: s, events: events}
}

// Create writes an audit entry submitted through the API and emits the
// audit.event webhook event.
func (s *Service) Create(ctx context.Context, req *CreateLogRequest) (*Log, error) {
	entry, err := s.insert(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.Emit(webhooks.EventAuditEvent, map[string]any{
			"actor_id":      entry.ActorID,
			"event_type":    entry.EventType,
			"resource_type": entry.ResourceType,
			"resource_id":   entry.ResourceID,
			"action":        entry.Action,
		})
	}
	return entry, nil
}

// insert writes an audit entry without side effects.
func (s *Service) insert(ctx context.Context, req *CreateLogRequest) (*Log, error) {
	if req.ActorID == "" || req.EventType == "" || req.ResourceType == "" || req.Action == "" {
		return nil, core.ValidationError("actor_id, event_type, resource_type, and action are required")
	}

	var metadataJSON any
	if req.Metadata != nil {
		b, _ := json.Marshal(req.Metadata)
		metadataJSON = string(b)
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO audit_logs
		 (id, actor_id, event_type, resource_type, resource_id, action, old_value, new_value, metadata, ip_address)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(req.ActorID), pb.Add(req.EventType), pb.Add(req.ResourceType),
			pb.Add(req.ResourceID), pb.Add(req.Action), pb.Add(req.OldValue), pb.Add(req.NewValue),
			pb.Add(metadataJSON), pb.Add(req.IPAddress)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert audit log: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Log, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM audit_logs WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("audit log", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit log: %w", err)
	}
	return logFromRow(row), nil
}

func (s *Service) List(ctx context.Context, filter Filter, page core.Page) ([]*Log, error) {
	pb := s.store.Dialect.NewParamBuilder()
	query := `SELECT * FROM audit_logs`
	var conds []string
	if filter.ActorID != "" {
		conds = append(conds, fmt.Sprintf("actor_id = %s", pb.Add(filter.ActorID)))
	}
	if filter.EventType != "" {
		conds = append(conds, fmt.Sprintf("event_type = %s", pb.Add(filter.EventType)))
	}
	if filter.ResourceType != "" {
		conds = append(conds, fmt.Sprintf("resource_type = %s", pb.Add(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conds = append(conds, fmt.Sprintf("resource_id = %s", pb.Add(filter.ResourceID)))
	}
	if filter.Action != "" {
		conds = append(conds, fmt.Sprintf("action = %s", pb.Add(filter.Action)))
	}
	if filter.Start != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", pb.Add(s.store.Dialect.TimeParam(*filter.Start))))
	}
	if filter.End != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", pb.Add(s.store.Dialect.TimeParam(*filter.End))))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %s OFFSET %s",
		pb.Add(page.Limit), pb.Add(page.Skip))

	rows, err := store.QueryRows(ctx, s.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	logs := make([]*Log, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, logFromRow(row))
	}
	return logs, nil
}
