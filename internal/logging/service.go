package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"platform-core/internal/core"
	"platform-core/internal/storage"
	"platform-core/internal/store"
)

// Service stores and queries structured log entries from other services.
type Service struct {
	store   *store.Store
	archive *storage.Archive
}

// NewService creates the log service. archive may be nil, in which case
// exports are returned inline but not written to disk.
func NewService(s *store.Store, archive *storage.Archive) *Service {
	return &Service{store: s, archive: archive}
}

func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*Entry, error) {
	level := strings.ToLower(req.Level)
	if !knownLevels[level] {
		return nil, core.ValidationError("level must be one of debug, info, warning, error, critical")
	}
	if strings.TrimSpace(req.Service) == "" {
		return nil, core.ValidationError("service is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, core.ValidationError("message is required")
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	var contextJSON any
	if req.Context != nil {
		b, _ := json.Marshal(req.Context)
		contextJSON = string(b)
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO log_entries
		 (id, timestamp, level, service, message, context, trace_id, span_id, user_id, ip_address)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(s.store.Dialect.TimeParam(ts)), pb.Add(level), pb.Add(req.Service),
			pb.Add(req.Message), pb.Add(contextJSON), pb.Add(req.TraceID), pb.Add(req.SpanID),
			pb.Add(req.UserID), pb.Add(req.IPAddress)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert log entry: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM log_entries WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("log entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry: %w", err)
	}
	return entryFromRow(row), nil
}

func (s *Service) Query(ctx context.Context, filter Filter, page core.Page) ([]*Entry, error) {
	pb := s.store.Dialect.NewParamBuilder()
	query := `SELECT * FROM log_entries`
	query += s.filterClause(&filter, pb)
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %s OFFSET %s`,
		pb.Add(page.Limit), pb.Add(page.Skip))

	rows, err := store.QueryRows(ctx, s.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromRow(row))
	}
	return entries, nil
}

// Stats aggregates counts in total, per level, and per service over an
// optional time window.
func (s *Service) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	filter := Filter{Start: start, End: end}

	stats := &Stats{ByLevel: map[string]int{}, ByService: map[string]int{}}

	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		`SELECT COUNT(*) AS total FROM log_entries`+s.filterClause(&filter, pb),
		pb.Params()...)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("count log entries: %w", err)
	}
	if row != nil {
		stats.TotalCount = asInt(row["total"])
	}

	pb = s.store.Dialect.NewParamBuilder()
	levelRows, err := store.QueryRows(ctx, s.store.DB,
		`SELECT level, COUNT(*) AS n FROM log_entries`+s.filterClause(&filter, pb)+` GROUP BY level`,
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("count by level: %w", err)
	}
	for _, r := range levelRows {
		stats.ByLevel[asString(r["level"])] = asInt(r["n"])
	}

	pb = s.store.Dialect.NewParamBuilder()
	serviceRows, err := store.QueryRows(ctx, s.store.DB,
		`SELECT service, COUNT(*) AS n FROM log_entries`+s.filterClause(&filter, pb)+` GROUP BY service`,
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("count by service: %w", err)
	}
	for _, r := range serviceRows {
		stats.ByService[asString(r["service"])] = asInt(r["n"])
	}

	return stats, nil
}

// ExportJSON snapshots matching entries into a downloadable document.
func (s *Service) ExportJSON(ctx context.Context, filter Filter, page core.Page) (*Export, error) {
	entries, err := s.Query(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	export := &Export{
		ExportID:   store.GenerateUUID(),
		ExportedAt: time.Now().UTC(),
		Count:      len(entries),
		Entries:    entries,
	}
	if s.archive != nil {
		blob, err := json.Marshal(export)
		if err != nil {
			return nil, fmt.Errorf("marshal export: %w", err)
		}
		path, err := s.archive.SaveJSON(ctx, "logs", export.ExportID, blob)
		if err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
		export.Path = path
	}
	return export, nil
}

func (s *Service) filterClause(filter *Filter, pb store.ParamBuilder) string {
	var conds []string
	if filter.Level != "" {
		conds = append(conds, fmt.Sprintf("level = %s", pb.Add(strings.ToLower(filter.Level))))
	}
	if filter.Service != "" {
		conds = append(conds, fmt.Sprintf("service = %s", pb.Add(filter.Service)))
	}
	if filter.TraceID != "" {
		conds = append(conds, fmt.Sprintf("trace_id = %s", pb.Add(filter.TraceID)))
	}
	if filter.UserID != "" {
		conds = append(conds, fmt.Sprintf("user_id = %s", pb.Add(filter.UserID)))
	}
	if filter.Start != nil {
		conds = append(conds, fmt.Sprintf("timestamp >= %s", pb.Add(s.store.Dialect.TimeParam(*filter.Start))))
	}
	if filter.End != nil {
		conds = append(conds, fmt.Sprintf("timestamp <= %s", pb.Add(s.store.Dialect.TimeParam(*filter.End))))
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
