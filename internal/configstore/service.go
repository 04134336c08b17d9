package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"platform-core/internal/audit"
	"platform-core/internal/cache"
	"platform-core/internal/core"
	"platform-core/internal/store"
	"platform-core/internal/webhooks"
)

const configUpdatesChannel = "config_updates"

// Service manages configuration scopes, items, and their change history.
type Service struct {
	store    *store.Store
	cache    *cache.Cache
	recorder *audit.Recorder
	events   *webhooks.Service
}

func NewService(s *store.Store, c *cache.Cache, rec *audit.Recorder, events *webhooks.Service) *Service {
	return &Service{store: s, cache: c, recorder: rec, events: events}
}

func cacheKey(scopeName, key string) string {
	return fmt.Sprintf("config:%s:%s", scopeName, key)
}

// --- Scopes ---

func (s *Service) CreateScope(ctx context.Context, req *CreateScopeRequest) (*Scope, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, core.ValidationError("name is required")
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO config_scopes (id, name, description) VALUES (%s, %s, %s)`,
			pb.Add(id), pb.Add(req.Name), pb.Add(req.Description)),
		pb.Params()...)
	if err != nil {
		if errors.Is(s.store.Dialect.MapError(err), store.ErrUniqueViolation) {
			return nil, core.ConflictError("scope already exists: " + req.Name)
		}
		return nil, fmt.Errorf("insert scope: %w", err)
	}
	return s.GetScope(ctx, id)
}

func (s *Service) GetScope(ctx context.Context, id string) (*Scope, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM config_scopes WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("config scope", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get scope: %w", err)
	}
	return scopeFromRow(row), nil
}

func (s *Service) GetScopeByName(ctx context.Context, name string) (*Scope, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM config_scopes WHERE name = %s`, pb.Add(name)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("config scope", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get scope by name: %w", err)
	}
	return scopeFromRow(row), nil
}

func (s *Service) ListScopes(ctx context.Context, page core.Page) ([]*Scope, error) {
	pb := s.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM config_scopes ORDER BY name LIMIT %s OFFSET %s`,
			pb.Add(page.Limit), pb.Add(page.Skip)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	scopes := make([]*Scope, 0, len(rows))
	for _, row := range rows {
		scopes = append(scopes, scopeFromRow(row))
	}
	return scopes, nil
}

func (s *Service) UpdateScope(ctx context.Context, id string, req *UpdateScopeRequest) (*Scope, error) {
	if _, err := s.GetScope(ctx, id); err != nil {
		return nil, err
	}

	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, core.ValidationError("name cannot be empty")
		}
		sets = append(sets, fmt.Sprintf("name = %s", pb.Add(*req.Name)))
	}
	if req.Description != nil {
		sets = append(sets, fmt.Sprintf("description = %s", pb.Add(*req.Description)))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = "+s.store.Dialect.NowExpr())
		_, err := store.Exec(ctx, s.store.DB,
			fmt.Sprintf(`UPDATE config_scopes SET %s WHERE id = %s`,
				strings.Join(sets, ", "), pb.Add(id)),
			pb.Params()...)
		if err != nil {
			if errors.Is(s.store.Dialect.MapError(err), store.ErrUniqueViolation) {
				return nil, core.ConflictError("scope already exists: " + *req.Name)
			}
			return nil, fmt.Errorf("update scope: %w", err)
		}
	}
	return s.GetScope(ctx, id)
}

// DeleteScope removes a scope. Items and history cascade.
func (s *Service) DeleteScope(ctx context.Context, id string, actorID string) error {
	scope, err := s.GetScope(ctx, id)
	if err != nil {
		return err
	}

	pb := s.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM config_scopes WHERE id = %s`, pb.Add(id)),
		pb.Params()...); err != nil {
		return fmt.Errorf("delete scope: %w", err)
	}

	s.recorder.ConfigChange(ctx, actorID, "scope", scope.Name, "delete", scope, nil)
	return nil
}

// --- Items ---

func (s *Service) CreateItem(ctx context.Context, scopeID string, req *CreateItemRequest, actorID string) (*Item, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, core.ValidationError("key is required")
	}
	scope, err := s.GetScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}

	valueJSON, err := json.Marshal(req.Value)
	if err != nil {
		return nil, core.ValidationError("value is not valid JSON")
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO config_items (id, scope_id, key, value, description, version, is_secret)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(scopeID), pb.Add(req.Key), pb.Add(string(valueJSON)),
			pb.Add(req.Description), pb.Add(1), pb.Add(req.IsSecret)),
		pb.Params()...)
	if err != nil {
		if errors.Is(s.store.Dialect.MapError(err), store.ErrUniqueViolation) {
			return nil, core.ConflictError("config key already exists in scope: " + req.Key)
		}
		return nil, fmt.Errorf("insert config item: %w", err)
	}

	s.writeHistory(ctx, id, string(valueJSON), 1, actorID)

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	s.recorder.ConfigChange(ctx, actorID, "item", scope.Name+"/"+req.Key, "create", nil, item.Value)
	if s.events != nil {
		s.events.Emit(webhooks.EventConfigCreated, map[string]any{
			"scope": scope.Name, "key": req.Key, "version": 1,
		})
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*Item, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM config_items WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("config item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get config item: %w", err)
	}
	return itemFromRow(row), nil
}

// GetItemByKey resolves an item by scope name and key, consulting the cache
// first and filling it on a miss.
func (s *Service) GetItemByKey(ctx context.Context, scopeName, key string) (*Item, error) {
	ck := cacheKey(scopeName, key)
	if cached, err := s.cache.Get(ctx, ck); err == nil {
		var item Item
		if json.Unmarshal([]byte(cached), &item) == nil {
			return &item, nil
		}
	}

	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT i.* FROM config_items i
		 JOIN config_scopes sc ON sc.id = i.scope_id
		 WHERE sc.name = %s AND i.key = %s`,
			pb.Add(scopeName), pb.Add(key)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("config item", scopeName+"/"+key)
	}
	if err != nil {
		return nil, fmt.Errorf("get config item by key: %w", err)
	}

	item := itemFromRow(row)
	if blob, err := json.Marshal(item); err == nil {
		if err := s.cache.Set(ctx, ck, string(blob), 0); err != nil {
			log.Printf("ERROR: cache config %s: %v", ck, err)
		}
	}
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, scopeID string, page core.Page) ([]*Item, error) {
	if _, err := s.GetScope(ctx, scopeID); err != nil {
		return nil, err
	}
	pb := s.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM config_items WHERE scope_id = %s ORDER BY key LIMIT %s OFFSET %s`,
			pb.Add(scopeID), pb.Add(page.Limit), pb.Add(page.Skip)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list config items: %w", err)
	}
	items := make([]*Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, itemFromRow(row))
	}
	return items, nil
}

// UpdateItem bumps the version, archives the prior value, invalidates the
// cache, and announces the change on the config_updates channel.
func (s *Service) UpdateItem(ctx context.Context, id string, req *UpdateItemRequest, actorID string) (*Item, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	scope, err := s.GetScope(ctx, item.ScopeID)
	if err != nil {
		return nil, err
	}

	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	if req.Value != nil {
		prior, _ := json.Marshal(item.Value)
		s.writeHistory(ctx, item.ID, string(prior), item.Version, actorID)

		sets = append(sets, fmt.Sprintf("value = %s", pb.Add(string(*req.Value))))
		sets = append(sets, "version = version + 1")
	}
	if req.Description != nil {
		sets = append(sets, fmt.Sprintf("description = %s", pb.Add(*req.Description)))
	}
	if req.IsSecret != nil {
		sets = append(sets, fmt.Sprintf("is_secret = %s", pb.Add(*req.IsSecret)))
	}
	if len(sets) == 0 {
		return item, nil
	}
	sets = append(sets, "updated_at = "+s.store.Dialect.NowExpr())

	_, err = store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`UPDATE config_items SET %s WHERE id = %s`,
			strings.Join(sets, ", "), pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update config item: %w", err)
	}

	s.invalidate(ctx, scope.Name, item.Key, "updated")

	updated, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	s.recorder.ConfigChange(ctx, actorID, "item", scope.Name+"/"+item.Key, "update", item.Value, updated.Value)
	if s.events != nil {
		s.events.Emit(webhooks.EventConfigUpdated, map[string]any{
			"scope": scope.Name, "key": item.Key, "version": updated.Version,
		})
	}
	return updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string, actorID string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	scope, err := s.GetScope(ctx, item.ScopeID)
	if err != nil {
		return err
	}

	pb := s.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM config_items WHERE id = %s`, pb.Add(id)),
		pb.Params()...); err != nil {
		return fmt.Errorf("delete config item: %w", err)
	}

	s.invalidate(ctx, scope.Name, item.Key, "deleted")

	s.recorder.ConfigChange(ctx, actorID, "item", scope.Name+"/"+item.Key, "delete", item.Value, nil)
	if s.events != nil {
		s.events.Emit(webhooks.EventConfigDeleted, map[string]any{
			"scope": scope.Name, "key": item.Key,
		})
	}
	return nil
}

// --- History ---

func (s *Service) ListHistory(ctx context.Context, itemID string, page core.Page) ([]*HistoryEntry, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	pb := s.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM config_history WHERE config_id = %s
		 ORDER BY version DESC LIMIT %s OFFSET %s`,
			pb.Add(itemID), pb.Add(page.Limit), pb.Add(page.Skip)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list config history: %w", err)
	}
	entries := make([]*HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, historyFromRow(row))
	}
	return entries, nil
}

func (s *Service) writeHistory(ctx context.Context, configID, valueJSON string, version int, changedBy string) {
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO config_history (id, config_id, value, version, changed_by)
		 VALUES (%s, %s, %s, %s, %s)`,
			pb.Add(store.GenerateUUID()), pb.Add(configID), pb.Add(valueJSON),
			pb.Add(version), pb.Add(changedBy)),
		pb.Params()...)
	if err != nil {
		log.Printf("ERROR: write config history for %s v%d: %v", configID, version, err)
	}
}

// invalidate drops the cache entry and publishes the change notification.
func (s *Service) invalidate(ctx context.Context, scopeName, key, action string) {
	if err := s.cache.Delete(ctx, cacheKey(scopeName, key)); err != nil {
		log.Printf("ERROR: invalidate config cache %s/%s: %v", scopeName, key, err)
	}
	msg, _ := json.Marshal(map[string]string{"scope": scopeName, "key": key, "action": action})
	if err := s.cache.Publish(ctx, configUpdatesChannel, string(msg)); err != nil {
		log.Printf("ERROR: publish config update %s/%s: %v", scopeName, key, err)
	}
}
