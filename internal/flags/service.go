package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"platform-core/internal/audit"
	"platform-core/internal/cache"
	"platform-core/internal/core"
	"platform-core/internal/store"
	"platform-core/internal/webhooks"
)

const flagCacheTTL = 5 * time.Minute

// Service manages feature flags and evaluates them against a caller context.
type Service struct {
	store    *store.Store
	cache    *cache.Cache
	recorder *audit.Recorder
	events   *webhooks.Service
}

func NewService(s *store.Store, c *cache.Cache, rec *audit.Recorder, events *webhooks.Service) *Service {
	return &Service{store: s, cache: c, recorder: rec, events: events}
}

func flagCacheKey(key string) string {
	return "feature_flag:" + key
}

func (s *Service) Create(ctx context.Context, req *CreateFlagRequest, actorID string) (*Flag, error) {
	if strings.TrimSpace(req.Key) == "" {
		return nil, core.ValidationError("key is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, core.ValidationError("name is required")
	}
	if err := validateRules(req.Rules); err != nil {
		return nil, err
	}

	var rulesJSON any
	if req.Rules != nil {
		b, _ := json.Marshal(req.Rules)
		rulesJSON = string(b)
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO feature_flags (id, key, name, description, enabled, rules, version)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(req.Key), pb.Add(req.Name), pb.Add(req.Description),
			pb.Add(req.Enabled), pb.Add(rulesJSON), pb.Add(1)),
		pb.Params()...)
	if err != nil {
		if errors.Is(s.store.Dialect.MapError(err), store.ErrUniqueViolation) {
			return nil, core.ConflictError("feature flag already exists: " + req.Key)
		}
		return nil, fmt.Errorf("insert feature flag: %w", err)
	}

	s.invalidate(ctx, req.Key)
	flag, err := s.GetByKey(ctx, req.Key)
	if err != nil {
		return nil, err
	}

	s.recorder.FlagChange(ctx, actorID, req.Key, "create", nil, flag)
	if s.events != nil {
		s.events.Emit(webhooks.EventFeatureFlagCreated, map[string]any{
			"key": flag.Key, "enabled": flag.Enabled,
		})
	}
	return flag, nil
}

func (s *Service) GetByKey(ctx context.Context, key string) (*Flag, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM feature_flags WHERE key = %s`, pb.Add(key)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("feature flag", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get feature flag: %w", err)
	}
	return flagFromRow(row), nil
}

func (s *Service) List(ctx context.Context, page core.Page) ([]*Flag, error) {
	pb := s.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM feature_flags ORDER BY created_at DESC LIMIT %s OFFSET %s`,
			pb.Add(page.Limit), pb.Add(page.Skip)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list feature flags: %w", err)
	}
	result := make([]*Flag, 0, len(rows))
	for _, row := range rows {
		result = append(result, flagFromRow(row))
	}
	return result, nil
}

func (s *Service) Update(ctx context.Context, key string, req *UpdateFlagRequest, actorID string) (*Flag, error) {
	prior, err := s.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	if req.Name != nil {
		sets = append(sets, fmt.Sprintf("name = %s", pb.Add(*req.Name)))
	}
	if req.Description != nil {
		sets = append(sets, fmt.Sprintf("description = %s", pb.Add(*req.Description)))
	}
	if req.Enabled != nil {
		sets = append(sets, fmt.Sprintf("enabled = %s", pb.Add(*req.Enabled)))
	}
	if req.Rules != nil {
		if err := validateRules(*req.Rules); err != nil {
			return nil, err
		}
		b, _ := json.Marshal(*req.Rules)
		sets = append(sets, fmt.Sprintf("rules = %s", pb.Add(string(b))))
	}
	if len(sets) == 0 {
		return prior, nil
	}
	sets = append(sets, "version = version + 1")
	sets = append(sets, "updated_at = "+s.store.Dialect.NowExpr())

	_, err = store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`UPDATE feature_flags SET %s WHERE key = %s`,
			strings.Join(sets, ", "), pb.Add(key)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update feature flag: %w", err)
	}

	s.invalidate(ctx, key)
	flag, err := s.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	s.recorder.FlagChange(ctx, actorID, key, "update", prior, flag)
	if s.events != nil {
		s.events.Emit(webhooks.EventFeatureFlagUpdated, map[string]any{
			"key": flag.Key, "enabled": flag.Enabled, "version": flag.Version,
		})
	}
	return flag, nil
}

func (s *Service) Delete(ctx context.Context, key string, actorID string) error {
	prior, err := s.GetByKey(ctx, key)
	if err != nil {
		return err
	}

	pb := s.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM feature_flags WHERE key = %s`, pb.Add(key)),
		pb.Params()...); err != nil {
		return fmt.Errorf("delete feature flag: %w", err)
	}

	s.invalidate(ctx, key)
	s.recorder.FlagChange(ctx, actorID, key, "delete", prior, nil)
	if s.events != nil {
		s.events.Emit(webhooks.EventFeatureFlagDeleted, map[string]any{"key": key})
	}
	return nil
}

// Evaluate resolves whether key is enabled for evalCtx, consulting the cache
// before the database.
func (s *Service) Evaluate(ctx context.Context, key string, evalCtx *EvalContext) (*EvalResult, error) {
	var flag *Flag
	if cached, err := s.cache.Get(ctx, flagCacheKey(key)); err == nil {
		var f Flag
		if json.Unmarshal([]byte(cached), &f) == nil {
			flag = &f
		}
	}

	if flag == nil {
		var err error
		flag, err = s.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if blob, err := json.Marshal(flag); err == nil {
			if err := s.cache.Set(ctx, flagCacheKey(key), string(blob), flagCacheTTL); err != nil {
				log.Printf("ERROR: cache feature flag %s: %v", key, err)
			}
		}
	}

	return &EvalResult{Key: key, Enabled: evaluateRules(flag, evalCtx)}, nil
}

// evaluateRules applies targeting rules. A disabled flag is always off; an
// enabled flag with no rules is on; with rules, at least one must match.
func evaluateRules(flag *Flag, evalCtx *EvalContext) bool {
	if !flag.Enabled {
		return false
	}
	if len(flag.Rules) == 0 {
		return true
	}
	if evalCtx == nil {
		evalCtx = &EvalContext{}
	}

	if users, ok := flag.Rules["allowed_users"].([]any); ok && evalCtx.UserID != "" {
		for _, u := range users {
			if asString(u) == evalCtx.UserID {
				return true
			}
		}
	}
	if groups, ok := flag.Rules["allowed_groups"].([]any); ok && evalCtx.GroupID != "" {
		for _, g := range groups {
			if asString(g) == evalCtx.GroupID {
				return true
			}
		}
	}
	if pct, ok := numericRule(flag.Rules["percentage"]); ok && evalCtx.UserID != "" {
		if int(userBucket(evalCtx.UserID)) < pct {
			return true
		}
	}
	if exprSrc, ok := flag.Rules["expression"].(string); ok && exprSrc != "" {
		if evaluateExpression(flag.Key, exprSrc, evalCtx) {
			return true
		}
	}
	return false
}

// userBucket maps a user ID to a stable 0-99 rollout bucket.
func userBucket(userID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return h.Sum32() % 100
}

func numericRule(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// evaluateExpression runs a boolean rule expression with user_id, group_id,
// and attributes bound. Errors disable the rule rather than the request.
func evaluateExpression(flagKey, src string, evalCtx *EvalContext) bool {
	env := map[string]any{
		"user_id":    evalCtx.UserID,
		"group_id":   evalCtx.GroupID,
		"attributes": evalCtx.Attributes,
	}
	if env["attributes"] == nil {
		env["attributes"] = map[string]any{}
	}

	prog, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		log.Printf("ERROR: compile flag expression for %s: %v", flagKey, err)
		return false
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		log.Printf("ERROR: evaluate flag expression for %s: %v", flagKey, err)
		return false
	}
	b, _ := result.(bool)
	return b
}

// validateRules rejects rule payloads that could never evaluate.
func validateRules(rules map[string]any) error {
	if rules == nil {
		return nil
	}
	if pct, ok := numericRule(rules["percentage"]); ok {
		if pct < 0 || pct > 100 {
			return core.ValidationError("percentage must be between 0 and 100")
		}
	}
	if exprSrc, ok := rules["expression"].(string); ok && exprSrc != "" {
		env := map[string]any{
			"user_id":    "",
			"group_id":   "",
			"attributes": map[string]any{},
		}
		if _, err := expr.Compile(exprSrc, expr.Env(env), expr.AsBool()); err != nil {
			return core.ValidationError("invalid rule expression: " + err.Error())
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, flagCacheKey(key)); err != nil {
		log.Printf("ERROR: invalidate feature flag cache %s: %v", key, err)
	}
}
