package flags

import (
	"context"
	"errors"
	"testing"

	"platform-core/internal/config"
	"platform-core/internal/core"
	"platform-core/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "test",
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(testStore(t), nil, nil, nil)
}

func boolPtr(b bool) *bool { return &b }

func TestCreateFlag_DuplicateKeyConflicts(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	req := &CreateFlagRequest{Key: "dark-mode", Name: "Dark mode", Enabled: true}
	if _, err := svc.Create(ctx, req, "tester"); err != nil {
		t.Fatalf("create flag: %v", err)
	}

	_, err := svc.Create(ctx, req, "tester")
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Status != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
}

func TestCreateFlag_RejectsBadRules(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	cases := []map[string]any{
		{"percentage": float64(150)},
		{"percentage": float64(-1)},
		{"expression": "user_id =="},
	}
	for _, rules := range cases {
		_, err := svc.Create(ctx, &CreateFlagRequest{Key: "bad", Name: "Bad", Rules: rules}, "tester")
		var appErr *core.AppError
		if !errors.As(err, &appErr) || appErr.Status != 422 {
			t.Fatalf("rules %v: expected 422, got %v", rules, err)
		}
	}
}

func TestUpdateFlag_BumpsVersion(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	flag, err := svc.Create(ctx, &CreateFlagRequest{Key: "beta", Name: "Beta"}, "tester")
	if err != nil {
		t.Fatalf("create flag: %v", err)
	}
	if flag.Version != 1 {
		t.Fatalf("expected version 1, got %d", flag.Version)
	}

	updated, err := svc.Update(ctx, "beta", &UpdateFlagRequest{Enabled: boolPtr(true)}, "tester")
	if err != nil {
		t.Fatalf("update flag: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if !updated.Enabled {
		t.Fatal("expected flag enabled")
	}

	// Empty update is a no-op, version unchanged
	same, err := svc.Update(ctx, "beta", &UpdateFlagRequest{}, "tester")
	if err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if same.Version != 2 {
		t.Fatalf("expected version 2 after no-op, got %d", same.Version)
	}
}

func TestDeleteFlag(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	if _, err := svc.Create(ctx, &CreateFlagRequest{Key: "gone", Name: "Gone"}, "tester"); err != nil {
		t.Fatalf("create flag: %v", err)
	}
	if err := svc.Delete(ctx, "gone", "tester"); err != nil {
		t.Fatalf("delete flag: %v", err)
	}
	if _, err := svc.GetByKey(ctx, "gone"); err == nil {
		t.Fatal("expected flag gone")
	}
	if err := svc.Delete(ctx, "gone", "tester"); err == nil {
		t.Fatal("expected 404 deleting twice")
	}
}

func TestEvaluate_DisabledFlagIsOff(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	if _, err := svc.Create(ctx, &CreateFlagRequest{
		Key: "off", Name: "Off", Enabled: false,
		Rules: map[string]any{"allowed_users": []any{"u1"}},
	}, "tester"); err != nil {
		t.Fatalf("create flag: %v", err)
	}

	result, err := svc.Evaluate(ctx, "off", &EvalContext{UserID: "u1"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Enabled {
		t.Fatal("disabled flag must evaluate to false even for allowed users")
	}
}

func TestEvaluate_EnabledNoRulesIsOn(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	if _, err := svc.Create(ctx, &CreateFlagRequest{Key: "on", Name: "On", Enabled: true}, "tester"); err != nil {
		t.Fatalf("create flag: %v", err)
	}
	result, err := svc.Evaluate(ctx, "on", nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Enabled {
		t.Fatal("enabled flag without rules must evaluate to true")
	}
}

func TestEvaluate_UnknownFlag(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	_, err := svc.Evaluate(ctx, "nope", nil)
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Status != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestEvaluateRules_AllowedUsersAndGroups(t *testing.T) {
	flag := &Flag{
		Key: "f", Enabled: true,
		Rules: map[string]any{
			"allowed_users":  []any{"u1", "u2"},
			"allowed_groups": []any{"admins"},
		},
	}

	if !evaluateRules(flag, &EvalContext{UserID: "u1"}) {
		t.Fatal("allowed user must match")
	}
	if !evaluateRules(flag, &EvalContext{UserID: "other", GroupID: "admins"}) {
		t.Fatal("allowed group must match")
	}
	if evaluateRules(flag, &EvalContext{UserID: "other", GroupID: "users"}) {
		t.Fatal("unmatched identity must not pass when rules exist")
	}
	if evaluateRules(flag, nil) {
		t.Fatal("nil context must not pass when rules exist")
	}
}

func TestEvaluateRules_Percentage(t *testing.T) {
	full := &Flag{Key: "f", Enabled: true, Rules: map[string]any{"percentage": float64(100)}}
	none := &Flag{Key: "f", Enabled: true, Rules: map[string]any{"percentage": float64(0)}}

	if !evaluateRules(full, &EvalContext{UserID: "anyone"}) {
		t.Fatal("full rollout must include every user")
	}
	if evaluateRules(none, &EvalContext{UserID: "anyone"}) {
		t.Fatal("zero rollout must include no user")
	}
	// A user without an ID cannot be bucketed
	if evaluateRules(full, &EvalContext{}) {
		t.Fatal("percentage rule requires a user_id")
	}
}

func TestUserBucket_StableAndBounded(t *testing.T) {
	a := userBucket("user-42")
	b := userBucket("user-42")
	if a != b {
		t.Fatalf("bucket not stable: %d vs %d", a, b)
	}
	for _, id := range []string{"a", "b", "c", "user-1", "user-2"} {
		if bucket := userBucket(id); bucket > 99 {
			t.Fatalf("bucket out of range for %s: %d", id, bucket)
		}
	}
}

func TestEvaluateRules_Expression(t *testing.T) {
	flag := &Flag{
		Key: "f", Enabled: true,
		Rules: map[string]any{"expression": `attributes["plan"] == "pro"`},
	}

	pro := &EvalContext{UserID: "u1", Attributes: map[string]any{"plan": "pro"}}
	free := &EvalContext{UserID: "u1", Attributes: map[string]any{"plan": "free"}}

	if !evaluateRules(flag, pro) {
		t.Fatal("expression must match pro plan")
	}
	if evaluateRules(flag, free) {
		t.Fatal("expression must not match free plan")
	}
	// Missing attributes evaluate against an empty map, not a panic
	if evaluateRules(flag, &EvalContext{UserID: "u1"}) {
		t.Fatal("expression over missing attributes must be false")
	}
}

func TestEvaluateRules_AnyRuleMatches(t *testing.T) {
	flag := &Flag{
		Key: "f", Enabled: true,
		Rules: map[string]any{
			"allowed_users": []any{"vip"},
			"percentage":    float64(0),
		},
	}
	if !evaluateRules(flag, &EvalContext{UserID: "vip"}) {
		t.Fatal("a matching rule must win even when another rule misses")
	}
}
