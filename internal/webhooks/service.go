package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"reflect"
	"strings"
	"time"

	"platform-core/internal/core"
	"platform-core/internal/store"
)

// Service manages webhook endpoints, subscriptions, and deliveries.
type Service struct {
	store     *store.Store
	deliverer *Deliverer

	// SyncDispatch makes Trigger and RetryDueDeliveries run deliveries
	// inline instead of in background goroutines. Used by tests.
	SyncDispatch bool
}

func NewService(s *store.Store, d *Deliverer) *Service {
	return &Service{store: s, deliverer: d}
}

// Deliverer exposes the underlying executor, mainly for tests.
func (s *Service) Deliverer() *Deliverer {
	return s.deliverer
}

// --- Endpoints ---

func (s *Service) CreateEndpoint(ctx context.Context, req *CreateEndpointRequest, createdBy string) (*Endpoint, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, core.ValidationError("name is required")
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, core.ValidationError("url is required")
	}

	retryCount := 3
	if req.RetryCount != nil {
		retryCount = *req.RetryCount
	}
	if retryCount < 0 || retryCount > 10 {
		return nil, core.ValidationError("retry_count must be between 0 and 10")
	}
	timeoutSeconds := 5
	if req.TimeoutSeconds != nil {
		timeoutSeconds = *req.TimeoutSeconds
	}
	if timeoutSeconds < 1 || timeoutSeconds > 30 {
		return nil, core.ValidationError("timeout_seconds must be between 1 and 30")
	}

	var headersJSON any
	if req.Headers != nil {
		b, _ := json.Marshal(req.Headers)
		headersJSON = string(b)
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO webhook_endpoints
		 (id, name, url, description, secret, status, created_by, headers, retry_count, timeout_seconds)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(req.Name), pb.Add(req.URL), pb.Add(req.Description),
			pb.Add(req.Secret), pb.Add(StatusActive), pb.Add(createdBy),
			pb.Add(headersJSON), pb.Add(retryCount), pb.Add(timeoutSeconds)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert endpoint: %w", err)
	}
	return s.GetEndpoint(ctx, id)
}

func (s *Service) GetEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM webhook_endpoints WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("webhook endpoint", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	return endpointFromRow(row), nil
}

// ListEndpoints returns endpoints newest-first. Secrets are stripped from
// list views.
func (s *Service) ListEndpoints(ctx context.Context, status string, page core.Page) ([]*Endpoint, error) {
	pb := s.store.Dialect.NewParamBuilder()
	query := `SELECT * FROM webhook_endpoints`
	if status != "" {
		query += fmt.Sprintf(` WHERE status = %s`, pb.Add(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		pb.Add(page.Limit), pb.Add(page.Skip))

	rows, err := store.QueryRows(ctx, s.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}

	endpoints := make([]*Endpoint, 0, len(rows))
	for _, row := range rows {
		ep := endpointFromRow(row)
		ep.Secret = ""
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func (s *Service) UpdateEndpoint(ctx context.Context, id string, req *UpdateEndpointRequest) (*Endpoint, error) {
	if _, err := s.GetEndpoint(ctx, id); err != nil {
		return nil, err
	}

	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	if req.Name != nil {
		sets = append(sets, fmt.Sprintf("name = %s", pb.Add(*req.Name)))
	}
	if req.URL != nil {
		sets = append(sets, fmt.Sprintf("url = %s", pb.Add(*req.URL)))
	}
	if req.Description != nil {
		sets = append(sets, fmt.Sprintf("description = %s", pb.Add(*req.Description)))
	}
	if req.Secret != nil {
		sets = append(sets, fmt.Sprintf("secret = %s", pb.Add(*req.Secret)))
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusActive, StatusInactive, StatusFailed:
		default:
			return nil, core.ValidationError("status must be active, inactive, or failed")
		}
		sets = append(sets, fmt.Sprintf("status = %s", pb.Add(*req.Status)))
	}
	if req.Headers != nil {
		b, _ := json.Marshal(*req.Headers)
		sets = append(sets, fmt.Sprintf("headers = %s", pb.Add(string(b))))
	}
	if req.RetryCount != nil {
		if *req.RetryCount < 0 || *req.RetryCount > 10 {
			return nil, core.ValidationError("retry_count must be between 0 and 10")
		}
		sets = append(sets, fmt.Sprintf("retry_count = %s", pb.Add(*req.RetryCount)))
	}
	if req.TimeoutSeconds != nil {
		if *req.TimeoutSeconds < 1 || *req.TimeoutSeconds > 30 {
			return nil, core.ValidationError("timeout_seconds must be between 1 and 30")
		}
		sets = append(sets, fmt.Sprintf("timeout_seconds = %s", pb.Add(*req.TimeoutSeconds)))
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = "+s.store.Dialect.NowExpr())
		query := fmt.Sprintf(`UPDATE webhook_endpoints SET %s WHERE id = %s`,
			strings.Join(sets, ", "), pb.Add(id))
		if _, err := store.Exec(ctx, s.store.DB, query, pb.Params()...); err != nil {
			return nil, fmt.Errorf("update endpoint: %w", err)
		}
	}
	return s.GetEndpoint(ctx, id)
}

// DeleteEndpoint removes an endpoint. Subscriptions and deliveries cascade.
func (s *Service) DeleteEndpoint(ctx context.Context, id string) error {
	pb := s.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM webhook_endpoints WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if n == 0 {
		return core.NotFoundError("webhook endpoint", id)
	}
	return nil
}

// --- Subscriptions ---

// Subscribe creates a subscription, or updates the filter conditions if the
// endpoint is already subscribed to the event type.
func (s *Service) Subscribe(ctx context.Context, endpointID string, req *SubscribeRequest) (*Subscription, error) {
	if !req.EventType.IsValid() {
		return nil, core.ValidationError("unknown event type: " + string(req.EventType))
	}
	if _, err := s.GetEndpoint(ctx, endpointID); err != nil {
		return nil, err
	}

	var filtersJSON any
	if req.FilterConditions != nil {
		b, _ := json.Marshal(req.FilterConditions)
		filtersJSON = string(b)
	}

	pb := s.store.Dialect.NewParamBuilder()
	existing, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT id FROM webhook_subscriptions WHERE endpoint_id = %s AND event_type = %s`,
			pb.Add(endpointID), pb.Add(string(req.EventType))),
		pb.Params()...)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup subscription: %w", err)
	}

	var id string
	if err == nil {
		id = asString(existing["id"])
		pb = s.store.Dialect.NewParamBuilder()
		_, err = store.Exec(ctx, s.store.DB,
			fmt.Sprintf(`UPDATE webhook_subscriptions SET filter_conditions = %s, updated_at = %s WHERE id = %s`,
				pb.Add(filtersJSON), s.store.Dialect.NowExpr(), pb.Add(id)),
			pb.Params()...)
		if err != nil {
			return nil, fmt.Errorf("update subscription: %w", err)
		}
	} else {
		id = store.GenerateUUID()
		pb = s.store.Dialect.NewParamBuilder()
		_, err = store.Exec(ctx, s.store.DB,
			fmt.Sprintf(`INSERT INTO webhook_subscriptions (id, endpoint_id, event_type, filter_conditions)
			 VALUES (%s, %s, %s, %s)`,
				pb.Add(id), pb.Add(endpointID), pb.Add(string(req.EventType)), pb.Add(filtersJSON)),
			pb.Params()...)
		if err != nil {
			return nil, fmt.Errorf("insert subscription: %w", err)
		}
	}

	pb = s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM webhook_subscriptions WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return subscriptionFromRow(row), nil
}

func (s *Service) ListSubscriptions(ctx context.Context, endpointID string, eventType EventType) ([]*Subscription, error) {
	pb := s.store.Dialect.NewParamBuilder()
	query := `SELECT * FROM webhook_subscriptions`
	var conds []string
	if endpointID != "" {
		conds = append(conds, fmt.Sprintf("endpoint_id = %s", pb.Add(endpointID)))
	}
	if eventType != "" {
		conds = append(conds, fmt.Sprintf("event_type = %s", pb.Add(string(eventType))))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := store.QueryRows(ctx, s.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	subs := make([]*Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, subscriptionFromRow(row))
	}
	return subs, nil
}

func (s *Service) DeleteSubscription(ctx context.Context, id string) error {
	pb := s.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM webhook_subscriptions WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n == 0 {
		return core.NotFoundError("webhook subscription", id)
	}
	return nil
}

// --- Matcher ---

// EndpointsForEvent joins active endpoints to their subscriptions for one
// event type. Filter conditions are evaluated later, at trigger time.
func (s *Service) EndpointsForEvent(ctx context.Context, eventType EventType) ([]*Match, error) {
	pb := s.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, s.store.DB,
		fmt.Sprintf(`SELECT e.id AS endpoint_id, e.name, e.url, e.secret, e.headers,
		        e.retry_count, e.timeout_seconds,
		        s.id AS subscription_id, s.filter_conditions
		 FROM webhook_endpoints e
		 JOIN webhook_subscriptions s ON s.endpoint_id = e.id
		 WHERE s.event_type = %s AND e.status = %s`,
			pb.Add(string(eventType)), pb.Add(StatusActive)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("match endpoints: %w", err)
	}

	matches := make([]*Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, &Match{
			Endpoint: Endpoint{
				ID:             asString(row["endpoint_id"]),
				Name:           asString(row["name"]),
				URL:            asString(row["url"]),
				Secret:         asString(row["secret"]),
				Headers:        decodeStringMap(row["headers"]),
				RetryCount:     asInt(row["retry_count"]),
				TimeoutSeconds: asInt(row["timeout_seconds"]),
			},
			Subscription: Subscription{
				ID:               asString(row["subscription_id"]),
				EventType:        eventType,
				FilterConditions: decodeAnyMap(row["filter_conditions"]),
			},
		})
	}
	return matches, nil
}

// MatchesFilters reports whether every filter key exists in the payload with
// an equal value. An empty filter always matches.
func MatchesFilters(filters, payload map[string]any) bool {
	for key, want := range filters {
		got, ok := payload[key]
		if !ok {
			return false
		}
		if !equalJSONValue(got, want) {
			return false
		}
	}
	return true
}

// equalJSONValue compares two values as JSON would, so 3 and 3.0 are equal.
func equalJSONValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(aj) == string(bj)
}

// --- Trigger and dispatch ---

// Trigger fans an event out to all matching subscriptions. Delivery rows are
// created up front and their IDs returned immediately; the HTTP calls run in
// the background.
func (s *Service) Trigger(ctx context.Context, eventType EventType, payload map[string]any) (*TriggerResult, error) {
	if !eventType.IsValid() {
		return nil, core.ValidationError("unknown event type: " + string(eventType))
	}
	matches, err := s.EndpointsForEvent(ctx, eventType)
	if err != nil {
		return nil, err
	}

	result := &TriggerResult{EventType: eventType, DeliveryIDs: []string{}}
	for _, m := range matches {
		if !MatchesFilters(m.Subscription.FilterConditions, payload) {
			continue
		}

		deliveryID, err := s.deliverer.CreateDelivery(ctx, m.Endpoint.ID, eventType, payload)
		if err != nil {
			log.Printf("ERROR: create delivery for endpoint %s: %v", m.Endpoint.ID, err)
			continue
		}
		result.DeliveryIDs = append(result.DeliveryIDs, deliveryID)

		s.dispatch(m.Endpoint, eventType, payload, deliveryID, false)
	}
	result.DeliveryCount = len(result.DeliveryIDs)
	return result, nil
}

// dispatch runs a delivery attempt inline or in a goroutine depending on
// SyncDispatch. Background attempts get a fresh context so they outlive the
// originating request.
func (s *Service) dispatch(ep Endpoint, eventType EventType, payload map[string]any, deliveryID string, retry bool) {
	if s.SyncDispatch {
		s.deliverer.Deliver(context.Background(), &ep, eventType, payload, deliveryID, retry)
		return
	}
	go s.deliverer.Deliver(context.Background(), &ep, eventType, payload, deliveryID, retry)
}

// TestEndpoint fires a synthetic delivery with the payload tagged _test and
// waits for the outcome.
func (s *Service) TestEndpoint(ctx context.Context, endpointID string, eventType EventType, payload map[string]any) (*Delivery, error) {
	if !eventType.IsValid() {
		return nil, core.ValidationError("unknown event type: " + string(eventType))
	}
	ep, err := s.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = map[string]any{}
	}
	payload["_test"] = true

	deliveryID, err := s.deliverer.CreateDelivery(ctx, ep.ID, eventType, payload)
	if err != nil {
		return nil, err
	}
	delivery := s.deliverer.Deliver(ctx, ep, eventType, payload, deliveryID, false)
	if delivery == nil {
		return nil, core.NewAppError("INTERNAL_ERROR", 500, "test delivery failed to record")
	}
	return delivery, nil
}

// Emit triggers eventType in the background without surfacing errors to the
// caller. Modules use it to publish lifecycle events without coupling their
// request paths to webhook outcomes.
func (s *Service) Emit(eventType EventType, payload map[string]any) {
	run := func() {
		if _, err := s.Trigger(context.Background(), eventType, payload); err != nil {
			log.Printf("ERROR: emit %s: %v", eventType, err)
		}
	}
	if s.SyncDispatch {
		run()
		return
	}
	go run()
}

// --- Retry sweep ---

// retryBackoff returns the delay before the next attempt. Exponential in the
// attempt count, capped at a 32x multiplier.
func retryBackoff(attemptCount int) time.Duration {
	factor := math.Min(float64(attemptCount), 5)
	return time.Duration(60*math.Pow(2, factor)) * time.Second
}

// RetryDueDeliveries sweeps failed deliveries that are due and dispatches a
// retry for each. A delivery is due when it has attempts left against its
// endpoint's retry budget, its next_retry_at has passed (or was never set),
// and the endpoint is still active. Returns the number dispatched.
func (s *Service) RetryDueDeliveries(ctx context.Context, now time.Time) (int, error) {
	pb := s.store.Dialect.NewParamBuilder()
	nowParam := pb.Add(s.store.Dialect.TimeParam(now))
	rows, err := store.QueryRows(ctx, s.store.DB,
		fmt.Sprintf(`SELECT d.id, d.event_type, d.payload, d.attempt_count,
		        e.id AS endpoint_id, e.url, e.secret, e.headers, e.retry_count, e.timeout_seconds
		 FROM webhook_deliveries d
		 JOIN webhook_endpoints e ON e.id = d.endpoint_id
		 WHERE d.success = %s
		   AND d.attempt_count < e.retry_count
		   AND (d.next_retry_at IS NULL OR d.next_retry_at <= %s)
		   AND e.status = %s
		 ORDER BY d.created_at ASC
		 LIMIT 50`,
			pb.Add(false), nowParam, pb.Add(StatusActive)),
		pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("select due deliveries: %w", err)
	}

	dispatched := 0
	for _, row := range rows {
		deliveryID := asString(row["id"])
		attemptCount := asInt(row["attempt_count"])

		// Claim the delivery by pushing next_retry_at forward under the
		// same due predicate. Zero rows affected means a concurrent sweep
		// got here first.
		nextRetry := now.Add(retryBackoff(attemptCount))
		pb := s.store.Dialect.NewParamBuilder()
		n, err := store.Exec(ctx, s.store.DB,
			fmt.Sprintf(`UPDATE webhook_deliveries
			 SET next_retry_at = %s, updated_at = %s
			 WHERE id = %s AND success = %s
			   AND (next_retry_at IS NULL OR next_retry_at <= %s)`,
				pb.Add(s.store.Dialect.TimeParam(nextRetry)), s.store.Dialect.NowExpr(),
				pb.Add(deliveryID), pb.Add(false), pb.Add(s.store.Dialect.TimeParam(now))),
			pb.Params()...)
		if err != nil {
			log.Printf("ERROR: claim delivery %s: %v", deliveryID, err)
			continue
		}
		if n == 0 {
			continue
		}

		ep := Endpoint{
			ID:             asString(row["endpoint_id"]),
			URL:            asString(row["url"]),
			Secret:         asString(row["secret"]),
			Headers:        decodeStringMap(row["headers"]),
			RetryCount:     asInt(row["retry_count"]),
			TimeoutSeconds: asInt(row["timeout_seconds"]),
		}
		eventType := EventType(asString(row["event_type"]))
		payload := decodeAnyMap(row["payload"])

		s.dispatch(ep, eventType, payload, deliveryID, true)
		dispatched++
	}
	return dispatched, nil
}

// --- Deliveries ---

func (s *Service) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM webhook_deliveries WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("webhook delivery", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return deliveryFromRow(row), nil
}

// DeliveryFilter narrows ListDeliveries. Nil fields are ignored.
type DeliveryFilter struct {
	EndpointID string
	EventType  EventType
	Success    *bool
}

func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter, page core.Page) ([]*Delivery, error) {
	pb := s.store.Dialect.NewParamBuilder()
	query := `SELECT * FROM webhook_deliveries`
	var conds []string
	if filter.EndpointID != "" {
		conds = append(conds, fmt.Sprintf("endpoint_id = %s", pb.Add(filter.EndpointID)))
	}
	if filter.EventType != "" {
		conds = append(conds, fmt.Sprintf("event_type = %s", pb.Add(string(filter.EventType))))
	}
	if filter.Success != nil {
		conds = append(conds, fmt.Sprintf("success = %s", pb.Add(*filter.Success)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %s OFFSET %s",
		pb.Add(page.Limit), pb.Add(page.Skip))

	rows, err := store.QueryRows(ctx, s.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	deliveries := make([]*Delivery, 0, len(rows))
	for _, row := range rows {
		deliveries = append(deliveries, deliveryFromRow(row))
	}
	return deliveries, nil
}
