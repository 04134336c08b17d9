package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"platform-core/internal/config"
	"platform-core/internal/store"
)

// Deliverer executes a single outbound webhook HTTP POST and records the
// outcome on the delivery row. Failures are recorded, never propagated.
type Deliverer struct {
	store        *store.Store
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewDeliverer creates a Deliverer. The HTTP client can be swapped for tests.
func NewDeliverer(s *store.Store, cfg config.WebhooksConfig) *Deliverer {
	maxBody := int64(cfg.MaxResponseBodyKiB)
	if maxBody <= 0 {
		maxBody = 64
	}
	return &Deliverer{
		store:        s,
		client:       &http.Client{},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: maxBody * 1024,
	}
}

// SetClient overrides the HTTP client used for outbound calls.
func (d *Deliverer) SetClient(c *http.Client) {
	d.client = c
}

// CreateDelivery inserts a pending delivery row (attempt 1, not yet sent).
func (d *Deliverer) CreateDelivery(ctx context.Context, endpointID string, eventType EventType, payload map[string]any) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := store.GenerateUUID()
	pb := d.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, d.store.DB,
		fmt.Sprintf(`INSERT INTO webhook_deliveries (id, endpoint_id, event_type, payload, success, attempt_count)
		 VALUES (%s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(endpointID), pb.Add(string(eventType)), pb.Add(string(payloadJSON)),
			pb.Add(false), pb.Add(1)),
		pb.Params()...)
	if err != nil {
		return "", fmt.Errorf("insert delivery: %w", err)
	}
	return id, nil
}

// Deliver sends one webhook attempt for an existing delivery row. When retry
// is true the attempt counter is advanced first; the first attempt after
// CreateDelivery keeps attempt_count at 1.
func (d *Deliverer) Deliver(ctx context.Context, ep *Endpoint, eventType EventType, payload map[string]any, deliveryID string, retry bool) *Delivery {
	if retry {
		pb := d.store.Dialect.NewParamBuilder()
		_, err := store.Exec(ctx, d.store.DB,
			fmt.Sprintf(`UPDATE webhook_deliveries SET attempt_count = attempt_count + 1, updated_at = %s WHERE id = %s`,
				d.store.Dialect.NowExpr(), pb.Add(deliveryID)),
			pb.Params()...)
		if err != nil {
			log.Printf("ERROR: webhook delivery %s attempt bump: %v", deliveryID, err)
			return nil
		}
	}

	body, err := canonicalJSON(payload)
	if err != nil {
		d.recordResult(ctx, deliveryID, 0, fmt.Sprintf("marshal payload: %v", err), false)
		return d.getDelivery(ctx, deliveryID)
	}

	headers := map[string]string{
		"Content-Type":    "application/json",
		"User-Agent":      d.userAgent,
		"X-Webhook-ID":    deliveryID,
		"X-Webhook-Event": string(eventType),
	}
	for k, v := range ep.Headers {
		headers[k] = v
	}
	if ep.Secret != "" {
		headers["X-Webhook-Signature"] = Sign(body, ep.Secret)
	}

	// Persist headers before sending so a crash mid-flight leaves a trail.
	headersJSON, _ := json.Marshal(headers)
	pb := d.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, d.store.DB,
		fmt.Sprintf(`UPDATE webhook_deliveries SET request_headers = %s, updated_at = %s WHERE id = %s`,
			pb.Add(string(headersJSON)), d.store.Dialect.NowExpr(), pb.Add(deliveryID)),
		pb.Params()...)
	if err != nil {
		log.Printf("ERROR: webhook delivery %s header persist: %v", deliveryID, err)
	}

	timeout := time.Duration(ep.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, respBody := d.post(reqCtx, ep.URL, headers, body)
	success := status >= 200 && status < 300
	d.recordResult(ctx, deliveryID, status, respBody, success)

	if success {
		log.Printf("Webhook delivered: id=%s event=%s status=%d", deliveryID, eventType, status)
	} else {
		log.Printf("Webhook delivery failed: id=%s event=%s status=%d", deliveryID, eventType, status)
	}
	return d.getDelivery(ctx, deliveryID)
}

// post performs the HTTP call. A transport error yields status 0 and the
// error text as the body.
func (d *Deliverer) post(ctx context.Context, url string, headers map[string]string, body []byte) (int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Sprintf("build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, d.maxBodyBytes))
	return resp.StatusCode, string(respBody)
}

func (d *Deliverer) recordResult(ctx context.Context, deliveryID string, status int, body string, success bool) {
	pb := d.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, d.store.DB,
		fmt.Sprintf(`UPDATE webhook_deliveries
		 SET response_status = %s, response_body = %s, success = %s, completed_at = %s, updated_at = %s
		 WHERE id = %s`,
			pb.Add(status), pb.Add(body), pb.Add(success),
			d.store.Dialect.NowExpr(), d.store.Dialect.NowExpr(), pb.Add(deliveryID)),
		pb.Params()...)
	if err != nil {
		log.Printf("ERROR: webhook delivery %s result persist: %v", deliveryID, err)
	}
}

func (d *Deliverer) getDelivery(ctx context.Context, id string) *Delivery {
	pb := d.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, d.store.DB,
		fmt.Sprintf(`SELECT * FROM webhook_deliveries WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil
	}
	return deliveryFromRow(row)
}
