package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"platform-core/internal/cache"
	"platform-core/internal/core"
	"platform-core/internal/store"
)

// Service manages notifications and publishes them for real-time listeners.
type Service struct {
	store *store.Store
	cache *cache.Cache
}

func NewService(s *store.Store, c *cache.Cache) *Service {
	return &Service{store: s, cache: c}
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Notification, error) {
	if err := validateCreate(req.Title, req.Message, req.RecipientID, req.RecipientType, &req.Type, &req.Priority); err != nil {
		return nil, err
	}

	n, err := s.insert(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, n)
	return n, nil
}

// CreateBulk creates one notification per recipient and publishes each.
func (s *Service) CreateBulk(ctx context.Context, req *BulkCreateRequest) ([]*Notification, error) {
	if len(req.RecipientIDs) == 0 {
		return nil, core.ValidationError("recipient_ids is required")
	}

	result := make([]*Notification, 0, len(req.RecipientIDs))
	for _, recipientID := range req.RecipientIDs {
		n, err := s.Create(ctx, &CreateRequest{
			Title:         req.Title,
			Message:       req.Message,
			Type:          req.Type,
			Priority:      req.Priority,
			RecipientID:   recipientID,
			RecipientType: req.RecipientType,
			SenderID:      req.SenderID,
			Data:          req.Data,
			ActionURL:     req.ActionURL,
			ExpiresAt:     req.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}

func (s *Service) insert(ctx context.Context, req *CreateRequest) (*Notification, error) {
	var dataJSON any
	if req.Data != nil {
		b, _ := json.Marshal(req.Data)
		dataJSON = string(b)
	}
	var expiresAt any
	if req.ExpiresAt != nil {
		expiresAt = s.store.Dialect.TimeParam(req.ExpiresAt.UTC())
	}

	id := store.GenerateUUID()
	pb := s.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`INSERT INTO notifications
		 (id, title, message, notification_type, priority, status, recipient_id, recipient_type,
		  sender_id, data, action_url, expires_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			pb.Add(id), pb.Add(req.Title), pb.Add(req.Message), pb.Add(req.Type),
			pb.Add(req.Priority), pb.Add(StatusPending), pb.Add(req.RecipientID),
			pb.Add(req.RecipientType), pb.Add(req.SenderID), pb.Add(dataJSON),
			pb.Add(req.ActionURL), pb.Add(expiresAt)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT * FROM notifications WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NotFoundError("notification", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return notificationFromRow(row), nil
}

func (s *Service) List(ctx context.Context, filter Filter, page core.Page) ([]*Notification, error) {
	pb := s.store.Dialect.NewParamBuilder()
	query := `SELECT * FROM notifications`
	var conds []string
	if filter.RecipientID != "" {
		conds = append(conds, fmt.Sprintf("recipient_id = %s", pb.Add(filter.RecipientID)))
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = %s", pb.Add(filter.Status)))
	}
	if filter.Type != "" {
		conds = append(conds, fmt.Sprintf("notification_type = %s", pb.Add(filter.Type)))
	}
	if filter.Priority != "" {
		conds = append(conds, fmt.Sprintf("priority = %s", pb.Add(filter.Priority)))
	}
	if !filter.IncludeExpired {
		conds = append(conds, fmt.Sprintf("(expires_at IS NULL OR expires_at > %s)",
			pb.Add(s.store.Dialect.TimeParam(time.Now().UTC()))))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %s OFFSET %s",
		pb.Add(page.Limit), pb.Add(page.Skip))

	rows, err := store.QueryRows(ctx, s.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	result := make([]*Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, notificationFromRow(row))
	}
	return result, nil
}

// Update applies a status or action_url change. Moving to delivered or read
// stamps the matching timestamp if not already set.
func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) (*Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	if req.Status != nil {
		if !knownStatuses[*req.Status] {
			return nil, core.ValidationError("status must be pending, delivered, read, or failed")
		}
		sets = append(sets, fmt.Sprintf("status = %s", pb.Add(*req.Status)))
		if *req.Status == StatusDelivered && n.DeliveredAt == nil {
			sets = append(sets, "delivered_at = "+s.store.Dialect.NowExpr())
		}
		if *req.Status == StatusRead && n.ReadAt == nil {
			sets = append(sets, "read_at = "+s.store.Dialect.NowExpr())
		}
	}
	if req.ActionURL != nil {
		sets = append(sets, fmt.Sprintf("action_url = %s", pb.Add(*req.ActionURL)))
	}
	if len(sets) == 0 {
		return n, nil
	}
	sets = append(sets, "updated_at = "+s.store.Dialect.NowExpr())

	_, err = store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`UPDATE notifications SET %s WHERE id = %s`,
			strings.Join(sets, ", "), pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) MarkAsRead(ctx context.Context, id string) (*Notification, error) {
	status := StatusRead
	return s.Update(ctx, id, &UpdateRequest{Status: &status})
}

// MarkAllRead marks every unread notification for the recipient as read and
// returns the number affected.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, core.ValidationError("recipient_id is required")
	}
	pb := s.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`UPDATE notifications
		 SET status = %s, read_at = %s, updated_at = %s
		 WHERE recipient_id = %s AND status IN (%s, %s)`,
			pb.Add(StatusRead), s.store.Dialect.NowExpr(), s.store.Dialect.NowExpr(),
			pb.Add(recipientID), pb.Add(StatusPending), pb.Add(StatusDelivered)),
		pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(n), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	pb := s.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM notifications WHERE id = %s`, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n == 0 {
		return core.NotFoundError("notification", id)
	}
	return nil
}

// UnreadCount counts pending and delivered, unexpired notifications.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, core.ValidationError("recipient_id is required")
	}
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		fmt.Sprintf(`SELECT COUNT(*) AS n FROM notifications
		 WHERE recipient_id = %s AND status IN (%s, %s)
		   AND (expires_at IS NULL OR expires_at > %s)`,
			pb.Add(recipientID), pb.Add(StatusPending), pb.Add(StatusDelivered),
			pb.Add(s.store.Dialect.TimeParam(time.Now().UTC()))),
		pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return asInt(row["n"]), nil
}

// CleanExpired deletes notifications past their expiry.
func (s *Service) CleanExpired(ctx context.Context) (int, error) {
	pb := s.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf(`DELETE FROM notifications
		 WHERE expires_at IS NOT NULL AND expires_at <= %s`,
			pb.Add(s.store.Dialect.TimeParam(time.Now().UTC()))),
		pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("clean expired notifications: %w", err)
	}
	return int(n), nil
}

// publish announces a notification on its recipient channel and the global
// channel for system-wide listeners.
func (s *Service) publish(ctx context.Context, n *Notification) {
	blob, err := json.Marshal(n)
	if err != nil {
		return
	}
	channel := fmt.Sprintf("notifications:%s:%s", n.RecipientType, n.RecipientID)
	if err := s.cache.Publish(ctx, channel, string(blob)); err != nil {
		log.Printf("ERROR: publish notification %s to %s: %v", n.ID, channel, err)
		return
	}
	if err := s.cache.Publish(ctx, "notifications:all", string(blob)); err != nil {
		log.Printf("ERROR: publish notification %s to notifications:all: %v", n.ID, err)
	}
}

func validateCreate(title, message, recipientID, recipientType string, typ, priority *string) error {
	if strings.TrimSpace(title) == "" {
		return core.ValidationError("title is required")
	}
	if strings.TrimSpace(message) == "" {
		return core.ValidationError("message is required")
	}
	if strings.TrimSpace(recipientID) == "" || strings.TrimSpace(recipientType) == "" {
		return core.ValidationError("recipient_id and recipient_type are required")
	}
	if *typ == "" {
		*typ = TypeInfo
	}
	if !knownTypes[*typ] {
		return core.ValidationError("notification_type must be info, warning, error, success, or system")
	}
	if *priority == "" {
		*priority = PriorityMedium
	}
	if !knownPriorities[*priority] {
		return core.ValidationError("priority must be low, medium, high, or critical")
	}
	return nil
}
