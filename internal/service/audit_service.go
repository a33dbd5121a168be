package service

import (
	"context"

	"taskify/internal/domain"
	"taskify/internal/logger"
	"taskify/internal/repository"
)

// AuditService handles audit logging
type AuditService struct {
	store repository.Store
}

// NewAuditService creates a new audit service
func NewAuditService(store repository.Store) *AuditService {
	return &AuditService{store: store}
}

// Record writes an audit entry through q, so inside a transaction the entry
// is committed or rolled back together with the change it describes.
func (s *AuditService) Record(ctx context.Context, q repository.Queries, userID int64, action, category string, details map[string]interface{}) error {
	log := &domain.AuditLog{
		UserID:   userID,
		Action:   action,
		Category: category,
		Details:  details,
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		log.IP = meta.IP
		log.UserAgent = meta.UserAgent
	}

	if err := q.CreateAuditLog(ctx, log); err != nil {
		logger.WithContext(ctx).Error("failed to create audit log", "error", err, "action", action, "user_id", userID)
		return err
	}
	return nil
}

// GetUserAuditLogs returns audit logs for a user
func (s *AuditService) GetUserAuditLogs(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListAuditLogs(ctx, userID, limit)
}

// RequestMeta carries caller details recorded alongside audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches caller details to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
