package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type auditEntry struct {
	action     string
	resource   string
	resourceID string
	oldValues  interface{}
	newValues  interface{}
}

// emitAudit persists an audit entry. Audit failures are logged and never
// fail the operation being audited.
func emitAudit(ctx context.Context, writer auditWriter, logger *zap.Logger, actor *models.Actor, entry auditEntry) {
	if writer == nil {
		return
	}
	log := &models.AuditLog{
		Action:   entry.action,
		Resource: entry.resource,
	}
	if entry.resourceID != "" {
		id := entry.resourceID
		log.ResourceID = &id
	}
	if actor != nil {
		if actor.UserID != "" {
			uid := actor.UserID
			log.UserID = &uid
		}
		log.IPAddress = actor.IP
		log.UserAgent = actor.UserAgent
	}
	log.OldValues = marshalAudit(logger, entry.oldValues)
	log.NewValues = marshalAudit(logger, entry.newValues)
	if err := writer.Create(context.WithoutCancel(ctx), log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", entry.action), zap.Error(err))
	}
}

func marshalAudit(logger *zap.Logger, v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn("failed to encode audit payload", zap.Error(err))
		return nil
	}
	return raw
}

func actorID(actor *models.Actor) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}
