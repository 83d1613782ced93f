package access

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/caseportal/messaging/pkg/log"
)

// Participant roles within a case.
const (
	ParticipantClient = "client"
	ParticipantStaff  = "staff"
)

// ParticipantModel is a row of the case service's case_participants table:
// the case's client plus every staff member assigned to it. Revoked rows
// are kept with RevokedAt set.
type ParticipantModel struct {
	CaseID    string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index"`
	Role      string `gorm:"size:16;not null"`
	CreatedAt time.Time
	RevokedAt *time.Time
}

func (ParticipantModel) TableName() string {
	return "case_participants"
}

// GormChecker reads case_participants.
type GormChecker struct {
	db *gorm.DB
}

func NewGormChecker(db *gorm.DB) *GormChecker {
	return &GormChecker{db: db}
}

func (c *GormChecker) CanAccessCase(ctx context.Context, userID, caseID string) (bool, error) {
	if userID == "" || caseID == "" {
		return false, nil
	}

	var count int64
	err := c.db.WithContext(ctx).Model(&ParticipantModel{}).
		Where("case_id = ? AND user_id = ? AND revoked_at IS NULL", caseID, userID).
		Where("role IN ?", []string{ParticipantClient, ParticipantStaff}).
		Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldCaseID, caseID).Str(log.FieldUserID, userID).Msg("failed to check case access")
		return false, err
	}
	return count > 0, nil
}

// AddParticipant upserts a participant row. The case service owns this
// table; the gateway only writes it when seeding local environments.
func (c *GormChecker) AddParticipant(ctx context.Context, caseID, userID, role string) error {
	return c.db.WithContext(ctx).Save(&ParticipantModel{
		CaseID:    caseID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}).Error
}
