package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/caseportal/messaging/internal/access"
	"github.com/caseportal/messaging/internal/domain"
	"github.com/caseportal/messaging/internal/hub"
	"github.com/caseportal/messaging/pkg/log"
)

// Rooms is the part of the hub the manager mutates.
type Rooms interface {
	AddMember(c *hub.Client, caseID string) (bool, error)
	RemoveMember(c *hub.Client, caseID string) (bool, error)
}

// Manager authorizes and tracks which connections are joined to which case
// rooms.
type Manager struct {
	rooms  Rooms
	access access.Checker
}

func NewManager(rooms Rooms, checker access.Checker) *Manager {
	return &Manager{rooms: rooms, access: checker}
}

// Join adds c to the case room once access.Checker allows it. Joining a
// room the connection is already in succeeds without another check. Any
// denial, including a failed check, is ErrForbidden and leaves the room
// untouched.
func (m *Manager) Join(ctx context.Context, c *hub.Client, caseID string) error {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return domain.ErrBadRequest
	}
	if err := c.Connection.Ready(); err != nil {
		return err
	}
	if c.Connection.InRoom(caseID) {
		return nil
	}

	l := log.Ctx(ctx)
	userID := c.Connection.UserID()

	allowed, err := m.access.CanAccessCase(ctx, userID, caseID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldCaseID, caseID).Msg("case access check failed")
		return domain.ErrForbidden
	}
	if !allowed {
		l.Info().Str(log.FieldCaseID, caseID).Msg("case join denied")
		return domain.ErrForbidden
	}

	added, err := m.rooms.AddMember(c, caseID)
	if err != nil {
		if errors.Is(err, hub.ErrHubStopped) {
			return domain.ErrNotConnected
		}
		return err
	}
	if added {
		l.Info().Str(log.FieldCaseID, caseID).Msg("joined case room")
	}
	return nil
}

// Leave removes c from the case room. Leaving a room never joined is a
// no-op.
func (m *Manager) Leave(ctx context.Context, c *hub.Client, caseID string) error {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return domain.ErrBadRequest
	}
	if err := c.Connection.Ready(); err != nil {
		return err
	}

	removed, err := m.rooms.RemoveMember(c, caseID)
	if err != nil {
		if errors.Is(err, hub.ErrHubStopped) {
			return domain.ErrNotConnected
		}
		return err
	}
	if removed {
		l := log.Ctx(ctx)
		l.Info().Str(log.FieldCaseID, caseID).Msg("left case room")
	}
	return nil
}
