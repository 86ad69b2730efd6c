package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// Presence enforces the liveness rules for room participants. It only
// reports and accounts; phase transitions stay with the round and game
// services.
type Presence struct {
	store store.Store
	bus   bus.Bus
	log   *zap.Logger
	cfg   config.PresenceSettings
}

// NewPresence returns a presence tracker with the given thresholds.
func NewPresence(st store.Store, b bus.Bus, log *zap.Logger, cfg config.PresenceSettings) *Presence {
	return &Presence{store: st, bus: b, log: log, cfg: cfg}
}

// Decision is the outcome of one liveness strike.
type Decision struct {
	UserID      int64
	Excluded    bool
	Disconnects int
	Missed      int
	CanRejoin   bool
}

// Touch records activity for a participant and restores the connected
// state.
func (p *Presence) Touch(ctx context.Context, roomID, userID int64) error {
	return p.store.TouchParticipant(ctx, roomID, userID, time.Now())
}

// MarkDisconnected registers a dropped connection. Reaching the
// disconnect limit excludes the participant from the room for good.
func (p *Presence) MarkDisconnected(ctx context.Context, roomID, userID int64) (Decision, error) {
	part, err := p.store.GetParticipant(ctx, roomID, userID)
	if err != nil {
		return Decision{}, err
	}
	count, err := p.store.IncrementDisconnects(ctx, roomID, userID)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		UserID:      userID,
		Excluded:    count >= p.cfg.MaxDisconnects,
		Disconnects: count,
		Missed:      part.MissedActions,
	}
	d.CanRejoin = !d.Excluded

	status := game.ParticipantDisconnected
	if d.Excluded {
		status = game.ParticipantLeft
	}
	if err := p.store.SetParticipantStatus(ctx, roomID, userID, status); err != nil {
		return d, err
	}
	if err := p.store.SetConnection(ctx, roomID, userID, game.ConnDisconnected); err != nil {
		return d, err
	}
	p.log.Info("participant disconnected",
		zap.Int64("room_id", roomID),
		zap.Int64("user_id", userID),
		zap.Int("disconnect_count", count),
		zap.Bool("excluded", d.Excluded))
	p.publish(ctx, roomID, bus.PlayerDisconnected, map[string]any{
		"user_id":          userID,
		"nickname":         part.Nickname,
		"disconnect_count": count,
		"excluded":         d.Excluded,
		"can_rejoin":       d.CanRejoin,
	})
	return d, nil
}

// Reconnect restores an interrupted participant to the active state.
// Excluded participants cannot come back.
func (p *Presence) Reconnect(ctx context.Context, roomID, userID int64) error {
	part, err := p.store.GetParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if part.Status == game.ParticipantLeft {
		return game.PermissionDenied("excluded from this room")
	}
	if err := p.store.SetParticipantStatus(ctx, roomID, userID, game.ParticipantActive); err != nil {
		return err
	}
	if err := p.Touch(ctx, roomID, userID); err != nil {
		return err
	}
	p.publish(ctx, roomID, bus.PlayerReconnected, map[string]any{
		"user_id":  userID,
		"nickname": part.Nickname,
	})
	return nil
}

// RecordMissed registers a missed mandatory action for the given phase.
// Reaching the missed-action limit excludes the participant; below the
// limit the connection is demoted to timeout.
func (p *Presence) RecordMissed(ctx context.Context, roomID, userID int64, phase string) (Decision, error) {
	part, err := p.store.GetParticipant(ctx, roomID, userID)
	if err != nil {
		return Decision{}, err
	}
	missed, err := p.store.IncrementMissedActions(ctx, roomID, userID)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		UserID:      userID,
		Excluded:    missed >= p.cfg.MaxMissedActions,
		Disconnects: part.DisconnectCount,
		Missed:      missed,
	}
	d.CanRejoin = !d.Excluded

	conn := game.ConnTimeout
	if d.Excluded {
		if err := p.store.SetParticipantStatus(ctx, roomID, userID, game.ParticipantLeft); err != nil {
			return d, err
		}
		conn = game.ConnDisconnected
	}
	if err := p.store.SetConnection(ctx, roomID, userID, conn); err != nil {
		return d, err
	}
	p.log.Info("missed action recorded",
		zap.Int64("room_id", roomID),
		zap.Int64("user_id", userID),
		zap.String("phase", phase),
		zap.Int("missed_actions", missed),
		zap.Bool("excluded", d.Excluded))
	return d, nil
}

// CanRejoin reports whether a departed participant may re-enter the
// room. Anyone over either strike limit is out for good.
func (p *Presence) CanRejoin(part *game.Participant) bool {
	return part.DisconnectCount < p.cfg.MaxDisconnects && part.MissedActions < p.cfg.MaxMissedActions
}

// ScanTimeouts demotes connected participants with no recent activity
// to the timeout state and returns the affected user ids.
func (p *Presence) ScanTimeouts(ctx context.Context, roomID int64) ([]int64, error) {
	cutoff := time.Now().Add(-p.cfg.InactivityTimeout)
	ids, err := p.store.MarkStaleTimeouts(ctx, roomID, cutoff)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		p.log.Info("stale participants timed out",
			zap.Int64("room_id", roomID),
			zap.Int64s("user_ids", ids))
	}
	return ids, nil
}

// CleanupExcluded marks everyone over the strike limits as left and
// returns their user ids.
func (p *Presence) CleanupExcluded(ctx context.Context, roomID int64) ([]int64, error) {
	ids, err := p.store.ExcludeOverLimit(ctx, roomID, p.cfg.MaxDisconnects, p.cfg.MaxMissedActions)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		nickname := ""
		if u, err := p.store.GetUser(ctx, id); err == nil {
			nickname = u.Nickname
		}
		p.publish(ctx, roomID, bus.PlayerLeft, map[string]any{
			"user_id":  id,
			"nickname": nickname,
			"reason":   "excluded",
		})
	}
	if len(ids) > 0 {
		p.log.Info("excluded participants removed",
			zap.Int64("room_id", roomID),
			zap.Int64s("user_ids", ids))
	}
	return ids, nil
}

func (p *Presence) publish(ctx context.Context, roomID int64, kind bus.Kind, payload map[string]any) {
	if err := p.bus.Publish(ctx, bus.Event{RoomID: roomID, Kind: kind, Payload: payload}); err != nil {
		p.log.Warn("publish presence event", zap.String("kind", string(kind)), zap.Error(err))
	}
}
