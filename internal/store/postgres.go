package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// Postgres is the production store. See docs/schema.sql for the tables
// it expects; schema management itself lives outside this service.
type Postgres struct {
	db   querier
	pool *pgxpool.Pool // nil inside RunInTx
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, cfg config.DatabaseSettings) (*Postgres, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: pool, pool: pool}, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports database reachability for health checks.
func (s *Postgres) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// RunInTx runs fn inside a single transaction. Nested calls reuse the
// surrounding transaction.
func (s *Postgres) RunInTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Postgres{db: tx})
	})
}

// uniqueViolation reports whether err is a duplicate-key failure.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- users ---

func (s *Postgres) GetUser(ctx context.Context, userID int64) (*game.User, error) {
	var (
		u      game.User
		birth  *time.Time
		gender *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, device_id, COALESCE(nickname, ''), birth_date, gender, rating, created_at
		 FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.DeviceID, &u.Nickname, &birth, &gender, &u.Rating, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	if birth != nil {
		u.BirthDate = *birth
	}
	if gender != nil {
		u.Gender = game.Gender(*gender)
	}
	return &u, nil
}

func (s *Postgres) AddRating(ctx context.Context, userID int64, delta float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET rating = rating + $2 WHERE id = $1`, userID, delta)
	if err != nil {
		return fmt.Errorf("add rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrUserNotFound
	}
	return nil
}

func (s *Postgres) ListUserCards(ctx context.Context, userID int64) ([]game.UserCard, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, card_type, card_number, obtained_at
		 FROM user_cards WHERE user_id = $1 ORDER BY obtained_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user cards: %w", err)
	}
	defer rows.Close()

	var cards []game.UserCard
	for rows.Next() {
		var c game.UserCard
		if err := rows.Scan(&c.ID, &c.UserID, &c.CardType, &c.CardNumber, &c.ObtainedAt); err != nil {
			return nil, fmt.Errorf("scan user card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *Postgres) UserOwnsCard(ctx context.Context, userID int64, ct game.CardType, number int) (bool, error) {
	var owns bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_cards
		 WHERE user_id = $1 AND card_type = $2 AND card_number = $3)`,
		userID, ct, number,
	).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("check card ownership: %w", err)
	}
	return owns, nil
}

func (s *Postgres) AddUserCard(ctx context.Context, userID int64, ct game.CardType, number int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_cards (user_id, card_type, card_number, obtained_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, card_type, card_number) DO NOTHING`,
		userID, ct, number)
	if err != nil {
		return fmt.Errorf("add user card: %w", err)
	}
	return nil
}

// --- rooms ---

func (s *Postgres) CreateRoom(ctx context.Context, r *game.Room) error {
	var code *string
	if r.Code != "" {
		code = &r.Code
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO rooms (creator_id, max_players, status, room_code, is_public, age_group, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 RETURNING id, created_at`,
		r.CreatorID, r.MaxPlayers, r.Status, code, r.IsPublic, r.AgeGroup,
	).Scan(&r.ID, &r.CreatedAt)
	if uniqueViolation(err) {
		return game.ErrCodeExhausted
	}
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

const roomColumns = `id, creator_id, max_players, status, COALESCE(room_code, ''), is_public, age_group, created_at`

func scanRoom(row pgx.Row) (*game.Room, error) {
	var r game.Room
	err := row.Scan(&r.ID, &r.CreatorID, &r.MaxPlayers, &r.Status, &r.Code, &r.IsPublic, &r.AgeGroup, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Postgres) GetRoom(ctx context.Context, roomID int64) (*game.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}
	return r, nil
}

func (s *Postgres) GetRoomByCode(ctx context.Context, code string) (*game.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE room_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room by code: %w", err)
	}
	return r, nil
}

func (s *Postgres) CodeInUse(ctx context.Context, code string) (bool, error) {
	var used bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE room_code = $1)`, code).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check room code: %w", err)
	}
	return used, nil
}

func (s *Postgres) SetRoomStatus(ctx context.Context, roomID int64, status game.RoomStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE rooms SET status = $2 WHERE id = $1`, roomID, status)
	if err != nil {
		return fmt.Errorf("set room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrRoomNotFound
	}
	return nil
}

func (s *Postgres) ListPublicRooms(ctx context.Context, limit int) ([]game.RoomSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.creator_id, r.max_players, r.status, COALESCE(r.room_code, ''),
		        r.is_public, r.age_group, r.created_at,
		        COUNT(p.id) FILTER (WHERE p.status = 'active') AS participants
		 FROM rooms r
		 LEFT JOIN room_participants p ON p.room_id = r.id
		 WHERE r.is_public AND r.status = 'waiting'
		 GROUP BY r.id
		 HAVING COUNT(p.id) FILTER (WHERE p.status = 'active') < r.max_players
		 ORDER BY r.created_at DESC, r.id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list public rooms: %w", err)
	}
	defer rows.Close()

	var out []game.RoomSummary
	for rows.Next() {
		var sum game.RoomSummary
		if err := rows.Scan(&sum.ID, &sum.CreatorID, &sum.MaxPlayers, &sum.Status, &sum.Code,
			&sum.IsPublic, &sum.AgeGroup, &sum.CreatedAt, &sum.ParticipantCount); err != nil {
			return nil, fmt.Errorf("scan room summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Postgres) GetUserActiveRoom(ctx context.Context, userID int64) (*game.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx,
		`SELECT r.id, r.creator_id, r.max_players, r.status, COALESCE(r.room_code, ''),
		        r.is_public, r.age_group, r.created_at
		 FROM rooms r
		 JOIN room_participants p ON p.room_id = r.id
		 WHERE p.user_id = $1 AND p.status = 'active'
		   AND r.status IN ('waiting', 'playing')
		 ORDER BY p.joined_at DESC
		 LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user active room: %w", err)
	}
	return r, nil
}

func (s *Postgres) GetCreatorActiveRoom(ctx context.Context, creatorID int64) (*game.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE creator_id = $1 AND status IN ('waiting', 'playing')
		 ORDER BY created_at DESC
		 LIMIT 1`, creatorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get creator active room: %w", err)
	}
	return r, nil
}

// --- participants ---

const participantColumns = `p.id, p.room_id, p.user_id, p.status, p.connection_status,
	COALESCE(p.last_activity, to_timestamp(0)), COALESCE(p.last_ping, to_timestamp(0)),
	p.disconnect_count, p.missed_actions, p.joined_at, COALESCE(u.nickname, '')`

func scanParticipant(row pgx.Row) (*game.Participant, error) {
	var p game.Participant
	err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Status, &p.Connection,
		&p.LastActivity, &p.LastPing, &p.DisconnectCount, &p.MissedActions, &p.JoinedAt, &p.Nickname)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) CreateParticipant(ctx context.Context, p *game.Participant) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO room_participants
		   (room_id, user_id, status, connection_status, last_activity, last_ping,
		    disconnect_count, missed_actions, joined_at)
		 VALUES ($1, $2, $3, $4, now(), now(), 0, 0, now())
		 RETURNING id, joined_at`,
		p.RoomID, p.UserID, p.Status, p.Connection,
	).Scan(&p.ID, &p.JoinedAt)
	if uniqueViolation(err) {
		return game.Conflict("participant already exists")
	}
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *Postgres) GetParticipant(ctx context.Context, roomID, userID int64) (*game.Participant, error) {
	p, err := scanParticipant(s.db.QueryRow(ctx,
		`SELECT `+participantColumns+`
		 FROM room_participants p
		 LEFT JOIN users u ON u.id = p.user_id
		 WHERE p.room_id = $1 AND p.user_id = $2`, roomID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrNotParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *Postgres) ListParticipants(ctx context.Context, roomID int64) ([]game.Participant, error) {
	return s.listParticipants(ctx, roomID, false)
}

func (s *Postgres) ListActiveParticipants(ctx context.Context, roomID int64) ([]game.Participant, error) {
	return s.listParticipants(ctx, roomID, true)
}

func (s *Postgres) listParticipants(ctx context.Context, roomID int64, activeOnly bool) ([]game.Participant, error) {
	q := `SELECT ` + participantColumns + `
	      FROM room_participants p
	      LEFT JOIN users u ON u.id = p.user_id
	      WHERE p.room_id = $1`
	if activeOnly {
		q += ` AND p.status = 'active'`
	}
	q += ` ORDER BY p.joined_at, p.id`

	rows, err := s.db.Query(ctx, q, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []game.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Postgres) CountConnected(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_participants
		 WHERE room_id = $1 AND status = 'active' AND connection_status = 'connected'`,
		roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count connected: %w", err)
	}
	return count, nil
}

func (s *Postgres) SetParticipantStatus(ctx context.Context, roomID, userID int64, st game.ParticipantStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE room_participants SET status = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, st)
	if err != nil {
		return fmt.Errorf("set participant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrNotParticipant
	}
	return nil
}

func (s *Postgres) SetConnection(ctx context.Context, roomID, userID int64, st game.ConnectionStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE room_participants SET connection_status = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, st)
	if err != nil {
		return fmt.Errorf("set connection status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrNotParticipant
	}
	return nil
}

func (s *Postgres) TouchParticipant(ctx context.Context, roomID, userID int64, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE room_participants
		 SET last_activity = $3, last_ping = $3, connection_status = 'connected'
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, now)
	if err != nil {
		return fmt.Errorf("touch participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrNotParticipant
	}
	return nil
}

func (s *Postgres) IncrementDisconnects(ctx context.Context, roomID, userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`UPDATE room_participants SET disconnect_count = disconnect_count + 1
		 WHERE room_id = $1 AND user_id = $2
		 RETURNING disconnect_count`, roomID, userID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrNotParticipant
	}
	if err != nil {
		return 0, fmt.Errorf("increment disconnects: %w", err)
	}
	return count, nil
}

func (s *Postgres) IncrementMissedActions(ctx context.Context, roomID, userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`UPDATE room_participants SET missed_actions = missed_actions + 1
		 WHERE room_id = $1 AND user_id = $2
		 RETURNING missed_actions`, roomID, userID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrNotParticipant
	}
	if err != nil {
		return 0, fmt.Errorf("increment missed actions: %w", err)
	}
	return count, nil
}

func (s *Postgres) MarkStaleTimeouts(ctx context.Context, roomID int64, cutoff time.Time) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE room_participants SET connection_status = 'timeout'
		 WHERE room_id = $1 AND status = 'active' AND connection_status = 'connected'
		   AND last_activity < $2
		 RETURNING user_id`, roomID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("mark stale timeouts: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (s *Postgres) ExcludeOverLimit(ctx context.Context, roomID int64, maxDisconnects, maxMissed int) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE room_participants SET status = 'left'
		 WHERE room_id = $1 AND status = 'active'
		   AND (disconnect_count >= $2 OR missed_actions >= $3)
		 RETURNING user_id`, roomID, maxDisconnects, maxMissed)
	if err != nil {
		return nil, fmt.Errorf("exclude over limit: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- games ---

func (s *Postgres) CreateGame(ctx context.Context, g *game.Game) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO games (room_id, status, current_round, created_at)
		 VALUES ($1, $2, $3, now())
		 RETURNING id, created_at`,
		g.RoomID, g.Status, g.CurrentRound,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func scanGame(row pgx.Row) (*game.Game, error) {
	var (
		g        game.Game
		winner   *int64
		finished *time.Time
	)
	err := row.Scan(&g.ID, &g.RoomID, &g.Status, &g.CurrentRound, &winner, &g.CreatedAt, &finished)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		g.WinnerID = *winner
	}
	if finished != nil {
		g.FinishedAt = *finished
	}
	return &g, nil
}

const gameColumns = `id, room_id, status, current_round, winner_id, created_at, finished_at`

func (s *Postgres) GetGame(ctx context.Context, gameID int64) (*game.Game, error) {
	g, err := scanGame(s.db.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %d: %w", gameID, err)
	}
	return g, nil
}

func (s *Postgres) GetActiveGame(ctx context.Context, roomID int64) (*game.Game, error) {
	g, err := scanGame(s.db.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games
		 WHERE room_id = $1 AND status != 'finished'
		 ORDER BY created_at DESC
		 LIMIT 1`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active game: %w", err)
	}
	return g, nil
}

func (s *Postgres) SetGameStatus(ctx context.Context, gameID int64, st game.GameStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE games SET status = $2 WHERE id = $1`, gameID, st)
	if err != nil {
		return fmt.Errorf("set game status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrGameNotFound
	}
	return nil
}

func (s *Postgres) AdvanceGameRound(ctx context.Context, gameID int64, st game.GameStatus, round int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE games SET status = $2, current_round = $3 WHERE id = $1`, gameID, st, round)
	if err != nil {
		return fmt.Errorf("advance game round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrGameNotFound
	}
	return nil
}

func (s *Postgres) FinishGame(ctx context.Context, gameID, winnerID int64, at time.Time) error {
	var winner *int64
	if winnerID != 0 {
		winner = &winnerID
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE games SET status = 'finished', winner_id = $2, finished_at = $3 WHERE id = $1`,
		gameID, winner, at)
	if err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrGameNotFound
	}
	return nil
}

func (s *Postgres) ListGamesInStatus(ctx context.Context, statuses ...game.GameStatus) ([]game.Game, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = ANY($1) ORDER BY id`, strs)
	if err != nil {
		return nil, fmt.Errorf("list games in status: %w", err)
	}
	defer rows.Close()

	var out []game.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// --- rounds ---

func (s *Postgres) CreateRound(ctx context.Context, r *game.Round) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO game_rounds
		   (game_id, round_number, situation_text, duration_seconds,
		    started_at, selection_deadline, voting_deadline, auto_advanced)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		 RETURNING id`,
		r.GameID, r.Number, r.SituationText, r.DurationSeconds,
		r.StartedAt, r.SelectionDeadline, r.VotingDeadline,
	).Scan(&r.ID)
	if uniqueViolation(err) {
		return game.Conflict("round already exists")
	}
	if err != nil {
		return fmt.Errorf("create round: %w", err)
	}
	return nil
}

func scanRound(row pgx.Row) (*game.Round, error) {
	var (
		r        game.Round
		finished *time.Time
	)
	err := row.Scan(&r.ID, &r.GameID, &r.Number, &r.SituationText, &r.DurationSeconds,
		&r.StartedAt, &r.SelectionDeadline, &r.VotingDeadline, &finished, &r.AutoAdvanced)
	if err != nil {
		return nil, err
	}
	if finished != nil {
		r.FinishedAt = *finished
	}
	return &r, nil
}

const roundColumns = `id, game_id, round_number, situation_text, duration_seconds,
	started_at, selection_deadline, voting_deadline, finished_at, auto_advanced`

func (s *Postgres) GetRound(ctx context.Context, roundID int64) (*game.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM game_rounds WHERE id = $1`, roundID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get round %d: %w", roundID, err)
	}
	return r, nil
}

func (s *Postgres) GetCurrentRound(ctx context.Context, gameID int64) (*game.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM game_rounds
		 WHERE game_id = $1 ORDER BY round_number DESC LIMIT 1`, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current round: %w", err)
	}
	return r, nil
}

func (s *Postgres) ListRounds(ctx context.Context, gameID int64) ([]game.Round, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+roundColumns+` FROM game_rounds
		 WHERE game_id = $1 ORDER BY round_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []game.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Postgres) SetRoundText(ctx context.Context, roundID int64, text string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE game_rounds SET situation_text = $2 WHERE id = $1`, roundID, text)
	if err != nil {
		return fmt.Errorf("set round text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrRoundNotFound
	}
	return nil
}

func (s *Postgres) FinishRound(ctx context.Context, roundID int64, at time.Time, autoAdvanced bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE game_rounds SET finished_at = $2, auto_advanced = $3 WHERE id = $1`,
		roundID, at, autoAdvanced)
	if err != nil {
		return fmt.Errorf("finish round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrRoundNotFound
	}
	return nil
}

// --- choices and votes ---

func (s *Postgres) CreateChoice(ctx context.Context, c *game.Choice) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO player_choices (round_id, user_id, card_type, card_number, submitted_at)
		 VALUES ($1, $2, $3, $4, now())
		 RETURNING id, submitted_at`,
		c.RoundID, c.UserID, c.CardType, c.CardNumber,
	).Scan(&c.ID, &c.SubmittedAt)
	if uniqueViolation(err) {
		return game.ErrAlreadyChose
	}
	if err != nil {
		return fmt.Errorf("create choice: %w", err)
	}
	return nil
}

func (s *Postgres) GetChoice(ctx context.Context, choiceID int64) (*game.Choice, error) {
	var c game.Choice
	err := s.db.QueryRow(ctx,
		`SELECT id, round_id, user_id, card_type, card_number, submitted_at
		 FROM player_choices WHERE id = $1`, choiceID,
	).Scan(&c.ID, &c.RoundID, &c.UserID, &c.CardType, &c.CardNumber, &c.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.NotFound("choice not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get choice %d: %w", choiceID, err)
	}
	return &c, nil
}

func (s *Postgres) ListChoices(ctx context.Context, roundID int64) ([]game.Choice, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, round_id, user_id, card_type, card_number, submitted_at
		 FROM player_choices WHERE round_id = $1 ORDER BY submitted_at, id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}
	defer rows.Close()

	var out []game.Choice
	for rows.Next() {
		var c game.Choice
		if err := rows.Scan(&c.ID, &c.RoundID, &c.UserID, &c.CardType, &c.CardNumber, &c.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) CountChoices(ctx context.Context, roundID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM player_choices WHERE round_id = $1`, roundID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count choices: %w", err)
	}
	return count, nil
}

func (s *Postgres) HasChoice(ctx context.Context, roundID, userID int64) (bool, error) {
	var has bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM player_choices WHERE round_id = $1 AND user_id = $2)`,
		roundID, userID).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check choice: %w", err)
	}
	return has, nil
}

func (s *Postgres) CreateVote(ctx context.Context, v *game.Vote) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO votes (round_id, voter_id, choice_id, created_at)
		 VALUES ($1, $2, $3, now())
		 RETURNING id, created_at`,
		v.RoundID, v.VoterID, v.ChoiceID,
	).Scan(&v.ID, &v.CreatedAt)
	if uniqueViolation(err) {
		return game.ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("create vote: %w", err)
	}
	return nil
}

func (s *Postgres) CountVotes(ctx context.Context, roundID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM votes WHERE round_id = $1`, roundID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

func (s *Postgres) HasVote(ctx context.Context, roundID, voterID int64) (bool, error) {
	var has bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE round_id = $1 AND voter_id = $2)`,
		roundID, voterID).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return has, nil
}

func (s *Postgres) TallyRound(ctx context.Context, roundID int64) ([]game.ChoiceTally, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.user_id, COALESCE(u.nickname, ''), COUNT(v.id), c.submitted_at
		 FROM player_choices c
		 LEFT JOIN votes v ON v.choice_id = c.id
		 LEFT JOIN users u ON u.id = c.user_id
		 WHERE c.round_id = $1
		 GROUP BY c.id, c.user_id, u.nickname, c.submitted_at
		 ORDER BY COUNT(v.id) DESC, c.submitted_at ASC, c.id ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("tally round: %w", err)
	}
	defer rows.Close()

	var out []game.ChoiceTally
	for rows.Next() {
		var t game.ChoiceTally
		if err := rows.Scan(&t.ChoiceID, &t.UserID, &t.Nickname, &t.Votes, &t.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
