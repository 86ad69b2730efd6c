package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// MemoryStore holds all game state in memory. It backs unit tests and
// single-node development; RunInTx is best-effort (no rollback).
type MemoryStore struct {
	mu  sync.RWMutex
	seq int64

	users     map[int64]*game.User
	userCards map[int64][]game.UserCard

	rooms        map[int64]*game.Room
	roomCodes    map[string]int64
	participants map[int64]map[int64]*game.Participant

	games        map[int64]*game.Game
	rounds       map[int64]*game.Round
	choices      map[int64]*game.Choice
	votes        map[int64]*game.Vote
	roundChoices map[int64][]int64
	roundVotes   map[int64][]int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]*game.User),
		userCards:    make(map[int64][]game.UserCard),
		rooms:        make(map[int64]*game.Room),
		roomCodes:    make(map[string]int64),
		participants: make(map[int64]map[int64]*game.Participant),
		games:        make(map[int64]*game.Game),
		rounds:       make(map[int64]*game.Round),
		choices:      make(map[int64]*game.Choice),
		votes:        make(map[int64]*game.Vote),
		roundChoices: make(map[int64][]int64),
		roundVotes:   make(map[int64][]int64),
	}
}

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

// SeedUser inserts a user record directly. Test helper; account CRUD is
// not part of this service.
func (s *MemoryStore) SeedUser(u *game.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	s.users[u.ID] = &cp
}

// RunInTx applies fn directly; the memory store has no rollback.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

// --- users ---

func (s *MemoryStore) GetUser(ctx context.Context, userID int64) (*game.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, game.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) AddRating(ctx context.Context, userID int64, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return game.ErrUserNotFound
	}
	u.Rating += delta
	return nil
}

func (s *MemoryStore) ListUserCards(ctx context.Context, userID int64) ([]game.UserCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cards := make([]game.UserCard, len(s.userCards[userID]))
	copy(cards, s.userCards[userID])
	return cards, nil
}

func (s *MemoryStore) UserOwnsCard(ctx context.Context, userID int64, ct game.CardType, number int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.userCards[userID] {
		if c.CardType == ct && c.CardNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) AddUserCard(ctx context.Context, userID int64, ct game.CardType, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userCards[userID] = append(s.userCards[userID], game.UserCard{
		ID:         s.nextID(),
		UserID:     userID,
		CardType:   ct,
		CardNumber: number,
		ObtainedAt: time.Now(),
	})
	return nil
}

// --- rooms ---

func (s *MemoryStore) CreateRoom(ctx context.Context, r *game.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Code != "" {
		if _, exists := s.roomCodes[r.Code]; exists {
			return game.ErrCodeExhausted
		}
	}
	r.ID = s.nextID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	s.rooms[r.ID] = &cp
	if r.Code != "" {
		s.roomCodes[r.Code] = r.ID
	}
	s.participants[r.ID] = make(map[int64]*game.Participant)
	return nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, roomID int64) (*game.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetRoomByCode(ctx context.Context, code string) (*game.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomCodes[code]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	cp := *s.rooms[id]
	return &cp, nil
}

func (s *MemoryStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roomCodes[code]
	return ok, nil
}

func (s *MemoryStore) SetRoomStatus(ctx context.Context, roomID int64, status game.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	r.Status = status
	return nil
}

func (s *MemoryStore) ListPublicRooms(ctx context.Context, limit int) ([]game.RoomSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []game.RoomSummary
	for _, r := range s.rooms {
		if !r.IsPublic || r.Status != game.RoomWaiting {
			continue
		}
		count := 0
		for _, p := range s.participants[r.ID] {
			if p.Status == game.ParticipantActive {
				count++
			}
		}
		if count >= r.MaxPlayers {
			continue
		}
		out = append(out, game.RoomSummary{Room: *r, ParticipantCount: count})
	}
	// Newest first
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetUserActiveRoom(ctx context.Context, userID int64) (*game.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for roomID, parts := range s.participants {
		p, ok := parts[userID]
		if !ok || p.Status != game.ParticipantActive {
			continue
		}
		r := s.rooms[roomID]
		if r != nil && !r.Status.Terminal() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, game.ErrRoomNotFound
}

func (s *MemoryStore) GetCreatorActiveRoom(ctx context.Context, creatorID int64) (*game.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.CreatorID == creatorID && !r.Status.Terminal() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, game.ErrRoomNotFound
}

// --- participants ---

func (s *MemoryStore) CreateParticipant(ctx context.Context, p *game.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts, ok := s.participants[p.RoomID]
	if !ok {
		return game.ErrRoomNotFound
	}
	p.ID = s.nextID()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	if u, ok := s.users[p.UserID]; ok && p.Nickname == "" {
		p.Nickname = u.Nickname
	}
	cp := *p
	parts[p.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetParticipant(ctx context.Context, roomID, userID int64) (*game.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return nil, game.ErrNotParticipant
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, roomID int64) ([]game.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listParticipantsLocked(roomID, false), nil
}

func (s *MemoryStore) ListActiveParticipants(ctx context.Context, roomID int64) ([]game.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listParticipantsLocked(roomID, true), nil
}

func (s *MemoryStore) listParticipantsLocked(roomID int64, activeOnly bool) []game.Participant {
	var out []game.Participant
	for _, p := range s.participants[roomID] {
		if activeOnly && p.Status != game.ParticipantActive {
			continue
		}
		cp := *p
		if u, ok := s.users[p.UserID]; ok {
			cp.Nickname = u.Nickname
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (s *MemoryStore) CountConnected(ctx context.Context, roomID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.participants[roomID] {
		if p.Status == game.ParticipantActive && p.Connection == game.ConnConnected {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SetParticipantStatus(ctx context.Context, roomID, userID int64, st game.ParticipantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return game.ErrNotParticipant
	}
	p.Status = st
	return nil
}

func (s *MemoryStore) SetConnection(ctx context.Context, roomID, userID int64, st game.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return game.ErrNotParticipant
	}
	p.Connection = st
	return nil
}

func (s *MemoryStore) TouchParticipant(ctx context.Context, roomID, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return game.ErrNotParticipant
	}
	p.LastActivity = now
	p.LastPing = now
	p.Connection = game.ConnConnected
	return nil
}

func (s *MemoryStore) IncrementDisconnects(ctx context.Context, roomID, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return 0, game.ErrNotParticipant
	}
	p.DisconnectCount++
	return p.DisconnectCount, nil
}

func (s *MemoryStore) IncrementMissedActions(ctx context.Context, roomID, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return 0, game.ErrNotParticipant
	}
	p.MissedActions++
	return p.MissedActions, nil
}

func (s *MemoryStore) MarkStaleTimeouts(ctx context.Context, roomID int64, cutoff time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []int64
	for _, p := range s.participants[roomID] {
		if p.Status != game.ParticipantActive || p.Connection != game.ConnConnected {
			continue
		}
		if p.LastActivity.Before(cutoff) {
			p.Connection = game.ConnTimeout
			changed = append(changed, p.UserID)
		}
	}
	return changed, nil
}

func (s *MemoryStore) ExcludeOverLimit(ctx context.Context, roomID int64, maxDisconnects, maxMissed int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var excluded []int64
	for _, p := range s.participants[roomID] {
		if p.Status != game.ParticipantActive {
			continue
		}
		if p.DisconnectCount >= maxDisconnects || p.MissedActions >= maxMissed {
			p.Status = game.ParticipantLeft
			excluded = append(excluded, p.UserID)
		}
	}
	return excluded, nil
}

// --- games ---

func (s *MemoryStore) CreateGame(ctx context.Context, g *game.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[g.RoomID]; !ok {
		return game.ErrRoomNotFound
	}
	g.ID = s.nextID()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	cp := *g
	s.games[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGame(ctx context.Context, gameID int64) (*game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, game.ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) GetActiveGame(ctx context.Context, roomID int64) (*game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.games {
		if g.RoomID == roomID && g.Status != game.GameFinished {
			cp := *g
			return &cp, nil
		}
	}
	return nil, game.ErrGameNotFound
}

func (s *MemoryStore) SetGameStatus(ctx context.Context, gameID int64, st game.GameStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return game.ErrGameNotFound
	}
	g.Status = st
	return nil
}

func (s *MemoryStore) AdvanceGameRound(ctx context.Context, gameID int64, st game.GameStatus, round int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return game.ErrGameNotFound
	}
	g.Status = st
	g.CurrentRound = round
	return nil
}

func (s *MemoryStore) FinishGame(ctx context.Context, gameID, winnerID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return game.ErrGameNotFound
	}
	g.Status = game.GameFinished
	g.WinnerID = winnerID
	g.FinishedAt = at
	return nil
}

func (s *MemoryStore) ListGamesInStatus(ctx context.Context, statuses ...game.GameStatus) ([]game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := make(map[game.GameStatus]bool, len(statuses))
	for _, st := range statuses {
		match[st] = true
	}
	var out []game.Game
	for _, g := range s.games {
		if match[g.Status] {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- rounds ---

func (s *MemoryStore) CreateRound(ctx context.Context, r *game.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[r.GameID]; !ok {
		return game.ErrGameNotFound
	}
	r.ID = s.nextID()
	cp := *r
	s.rounds[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRound(ctx context.Context, roundID int64) (*game.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, game.ErrRoundNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetCurrentRound(ctx context.Context, gameID int64) (*game.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *game.Round
	for _, r := range s.rounds {
		if r.GameID != gameID {
			continue
		}
		if latest == nil || r.Number > latest.Number {
			latest = r
		}
	}
	if latest == nil {
		return nil, game.ErrRoundNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListRounds(ctx context.Context, gameID int64) ([]game.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []game.Round
	for _, r := range s.rounds {
		if r.GameID == gameID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) SetRoundText(ctx context.Context, roundID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return game.ErrRoundNotFound
	}
	r.SituationText = text
	return nil
}

func (s *MemoryStore) FinishRound(ctx context.Context, roundID int64, at time.Time, autoAdvanced bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return game.ErrRoundNotFound
	}
	r.FinishedAt = at
	r.AutoAdvanced = autoAdvanced
	return nil
}

// --- choices and votes ---

func (s *MemoryStore) CreateChoice(ctx context.Context, c *game.Choice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[c.RoundID]; !ok {
		return game.ErrRoundNotFound
	}
	for _, id := range s.roundChoices[c.RoundID] {
		if s.choices[id].UserID == c.UserID {
			return game.ErrAlreadyChose
		}
	}
	c.ID = s.nextID()
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = time.Now()
	}
	cp := *c
	s.choices[c.ID] = &cp
	s.roundChoices[c.RoundID] = append(s.roundChoices[c.RoundID], c.ID)
	return nil
}

func (s *MemoryStore) GetChoice(ctx context.Context, choiceID int64) (*game.Choice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.choices[choiceID]
	if !ok {
		return nil, game.NotFound("choice not found")
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListChoices(ctx context.Context, roundID int64) ([]game.Choice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.roundChoices[roundID]
	out := make([]game.Choice, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.choices[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountChoices(ctx context.Context, roundID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roundChoices[roundID]), nil
}

func (s *MemoryStore) HasChoice(ctx context.Context, roundID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.roundChoices[roundID] {
		if s.choices[id].UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateVote(ctx context.Context, v *game.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[v.RoundID]; !ok {
		return game.ErrRoundNotFound
	}
	for _, id := range s.roundVotes[v.RoundID] {
		if s.votes[id].VoterID == v.VoterID {
			return game.ErrAlreadyVoted
		}
	}
	v.ID = s.nextID()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	cp := *v
	s.votes[v.ID] = &cp
	s.roundVotes[v.RoundID] = append(s.roundVotes[v.RoundID], v.ID)
	return nil
}

func (s *MemoryStore) CountVotes(ctx context.Context, roundID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roundVotes[roundID]), nil
}

func (s *MemoryStore) HasVote(ctx context.Context, roundID, voterID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.roundVotes[roundID] {
		if s.votes[id].VoterID == voterID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) TallyRound(ctx context.Context, roundID int64) ([]game.ChoiceTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for _, id := range s.roundVotes[roundID] {
		counts[s.votes[id].ChoiceID]++
	}
	out := make([]game.ChoiceTally, 0, len(s.roundChoices[roundID]))
	for _, id := range s.roundChoices[roundID] {
		c := s.choices[id]
		tally := game.ChoiceTally{
			ChoiceID:    c.ID,
			UserID:      c.UserID,
			Votes:       counts[c.ID],
			SubmittedAt: c.SubmittedAt,
		}
		if u, ok := s.users[c.UserID]; ok {
			tally.Nickname = u.Nickname
		}
		out = append(out, tally)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ChoiceID < out[j].ChoiceID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}
