package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
)

// handSize is how many cards a player is offered per round.
const handSize = 3

// CardView is the wire projection of one card.
type CardView struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	CardType   game.CardType `json:"card_type"`
	CardNumber int           `json:"card_number"`
	ImageURL   string        `json:"image_url"`
	IsUnique   bool          `json:"is_unique"`
}

// CardService deals hands and awards cards out of the catalogue.
type CardService struct {
	store store.Store
	cat   game.Catalogue
}

// NewCardService returns a card service over the given catalogue.
func NewCardService(st store.Store, cat game.Catalogue) *CardService {
	return &CardService{store: st, cat: cat}
}

// View builds the wire projection for one card.
func (s *CardService) View(ct game.CardType, number int) CardView {
	return CardView{
		ID:         fmt.Sprintf("%s_%d", ct, number),
		Name:       fmt.Sprintf("%s Card %d", typeTitle(ct), number),
		CardType:   ct,
		CardNumber: number,
		ImageURL:   s.cat.CardURL(ct, number),
		IsUnique:   ct == game.CardUnique,
	}
}

// InCatalogue reports whether the card exists in the collection.
func (s *CardService) InCatalogue(ct game.CardType, number int) bool {
	return ct.Valid() && number >= 1 && number <= s.cat.Count(ct)
}

// DealHand returns up to three random cards from the user's collection.
// Every call draws a fresh sample.
func (s *CardService) DealHand(ctx context.Context, userID int64) ([]CardView, error) {
	owned, err := s.store.ListUserCards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, game.Validation("no cards in collection")
	}
	rand.Shuffle(len(owned), func(i, j int) { owned[i], owned[j] = owned[j], owned[i] })
	if len(owned) > handSize {
		owned = owned[:handSize]
	}
	hand := make([]CardView, 0, len(owned))
	for _, c := range owned {
		hand = append(hand, s.View(c.CardType, c.CardNumber))
	}
	return hand, nil
}

// AwardStandardCard grants a random standard card the user does not own
// yet and returns it. It returns nil when the whole standard pool is
// already owned.
func (s *CardService) AwardStandardCard(ctx context.Context, userID int64) (*CardView, error) {
	total := s.cat.Count(game.CardStandard)
	if total == 0 {
		return nil, nil
	}
	owned, err := s.store.ListUserCards(ctx, userID)
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(owned))
	for _, c := range owned {
		if c.CardType == game.CardStandard {
			have[c.CardNumber] = true
		}
	}
	pool := make([]int, 0, total)
	for n := 1; n <= total; n++ {
		if !have[n] {
			pool = append(pool, n)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}
	number := pool[rand.Intn(len(pool))]
	if err := s.store.AddUserCard(ctx, userID, game.CardStandard, number); err != nil {
		return nil, err
	}
	v := s.View(game.CardStandard, number)
	return &v, nil
}

func typeTitle(ct game.CardType) string {
	s := string(ct)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
