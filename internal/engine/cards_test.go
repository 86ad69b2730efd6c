package engine

import (
	"testing"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

func TestCardView(t *testing.T) {
	env := newTestEnv(t)

	v := env.cards.View(game.CardStarter, 2)
	if v.ID != "starter_2" || v.Name != "Starter Card 2" {
		t.Errorf("view = %+v", v)
	}
	if v.ImageURL != "https://cards.test/memes/starter/2.jpg" {
		t.Errorf("image url = %q", v.ImageURL)
	}
	if v.IsUnique {
		t.Error("starter card marked unique")
	}

	u := env.cards.View(game.CardUnique, 3)
	if !u.IsUnique || u.Name != "Unique Card 3" {
		t.Errorf("unique view = %+v", u)
	}
}

func TestInCatalogue(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		ct     game.CardType
		number int
		want   bool
	}{
		{game.CardStarter, 1, true},
		{game.CardStarter, 5, true},
		{game.CardStarter, 0, false},
		{game.CardStarter, 6, false},
		{game.CardStandard, 10, true},
		{game.CardStandard, 11, false},
		{game.CardUnique, 3, true},
		{game.CardType("weird"), 1, false},
	}
	for _, tc := range cases {
		if got := env.cards.InCatalogue(tc.ct, tc.number); got != tc.want {
			t.Errorf("InCatalogue(%s, %d) = %v, want %v", tc.ct, tc.number, got, tc.want)
		}
	}
}

func TestDealHand(t *testing.T) {
	t.Run("samples without repeats", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedPlayer(t, "ana")
		for n := 1; n <= 5; n++ {
			if err := env.store.AddUserCard(env.ctx, u.ID, game.CardStandard, n); err != nil {
				t.Fatalf("AddUserCard: %v", err)
			}
		}

		for i := 0; i < 20; i++ {
			hand, err := env.cards.DealHand(env.ctx, u.ID)
			if err != nil {
				t.Fatalf("DealHand: %v", err)
			}
			if len(hand) != 3 {
				t.Fatalf("hand size = %d, want 3", len(hand))
			}
			seen := make(map[string]bool, 3)
			for _, cv := range hand {
				if seen[cv.ID] {
					t.Fatalf("duplicate card %s in hand", cv.ID)
				}
				seen[cv.ID] = true
			}
		}
	})

	t.Run("small collections deal whole", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedPlayer(t, "ana")

		hand, err := env.cards.DealHand(env.ctx, u.ID)
		if err != nil {
			t.Fatalf("DealHand: %v", err)
		}
		if len(hand) != 3 {
			t.Errorf("hand size = %d, want all 3 starters", len(hand))
		}
	})

	t.Run("empty collection fails", func(t *testing.T) {
		env := newTestEnv(t)
		u := &game.User{DeviceID: "dev-empty", Nickname: "none"}
		env.store.SeedUser(u)

		if _, err := env.cards.DealHand(env.ctx, u.ID); game.KindOf(err) != game.KindValidationFailed {
			t.Errorf("DealHand error = %v, want validation", err)
		}
	})
}

func TestAwardStandardCard(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedPlayer(t, "ana")
	for n := 1; n <= 10; n++ {
		if n == 4 {
			continue
		}
		if err := env.store.AddUserCard(env.ctx, u.ID, game.CardStandard, n); err != nil {
			t.Fatalf("AddUserCard: %v", err)
		}
	}

	// Only number 4 is missing, so the draw is forced.
	card, err := env.cards.AwardStandardCard(env.ctx, u.ID)
	if err != nil {
		t.Fatalf("AwardStandardCard: %v", err)
	}
	if card == nil || card.CardNumber != 4 || card.CardType != game.CardStandard {
		t.Fatalf("award = %+v, want standard 4", card)
	}
	owns, err := env.store.UserOwnsCard(env.ctx, u.ID, game.CardStandard, 4)
	if err != nil {
		t.Fatalf("UserOwnsCard: %v", err)
	}
	if !owns {
		t.Error("awarded card not in collection")
	}

	// Pool exhausted.
	card, err = env.cards.AwardStandardCard(env.ctx, u.ID)
	if err != nil {
		t.Fatalf("second AwardStandardCard: %v", err)
	}
	if card != nil {
		t.Errorf("award from empty pool = %+v, want nil", card)
	}
}
