package game

import "time"

// Gender values match the wire and database representation.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// User is the player account record. Account CRUD lives outside this
// service; the coordinator only reads profiles and adjusts ratings.
type User struct {
	ID        int64
	DeviceID  string
	Nickname  string
	BirthDate time.Time // zero when the profile is incomplete
	Gender    Gender
	Rating    float64
	CreatedAt time.Time
}

// Age returns the user's age in full years at now, or 0 when the birth
// date is unset.
func (u *User) Age(now time.Time) int {
	if u.BirthDate.IsZero() {
		return 0
	}
	years := now.Year() - u.BirthDate.Year()
	anniversary := u.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// ProfileComplete reports whether the user may create or join rooms.
func (u *User) ProfileComplete() bool {
	return u.Nickname != "" && !u.BirthDate.IsZero() && u.Gender != ""
}

// UserCard is one owned card. Ownership is additive only.
type UserCard struct {
	ID         int64
	UserID     int64
	CardType   CardType
	CardNumber int
	ObtainedAt time.Time
}
