package game

import "errors"

// Domain errors surfaced to the originating session as a private error
// message. Handlers validate against these before mutating any state.
var (
	// ErrAlreadyInGame is returned when a token that already belongs to a
	// non-finished game tries to create or join another one.
	ErrAlreadyInGame = errors.New("already in a game")

	// ErrNotFound is returned when a game id does not resolve, or when an
	// action arrives from a token with no current game.
	ErrNotFound = errors.New("game not found")

	// ErrNotJoinable is returned for joins on games past the forming state.
	ErrNotJoinable = errors.New("game is not joinable")

	// ErrBeforeTimeout is returned for actions inside a closed time window:
	// the pre-play grace period, or the brake role acting before its window
	// opens.
	ErrBeforeTimeout = errors.New("too early for this action")

	// ErrNoRole is returned when the acting token is in the game's roster but
	// in neither role set.
	ErrNoRole = errors.New("no role in this game")

	// ErrGameNotActive is returned for actions on games that are not in
	// active play, including set actions after the build window has expired.
	ErrGameNotActive = errors.New("game is not active")
)
