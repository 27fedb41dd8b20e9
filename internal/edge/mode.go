package edge

// Mode is one of the secondary strategy's mutually exclusive sub-modes
type Mode string

const (
	ModeScalp    Mode = "scalp"    // fast mean-reversion off the book
	ModeSwing    Mode = "swing"    // momentum continuation over hours
	ModePosition Mode = "position" // conservative trend-following
	ModeNone     Mode = ""         // no mode allowed to trade
)

// AllModes lists the tradeable modes in scoring order
func AllModes() []Mode {
	return []Mode{ModeScalp, ModeSwing, ModePosition}
}

// ConservativeMode is the mode favored by the detector tie-break and
// the last one the ratchet revokes.
const ConservativeMode = ModePosition
