package domain

type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "play"
	ActionPause PlaybackAction = "pause"
)

// PlaybackCommand is a host-issued play/pause. It is consumed once to
// compute a local seek target and never retained.
type PlaybackCommand struct {
	MediaRef        string
	Action          PlaybackAction
	SeekTimeSeconds float64
	IssuedAtEpochMs int64
	IssuerID        UserID
}

func (c PlaybackCommand) Playing() bool { return c.Action == ActionPlay }
