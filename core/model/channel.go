package model

// ChannelState is the lifecycle state of a messaging channel.
type ChannelState int

const (
	// ChannelDisconnected is the initial state and the state after any
	// transport failure.
	ChannelDisconnected ChannelState = iota
	// ChannelAwaitingScan means a pairing code was issued and must be scanned.
	ChannelAwaitingScan
	// ChannelAuthenticated means pairing succeeded but the session is not yet usable.
	ChannelAuthenticated
	// ChannelReady means the channel can send and receive.
	ChannelReady
)

func (s ChannelState) String() string {
	switch s {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelAwaitingScan:
		return "awaiting_scan"
	case ChannelAuthenticated:
		return "authenticated"
	case ChannelReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its string form.
func (s ChannelState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ChannelInfo is a read-only view of a channel used by dashboards and the API.
type ChannelInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	State       ChannelState `json:"state"`
	Phone       string       `json:"phone,omitempty"`
	IsPrimary   bool         `json:"is_primary"`
	MinuteCount int          `json:"minute_count"`
	HourCount   int          `json:"hour_count"`
	DayCount    int          `json:"day_count"`
}
