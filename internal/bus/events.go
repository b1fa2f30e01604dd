package bus

import "github.com/sdrtools/boombox/internal/nrsc5"

// Event is a structured session event fanned out to external consumers
// (UI, statistics viewer, data sinks). Consumers that fall behind lose
// events rather than stalling the control path.
type Event interface {
	isBusEvent()
}

// StateChanged reports a session state transition.
type StateChanged struct {
	From   string
	To     string
	Reason string
}

// SyncState reports digital sync being acquired or lost. Mode is "hd" or "fm".
type SyncState struct {
	Synced bool
	Mode   string
}

// NowPlaying carries a stabilized song tuple for the active station.
type NowPlaying struct {
	Station string
	Song    nrsc5.SongInfo
}

// StationUpdate carries the merged station identity as currently known.
type StationUpdate struct {
	Name   string
	Slogan string
	Genre  string
}

// StationMessage is a free-form message broadcast by the station.
type StationMessage struct {
	Text string
}

// SignalQuality reports the decoder's current audio bitrate as a rough
// signal quality hint.
type SignalQuality struct {
	BitrateKbps float64
}

// ArtReady announces that artwork for a song has been resolved. Placeholder
// is set when resolution failed and the default marker should be shown.
type ArtReady struct {
	Artist      string
	Title       string
	Path        string
	Placeholder bool
}

// DataAvailable forwards a decoder data payload (traffic tile, weather
// image, logo) to interested sinks.
type DataAvailable struct {
	Payload nrsc5.DataPayload
}

// SessionError reports a failure that ended or prevented a session.
type SessionError struct {
	Message string
}

// NoSignal is the terminal report for a tune attempt that acquired nothing,
// distinct from the transient acquiring state.
type NoSignal struct {
	FrequencyMHz float64
}

func (StateChanged) isBusEvent()   {}
func (SyncState) isBusEvent()      {}
func (NowPlaying) isBusEvent()     {}
func (StationUpdate) isBusEvent()  {}
func (StationMessage) isBusEvent() {}
func (SignalQuality) isBusEvent()  {}
func (ArtReady) isBusEvent()       {}
func (DataAvailable) isBusEvent()  {}
func (SessionError) isBusEvent()   {}
func (NoSignal) isBusEvent()       {}
