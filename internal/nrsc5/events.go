package nrsc5

// FieldKind identifies which song metadata field a SongField event carries.
type FieldKind int

const (
	FieldTitle FieldKind = iota
	FieldArtist
	FieldAlbum
)

func (k FieldKind) String() string {
	switch k {
	case FieldTitle:
		return "title"
	case FieldArtist:
		return "artist"
	case FieldAlbum:
		return "album"
	default:
		return "unknown"
	}
}

// PayloadKind classifies a LOT data payload announced on the diagnostic stream.
type PayloadKind int

const (
	PayloadAlbumArt PayloadKind = iota
	PayloadStationLogo
	PayloadTrafficTile
	PayloadWeatherImage
	PayloadOther
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadAlbumArt:
		return "album_art"
	case PayloadStationLogo:
		return "station_logo"
	case PayloadTrafficTile:
		return "traffic_tile"
	case PayloadWeatherImage:
		return "weather_image"
	case PayloadOther:
		return "other"
	default:
		return "unknown"
	}
}

// Event is a typed decoder diagnostic event. The decoder's text stream is
// loosely structured, so anything the parser does not recognize is surfaced
// as Raw rather than dropped or treated as an error.
type Event interface {
	isEvent()
}

// SyncAcquired means the decoder reported lock on a digital signal.
type SyncAcquired struct{}

// SyncLost means the decoder explicitly reported losing synchronization.
type SyncLost struct{}

// StationInfo carries a station identity update. Only the field that
// appeared on the line is set; consumers merge updates.
type StationInfo struct {
	Name   string
	Slogan string
	Genre  string
}

// SongField is a single raw song metadata field as it appeared on the
// stream. Fields arrive in any order and flicker; the SongAssembler turns
// them into stable SongInfo values.
type SongField struct {
	Kind  FieldKind
	Value string
}

// BitrateInfo reports the audio bitrate the decoder is currently seeing.
type BitrateInfo struct {
	Kbps float64
}

// Message is a free-form station message or alert.
type Message struct {
	Text string
}

// DataPayload announces a LOT file the decoder wrote to disk.
type DataPayload struct {
	Kind  PayloadKind
	File  string
	Port  string
	LotID int
}

// Raw is an unrecognized diagnostic line, kept for logging only.
type Raw struct {
	Line string
}

func (SyncAcquired) isEvent() {}
func (SyncLost) isEvent()     {}
func (StationInfo) isEvent()  {}
func (SongField) isEvent()    {}
func (BitrateInfo) isEvent()  {}
func (Message) isEvent()      {}
func (DataPayload) isEvent()  {}
func (Raw) isEvent()          {}
