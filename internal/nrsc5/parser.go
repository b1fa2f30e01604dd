package nrsc5

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	tsRe      = regexp.MustCompile(`^\s*\d{2}:\d{2}:\d{2}\s+`)
	titleRe   = regexp.MustCompile(`(?i)\bTitle:\s*(.+)`)
	artistRe  = regexp.MustCompile(`(?i)\bArtist:\s*(.+)`)
	albumRe   = regexp.MustCompile(`(?i)\bAlbum:\s*(.+)`)
	sloganRe  = regexp.MustCompile(`(?i)\bSlogan:\s*(.+)`)
	stationRe = regexp.MustCompile(`(?i)\bStation name:\s*(.+)`)
	genreRe   = regexp.MustCompile(`(?i)\bGenre:\s*(.+)`)
	messageRe = regexp.MustCompile(`(?i)\b(?:Message|Alert):\s*(.+)`)
	bitrateRe = regexp.MustCompile(`(?i)\b(?:Audio bit rate|Bitrate):\s*(\d+(?:\.\d+)?)\s*kbps`)
	lotRe     = regexp.MustCompile(`port=(\d+).*?name=(\S+)`)
	lotIDRe   = regexp.MustCompile(`lot=(\d+)`)
)

// Album art arrives on a fixed AAS port per subchannel; anything else on an
// image extension is a logo or an unrelated data service.
var artPortsBySubchannel = map[int][]string{
	0: {"0810", "0010"},
	1: {"1810", "0011"},
	2: {"5103", "0012"},
	3: {"5104", "0013"},
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// Parser turns raw decoder diagnostic lines into typed events. It is
// line-oriented and stateless apart from the subchannel it was tuned to,
// which decides how LOT payloads are classified.
type Parser struct {
	Subchannel int
}

// NewParser returns a parser for the given subchannel.
func NewParser(subchannel int) *Parser {
	return &Parser{Subchannel: subchannel}
}

// ParseLine parses one whole diagnostic line. A line can produce several
// events; a line matching nothing produces a single Raw event. ParseLine
// never fails.
func (p *Parser) ParseLine(line string) []Event {
	line = strings.TrimSpace(tsRe.ReplaceAllString(line, ""))
	if line == "" {
		return nil
	}

	var events []Event

	if strings.Contains(line, "Lost synchronization") || strings.Contains(line, "Lost sync") {
		events = append(events, SyncLost{})
	} else if strings.Contains(line, "Synchronized") ||
		strings.Contains(line, "Audio program") ||
		strings.Contains(line, "SIG Service:") {
		events = append(events, SyncAcquired{})
	}

	if m := stationRe.FindStringSubmatch(line); m != nil {
		events = append(events, StationInfo{Name: strings.TrimSpace(m[1])})
	}
	if m := sloganRe.FindStringSubmatch(line); m != nil {
		events = append(events, StationInfo{Slogan: strings.TrimSpace(m[1])})
	}
	if m := genreRe.FindStringSubmatch(line); m != nil {
		events = append(events, StationInfo{Genre: strings.TrimSpace(m[1])})
	}
	if m := messageRe.FindStringSubmatch(line); m != nil {
		events = append(events, Message{Text: strings.TrimSpace(m[1])})
	}

	if m := titleRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			events = append(events, SongField{Kind: FieldTitle, Value: v})
		}
	}
	if m := artistRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			events = append(events, SongField{Kind: FieldArtist, Value: v})
		}
	}
	if m := albumRe.FindStringSubmatch(line); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			events = append(events, SongField{Kind: FieldAlbum, Value: v})
		}
	}

	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		if kbps, err := strconv.ParseFloat(m[1], 64); err == nil {
			events = append(events, BitrateInfo{Kbps: kbps})
		}
	}

	if strings.Contains(line, "LOT file:") {
		if payload, ok := p.parseLot(line); ok {
			events = append(events, payload)
		}
	}

	if len(events) == 0 {
		return []Event{Raw{Line: line}}
	}
	return events
}

func (p *Parser) parseLot(line string) (DataPayload, bool) {
	m := lotRe.FindStringSubmatch(line)
	if m == nil {
		return DataPayload{}, false
	}
	port := m[1]
	file := strings.TrimSpace(m[2])

	payload := DataPayload{File: file, Port: port, Kind: PayloadOther}
	if idm := lotIDRe.FindStringSubmatch(line); idm != nil {
		payload.LotID, _ = strconv.Atoi(idm[1])
	}

	lower := strings.ToLower(file)
	image := false
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			image = true
			break
		}
	}
	if !image {
		return payload, true
	}

	switch {
	case strings.Contains(file, "TMT_"):
		payload.Kind = PayloadTrafficTile
	case strings.Contains(file, "DWRO_"):
		payload.Kind = PayloadWeatherImage
	case p.isLogo(file, port):
		// Port 5103 carries HD3 logos; they are noise on the primary program.
		if p.Subchannel == 0 && port == "5103" {
			return DataPayload{}, false
		}
		payload.Kind = PayloadStationLogo
	case p.isArtPort(port):
		payload.Kind = PayloadAlbumArt
	}
	return payload, true
}

func (p *Parser) isLogo(file, port string) bool {
	return strings.Contains(file, "$$") ||
		strings.Contains(file, "SLWRXR") ||
		strings.Contains(strings.ToLower(file), "_logo") ||
		port == "5103"
}

func (p *Parser) isArtPort(port string) bool {
	for _, known := range artPortsBySubchannel[p.Subchannel] {
		if port == known {
			return true
		}
	}
	return false
}
