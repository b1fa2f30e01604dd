package playlog

import (
	"regexp"
	"strings"
)

// Phrases that mark broadcast filler rather than a song. Matched as
// case-insensitive substrings against both title and artist.
var stationPhrases = []string{
	"commercial",
	"advertisement",
	"promo",
	"jingle",
	"weather",
	"traffic",
	"coming up",
	"you're listening",
	"stay tuned",
	"call us",
	"text us",
	"contest",
	"station id",
	"station identification",
	"hd1",
	"hd2",
	"hd3",
	"hd4",
}

// Call signs, bare frequencies and branding slugs that stations push
// through the title/artist fields between songs.
var stationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^w[a-z]{2,3}\s+`),
	regexp.MustCompile(`^k[a-z]{2,3}\s+`),
	regexp.MustCompile(`^(kiss|rock|country|hits|classic|news|talk)\s*(fm|am)?$`),
	regexp.MustCompile(`^\d{2,3}\.\d\s*(fm|am)?$`),
	regexp.MustCompile(`^(rock|kiss|country|hits|classic)\s+\d{2,3}\.\d$`),
	regexp.MustCompile(`^\w{3,4}\s+\d{2,3}\.\d`),
}

// LooksLikeStationContent reports whether the text reads as station
// branding, an ad break or a service announcement instead of song
// metadata.
func LooksLikeStationContent(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range stationPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	for _, re := range stationPatterns {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// Filter decides which stabilized songs are worth writing to history.
type Filter struct{}

// Accept reports whether the title/artist pair describes an actual
// song. Station content in either field rejects the pair, as does a
// title that merely repeats the artist, which is how several stations
// render their IDs.
func (Filter) Accept(title, artist string) bool {
	if title == "" || artist == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(artist)) {
		return false
	}
	return !LooksLikeStationContent(title) && !LooksLikeStationContent(artist)
}
