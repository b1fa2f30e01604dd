package art

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const artUserAgent = "sdr-boombox"

// ITunesFetcher looks up album art through the iTunes Search API. The
// API returns a 100x100 thumbnail URL; swapping the size suffix yields
// the 300x300 rendition the display wants.
type ITunesFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewITunesFetcher creates a fetcher against the public iTunes API.
func NewITunesFetcher() *ITunesFetcher {
	return &ITunesFetcher{
		baseURL: "https://itunes.apple.com",
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type itunesSearchResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		ArtworkURL100 string `json:"artworkUrl100"`
	} `json:"results"`
}

// Fetch returns the artwork bytes for the song, or ErrNotFound when the
// search comes back empty.
func (f *ITunesFetcher) Fetch(ctx context.Context, artist, title string) ([]byte, error) {
	q := url.QueryEscape(artist + " " + title)
	searchURL := fmt.Sprintf("%s/search?term=%s&entity=song&limit=1", f.baseURL, q)

	var search itunesSearchResponse
	if err := f.getJSON(ctx, searchURL, &search); err != nil {
		return nil, errors.Wrap(err, "searching itunes")
	}
	if search.ResultCount == 0 || len(search.Results) == 0 || search.Results[0].ArtworkURL100 == "" {
		return nil, ErrNotFound
	}

	artURL := strings.Replace(search.Results[0].ArtworkURL100, "100x100bb.jpg", "300x300bb.jpg", 1)
	raw, err := f.getBytes(ctx, artURL)
	if err != nil {
		return nil, errors.Wrap(err, "downloading artwork")
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (f *ITunesFetcher) getJSON(ctx context.Context, u string, out interface{}) error {
	resp, err := f.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (f *ITunesFetcher) getBytes(ctx context.Context, u string) ([]byte, error) {
	resp, err := f.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

func (f *ITunesFetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", artUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp, nil
}
