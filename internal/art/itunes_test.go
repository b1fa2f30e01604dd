package art

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(handler http.Handler) (*ITunesFetcher, *httptest.Server) {
	srv := httptest.NewServer(handler)
	f := NewITunesFetcher()
	f.baseURL = srv.URL
	return f, srv
}

func TestITunesFetcher_Fetch(t *testing.T) {
	var artPath atomic.Value

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "entity=song")
		fmt.Fprintf(w, `{"resultCount":1,"results":[{"artworkUrl100":"%s/art/100x100bb.jpg"}]}`, srv.URL)
	})
	mux.HandleFunc("/art/", func(w http.ResponseWriter, r *http.Request) {
		artPath.Store(r.URL.Path)
		w.Write([]byte("jpeg-bytes"))
	})

	f, s := newTestFetcher(mux)
	srv = s
	defer srv.Close()

	raw, err := f.Fetch(context.Background(), "a-ha", "Take On Me")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), raw)
	assert.Equal(t, "/art/300x300bb.jpg", artPath.Load(), "thumbnail URL upgraded to the large rendition")
}

func TestITunesFetcher_NoResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultCount":0,"results":[]}`)
	})
	f, srv := newTestFetcher(mux)
	defer srv.Close()

	_, err := f.Fetch(context.Background(), "Unknown", "Obscure B-Side")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestITunesFetcher_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f, srv := newTestFetcher(mux)
	defer srv.Close()

	_, err := f.Fetch(context.Background(), "a-ha", "Take On Me")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
