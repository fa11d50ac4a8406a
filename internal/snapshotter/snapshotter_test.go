package snapshotter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nsvirk/tickcollector/internal/buffer"
	"github.com/nsvirk/tickcollector/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSweepPushesFetchedDepthAndSkipsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("instrument") {
		case "BTC-EXPIRED":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"bids": []map[string]float64{{"price": 100, "size": 1}},
				"asks": []map[string]float64{{"price": 101, "size": 1}},
			})
		}
	}))
	t.Cleanup(srv.Close)

	client := catalog.New(srv.URL, rate.NewLimiter(rate.Inf, 1))
	buf := buffer.New(10, 10)
	tracked := func() []string { return []string{"BTC-PERPETUAL", "BTC-EXPIRED"} }

	s := New(client, buf, tracked, 20)
	s.sweep(context.Background())

	_, _, depth := buf.Detach()
	require.Len(t, depth, 1, "only the instrument that resolved should be pushed")
	assert.Equal(t, "BTC-PERPETUAL", depth[0].Instrument)
}

func TestSweepWithNoTrackedInstrumentsIsNoop(t *testing.T) {
	client := catalog.New("http://example.invalid", rate.NewLimiter(rate.Inf, 1))
	buf := buffer.New(10, 10)
	s := New(client, buf, func() []string { return nil }, 20)

	s.sweep(context.Background())

	_, _, depth := buf.Detach()
	assert.Empty(t, depth)
}
