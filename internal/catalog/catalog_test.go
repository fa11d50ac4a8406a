package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Cleanup(srv.Close)
	return New(srv.URL, rate.NewLimiter(rate.Inf, 1))
}

func TestListActiveDecodesDescriptors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC", r.URL.Query().Get("currency"))
		assert.Equal(t, "option", r.URL.Query().Get("kind"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]InstrumentDescriptor{
			{Name: "BTC-31DEC26-100000-C", Kind: models.KindOption, Active: true},
		})
	}))
	c := newClient(t, srv)

	descriptors, err := c.ListActive(context.Background(), "BTC", models.KindOption)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "BTC-31DEC26-100000-C", descriptors[0].Name)
}

func TestListActiveClassifies5xxAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	c := newClient(t, srv)

	_, err := c.ListActive(context.Background(), "BTC", models.KindOption)
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
}

func TestListActiveClassifies4xxAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	c := newClient(t, srv)

	_, err := c.ListActive(context.Background(), "BTC", models.KindOption)
	require.Error(t, err)
	assert.True(t, errs.IsPermanent(err))
}

func TestFetchDepthNotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	c := newClient(t, srv)

	_, err := c.FetchDepth(context.Background(), "BTC-31DEC26-100000-C", 20)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFetchDepthUsesLowercaseBooleanQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("aggregate"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(depthResponse{
			Bids: []depthLevelWire{{Price: 100, Size: 1}},
			Asks: []depthLevelWire{{Price: 101, Size: 1}},
		})
	}))
	c := newClient(t, srv)

	snap, err := c.FetchDepth(context.Background(), "BTC-31DEC26-100000-C", 20)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
}

func TestFetchDepthTruncatesToMaxLevels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(depthResponse{
			Bids: []depthLevelWire{{Price: 100}, {Price: 99}, {Price: 98}},
		})
	}))
	c := newClient(t, srv)

	snap, err := c.FetchDepth(context.Background(), "BTC-31DEC26-100000-C", 2)
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 2)
}
