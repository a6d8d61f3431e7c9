package api

import (
	"czmlstream/internal/czml"
	"czmlstream/internal/loader"
	"czmlstream/internal/logger"
	"czmlstream/internal/models"
	"czmlstream/internal/network"
	"czmlstream/internal/session"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mutex   sync.Mutex
	snap    session.Snapshot
	err     error
	resets  int
	seeks   []float64
	paused  bool
	samples map[string]czml.Value
}

func (f *fakeStream) Snapshot() (session.Snapshot, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.snap, f.err
}

func (f *fakeStream) Reset() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.resets++
	f.snap.Generation++
	return nil
}

func (f *fakeStream) Seek(offset float64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seeks = append(f.seeks, offset)
	f.snap.Offset = offset
	return nil
}

func (f *fakeStream) SetAnimating(animate bool) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.paused = !animate
	f.snap.Animating = animate
	return nil
}

func (f *fakeStream) Sample(name string) (czml.Value, bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	v, ok := f.samples[name]
	return v, ok, f.err
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeStream, *network.Store) {
	t.Helper()
	stream := &fakeStream{
		snap: session.Snapshot{
			Name:     "multipart-vehicle",
			Tracked:  "Vehicle",
			Entities: []string{"Vehicle"},
			Segments: []loader.SegmentStatus{
				{Source: "part1.czml", Range: models.Range{Start: 0, End: 1500}, State: loader.Loaded},
				{Source: "part2.czml", Range: models.Range{Start: 1500, End: 3000}, State: loader.Loading, Err: errors.New("status 404")},
			},
		},
		samples: map[string]czml.Value{"fuel_remaining": {21.5}},
	}
	devices, err := network.NewStore(network.DefaultDevices())
	require.NoError(t, err)

	srv := httptest.NewServer(New(logger.Nop(), stream, devices))
	t.Cleanup(srv.Close)
	return srv, stream, devices
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	view := decode[StatusView](t, resp)
	assert.Equal(t, "Vehicle", view.Tracked)
	assert.Equal(t, []string{"Vehicle"}, view.Entities)
	require.Len(t, view.Segments, 2)
	assert.Equal(t, "loaded", view.Segments[0].State)
	assert.Equal(t, "Loaded.", view.Segments[0].Text)
	assert.Equal(t, "loading", view.Segments[1].State)
	assert.Equal(t, "status 404", view.Segments[1].Error)
}

func TestReset(t *testing.T) {
	srv, stream, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/reset", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[StatusView](t, resp)
	assert.Equal(t, uint64(1), view.Generation)
	stream.mutex.Lock()
	assert.Equal(t, 1, stream.resets)
	stream.mutex.Unlock()
}

func TestSeek(t *testing.T) {
	srv, stream, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/seek?offset=2901.5", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[StatusView](t, resp)
	assert.Equal(t, 2901.5, view.Offset)

	for _, bad := range []string{"", "?offset=soon", "?offset=NaN", "?offset=Inf"} {
		resp, err := http.Post(srv.URL+"/seek"+bad, "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
	stream.mutex.Lock()
	assert.Equal(t, []float64{2901.5}, stream.seeks)
	stream.mutex.Unlock()
}

func TestPauseAndResume(t *testing.T) {
	srv, stream, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/pause", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[StatusView](t, resp)
	assert.False(t, view.Animating)
	stream.mutex.Lock()
	assert.True(t, stream.paused)
	stream.mutex.Unlock()

	resp, err = http.Post(srv.URL+"/resume", "", nil)
	require.NoError(t, err)
	view = decode[StatusView](t, resp)
	assert.True(t, view.Animating)
}

func TestTracked(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/tracked/fuel_remaining")
	require.NoError(t, err)
	sample := decode[SampleView](t, resp)
	assert.True(t, sample.Available)
	assert.Equal(t, []float64{21.5}, sample.Value)

	resp, err = http.Get(srv.URL + "/tracked/altitude")
	require.NoError(t, err)
	sample = decode[SampleView](t, resp)
	assert.False(t, sample.Available)
	assert.Empty(t, sample.Value)
}

func TestStreamNotRunning(t *testing.T) {
	srv, stream, _ := newTestServer(t)
	stream.mutex.Lock()
	stream.err = session.ErrNotRunning
	stream.mutex.Unlock()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/reset", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDevices(t *testing.T) {
	srv, _, devices := newTestServer(t)

	resp, err := http.Get(srv.URL + "/devices")
	require.NoError(t, err)
	view := decode[DevicesView](t, resp)
	assert.Len(t, view.Devices, 10)
	assert.Equal(t, 8, view.ConnectedDevices)
	assert.Equal(t, 6, view.ActiveConnections)

	resp, err = http.Post(srv.URL+"/devices/speaker2/status", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	d := decode[network.Device](t, resp)
	assert.Equal(t, network.Online, d.Status)

	resp, err = http.Post(srv.URL+"/devices/ac2/active", "", nil)
	require.NoError(t, err)
	d = decode[network.Device](t, resp)
	assert.True(t, d.Active)
	assert.Equal(t, 7, devices.ActiveConnections())
}

func TestDevices_UnknownID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{"/devices/toaster/status", "/devices/toaster/active"} {
		resp, err := http.Post(srv.URL+path, "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/reset")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
