package main

import (
	"bytes"
	"czmlstream/internal/api"
	"czmlstream/internal/config"
	"czmlstream/internal/fetch"
	"czmlstream/internal/logger"
	"czmlstream/internal/network"
	"czmlstream/internal/session"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestMain(m *testing.M) {
	// Exit errors come back from Run instead of ending the test binary.
	cli.OsExiter = func(int) {}
	cli.ErrWriter = io.Discard
	os.Exit(m.Run())
}

const partDoc = `[{"id": "Vehicle", "properties": {"fuel_remaining": {"number": [22.5]}}}]`

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	cfg := config.Default()
	cfg.Source.Base = "/data"
	cfg.TickInterval = 5 * time.Millisecond
	for _, p := range cfg.Parts {
		require.NoError(t, afero.WriteFile(fs, "/data/"+p.Source, []byte(partDoc), 0644))
	}

	sess, err := session.New(logger.Nop(), cfg, fetch.NewFileFetcher(logger.Nop(), fs, "/data"))
	require.NoError(t, err)
	sess.Start()
	t.Cleanup(sess.Stop)

	store, err := network.NewStore(network.DefaultDevices())
	require.NoError(t, err)

	srv := httptest.NewServer(api.New(logger.Nop(), sess, store))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"czmlstream"}, args...))
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	srv := startServer(t)

	require.Eventually(t, func() bool {
		out, err := run(t, "status", "--addr", srv.URL)
		return err == nil && strings.Contains(out, "MultipartVehicle_part1.czml - Loaded.")
	}, 2*time.Second, 10*time.Millisecond)

	out, err := run(t, "status", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "MultipartVehicle_part2.czml - Not needed yet.")
	assert.Contains(t, out, "multipart-vehicle at ")
}

func TestStatusCommand_JSON(t *testing.T) {
	srv := startServer(t)

	out, err := run(t, "status", "--json", "--addr", srv.URL)
	require.NoError(t, err)

	var view api.StatusView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "multipart-vehicle", view.Name)
	assert.Len(t, view.Segments, 3)
}

func TestSeekAndResetCommands(t *testing.T) {
	srv := startServer(t)

	out, err := run(t, "seek", "--addr", srv.URL, "1450")
	require.NoError(t, err)
	assert.Regexp(t, `at 145\d\.\ds`, out)
	assert.NotContains(t, out, "MultipartVehicle_part2.czml - Not needed yet.")

	out, err = run(t, "reset", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "generation 1")

	_, err = run(t, "seek", "--addr", srv.URL, "later")
	assert.Error(t, err)
}

func TestPauseAndResumeCommands(t *testing.T) {
	srv := startServer(t)

	out, err := run(t, "pause", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, ", paused)")

	out, err = run(t, "resume", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, ", animating)")
}

func TestDevicesCommand(t *testing.T) {
	srv := startServer(t)

	out, err := run(t, "devices", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "speaker1")
	assert.Contains(t, out, "8 connected, 6 active")
}

func TestRemoteCommand_Unreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	addr := srv.URL
	srv.Close()

	_, err := run(t, "status", "--addr", addr)
	assert.Error(t, err)
}

func TestLoadConfig_DefaultWhenEmpty(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Len(t, cfg.Parts, 3)

	_, err = loadConfig("/nonexistent/czmlstream.yaml")
	assert.Error(t, err)
}

func TestNewFetcher(t *testing.T) {
	f, err := newFetcher(logger.Nop(), config.Source{Base: "https://example.com/data/"})
	require.NoError(t, err)
	assert.IsType(t, &fetch.Client{}, f)

	f, err = newFetcher(logger.Nop(), config.Source{Base: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &fetch.FileFetcher{}, f)
}
