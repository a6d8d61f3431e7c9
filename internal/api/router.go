package api

import (
	"czmlstream/internal/czml"
	"czmlstream/internal/logger"
	"czmlstream/internal/network"
	"czmlstream/internal/session"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// Stream is the part of a session the API drives.
type Stream interface {
	Snapshot() (session.Snapshot, error)
	Reset() error
	Seek(offset float64) error
	SetAnimating(animate bool) error
	Sample(name string) (czml.Value, bool, error)
}

type API struct {
	stream  Stream
	devices *network.Store
	log     logger.Logger
}

// SegmentView is the JSON form of one segment's status.
type SegmentView struct {
	Source string  `json:"source"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	State  string  `json:"state"`
	Text   string  `json:"text"`
	Error  string  `json:"error,omitempty"`
}

// StatusView is the JSON form of a session snapshot.
type StatusView struct {
	Name        string        `json:"name"`
	Offset      float64       `json:"offset"`
	StartTime   time.Time     `json:"start_time"`
	CurrentTime time.Time     `json:"current_time"`
	Animating   bool          `json:"animating"`
	Generation  uint64        `json:"generation"`
	Tracked     string        `json:"tracked,omitempty"`
	Entities    []string      `json:"entities"`
	Failures    int           `json:"failures"`
	Discarded   int           `json:"discarded"`
	Segments    []SegmentView `json:"segments"`
}

// SampleView is the JSON form of a tracked property reading.
type SampleView struct {
	Property  string    `json:"property"`
	Available bool      `json:"available"`
	Value     []float64 `json:"value,omitempty"`
}

// DevicesView lists the devices with their summary counters.
type DevicesView struct {
	Devices           []network.Device `json:"devices"`
	ConnectedDevices  int              `json:"connected_devices"`
	ActiveConnections int              `json:"active_connections"`
}

type errorView struct {
	Error string `json:"error"`
}

func New(log logger.Logger, stream Stream, devices *network.Store) *mux.Router {
	api := &API{
		stream:  stream,
		devices: devices,
		log:     log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", api.handleStatus).Methods("GET")
	r.HandleFunc("/reset", api.handleReset).Methods("POST")
	r.HandleFunc("/seek", api.handleSeek).Methods("POST")
	r.HandleFunc("/pause", api.handleAnimate(false)).Methods("POST")
	r.HandleFunc("/resume", api.handleAnimate(true)).Methods("POST")
	r.HandleFunc("/tracked/{property}", api.handleTracked).Methods("GET")
	r.HandleFunc("/devices", api.handleDevices).Methods("GET")
	r.HandleFunc("/devices/{id}/status", api.handleToggleStatus).Methods("POST")
	r.HandleFunc("/devices/{id}/active", api.handleToggleActive).Methods("POST")
	return r
}

// NewStatusView converts a snapshot into its JSON form.
func NewStatusView(snap session.Snapshot) StatusView {
	view := StatusView{
		Name:        snap.Name,
		Offset:      snap.Offset,
		StartTime:   snap.StartTime,
		CurrentTime: snap.CurrentTime,
		Animating:   snap.Animating,
		Generation:  snap.Generation,
		Tracked:     snap.Tracked,
		Entities:    append([]string{}, snap.Entities...),
		Failures:    snap.Failures,
		Discarded:   snap.Discarded,
		Segments:    make([]SegmentView, len(snap.Segments)),
	}
	for i, st := range snap.Segments {
		view.Segments[i] = SegmentView{
			Source: st.Source,
			Start:  st.Range.Start,
			End:    st.Range.End,
			State:  st.State.Key(),
			Text:   st.State.String(),
		}
		if st.Err != nil {
			view.Segments[i].Error = st.Err.Error()
		}
	}
	return view
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeStatus(w)
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := a.stream.Reset(); err != nil {
		a.writeStreamError(w, err)
		return
	}
	a.log.Infof("Stream reset via API from %s", r.RemoteAddr)
	a.writeStatus(w)
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("offset")
	offset, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(offset) || math.IsInf(offset, 0) {
		writeJSON(w, http.StatusBadRequest, errorView{Error: "offset must be a number of seconds"})
		return
	}
	if err := a.stream.Seek(offset); err != nil {
		a.writeStreamError(w, err)
		return
	}
	a.writeStatus(w)
}

// handleAnimate pauses or resumes the simulated clock.
func (a *API) handleAnimate(animate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.stream.SetAnimating(animate); err != nil {
			a.writeStreamError(w, err)
			return
		}
		a.writeStatus(w)
	}
}

func (a *API) handleTracked(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["property"]
	v, ok, err := a.stream.Sample(name)
	if err != nil {
		a.writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SampleView{Property: name, Available: ok, Value: v})
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DevicesView{
		Devices:           a.devices.Devices(),
		ConnectedDevices:  a.devices.ConnectedDevices(),
		ActiveConnections: a.devices.ActiveConnections(),
	})
}

func (a *API) handleToggleStatus(w http.ResponseWriter, r *http.Request) {
	writeDevice(w, mux.Vars(r)["id"], a.devices.ToggleStatus)
}

func (a *API) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	writeDevice(w, mux.Vars(r)["id"], a.devices.ToggleActive)
}

func writeDevice(w http.ResponseWriter, id string, action func(id string) (network.Device, error)) {
	d, err := action(id)
	if errors.Is(err, network.ErrDeviceNotFound) {
		writeJSON(w, http.StatusNotFound, errorView{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorView{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) writeStatus(w http.ResponseWriter) {
	snap, err := a.stream.Snapshot()
	if err != nil {
		a.writeStreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStatusView(snap))
}

func (a *API) writeStreamError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, session.ErrNotRunning) {
		status = http.StatusServiceUnavailable
	}
	a.log.Warnf("Stream request failed: %v", err)
	writeJSON(w, status, errorView{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
