package network

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDeviceNotFound is returned by actions on an unknown device id.
var ErrDeviceNotFound = errors.New("device not found")

// Status is a device's connectivity state.
type Status string

const (
	Online  Status = "online"
	Idle    Status = "idle"
	Offline Status = "offline"
)

// next cycles offline → online → idle → offline.
func (s Status) next() Status {
	switch s {
	case Offline:
		return Online
	case Online:
		return Idle
	default:
		return Offline
	}
}

// Position places a device in the floor plan.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Device is one node of the home network topology.
type Device struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Status      Status   `json:"status"`
	Active      bool     `json:"active"`
	Connections []string `json:"connections"`
	Position    Position `json:"position"`
}

func (d Device) clone() Device {
	d.Connections = append([]string(nil), d.Connections...)
	return d
}

// Store owns the device list. Reads return copies; the only mutations are
// ToggleStatus and ToggleActive. It is safe for concurrent use.
type Store struct {
	mutex   sync.RWMutex
	devices []Device
	index   map[string]int
}

// NewStore builds a store from devices. Ids must be unique.
func NewStore(devices []Device) (*Store, error) {
	s := &Store{
		devices: make([]Device, 0, len(devices)),
		index:   make(map[string]int, len(devices)),
	}
	for _, d := range devices {
		if d.ID == "" {
			return nil, fmt.Errorf("device %q has no id", d.Name)
		}
		if _, exists := s.index[d.ID]; exists {
			return nil, fmt.Errorf("duplicate device ID found: %s", d.ID)
		}
		s.index[d.ID] = len(s.devices)
		s.devices = append(s.devices, d.clone())
	}
	return s, nil
}

// Devices returns every device in declaration order.
func (s *Store) Devices() []Device {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.clone()
	}
	return out
}

// Get looks a device up by id.
func (s *Store) Get(id string) (Device, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	i, found := s.index[id]
	if !found {
		return Device{}, false
	}
	return s.devices[i].clone(), true
}

// ConnectedDevices counts devices that are not offline.
func (s *Store) ConnectedDevices() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	n := 0
	for _, d := range s.devices {
		if d.Status != Offline {
			n++
		}
	}
	return n
}

// ActiveConnections counts active devices.
func (s *Store) ActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	n := 0
	for _, d := range s.devices {
		if d.Active {
			n++
		}
	}
	return n
}

// ToggleStatus advances a device to its next status and returns the result.
func (s *Store) ToggleStatus(id string) (Device, error) {
	return s.mutate(id, func(d *Device) { d.Status = d.Status.next() })
}

// ToggleActive flips a device's active flag and returns the result.
func (s *Store) ToggleActive(id string) (Device, error) {
	return s.mutate(id, func(d *Device) { d.Active = !d.Active })
}

func (s *Store) mutate(id string, fn func(d *Device)) (Device, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	i, found := s.index[id]
	if !found {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	fn(&s.devices[i])
	return s.devices[i].clone(), nil
}
