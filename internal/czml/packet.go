package czml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DocumentID is the id of the packet that carries document-level settings.
const DocumentID = "document"

// ErrInvalidDocument is returned for content that is not a CZML packet stream.
var ErrInvalidDocument = errors.New("invalid czml document")

// rawPacket maps directly to a single CZML packet in the JSON stream.
type rawPacket struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Delete       bool                       `json:"delete"`
	Version      string                     `json:"version"`
	Availability string                     `json:"availability"`
	Clock        *rawClock                  `json:"clock"`
	Position     json.RawMessage            `json:"position"`
	Properties   map[string]json.RawMessage `json:"properties"`
}

type rawClock struct {
	Interval    string  `json:"interval"`
	CurrentTime string  `json:"currentTime"`
	Multiplier  float64 `json:"multiplier"`
	Range       string  `json:"range"`
	Step        string  `json:"step"`
}

// DocumentClock holds the clock settings declared by a document packet.
type DocumentClock struct {
	Start      time.Time
	Stop       time.Time
	Current    time.Time
	Multiplier float64
	// Range is the raw CZML clock range, e.g. "LOOP_STOP" or "CLAMPED".
	Range string
}

// packet is a fully parsed packet, ready to be merged into a DataSource.
type packet struct {
	id           string
	name         string
	delete       bool
	availability *Interval
	position     *Property
	properties   map[string]*Property
	clock        *DocumentClock
	// skipped names properties with no numeric encoding.
	skipped []string
}

// Interval is a closed time interval.
type Interval struct {
	Start time.Time
	Stop  time.Time
}

// Contains reports whether t lies within the interval, inclusive on both ends.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.Stop)
}

// ParseTime parses an ISO 8601 timestamp as used in CZML.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO 8601 time %q: %w", s, err)
	}
	return t, nil
}

// ParseInterval parses a "start/stop" ISO 8601 interval.
func ParseInterval(s string) (Interval, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("invalid interval %q: expected 'start/stop'", s)
	}
	start, err := ParseTime(parts[0])
	if err != nil {
		return Interval{}, err
	}
	stop, err := ParseTime(parts[1])
	if err != nil {
		return Interval{}, err
	}
	if stop.Before(start) {
		return Interval{}, fmt.Errorf("invalid interval %q: stop before start", s)
	}
	return Interval{Start: start, Stop: stop}, nil
}

// decodePackets parses a whole document. Nothing is returned unless every
// packet in it parses.
func decodePackets(data []byte) ([]packet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidDocument)
	}

	var raws []rawPacket
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	case '{':
		var single rawPacket
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		raws = append(raws, single)
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrInvalidDocument)
	}

	packets := make([]packet, 0, len(raws))
	for i, raw := range raws {
		p, err := parsePacket(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: packet %d (%s): %v", ErrInvalidDocument, i, raw.ID, err)
		}
		packets = append(packets, p)
	}
	return packets, nil
}

func parsePacket(raw rawPacket) (packet, error) {
	if raw.ID == "" {
		return packet{}, errors.New("missing id")
	}
	p := packet{id: raw.ID, name: raw.Name, delete: raw.Delete}

	if raw.Clock != nil {
		c, err := parseClock(raw.Clock)
		if err != nil {
			return packet{}, fmt.Errorf("clock: %w", err)
		}
		p.clock = c
	}

	if raw.Availability != "" {
		iv, err := ParseInterval(raw.Availability)
		if err != nil {
			return packet{}, fmt.Errorf("availability: %w", err)
		}
		p.availability = &iv
	}

	position, err := parseProperty(raw.Position)
	switch {
	case errors.Is(err, errUnsupportedEncoding):
		p.skipped = append(p.skipped, PositionProperty)
	case err != nil:
		return packet{}, fmt.Errorf("position: %w", err)
	default:
		p.position = position
	}

	if len(raw.Properties) > 0 {
		p.properties = make(map[string]*Property, len(raw.Properties))
		for name, value := range raw.Properties {
			prop, err := parseProperty(value)
			if errors.Is(err, errUnsupportedEncoding) {
				p.skipped = append(p.skipped, name)
				continue
			}
			if err != nil {
				return packet{}, fmt.Errorf("property %s: %w", name, err)
			}
			if prop != nil {
				p.properties[name] = prop
			}
		}
	}
	sort.Strings(p.skipped)
	return p, nil
}

func parseClock(rc *rawClock) (*DocumentClock, error) {
	iv, err := ParseInterval(rc.Interval)
	if err != nil {
		return nil, err
	}
	c := &DocumentClock{
		Start:      iv.Start,
		Stop:       iv.Stop,
		Current:    iv.Start,
		Multiplier: rc.Multiplier,
		Range:      rc.Range,
	}
	if rc.CurrentTime != "" {
		if c.Current, err = ParseTime(rc.CurrentTime); err != nil {
			return nil, err
		}
	}
	if c.Multiplier == 0 {
		c.Multiplier = 1
	}
	return c, nil
}
