package czml

import (
	"czmlstream/internal/logger"
	"fmt"
	"time"
)

// PositionProperty is the reserved property name that samples an entity's position.
const PositionProperty = "position"

// Entity is one named object assembled from every packet sharing its id.
type Entity struct {
	ID           string
	Name         string
	Availability *Interval
	Position     *Property
	Properties   map[string]*Property
}

// Property returns the named custom property, or the position for "position".
func (e *Entity) Property(name string) *Property {
	if e == nil {
		return nil
	}
	if name == PositionProperty {
		return e.Position
	}
	return e.Properties[name]
}

// Sample returns the value of the named property at t.
func (e *Entity) Sample(name string, t time.Time) (Value, bool) {
	return e.Property(name).ValueAt(t)
}

// IsAvailable reports whether the entity exists at t. Entities without an
// availability interval are always available.
func (e *Entity) IsAvailable(t time.Time) bool {
	return e.Availability == nil || e.Availability.Contains(t)
}

func (e *Entity) merge(p packet) {
	if p.name != "" {
		e.Name = p.name
	}
	if p.availability != nil {
		e.Availability = p.availability
	}
	if p.position != nil {
		if e.Position == nil {
			e.Position = &Property{}
		}
		e.Position.merge(p.position)
	}
	for name, prop := range p.properties {
		existing, ok := e.Properties[name]
		if !ok {
			existing = &Property{}
			e.Properties[name] = existing
		}
		existing.merge(prop)
	}
}

// DataSource is the merged entity collection fed by successive CZML documents.
// It is not safe for concurrent use; the owning session serializes access.
type DataSource struct {
	entities map[string]*Entity
	order    []string
	clock    *DocumentClock
	logger   logger.Logger
}

// NewDataSource creates an empty data source.
func NewDataSource(log logger.Logger) *DataSource {
	return &DataSource{
		entities: make(map[string]*Entity),
		logger:   log,
	}
}

// Process decodes a CZML document and merges its packets. If any packet
// fails to parse the data source is left untouched. Properties in encodings
// that cannot be sampled as numbers (strings, booleans, references) are
// skipped without failing the document.
func (ds *DataSource) Process(data []byte) error {
	packets, err := decodePackets(data)
	if err != nil {
		return fmt.Errorf("failed to process czml: %w", err)
	}

	for _, p := range packets {
		if len(p.skipped) > 0 {
			ds.logger.Debugf("Packet %s: skipped properties without a numeric encoding: %v", p.id, p.skipped)
		}
		if p.id == DocumentID {
			if p.clock != nil {
				ds.clock = p.clock
			}
			continue
		}
		if p.delete {
			ds.remove(p.id)
			continue
		}

		entity, found := ds.entities[p.id]
		if !found {
			entity = &Entity{ID: p.id, Properties: make(map[string]*Property)}
			ds.entities[p.id] = entity
			ds.order = append(ds.order, p.id)
		}
		entity.merge(p)
	}

	ds.logger.Debugf("Processed %d packets, data source now holds %d entities", len(packets), len(ds.entities))
	return nil
}

// GetByID looks up an entity by its packet id.
func (ds *DataSource) GetByID(id string) (*Entity, bool) {
	e, found := ds.entities[id]
	return e, found
}

// Entities returns the entities in first-seen order.
func (ds *DataSource) Entities() []*Entity {
	out := make([]*Entity, 0, len(ds.order))
	for _, id := range ds.order {
		out = append(out, ds.entities[id])
	}
	return out
}

// Clock returns the most recent document clock seen, if any.
func (ds *DataSource) Clock() (DocumentClock, bool) {
	if ds.clock == nil {
		return DocumentClock{}, false
	}
	return *ds.clock, true
}

// RemoveAll drops every entity. The document clock is kept.
func (ds *DataSource) RemoveAll() {
	removed := len(ds.entities)
	ds.entities = make(map[string]*Entity)
	ds.order = nil
	ds.logger.Debugf("Removed all %d entities from data source", removed)
}

func (ds *DataSource) remove(id string) {
	if _, found := ds.entities[id]; !found {
		return
	}
	delete(ds.entities, id)
	for i, existing := range ds.order {
		if existing == id {
			ds.order = append(ds.order[:i], ds.order[i+1:]...)
			break
		}
	}
}
