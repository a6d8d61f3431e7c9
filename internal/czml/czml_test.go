package czml

import (
	"czmlstream/internal/logger"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const part1 = `[
	{
		"id": "document",
		"version": "1.0",
		"clock": {
			"interval": "2012-08-04T16:00:00Z/2012-08-04T17:15:00Z",
			"currentTime": "2012-08-04T16:00:00Z",
			"multiplier": 10,
			"range": "LOOP_STOP"
		}
	},
	{
		"id": "Vehicle",
		"name": "Vehicle",
		"availability": "2012-08-04T16:00:00Z/2012-08-04T17:15:00Z",
		"position": {
			"epoch": "2012-08-04T16:00:00Z",
			"cartesian": [0, 1, 2, 3, 1500, 4, 5, 6]
		},
		"properties": {
			"fuel_remaining": {
				"epoch": "2012-08-04T16:00:00Z",
				"number": [0, 22.5, 1500, 21.2]
			}
		}
	}
]`

const part2 = `[
	{
		"id": "Vehicle",
		"properties": {
			"fuel_remaining": {
				"epoch": "2012-08-04T16:00:00Z",
				"number": [1500, 21.2, 3000, 19.8]
			}
		}
	}
]`

var epoch = time.Date(2012, 8, 4, 16, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestDataSource_ProcessAndSample(t *testing.T) {
	ds := NewDataSource(logger.Nop())
	require.NoError(t, ds.Process([]byte(part1)))

	assert.Equal(t, 1, len(ds.Entities()), "document packet is not an entity")
	vehicle, found := ds.GetByID("Vehicle")
	require.True(t, found)
	assert.Equal(t, "Vehicle", vehicle.Name)

	fuel, ok := vehicle.Sample("fuel_remaining", at(750))
	require.True(t, ok)
	assert.InDelta(t, 21.85, fuel.Float(), 1e-9)

	pos, ok := vehicle.Sample(PositionProperty, at(750))
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{2.5, 3.5, 4.5}, []float64(pos), 1e-9)

	_, ok = vehicle.Sample("fuel_remaining", at(2000))
	assert.False(t, ok, "no value past the loaded samples")

	_, ok = vehicle.Sample("missing", at(10))
	assert.False(t, ok)

	clock, ok := ds.Clock()
	require.True(t, ok)
	assert.Equal(t, epoch, clock.Start)
	assert.Equal(t, 10.0, clock.Multiplier)
	assert.Equal(t, "LOOP_STOP", clock.Range)
}

func TestDataSource_MergesPartsAcrossDocuments(t *testing.T) {
	ds := NewDataSource(logger.Nop())
	require.NoError(t, ds.Process([]byte(part1)))
	require.NoError(t, ds.Process([]byte(part2)))

	vehicle, _ := ds.GetByID("Vehicle")
	samples := vehicle.Property("fuel_remaining").Samples()
	require.Len(t, samples, 3, "duplicate instant at 1500 collapses")

	fuel, ok := vehicle.Sample("fuel_remaining", at(2250))
	require.True(t, ok)
	assert.InDelta(t, 20.5, fuel.Float(), 1e-9)

	// Position arrived only in part one and is untouched by part two.
	_, ok = vehicle.Sample(PositionProperty, at(100))
	assert.True(t, ok)
}

func TestDataSource_InvalidDocumentLeavesStoreUnchanged(t *testing.T) {
	ds := NewDataSource(logger.Nop())
	require.NoError(t, ds.Process([]byte(part1)))

	bad := `[{"id": "Other"}, {"id": "Vehicle", "properties": {"fuel_remaining": {"number": [0, 1, 2]}}}]`
	err := ds.Process([]byte(bad))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, found := ds.GetByID("Other")
	assert.False(t, found)

	for _, doc := range []string{"", "42", `{"name": "no id"}`, `[{"id": "x",`} {
		assert.ErrorIs(t, ds.Process([]byte(doc)), ErrInvalidDocument, doc)
	}
}

func TestDataSource_SkipsNonNumericProperties(t *testing.T) {
	ds := NewDataSource(logger.Nop())
	doc := `[{
		"id": "Vehicle",
		"position": {"reference": "Other#position"},
		"properties": {
			"driver": "Alice",
			"armed": {"boolean": true},
			"label": {"string": "car"},
			"fuel_remaining": {"epoch": "2012-08-04T16:00:00Z", "number": [0, 22.5, 1500, 21]}
		}
	}]`
	require.NoError(t, ds.Process([]byte(doc)))

	vehicle, found := ds.GetByID("Vehicle")
	require.True(t, found)
	fuel, ok := vehicle.Sample("fuel_remaining", at(750))
	require.True(t, ok)
	assert.InDelta(t, 21.75, fuel.Float(), 1e-9)

	assert.Nil(t, vehicle.Position)
	for _, name := range []string{"driver", "armed", "label"} {
		_, ok := vehicle.Sample(name, at(750))
		assert.False(t, ok, name)
	}

	bad := `[{"id": "Vehicle", "properties": {"driver": "Bob", "fuel_remaining": {"epoch": "not a time", "number": [0, 1]}}}]`
	assert.ErrorIs(t, ds.Process([]byte(bad)), ErrInvalidDocument)
}

func TestDataSource_RemoveAllAndDelete(t *testing.T) {
	ds := NewDataSource(logger.Nop())
	require.NoError(t, ds.Process([]byte(`[{"id": "a"}, {"id": "b"}, {"id": "c"}]`)))
	require.NoError(t, ds.Process([]byte(`{"id": "b", "delete": true}`)))

	ids := []string{}
	for _, e := range ds.Entities() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	ds.RemoveAll()
		assert.Empty(t, ds.Entities())
}

func TestProperty_Encodings(t *testing.T) {
	t.Run("bare constant", func(t *testing.T) {
		p, err := parseProperty([]byte(`7.5`))
		require.NoError(t, err)
		v, ok := p.ValueAt(at(99999))
		require.True(t, ok)
		assert.Equal(t, 7.5, v.Float())
	})

	t.Run("constant cartesian", func(t *testing.T) {
		p, err := parseProperty([]byte(`{"cartesian": [1, 2, 3]}`))
		require.NoError(t, err)
		v, ok := p.ValueAt(epoch)
		require.True(t, ok)
		assert.Equal(t, Value{1, 2, 3}, v)
	})

	t.Run("iso sample times", func(t *testing.T) {
		p, err := parseProperty([]byte(`{"number": ["2012-08-04T16:00:00Z", 0, "2012-08-04T16:00:10Z", 10]}`))
		require.NoError(t, err)
		v, ok := p.ValueAt(at(4))
		require.True(t, ok)
		assert.InDelta(t, 4.0, v.Float(), 1e-9)
	})

	t.Run("intervals", func(t *testing.T) {
		p, err := parseProperty([]byte(`[
			{"interval": "2012-08-04T16:00:00Z/2012-08-04T16:10:00Z", "number": 1},
			{"interval": "2012-08-04T16:10:00Z/2012-08-04T16:20:00Z", "number": 2}
		]`))
		require.NoError(t, err)

		v, ok := p.ValueAt(at(60))
		require.True(t, ok)
		assert.Equal(t, 1.0, v.Float())

		v, ok = p.ValueAt(at(600))
		require.True(t, ok)
		assert.Equal(t, 2.0, v.Float(), "later interval wins on a shared boundary")

		_, ok = p.ValueAt(at(1300))
		assert.False(t, ok)
	})

	t.Run("numeric times need an epoch", func(t *testing.T) {
		_, err := parseProperty([]byte(`{"number": [0, 1, 10, 2]}`))
		assert.Error(t, err)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		for _, raw := range []string{`{"string": "hello"}`, `"hello"`, `true`, `{"reference": "Vehicle#position"}`} {
			_, err := parseProperty([]byte(raw))
			assert.ErrorIs(t, err, errUnsupportedEncoding, raw)
		}
	})

	t.Run("malformed sample data is not skipped", func(t *testing.T) {
		_, err := parseProperty([]byte(`{"epoch": "yesterday", "number": [0, 1]}`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, errUnsupportedEncoding)
	})

	t.Run("null", func(t *testing.T) {
		p, err := parseProperty([]byte(`null`))
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestProperty_MergeConstantReplacesSamples(t *testing.T) {
	p := NewSampledProperty([]Sample{{Time: epoch, Value: Value{1}}, {Time: at(10), Value: Value{2}}})
	p.merge(NewConstantProperty(Value{9}))

	v, ok := p.ValueAt(at(5000))
	require.True(t, ok)
	assert.Equal(t, 9.0, v.Float())
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("2012-08-04T16:00:00Z/2012-08-04T16:25:00Z")
	require.NoError(t, err)
	assert.True(t, iv.Contains(epoch))
	assert.True(t, iv.Contains(at(1500)))
	assert.False(t, iv.Contains(at(1501)))

	_, err = ParseInterval("2012-08-04T16:00:00Z")
	assert.Error(t, err)
	_, err = ParseInterval("2012-08-04T17:00:00Z/2012-08-04T16:00:00Z")
	assert.Error(t, err)
}
