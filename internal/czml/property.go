package czml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// errUnsupportedEncoding marks a well-formed property whose value encoding
// (string, boolean, reference, ...) has no numeric reading. Such properties
// are skipped rather than failing the document.
var errUnsupportedEncoding = errors.New("unsupported value encoding")

// Value is the value of a property at one instant. Numbers have one
// component, cartesian positions three.
type Value []float64

// Float returns the first component, or NaN for an empty value.
func (v Value) Float() float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[0]
}

// Sample is a single time-tagged value.
type Sample struct {
	Time  time.Time
	Value Value
}

// Property is a time-varying value. Interval-tagged values take precedence
// over samples, which take precedence over a constant.
type Property struct {
	constant  Value
	samples   []Sample
	intervals []intervalProperty
}

type intervalProperty struct {
	interval Interval
	prop     *Property
}

// valueKeys lists the value encodings understood, with their component count.
var valueKeys = []struct {
	name string
	dim  int
}{
	{"number", 1},
	{"cartesian", 3},
	{"cartographicDegrees", 3},
	{"cartographicRadians", 3},
}

// NewConstantProperty returns a property with the same value at all times.
func NewConstantProperty(v Value) *Property {
	return &Property{constant: v}
}

// NewSampledProperty returns a property interpolated over the given samples.
func NewSampledProperty(samples []Sample) *Property {
	return &Property{samples: mergeSamples(nil, samples)}
}

// Samples returns a copy of the property's samples in time order.
func (p *Property) Samples() []Sample {
	out := make([]Sample, len(p.samples))
	copy(out, p.samples)
	return out
}

// ValueAt returns the value at t. The boolean is false when the property
// defines nothing at that time.
func (p *Property) ValueAt(t time.Time) (Value, bool) {
	if p == nil {
		return nil, false
	}

	for i := len(p.intervals) - 1; i >= 0; i-- {
		ip := p.intervals[i]
		if ip.interval.Contains(t) {
			return ip.prop.ValueAt(t)
		}
	}

	if len(p.samples) > 0 {
		return interpolate(p.samples, t)
	}

	if p.constant != nil {
		return append(Value(nil), p.constant...), true
	}
	return nil, false
}

// interpolate linearly between the samples bracketing t. Times outside the
// sampled span have no value.
func interpolate(samples []Sample, t time.Time) (Value, bool) {
	idx := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Time.Before(t)
	})
	if idx == len(samples) {
		return nil, false
	}
	if samples[idx].Time.Equal(t) {
		return append(Value(nil), samples[idx].Value...), true
	}
	if idx == 0 {
		return nil, false
	}

	before, after := samples[idx-1], samples[idx]
	span := after.Time.Sub(before.Time).Seconds()
	frac := t.Sub(before.Time).Seconds() / span

	n := len(before.Value)
	if len(after.Value) < n {
		n = len(after.Value)
	}
	out := make(Value, n)
	for i := 0; i < n; i++ {
		out[i] = before.Value[i] + (after.Value[i]-before.Value[i])*frac
	}
	return out, true
}

// merge folds a newer definition of the same property into p.
func (p *Property) merge(newer *Property) {
	if newer == nil {
		return
	}
	if newer.constant != nil {
		p.constant = newer.constant
		p.samples = nil
	}
	if len(newer.samples) > 0 {
		p.constant = nil
		p.samples = mergeSamples(p.samples, newer.samples)
	}
	p.intervals = append(p.intervals, newer.intervals...)
}

// mergeSamples combines two sample sets into one time-ordered set. When
// both define the same instant the newer sample wins.
func mergeSamples(older, newer []Sample) []Sample {
	combined := make([]Sample, 0, len(older)+len(newer))
	combined = append(combined, older...)
	combined = append(combined, newer...)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Time.Before(combined[j].Time)
	})

	merged := combined[:0]
	for _, s := range combined {
		if n := len(merged); n > 0 && merged[n-1].Time.Equal(s.Time) {
			merged[n-1] = s
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// parseProperty decodes any of the supported property encodings. A missing
// or null property yields nil. Unsupported encodings return an error
// wrapping errUnsupportedEncoding.
func parseProperty(raw json.RawMessage) (*Property, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("interval list: %w", err)
		}
		p := &Property{}
		for i, item := range items {
			ip, err := parseIntervalItem(item)
			if err != nil {
				return nil, fmt.Errorf("interval %d: %w", i, err)
			}
			p.intervals = append(p.intervals, ip)
		}
		return p, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		if _, ok := obj["interval"]; ok {
			ip, err := parseIntervalItem(obj)
			if err != nil {
				return nil, err
			}
			return &Property{intervals: []intervalProperty{ip}}, nil
		}
		return parsePropertyObject(obj)
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return nil, fmt.Errorf("%w: %s", errUnsupportedEncoding, string(trimmed))
		}
		return NewConstantProperty(Value{n}), nil
	}
}

func parseIntervalItem(item map[string]json.RawMessage) (intervalProperty, error) {
	var ivText string
	if err := json.Unmarshal(item["interval"], &ivText); err != nil {
		return intervalProperty{}, errors.New("missing or non-string interval")
	}
	iv, err := ParseInterval(ivText)
	if err != nil {
		return intervalProperty{}, err
	}
	prop, err := parsePropertyObject(item)
	if err != nil {
		return intervalProperty{}, err
	}
	return intervalProperty{interval: iv, prop: prop}, nil
}

func parsePropertyObject(obj map[string]json.RawMessage) (*Property, error) {
	var epoch time.Time
	hasEpoch := false
	if raw, ok := obj["epoch"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("epoch: %w", err)
		}
		t, err := ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("epoch: %w", err)
		}
		epoch, hasEpoch = t, true
	}

	for _, key := range valueKeys {
		raw, ok := obj[key.name]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] != '[' {
			var n float64
			if err := json.Unmarshal(trimmed, &n); err != nil || key.dim != 1 {
				return nil, fmt.Errorf("%s: expected a number or array", key.name)
			}
			return NewConstantProperty(Value{n}), nil
		}

		var items []interface{}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%s: %w", key.name, err)
		}
		if len(items) == key.dim && !hasEpoch {
			if v, ok := numbers(items); ok {
				return NewConstantProperty(v), nil
			}
		}
		samples, err := parseSamples(items, key.dim, epoch, hasEpoch)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key.name, err)
		}
		return NewSampledProperty(samples), nil
	}
	return nil, errUnsupportedEncoding
}

func parseSamples(items []interface{}, dim int, epoch time.Time, hasEpoch bool) ([]Sample, error) {
	stride := dim + 1
	if len(items)%stride != 0 {
		return nil, fmt.Errorf("sample array length %d is not a multiple of %d", len(items), stride)
	}

	samples := make([]Sample, 0, len(items)/stride)
	for i := 0; i < len(items); i += stride {
		var at time.Time
		switch tv := items[i].(type) {
		case float64:
			if !hasEpoch {
				return nil, errors.New("numeric sample time without epoch")
			}
			at = epoch.Add(time.Duration(tv * float64(time.Second)))
		case string:
			t, err := ParseTime(tv)
			if err != nil {
				return nil, err
			}
			at = t
		default:
			return nil, fmt.Errorf("sample %d: unsupported time %v", i/stride, items[i])
		}

		v, ok := numbers(items[i+1 : i+stride])
		if !ok {
			return nil, fmt.Errorf("sample %d: non-numeric value", i/stride)
		}
		samples = append(samples, Sample{Time: at, Value: v})
	}
	return samples, nil
}

func numbers(items []interface{}) (Value, bool) {
	v := make(Value, len(items))
	for i, item := range items {
		n, ok := item.(float64)
		if !ok {
			return nil, false
		}
		v[i] = n
	}
	return v, true
}
