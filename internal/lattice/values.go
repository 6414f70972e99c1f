// Package lattice implements swindon's CRDT data model: per-namespace
// Counter (monotone max), Set (union) and Register (last-write-wins by
// numeric timestamp) variables, merged with delta minimization (spec §3,
// §4.2). It is a pure data module: every function here is total and takes no
// clock reads, callable only from within the session pool processor
// (internal/pool), which is the sole owner of any Store.
package lattice

import (
	"encoding/json"
	"errors"
	"strings"
)

// Wire suffixes that select a variable's CRDT type.
const (
	suffixCounter  = "_counter"
	suffixSet      = "_set"
	suffixRegister = "_register"
)

// ErrUnknownVariable is returned when a wire field name doesn't end in one
// of the three known suffixes (spec §4.2).
var ErrUnknownVariable = errors.New("lattice: variable name has unknown suffix")

// Register is a last-write-wins value: ties on Ts resolve as no-op (first
// writer wins, spec §3/§4.2).
type Register struct {
	Ts      float64
	Payload json.RawMessage
}

// Values is the per-Key bundle of CRDT variables (spec §3).
type Values struct {
	Counters  map[string]uint64
	Sets      map[string]map[string]struct{}
	Registers map[string]Register
}

// NewValues returns an empty, ready-to-use Values.
func NewValues() Values {
	return Values{
		Counters:  map[string]uint64{},
		Sets:      map[string]map[string]struct{}{},
		Registers: map[string]Register{},
	}
}

// IsEmpty reports whether Values carries no variables at all.
func (v Values) IsEmpty() bool {
	return len(v.Counters) == 0 && len(v.Sets) == 0 && len(v.Registers) == 0
}

// Clone deep-copies Values so callers can safely hand out delivered snapshots
// without the processor's later mutations leaking through.
func (v Values) Clone() Values {
	out := NewValues()
	for k, val := range v.Counters {
		out.Counters[k] = val
	}
	for k, set := range v.Sets {
		clone := make(map[string]struct{}, len(set))
		for e := range set {
			clone[e] = struct{}{}
		}
		out.Sets[k] = clone
	}
	for k, reg := range v.Registers {
		out.Registers[k] = reg
	}
	return out
}

// merge applies incoming into the receiver in place, per the CRDT merge
// rules (spec §3), and returns the minimized delta: only the variables whose
// state actually changed.
func (v *Values) merge(incoming Values) Values {
	min := NewValues()

	for name, val := range incoming.Counters {
		old, ok := v.Counters[name]
		if !ok || val > old {
			v.Counters[name] = max(val, old)
			min.Counters[name] = v.Counters[name]
		}
	}

	for name, set := range incoming.Sets {
		existing, ok := v.Sets[name]
		if !ok {
			existing = map[string]struct{}{}
			v.Sets[name] = existing
		}
		var added map[string]struct{}
		for e := range set {
			if _, present := existing[e]; !present {
				existing[e] = struct{}{}
				if added == nil {
					added = map[string]struct{}{}
				}
				added[e] = struct{}{}
			}
		}
		if added != nil {
			min.Sets[name] = added
		}
	}

	for name, reg := range incoming.Registers {
		old, ok := v.Registers[name]
		if !ok || reg.Ts > old.Ts {
			v.Registers[name] = reg
			min.Registers[name] = reg
		}
	}

	return min
}

// DecodeValues decodes the wire form of a Key's Values: a JSON object whose
// field names carry the CRDT-type suffix (e.g. "x_counter", "y_set",
// "z_register"). A field whose name ends in none of the known suffixes is a
// decode error (spec §4.2).
func DecodeValues(raw map[string]json.RawMessage) (Values, error) {
	v := NewValues()
	for field, data := range raw {
		switch {
		case strings.HasSuffix(field, suffixCounter):
			name := strings.TrimSuffix(field, suffixCounter)
			var n uint64
			if err := json.Unmarshal(data, &n); err != nil {
				return Values{}, err
			}
			v.Counters[name] = n

		case strings.HasSuffix(field, suffixSet):
			name := strings.TrimSuffix(field, suffixSet)
			var elems []string
			if err := json.Unmarshal(data, &elems); err != nil {
				return Values{}, err
			}
			set := make(map[string]struct{}, len(elems))
			for _, e := range elems {
				set[e] = struct{}{}
			}
			v.Sets[name] = set

		case strings.HasSuffix(field, suffixRegister):
			name := strings.TrimSuffix(field, suffixRegister)
			var wire struct {
				Ts    float64         `json:"ts"`
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(data, &wire); err != nil {
				return Values{}, err
			}
			v.Registers[name] = Register{Ts: wire.Ts, Payload: wire.Value}

		default:
			return Values{}, ErrUnknownVariable
		}
	}
	return v, nil
}

// EncodeValues renders Values back to its wire form. An empty key (no
// variables) after minimisation is dropped by the caller, not here.
func EncodeValues(v Values) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	for name, n := range v.Counters {
		b, _ := json.Marshal(n)
		out[name+suffixCounter] = b
	}
	for name, set := range v.Sets {
		elems := make([]string, 0, len(set))
		for e := range set {
			elems = append(elems, e)
		}
		b, _ := json.Marshal(elems)
		out[name+suffixSet] = b
	}
	for name, reg := range v.Registers {
		wire := struct {
			Ts    float64         `json:"ts"`
			Value json.RawMessage `json:"value"`
		}{Ts: reg.Ts, Value: reg.Payload}
		b, _ := json.Marshal(wire)
		out[name+suffixRegister] = b
	}
	return out
}
