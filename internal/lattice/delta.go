package lattice

import "encoding/json"

// Delta is a batch of CRDT proposals against one namespace: a shared section
// and, per SessionId, a private section (spec §3 "Delta").
type Delta struct {
	Shared  map[string]Values            // Key -> Values
	Private map[string]map[string]Values // SessionId -> Key -> Values
}

// NewDelta returns an empty Delta.
func NewDelta() Delta {
	return Delta{
		Shared:  map[string]Values{},
		Private: map[string]map[string]Values{},
	}
}

// IsEmpty reports whether the delta carries no proposals at all.
func (d Delta) IsEmpty() bool {
	if len(d.Shared) != 0 {
		return false
	}
	for _, byKey := range d.Private {
		if len(byKey) != 0 {
			return false
		}
	}
	return true
}

type wireDelta struct {
	Shared  map[string]map[string]json.RawMessage            `json:"shared"`
	Private map[string]map[string]map[string]json.RawMessage `json:"private"`
}

// DecodeDelta parses the admin/client wire form of a Delta.
func DecodeDelta(data []byte) (Delta, error) {
	var wire wireDelta
	if err := json.Unmarshal(data, &wire); err != nil {
		return Delta{}, err
	}
	d := NewDelta()
	for key, raw := range wire.Shared {
		v, err := DecodeValues(raw)
		if err != nil {
			return Delta{}, err
		}
		d.Shared[key] = v
	}
	for sessionID, byKey := range wire.Private {
		out := map[string]Values{}
		for key, raw := range byKey {
			v, err := DecodeValues(raw)
			if err != nil {
				return Delta{}, err
			}
			out[key] = v
		}
		d.Private[sessionID] = out
	}
	return d, nil
}

// Encode renders a Delta back to its wire form, dropping any key whose
// Values are empty after minimisation (spec §4.2).
func (d Delta) Encode() []byte {
	wire := wireDelta{
		Shared:  map[string]map[string]json.RawMessage{},
		Private: map[string]map[string]map[string]json.RawMessage{},
	}
	for key, v := range d.Shared {
		if v.IsEmpty() {
			continue
		}
		wire.Shared[key] = EncodeValues(v)
	}
	for sessionID, byKey := range d.Private {
		out := map[string]map[string]json.RawMessage{}
		for key, v := range byKey {
			if v.IsEmpty() {
				continue
			}
			out[key] = EncodeValues(v)
		}
		if len(out) != 0 {
			wire.Private[sessionID] = out
		}
	}
	b, _ := json.Marshal(wire)
	return b
}
