package frontend

import (
	"encoding/json"

	"github.com/swindon-chat/swindon/internal/wire"
)

// EncodeOutbound renders one wire.Outbound message to its JSON text-frame
// form (spec §4.5 "Outbound frames on rx"). StopSocket has no frame body —
// it is realized as a WebSocket Close control frame instead (see
// CloseCodeFor) and is never passed here.
func EncodeOutbound(msg wire.Outbound) ([]byte, error) {
	switch m := msg.(type) {
	case wire.Hello:
		return json.Marshal([]any{"hello", struct{}{}, json.RawMessage(m.UserInfo)})
	case wire.Result:
		return json.Marshal([]any{"result", json.RawMessage(m.Meta), json.RawMessage(m.Payload)})
	case wire.Error:
		metaWithKind, err := mergeErrorKind(m.Meta, m.Kind)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]any{"error", json.RawMessage(metaWithKind), json.RawMessage(m.Body)})
	case wire.Publish:
		return json.Marshal([]any{"message", map[string]string{"topic": m.Topic}, json.RawMessage(m.Payload)})
	case wire.Lattice:
		encoded := map[string]map[string]json.RawMessage{}
		for key, v := range m.Values {
			encoded[key] = v
		}
		return json.Marshal([]any{"lattice", map[string]string{"namespace": m.Namespace}, encoded})
	default:
		return nil, errUnsupportedOutbound
	}
}

func mergeErrorKind(meta json.RawMessage, kind string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	kindJSON, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	fields["error_kind"] = kindJSON
	return json.Marshal(fields)
}
