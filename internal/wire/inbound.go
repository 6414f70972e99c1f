package wire

import (
	"encoding/json"
	"strings"

	"github.com/swindon-chat/swindon/internal/svcerr"
)

// ClientFrame is the decoded and validated form of a client's 4-element
// `[method, meta, args, kwargs]` JSON array (spec §4.5).
type ClientFrame struct {
	Method    string
	Meta      json.RawMessage
	RequestID json.RawMessage // string|int|float, carried opaque
	Active    *uint64         // seconds, if meta.active was present
	Args      json.RawMessage // array
	Kwargs    json.RawMessage // object
}

// DecodeClientFrame parses and validates one inbound text frame against the
// schema in spec §4.5. Any failure is a Validation-kind error (spec §7);
// the connection stays open and the caller renders it as an Error() frame.
func DecodeClientFrame(data []byte) (ClientFrame, *svcerr.Error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientFrame{}, svcerr.ValidationError("frame is not a JSON array")
	}
	if len(raw) != 4 {
		return ClientFrame{}, svcerr.InvalidLength("frame", 4)
	}

	var method string
	if err := json.Unmarshal(raw[0], &method); err != nil {
		return ClientFrame{}, svcerr.InvalidMethod(string(raw[0]))
	}
	if method == "" || strings.HasPrefix(method, "tangle.") || strings.Contains(method, "/") {
		return ClientFrame{}, svcerr.InvalidMethod(method)
	}

	var metaFields map[string]json.RawMessage
	if err := json.Unmarshal(raw[1], &metaFields); err != nil {
		return ClientFrame{}, svcerr.ObjectExpected("meta")
	}
	reqID, ok := metaFields["request_id"]
	if !ok || !isValidRequestID(reqID) {
		return ClientFrame{}, svcerr.InvalidRequestID()
	}

	var active *uint64
	if rawActive, ok := metaFields["active"]; ok {
		var a uint64
		if err := json.Unmarshal(rawActive, &a); err != nil {
			return ClientFrame{}, svcerr.ValidationError("meta.active must be a non-negative integer")
		}
		active = &a
	}

	if !isJSONArray(raw[2]) {
		return ClientFrame{}, svcerr.ArrayExpected("args")
	}
	if !isJSONObject(raw[3]) {
		return ClientFrame{}, svcerr.ObjectExpected("kwargs")
	}

	return ClientFrame{
		Method:    method,
		Meta:      raw[1],
		RequestID: reqID,
		Active:    active,
		Args:      raw[2],
		Kwargs:    raw[3],
	}, nil
}

func isValidRequestID(raw json.RawMessage) bool {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return true
	}
	var f float64
	return json.Unmarshal(raw, &f) == nil
}

func isJSONArray(raw json.RawMessage) bool {
	var v []json.RawMessage
	return json.Unmarshal(raw, &v) == nil
}

func isJSONObject(raw json.RawMessage) bool {
	var v map[string]json.RawMessage
	return json.Unmarshal(raw, &v) == nil
}

// ClampActive clamps an `active` field's seconds value to [minIdle, maxIdle]
// (spec §4.5 "clamp(active, min_idle, max_idle)").
func ClampActive(seconds, minIdle, maxIdle uint64) uint64 {
	if seconds < minIdle {
		return minIdle
	}
	if seconds > maxIdle {
		return maxIdle
	}
	return seconds
}
