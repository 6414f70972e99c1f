package backend

import "strings"

// ValidContentType reports whether a backend HTTP reply's Content-Type
// header is acceptable: "application/json" with no charset, or an explicit
// utf-8/utf8 charset (case-insensitive); anything else is an invalid
// content type and the reply is treated as a decode error (spec §6,
// grounded on original_source/src/chat/content_type.rs).
func ValidContentType(header string) bool {
	mediaType, params, ok := splitContentType(header)
	if !ok || mediaType != "application/json" {
		return false
	}
	charset, present := params["charset"]
	if !present {
		return true
	}
	charset = strings.ToLower(strings.TrimSpace(charset))
	return charset == "utf-8" || charset == "utf8"
}

// splitContentType parses "type/subtype; param=value; ..." without pulling
// in mime.ParseMediaType's quoted-string edge cases, which backend replies
// in this system never use.
func splitContentType(header string) (mediaType string, params map[string]string, ok bool) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return "", nil, false
	}
	mediaType = strings.ToLower(strings.TrimSpace(parts[0]))
	if mediaType == "" {
		return "", nil, false
	}
	params = map[string]string{}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}
	return mediaType, params, true
}
