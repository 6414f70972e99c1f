package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/svcerr"
	"github.com/swindon-chat/swindon/internal/wire"
)

// AuthFormat selects which Authorization header dialect a CallCodec speaks
// to its backend — a per-handler setting, not a process-wide one, since
// different handlers in the same process may target different upstream
// stacks (supplemented feature, grounded on
// original_source/src/chat/tangle_auth.rs's per-handler Callback format).
type AuthFormat int

const (
	// AuthFormatTangle sends `Authorization: Tangle <base64(...)>` (legacy).
	AuthFormatTangle AuthFormat = iota
	// AuthFormatSwindonJSON sends `Authorization: Swindon+json <base64(...)>`
	// (current, spec §6).
	AuthFormatSwindonJSON
)

func (f AuthFormat) headerValue(sessionID string) (string, error) {
	payload, err := json.Marshal(map[string]string{"user_id": sessionID})
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	switch f {
	case AuthFormatSwindonJSON:
		return "Swindon+json " + encoded, nil
	default:
		return "Tangle " + encoded, nil
	}
}

// CallCodec is an RPC call: {Init -> Wait -> Headers(status) -> Done}
// against <method_path> (spec §4.3). BasePath is joined with the dotted
// method name (dots replaced by slashes, grounded on
// original_source/src/chat/dispatcher.rs's `name.replace(".", "/")`
// method_path derivation) to produce the request path, so one CallCodec
// serves every method routed to a given upstream handler.
type CallCodec struct {
	Pool       *Pool
	BasePath   string
	AuthFormat AuthFormat
}

type callEnvelope struct {
	ConnID    string `json:"conn_id"`
	RuntimeID string `json:"runtime_id"`
}

// methodPath joins BasePath with the dotted method name the way
// dispatcher.rs does: dots become slashes, and the base path is not
// duplicated when it is already "/".
func (c *CallCodec) methodPath(method string) string {
	suffix := strings.ReplaceAll(method, ".", "/")
	base := strings.TrimSuffix(c.BasePath, "/")
	if base == "" {
		return "/" + suffix
	}
	return base + "/" + suffix
}

// Dispatch POSTs the RPC body and returns the Result or Error to deliver
// to the client connection (spec §4.3 CallCodec). The caller pushes the
// returned Outbound onto the connection's outbox itself, since a CallCodec
// has no connection affinity of its own beyond the meta it was given.
func (c *CallCodec) Dispatch(ctx context.Context, cid ids.Cid, runtimeID ids.ServerId, sessionID, method string, meta, args, kwargs json.RawMessage) wire.Outbound {
	body, err := json.Marshal([]any{
		json.RawMessage(meta),
		callEnvelope{ConnID: cid.String(), RuntimeID: runtimeID.String()},
		json.RawMessage(args),
		json.RawMessage(kwargs),
	})
	if err != nil {
		return errorOutbound(meta, svcerr.ValidationError("failed to encode call body"))
	}

	req, err := http.NewRequest(http.MethodPost, c.methodPath(method), bytes.NewReader(body))
	if err != nil {
		return errorOutbound(meta, svcerr.PoolError(err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(body))
	if authHeader, err := c.AuthFormat.headerValue(sessionID); err == nil {
		req.Header.Set("Authorization", authHeader)
	}

	resp, svcErr := c.Pool.Do(ctx, req)
	if svcErr != nil {
		return errorOutbound(meta, svcErr)
	}
	defer drainAndClose(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorOutbound(meta, svcerr.HTTPError(resp.StatusCode, ""))
	}

	if resp.StatusCode != http.StatusOK {
		return errorOutbound(meta, svcerr.HTTPError(resp.StatusCode, snippet(raw)))
	}
	if !ValidContentType(resp.Header.Get("Content-Type")) {
		return errorOutbound(meta, svcerr.HTTPError(resp.StatusCode, "invalid content type"))
	}
	if !json.Valid(raw) {
		return errorOutbound(meta, svcerr.HTTPError(resp.StatusCode, snippet(raw)))
	}

	return wire.Result{Meta: meta, Payload: json.RawMessage(raw)}
}

func errorOutbound(meta json.RawMessage, svcErr *svcerr.Error) wire.Outbound {
	body, _ := json.Marshal(svcErr)
	return wire.Error{Meta: meta, Kind: string(svcErr.Kind), Body: body}
}

func snippet(raw []byte) string {
	const max = 200
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max])
}
