package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/pool"
	"github.com/swindon-chat/swindon/internal/wire"
)

// statuses the auth backend can return that map directly to a close code;
// anything else collapses to InternalServerError (spec §4.3).
var directAuthFailureStatuses = map[int]bool{
	http.StatusForbidden:   true,
	http.StatusUnauthorized: true,
	http.StatusNotFound:    true,
	http.StatusGone:        true,
	http.StatusBadRequest:  true,
}

// AuthMeta is the out-of-band request context the frontend captured at
// accept time (spec §4.3 AuthCodec body's third element).
type AuthMeta struct {
	HTTPCookie        string `json:"http_cookie"`
	HTTPAuthorization string `json:"http_authorization"`
	URLQueryString    string `json:"url_querystring"`
}

type authConnEnvelope struct {
	ConnID    string `json:"conn_id"`
	RuntimeID string `json:"runtime_id"`
}

// AuthCodec is the out-of-band authorization call: {Init -> Wait ->
// Headers(status) -> Done} against <auth_path> (spec §4.3).
type AuthCodec struct {
	Pool      *Pool
	Processor *pool.Processor
	Path      string
}

// Dispatch POSTs the auth request and delivers Hello/StopSocket directly
// to outbox, enqueueing Associate on success. It never blocks the caller
// beyond the pool's own timeouts — the frontend calls this from its own
// goroutine, not from inside the processor (spec §1, §5).
func (c *AuthCodec) Dispatch(ctx context.Context, cid ids.Cid, runtimeID ids.ServerId, outbox *wire.Outbox, meta AuthMeta, log zerolog.Logger) {
	body, err := json.Marshal([]any{
		authConnEnvelope{ConnID: cid.String(), RuntimeID: runtimeID.String()},
		[]any{},
		meta,
	})
	if err != nil {
		c.fail(outbox, 500)
		return
	}

	req, err := http.NewRequest(http.MethodPost, c.Path, bytes.NewReader(body))
	if err != nil {
		c.fail(outbox, 500)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(body))

	resp, svcErr := c.Pool.Do(ctx, req)
	if svcErr != nil {
		log.Debug().Str("err", svcErr.Error()).Msg("auth call failed")
		c.fail(outbox, 500)
		return
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		if directAuthFailureStatuses[resp.StatusCode] {
			c.fail(outbox, resp.StatusCode)
		} else {
			c.fail(outbox, 500)
		}
		return
	}

	if !ValidContentType(resp.Header.Get("Content-Type")) {
		c.fail(outbox, 500)
		return
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(outbox, 500)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		c.fail(outbox, 500)
		return
	}
	userIDRaw, ok := fields["user_id"]
	if !ok {
		c.fail(outbox, 500)
		return
	}
	var sessionID string
	if err := json.Unmarshal(userIDRaw, &sessionID); err != nil {
		c.fail(outbox, 500)
		return
	}

	outbox.Push(wire.Hello{SessionID: sessionID, UserInfo: json.RawMessage(raw)})
	c.Processor.Enqueue(time.Now(), pool.AssociateAction{
		Cid:       cid,
		SessionID: sessionID,
		Metadata:  json.RawMessage(raw),
	})
}

func (c *AuthCodec) fail(outbox *wire.Outbox, status int) {
	outbox.Push(wire.StopSocket{Reason: wire.AuthHTTP{Status: status}})
}
