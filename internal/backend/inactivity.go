package backend

import (
	"bytes"
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// InactivityCodec fires a fire-and-forget POST at <session_inactive_path>
// with an ignored response (spec §4.3, used by the inactivity dispatcher,
// spec §4.8).
type InactivityCodec struct {
	Pool *Pool
	Path string
}

var inactivityBody = []byte(`[{},[],{}]`)

// Dispatch POSTs the inactivity notification. Failures are logged here on
// log; there is no retry queue (at-most-once contract, spec §4.8).
func (c *InactivityCodec) Dispatch(ctx context.Context, log zerolog.Logger) {
	req, err := http.NewRequest(http.MethodPost, c.Path, bytes.NewReader(inactivityBody))
	if err != nil {
		log.Warn().Err(err).Msg("failed to build inactivity request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(len(inactivityBody))

	resp, svcErr := c.Pool.Do(ctx, req)
	if svcErr != nil {
		log.Warn().Str("err", svcErr.Error()).Str("path", c.Path).Msg("inactivity call failed")
		return
	}
	drainAndClose(resp)
}
