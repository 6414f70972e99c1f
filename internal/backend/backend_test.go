package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/pool"
	"github.com/swindon-chat/swindon/internal/wire"
)

func TestValidContentType(t *testing.T) {
	cases := []struct {
		header string
		want   bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/json; charset=UTF8", true},
		{"application/json; charset=latin-1", false},
		{"text/plain", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidContentType(tc.header), "header=%q", tc.header)
	}
}

func TestPoolNoPoolWhenNoAddresses(t *testing.T) {
	p := NewPool(Config{}, zerolog.Nop())
	req, _ := http.NewRequest(http.MethodPost, "/x", nil)
	_, svcErr := p.Do(context.Background(), req)
	require.NotNil(t, svcErr)
	assert.Equal(t, "no_pool", svcErr.Code)
}

func TestPoolOverflowAtQueueCapacity(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	p := NewPool(Config{
		Addresses:             []string{srv.URL},
		ConnectionsPerAddress: 1,
		QueueSize:             1,
		RequestsPerSecond:     1000,
		Burst:                 1000,
	}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		req, _ := http.NewRequest(http.MethodPost, "/slow", nil)
		p.Do(context.Background(), req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond) // let the first request occupy the queue slot

	req2, _ := http.NewRequest(http.MethodPost, "/slow", nil)
	_, svcErr := p.Do(context.Background(), req2)
	require.NotNil(t, svcErr)
	assert.Equal(t, "pool_overflow", svcErr.Code)

	release <- struct{}{}
	<-done
}

func TestAuthFormatHeaderValue(t *testing.T) {
	tangle, err := AuthFormatTangle.headerValue("u1")
	require.NoError(t, err)
	assert.Contains(t, tangle, "Tangle ")

	swindon, err := AuthFormatSwindonJSON.headerValue("u1")
	require.NoError(t, err)
	assert.Contains(t, swindon, "Swindon+json ")
}

func TestAuthCodecSuccessDeliversHello(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"user_id":"u1","name":"X"}`))
	}))
	defer srv.Close()

	p := NewPool(Config{
		Addresses:             []string{srv.URL},
		ConnectionsPerAddress: 4,
		QueueSize:             4,
		RequestsPerSecond:     1000,
		Burst:                 1000,
	}, zerolog.Nop())

	proc := pool.New("chat", pool.Config{NewConnectionIdleTimeout: time.Minute}, zerolog.Nop())
	outbox := wire.NewOutbox()
	codec := &AuthCodec{Pool: p, Processor: proc, Path: "/auth"}

	gen := ids.NewGenerator()
	codec.Dispatch(context.Background(), ids.Cid(1), gen.Next(time.Now()), outbox, AuthMeta{}, zerolog.Nop())

	msgs := outbox.Drain()
	require.Len(t, msgs, 1)
	hello, ok := msgs[0].(wire.Hello)
	require.True(t, ok)
	assert.Equal(t, "u1", hello.SessionID)
}

func TestAuthCodecForbiddenMapsToDirectStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewPool(Config{
		Addresses:             []string{srv.URL},
		ConnectionsPerAddress: 4,
		QueueSize:             4,
		RequestsPerSecond:     1000,
		Burst:                 1000,
	}, zerolog.Nop())

	proc := pool.New("chat", pool.Config{}, zerolog.Nop())
	outbox := wire.NewOutbox()
	codec := &AuthCodec{Pool: p, Processor: proc, Path: "/auth"}
	gen := ids.NewGenerator()
	codec.Dispatch(context.Background(), ids.Cid(1), gen.Next(time.Now()), outbox, AuthMeta{}, zerolog.Nop())

	msgs := outbox.Drain()
	require.Len(t, msgs, 1)
	stop, ok := msgs[0].(wire.StopSocket)
	require.True(t, ok)
	authErr, ok := stop.Reason.(wire.AuthHTTP)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, authErr.Status)
}

func TestAuthCodecUnmappedStatusFallsBackToInternalServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	p := NewPool(Config{
		Addresses:             []string{srv.URL},
		ConnectionsPerAddress: 4,
		QueueSize:             4,
		RequestsPerSecond:     1000,
		Burst:                 1000,
	}, zerolog.Nop())

	proc := pool.New("chat", pool.Config{}, zerolog.Nop())
	outbox := wire.NewOutbox()
	codec := &AuthCodec{Pool: p, Processor: proc, Path: "/auth"}
	gen := ids.NewGenerator()
	codec.Dispatch(context.Background(), ids.Cid(1), gen.Next(time.Now()), outbox, AuthMeta{}, zerolog.Nop())

	msgs := outbox.Drain()
	require.Len(t, msgs, 1)
	stop := msgs[0].(wire.StopSocket)
	authErr := stop.Reason.(wire.AuthHTTP)
	assert.Equal(t, 500, authErr.Status)
}

func TestCallCodecDeliversResultOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Tangle ")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`"pong"`))
	}))
	defer srv.Close()

	p := NewPool(Config{
		Addresses:             []string{srv.URL},
		ConnectionsPerAddress: 4,
		QueueSize:             4,
		RequestsPerSecond:     1000,
		Burst:                 1000,
	}, zerolog.Nop())

	codec := &CallCodec{Pool: p, BasePath: "", AuthFormat: AuthFormatTangle}
	gen := ids.NewGenerator()
	out := codec.Dispatch(context.Background(), ids.Cid(1), gen.Next(time.Now()), "u1", "echo.ping",
		json.RawMessage(`{"request_id":"r1"}`), json.RawMessage(`["p"]`), json.RawMessage(`{}`))

	result, ok := out.(wire.Result)
	require.True(t, ok)
	assert.JSONEq(t, `"pong"`, string(result.Payload))
}

func TestCallCodecNon200BecomesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`oops`))
	}))
	defer srv.Close()

	p := NewPool(Config{
		Addresses:             []string{srv.URL},
		ConnectionsPerAddress: 4,
		QueueSize:             4,
		RequestsPerSecond:     1000,
		Burst:                 1000,
	}, zerolog.Nop())

	codec := &CallCodec{Pool: p, BasePath: "", AuthFormat: AuthFormatSwindonJSON}
	gen := ids.NewGenerator()
	out := codec.Dispatch(context.Background(), ids.Cid(1), gen.Next(time.Now()), "u1", "echo.ping",
		json.RawMessage(`{"request_id":"r1"}`), json.RawMessage(`[]`), json.RawMessage(`{}`))

	errOut, ok := out.(wire.Error)
	require.True(t, ok)
	assert.Equal(t, "decode", errOut.Kind)
}

func TestInactivityCodecDispatchDoesNotPanicOnFailure(t *testing.T) {
	p := NewPool(Config{}, zerolog.Nop()) // no addresses -> NoPool
	codec := &InactivityCodec{Pool: p, Path: "/inactive"}
	codec.Dispatch(context.Background(), zerolog.Nop())
}
