package router

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func handlerReturning(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func TestTablePicksLongestMatchingPath(t *testing.T) {
	tbl := New(zerolog.Nop())
	tbl.Add(Route{Path: "/", Handler: handlerReturning("root")})
	tbl.Add(Route{Path: "/chat", Handler: handlerReturning("chat")})
	tbl.Add(Route{Path: "/chat/admin", Handler: handlerReturning("admin")})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/admin/v1/publish/room.1", nil)
	tbl.ServeHTTP(rec, req)
	assert.Equal(t, "admin", rec.Body.String())
}

func TestTableRequiresPathBoundary(t *testing.T) {
	tbl := New(zerolog.Nop())
	tbl.Add(Route{Path: "/chat", Handler: handlerReturning("chat")})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chatroom", nil)
	tbl.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTableReturns404OnNoMatch(t *testing.T) {
	tbl := New(zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	tbl.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type denyAll struct{}

func (denyAll) Allow(http.Header, net.Addr) bool { return false }

func TestTableReturns403WhenAuthorizerDenies(t *testing.T) {
	tbl := New(zerolog.Nop())
	tbl.Add(Route{Path: "/chat", Handler: handlerReturning("chat"), Authorizer: denyAll{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	tbl.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWildcardHostMatchesSubdomain(t *testing.T) {
	tbl := New(zerolog.Nop())
	tbl.Add(Route{Host: "*.example.com", Path: "/", Handler: handlerReturning("sub")})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "chat.example.com"
	tbl.ServeHTTP(rec, req)
	assert.Equal(t, "sub", rec.Body.String())
}
