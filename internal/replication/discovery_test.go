package replication

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swindon-chat/swindon/internal/ids"
)

func TestNewDiscoveryDisabledWithoutURL(t *testing.T) {
	localID := ids.NewGenerator().Next(time.Now())
	d, err := NewDiscovery("", localID, "127.0.0.1:8102", zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, d.IsEnabled())
	assert.Empty(t, d.Peers())

	// Announce must be a safe no-op when disabled.
	d.Announce()
	assert.Empty(t, d.Peers())
	d.Close()
}

func TestDiscoveryHandleAnnouncementRecordsPeer(t *testing.T) {
	localID := ids.NewGenerator().Next(time.Now())
	d := &Discovery{localID: localID, log: zerolog.Nop(), peers: map[string]string{}}

	otherID := ids.NewGenerator().Next(time.Now())
	payload, err := json.Marshal(announcement{ServerID: otherID.String(), Addr: "10.0.0.5:8102"})
	require.NoError(t, err)

	d.handleAnnouncement(&nats.Msg{Subject: DiscoverySubject, Data: payload})

	peers := d.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "10.0.0.5:8102", peers[0])
}

func TestDiscoveryHandleAnnouncementIgnoresSelf(t *testing.T) {
	localID := ids.NewGenerator().Next(time.Now())
	d := &Discovery{localID: localID, log: zerolog.Nop(), peers: map[string]string{}}

	payload, err := json.Marshal(announcement{ServerID: localID.String(), Addr: "127.0.0.1:8102"})
	require.NoError(t, err)

	d.handleAnnouncement(&nats.Msg{Subject: DiscoverySubject, Data: payload})

	assert.Empty(t, d.Peers())
}

func TestDiscoveryHandleAnnouncementDiscardsMalformedPayload(t *testing.T) {
	localID := ids.NewGenerator().Next(time.Now())
	d := &Discovery{localID: localID, log: zerolog.Nop(), peers: map[string]string{}}

	d.handleAnnouncement(&nats.Msg{Subject: DiscoverySubject, Data: []byte("not json")})

	assert.Empty(t, d.Peers())
}

func TestDiscoveryHandleAnnouncementDedupesByServerID(t *testing.T) {
	localID := ids.NewGenerator().Next(time.Now())
	d := &Discovery{localID: localID, log: zerolog.Nop(), peers: map[string]string{}}

	otherID := ids.NewGenerator().Next(time.Now())
	first, err := json.Marshal(announcement{ServerID: otherID.String(), Addr: "10.0.0.5:8102"})
	require.NoError(t, err)
	second, err := json.Marshal(announcement{ServerID: otherID.String(), Addr: "10.0.0.9:8102"})
	require.NoError(t, err)

	d.handleAnnouncement(&nats.Msg{Subject: DiscoverySubject, Data: first})
	d.handleAnnouncement(&nats.Msg{Subject: DiscoverySubject, Data: second})

	peers := d.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "10.0.0.9:8102", peers[0])
}
