package rpc

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"splitescrow/core/types"
	"splitescrow/native/escrow"
)

func TestHubFiltersEvents(t *testing.T) {
	hub := NewHub(nil)
	sub, ok := hub.subscribe(eventFilter{
		types:    map[string]struct{}{escrow.EventTypeEscrowPaid: {}},
		escrowID: "3",
	})
	require.True(t, ok)

	hub.Publish(&types.Event{Type: escrow.EventTypeEscrowReleased, Attributes: map[string]string{escrow.AttrEscrowID: "3"}})
	hub.Publish(&types.Event{Type: escrow.EventTypeEscrowPaid, Attributes: map[string]string{escrow.AttrEscrowID: "4"}})
	hub.Publish(&types.Event{Type: escrow.EventTypeEscrowPaid, Attributes: map[string]string{escrow.AttrEscrowID: "3"}})

	select {
	case evt := <-sub.ch:
		require.Equal(t, escrow.EventTypeEscrowPaid, evt.Type)
		require.Equal(t, "3", evt.Attributes[escrow.AttrEscrowID])
	default:
		t.Fatal("expected a matching event")
	}
	require.Len(t, sub.ch, 0)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	sub, ok := hub.subscribe(eventFilter{})
	require.True(t, ok)
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(&types.Event{Type: escrow.EventTypeEscrowPaid})
	}
	require.Equal(t, 0, hub.Subscribers())

	drained := 0
	for range sub.ch {
		drained++
	}
	require.Equal(t, subscriberBuffer, drained)

	hub.Close()
	_, ok = hub.subscribe(eventFilter{})
	require.False(t, ok)
}

func TestEventStreamOverWebsocket(t *testing.T) {
	ts := newTestServer(t, headerConfig(), nil)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?type=" + escrow.EventTypeEscrowPaid
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test complete")

	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	var paid escrowPayResult
	decodeResult(t, ts.callHeader(buyer, "escrow_pay", payParams("25")), &paid)

	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, msgType)
	var payload eventPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	require.Equal(t, escrow.EventTypeEscrowPaid, payload.Type)
	require.Equal(t, paid.ID, payload.Attributes[escrow.AttrEscrowID])
}
