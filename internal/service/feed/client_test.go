package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	single := `{"type":"candle","symbol":"EURUSD","timestamp":1728554400000,"open":1,"high":1.2,"low":0.9,"close":1.1}`
	got, err := Decode([]byte(single))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EURUSD", got[0].Symbol)
	assert.Equal(t, int64(1728554400), got[0].Timestamp.Unix())

	batch := `{"type":"candles","data":[
		{"symbol":"EURUSD","timestamp":1728554400,"open":1,"high":1.2,"low":0.9,"close":1.1},
		{"symbol":"EURUSD","timestamp":1728554460,"open":1,"high":0.5,"low":0.9,"close":1.1}]}`
	got, err = Decode([]byte(batch))
	require.NoError(t, err)
	assert.Len(t, got, 1, "invalid candle is dropped")

	got, err = Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestClientStreamsCandles(t *testing.T) {
	subscribed := make(chan string, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("token"))
		conn, err := up.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"candle","symbol":"EURUSD","timestamp":1728554400,"open":1,"high":1.2,"low":0.9,"close":1.1}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{
		Enabled: true,
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:  "k",
		Symbols: []string{"EURUSD"},
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "EURUSD", <-subscribed)

	candles, errs := c.Read(ctx)
	cd, ok := <-candles
	require.True(t, ok)
	assert.Equal(t, "EURUSD", cd.Symbol)
	assert.Equal(t, 1.1, cd.Close)

	// server hangs up after the frame
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("timeout waiting for read error")
	}
	assert.False(t, c.IsConnected())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{Enabled: true}.Validate())
	assert.Error(t, Config{Enabled: true, URL: "ws://x"}.Validate())
	assert.NoError(t, Config{Enabled: true, URL: "ws://x", Symbols: []string{"A"}, PingInterval: time.Second, BufferSize: 1}.Validate())
}
