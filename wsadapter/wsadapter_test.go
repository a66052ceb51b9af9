package wsadapter_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/wsadapter"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestConnectSendClose(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	url := wsURL(srv.URL)

	m := metrics.NewAggregator(1)
	a := wsadapter.New(m)

	rec := a.Connect(url, "", 2000)
	if !rec.Success || rec.StatusCode != 101 {
		t.Fatalf("Connect: %+v", rec)
	}

	rec = a.Connect(url, "", 2000) // idempotent
	if !rec.Success || rec.StatusCode != 101 {
		t.Fatalf("idempotent Connect: %+v", rec)
	}

	rec = a.Send(url, "hello", false)
	if !rec.Success || rec.StatusCode != 200 {
		t.Fatalf("Send: %+v", rec)
	}

	rec = a.Close(url)
	if !rec.Success {
		t.Fatalf("Close: %+v", rec)
	}

	rec = a.Send(url, "too late", false)
	if rec.Success {
		t.Fatal("Send after Close should fail")
	}
}

func TestSend_NotConnected(t *testing.T) {
	m := metrics.NewAggregator(1)
	a := wsadapter.New(m)
	rec := a.Send("ws://example.invalid/", "hi", false)
	if rec.Success {
		t.Fatal("expected failure for unconnected URL")
	}
}
