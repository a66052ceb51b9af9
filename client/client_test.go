package client_test

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/firasghr/loadspiker-engine/browser"
	"github.com/firasghr/loadspiker-engine/client"
	"github.com/firasghr/loadspiker-engine/proxy"
)

func TestNewHTTPClient_Direct(t *testing.T) {
	c, err := client.NewHTTPClient("", 10*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if c == nil {
		t.Fatal("NewHTTPClient returned nil client")
	}
	if c.Jar == nil {
		t.Error("expected non-nil cookie jar")
	}
	if c.Timeout != 10*time.Second {
		t.Errorf("got Timeout=%v, want 10s", c.Timeout)
	}
}

func TestNewHTTPClient_InvalidProxy(t *testing.T) {
	_, err := client.NewHTTPClient("://bad-proxy", time.Second)
	if err == nil {
		t.Error("expected error for invalid proxy URL")
	}
}

func TestNewHTTPClientWithProfile_AppliesTLSConfig(t *testing.T) {
	profile := browser.ChromeProfile()
	c, err := client.NewHTTPClientWithProfile("", 10*time.Second, profile)
	if err != nil {
		t.Fatalf("NewHTTPClientWithProfile: %v", err)
	}
	if c.Jar == nil {
		t.Error("expected non-nil cookie jar")
	}

	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatal("expected *http.Transport")
	}
	if tr.TLSClientConfig == nil {
		t.Error("expected profile's TLSConfig to be applied to the transport")
	}
}

func TestNewHTTPClientFromRotator_NilManagerRunsDirect(t *testing.T) {
	c, err := client.NewHTTPClientFromRotator(nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewHTTPClientFromRotator: %v", err)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatal("expected *http.Transport")
	}
	if tr.Proxy != nil {
		t.Error("expected no proxy set when pm is nil")
	}
}

func TestNewHTTPClientFromRotator_UsesRotatedProxy(t *testing.T) {
	pm := &proxy.ProxyManager{}
	pm.LoadProxies(writeProxyFile(t, "http://proxy-a:8080\nhttp://proxy-b:8080"))

	c, err := client.NewHTTPClientFromRotator(pm, time.Second, nil)
	if err != nil {
		t.Fatalf("NewHTTPClientFromRotator: %v", err)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatal("expected *http.Transport")
	}
	if tr.Proxy == nil {
		t.Error("expected a proxy function to be set from the rotator")
	}
}

func writeProxyFile(t *testing.T, contents string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "proxies-*.txt")
	if err != nil {
		t.Fatalf("create temp proxy file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("write temp proxy file: %v", err)
	}
	return f.Name()
}
