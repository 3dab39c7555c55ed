// File: protocol/handshake_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"encoding/base64"
	"strings"
	"testing"
)

// Known-answer vector from RFC 6455 section 1.3.
func TestComputeAcceptKnownVector(t *testing.T) {
	got := ComputeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("ComputeAccept = %q, want %q", got, want)
	}
	if len(got) != AcceptLen {
		t.Fatalf("accept length = %d", len(got))
	}
}

func TestGenerateClientKey(t *testing.T) {
	key := GenerateClientKey()
	if len(key) != ClientKeyLen {
		t.Fatalf("key length = %d, want %d", len(key), ClientKeyLen)
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		t.Fatalf("key is not base64: %v", err)
	}
	if len(raw) != 16 {
		t.Fatalf("decoded nonce length = %d", len(raw))
	}
	if key == GenerateClientKey() {
		t.Error("two keys are identical")
	}
}

func TestBuildRequestShape(t *testing.T) {
	buf := make([]byte, 1024)
	n, err := BuildRequest(buf, "example.com", 80, "/chat", "abcd", "", "", "")
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := string(buf[:n])

	for _, want := range []string{
		"GET /chat HTTP/1.1\r\n",
		"Host: example.com:80\r\n",
		"Upgrade: websocket\r\n",
		"Connection: Upgrade\r\n",
		"Sec-WebSocket-Key: abcd\r\n",
		"Sec-WebSocket-Version: 13\r\n\r\n",
	} {
		if !strings.Contains(req, want) {
			t.Errorf("request missing %q:\n%s", want, req)
		}
	}
	if !strings.HasPrefix(req, "GET /chat HTTP/1.1\r\n") {
		t.Error("request line must come first")
	}
	if strings.Contains(req, "User-Agent") || strings.Contains(req, "Origin") ||
		strings.Contains(req, "Sec-WebSocket-Protocol") {
		t.Error("optional headers emitted without values")
	}
}

func TestBuildRequestOptionalHeaders(t *testing.T) {
	buf := make([]byte, 1024)
	n, err := BuildRequest(buf, "h", 8080, "/", "k", "agent/1.0", "http://o", "chat.v2")
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := string(buf[:n])
	for _, want := range []string{
		"Host: h:8080\r\n",
		"User-Agent: agent/1.0\r\n",
		"Origin: http://o\r\n",
		"Sec-WebSocket-Protocol: chat.v2\r\n",
	} {
		if !strings.Contains(req, want) {
			t.Errorf("request missing %q", want)
		}
	}
}

func TestBuildRequestTooSmall(t *testing.T) {
	if _, err := BuildRequest(make([]byte, 16), "example.com", 80, "/", "key", "", "", ""); err == nil {
		t.Fatal("expected invalid-args error for undersized buffer")
	}
}

func respond(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n\r\n")
}

func TestValidateResponse(t *testing.T) {
	accept := ComputeAccept("dGhlIHNhbXBsZSBub25jZQ==")

	ok := respond(
		"HTTP/1.1 101 Switching Protocols",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: "+accept,
	)
	if err := ValidateResponse(ok, accept); err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}

	// Header names and token values are case-insensitive; values trimmed.
	mixed := respond(
		"HTTP/1.1 101 Switching Protocols",
		"upgrade:  WebSocket ",
		"CONNECTION: keep-alive, Upgrade",
		"sec-websocket-accept:   "+accept+"  ",
	)
	if err := ValidateResponse(mixed, accept); err != nil {
		t.Fatalf("mixed-case response rejected: %v", err)
	}

	bad := [][]byte{
		respond("HTTP/1.1 200 OK", "Upgrade: websocket", "Connection: Upgrade", "Sec-WebSocket-Accept: "+accept),
		respond("HTTP/1.1 101 X", "Connection: Upgrade", "Sec-WebSocket-Accept: "+accept),
		respond("HTTP/1.1 101 X", "Upgrade: websocket", "Sec-WebSocket-Accept: "+accept),
		respond("HTTP/1.1 101 X", "Upgrade: websocket", "Connection: Upgrade"),
		respond("HTTP/1.1 101 X", "Upgrade: websocket", "Connection: Upgrade", "Sec-WebSocket-Accept: bogus"),
		respond("HTTP/1.1 101 X", "Upgrade: h2c", "Connection: Upgrade", "Sec-WebSocket-Accept: "+accept),
	}
	for i, head := range bad {
		if err := ValidateResponse(head, accept); err == nil {
			t.Errorf("case %d: invalid response accepted", i)
		}
	}
}

// Header lookup must anchor to line starts, not match inside values.
func TestValidateResponseAnchoredLookup(t *testing.T) {
	accept := ComputeAccept("k")
	head := respond(
		"HTTP/1.1 101 Switching Protocols",
		"X-Note: Upgrade: websocket",
		"X-Other: Connection: upgrade",
		"X-Fake: Sec-WebSocket-Accept: "+accept,
	)
	if err := ValidateResponse(head, accept); err == nil {
		t.Fatal("headers embedded in other values must not satisfy validation")
	}
}
