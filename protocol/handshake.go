// File: protocol/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client-side RFC 6455 opening handshake without net/http: the request is
// emitted byte-exact into a caller buffer and the response head is validated
// with line-anchored, case-insensitive header matching. Bypassing net/http
// keeps the engine free of reader goroutines and hidden buffering.

package protocol

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"strings"
	"time"

	"github.com/momentics/zerows/api"
)

// WebSocketGUID is the fixed RFC 6455 accept-derivation constant.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handshake token lengths.
const (
	// ClientKeyLen is the base64 length of the 16-byte nonce.
	ClientKeyLen = 24
	// AcceptLen is the base64 length of the 20-byte SHA-1 digest.
	AcceptLen = 28
)

// GenerateClientKey draws a 16-byte nonce and returns it as 24 base64
// characters. When the system entropy source fails, a time-seeded PRNG keeps
// the handshake functional; the key is a nonce, not a secret.
func GenerateClientKey() string {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		rng := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
		for i := range nonce {
			nonce[i] = byte(rng.Intn(256))
		}
	}
	return base64.StdEncoding.EncodeToString(nonce[:])
}

// ComputeAccept derives the expected Sec-WebSocket-Accept value:
// base64(SHA1(key || GUID)).
func ComputeAccept(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// BuildRequest writes the upgrade request into dst and returns the byte
// count. Required headers come first in fixed order; User-Agent, Origin and
// Sec-WebSocket-Protocol are appended only when non-empty. Returns
// api.ErrInvalidArgs when dst cannot hold the request.
func BuildRequest(dst []byte, host string, port int, path, key, userAgent, origin, subprotocol string) (int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s:%d\r\n", host, port)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	if userAgent != "" {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	}
	if origin != "" {
		fmt.Fprintf(&b, "Origin: %s\r\n", origin)
	}
	if subprotocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", subprotocol)
	}
	b.WriteString("\r\n")

	if b.Len() > len(dst) {
		return 0, api.NewError(api.CodeInvalidArgs, "handshake request exceeds buffer", nil)
	}
	return copy(dst, b.String()), nil
}

// headerValue finds a header by name in the response head, matching the name
// case-insensitively and only at the start of a line. Returns the trimmed
// value and whether the header exists.
func headerValue(head []byte, name string) (string, bool) {
	for _, line := range bytes.Split(head, []byte("\r\n")) {
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		if strings.EqualFold(string(bytes.TrimSpace(line[:idx])), name) {
			return string(bytes.TrimSpace(line[idx+1:])), true
		}
	}
	return "", false
}

// ValidateResponse checks the server's 101 response head against the
// expected accept value. Any violation yields a handshake error.
func ValidateResponse(head []byte, expectedAccept string) error {
	if !bytes.HasPrefix(head, []byte("HTTP/1.1 101")) {
		return api.NewError(api.CodeHandshake, "status line is not HTTP/1.1 101", nil)
	}
	upgrade, ok := headerValue(head, "Upgrade")
	if !ok || !strings.Contains(strings.ToLower(upgrade), "websocket") {
		return api.NewError(api.CodeHandshake, "missing or invalid Upgrade header", nil)
	}
	connection, ok := headerValue(head, "Connection")
	if !ok || !strings.Contains(strings.ToLower(connection), "upgrade") {
		return api.NewError(api.CodeHandshake, "missing or invalid Connection header", nil)
	}
	accept, ok := headerValue(head, "Sec-WebSocket-Accept")
	if !ok || accept != expectedAccept {
		return api.NewError(api.CodeHandshake, "Sec-WebSocket-Accept mismatch", nil)
	}
	return nil
}
