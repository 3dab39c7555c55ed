// File: client/uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal ws:// URI splitter. Only ws://host[:port]/path is accepted; wss://
// and everything else is an argument error, not a fallback.

package client

import (
	"strconv"
	"strings"

	"github.com/momentics/zerows/api"
)

// parseURI splits ws://host[:port]/path into components. Port defaults to
// 80, path to "/".
func parseURI(uri string) (host string, port int, path string, err error) {
	rest, ok := strings.CutPrefix(uri, "ws://")
	if !ok {
		return "", 0, "", api.NewError(api.CodeInvalidArgs, "unsupported URI scheme", nil)
	}

	hostport := rest
	path = "/"
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		hostport = rest[:idx]
		path = rest[idx:]
	}

	host = hostport
	port = 80
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		host = hostport[:idx]
		port, err = strconv.Atoi(hostport[idx+1:])
		if err != nil || port <= 0 || port > 0xFFFF {
			return "", 0, "", api.NewError(api.CodeInvalidArgs, "invalid port", nil)
		}
	}
	if host == "" {
		return "", 0, "", api.NewError(api.CodeInvalidArgs, "empty host", nil)
	}
	return host, port, path, nil
}
