package domain

import "strings"

// ClientKind distinguishes callers that expect JSON from interactive browsers.
type ClientKind int

const (
	ClientBrowser ClientKind = iota
	ClientAPI
)

func (k ClientKind) String() string {
	if k == ClientAPI {
		return "api"
	}
	return "browser"
}

// ClassifyClient decides the client kind from the request path and API key presence.
func ClassifyClient(path string, hasAPIKey bool) ClientKind {
	if hasAPIKey || path == "/api" || strings.HasPrefix(path, "/api/") {
		return ClientAPI
	}
	return ClientBrowser
}
