package client

import (
	"encoding/base64"
	"net/http"
)

// Credentials attach authentication to an outgoing request.
type Credentials interface {
	Apply(req *http.Request)
}

// BasicCredentials authenticates with a username and password.
type BasicCredentials struct {
	Username string
	Password string
}

// Apply adds a Basic authorization header to the request.
func (c BasicCredentials) Apply(req *http.Request) {
	if c.Username == "" && c.Password == "" {
		return
	}
	token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	req.Header.Set("Authorization", "Basic "+token)
}

// BearerCredentials authenticates with an OAuth2 access token.
type BearerCredentials struct {
	Token string
}

// Apply adds a Bearer authorization header to the request.
func (c BearerCredentials) Apply(req *http.Request) {
	if c.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
