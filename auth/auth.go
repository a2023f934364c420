package auth

import (
	"errors"
	"fmt"

	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/network"
	"github.com/wfunc/codechallenge/registry"
)

var ErrWrongPassword = errors.New("wrong password")

type State int

const (
	AwaitingAuth State = iota
	Authenticated
	Rejected
)

func (s State) String() string {
	switch s {
	case AwaitingAuth:
		return "awaiting_auth"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// CredentialStore is the part of the player registry the handshake needs.
type CredentialStore interface {
	Register(username, password string) (registry.Credential, bool, error)
	Matches(cred registry.Credential, password string) bool
}

// Authenticator runs the handshake for a single connection. It accepts
// exactly one message; whatever that message is, the handshake is over.
type Authenticator struct {
	store    CredentialStore
	state    State
	username string
}

func New(store CredentialStore) *Authenticator {
	return &Authenticator{store: store}
}

func (a *Authenticator) State() State {
	return a.state
}

func (a *Authenticator) Username() string {
	return a.username
}

// Authenticate consumes the first message of a connection and returns the
// authenticated username. Any error leaves the authenticator Rejected.
func (a *Authenticator) Authenticate(msg *network.Message) (string, error) {
	if a.state != AwaitingAuth {
		return "", fmt.Errorf("%w: handshake already %s", network.ErrProtocol, a.state)
	}
	a.state = Rejected

	if msg.Tag != network.TagAuth {
		return "", fmt.Errorf("%w: expected auth, got %s", network.ErrProtocol, msg.Tag)
	}
	creds, err := network.DecodeAuth(msg.Body)
	if err != nil {
		return "", err
	}

	cred, created, err := a.store.Register(creds.Username, creds.Password)
	if err != nil {
		return "", err
	}
	if created {
		logger.Log.Infof("Registered new player %s", creds.Username)
	} else if !a.store.Matches(cred, creds.Password) {
		return "", fmt.Errorf("%w for %s", ErrWrongPassword, creds.Username)
	}

	a.state = Authenticated
	a.username = creds.Username
	return creds.Username, nil
}
