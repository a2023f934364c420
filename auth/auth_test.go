package auth

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/codechallenge/network"
	"github.com/wfunc/codechallenge/registry"
	"golang.org/x/crypto/bcrypt"
)

func authMsg(t *testing.T, username, password string) *network.Message {
	t.Helper()
	body, err := json.Marshal(network.Auth{Username: username, Password: password})
	require.NoError(t, err)
	return &network.Message{Tag: network.TagAuth, Body: body}
}

func TestAuthenticate_NewUser(t *testing.T) {
	a := New(registry.New(bcrypt.MinCost))

	name, err := a.Authenticate(authMsg(t, "zeldo", "pass"))
	require.NoError(t, err)
	assert.Equal(t, "zeldo", name)
	assert.Equal(t, Authenticated, a.State())
	assert.Equal(t, "zeldo", a.Username())
}

func TestAuthenticate_ExistingUser(t *testing.T) {
	reg := registry.New(bcrypt.MinCost)
	_, err := New(reg).Authenticate(authMsg(t, "zeldo", "pass"))
	require.NoError(t, err)

	_, err = New(reg).Authenticate(authMsg(t, "zeldo", "pass"))
	assert.NoError(t, err)

	a := New(reg)
	_, err = a.Authenticate(authMsg(t, "zeldo", "wrong pass"))
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, Rejected, a.State())
}

func TestAuthenticate_NonAuthFirst(t *testing.T) {
	a := New(registry.New(bcrypt.MinCost))

	_, err := a.Authenticate(&network.Message{Tag: network.TagMove, Body: json.RawMessage(`{"x":1,"y":1}`)})
	assert.ErrorIs(t, err, network.ErrProtocol)
	assert.Equal(t, Rejected, a.State())
}

func TestAuthenticate_MalformedAuth(t *testing.T) {
	a := New(registry.New(bcrypt.MinCost))

	_, err := a.Authenticate(&network.Message{Tag: network.TagAuth, Body: json.RawMessage(`{"blarh":"user","password":"bleah"}`)})
	assert.ErrorIs(t, err, network.ErrProtocol)
}

func TestAuthenticate_OnlyOnce(t *testing.T) {
	a := New(registry.New(bcrypt.MinCost))
	_, err := a.Authenticate(authMsg(t, "erik", "x"))
	require.NoError(t, err)

	_, err = a.Authenticate(authMsg(t, "erik", "x"))
	assert.ErrorIs(t, err, network.ErrProtocol)
	assert.Equal(t, Authenticated, a.State())
}

type failingStore struct{}

func (failingStore) Register(string, string) (registry.Credential, bool, error) {
	return registry.Credential{}, false, errors.New("boom")
}
func (failingStore) Matches(registry.Credential, string) bool { return false }

func TestAuthenticate_StoreError(t *testing.T) {
	a := New(failingStore{})
	_, err := a.Authenticate(authMsg(t, "erik", "x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, Rejected, a.State())
}

func TestAuthenticate_ConcurrentNewUsername(t *testing.T) {
	reg := registry.New(bcrypt.MinCost)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, pw := range []string{"first", "second"} {
		msg := authMsg(t, "racer", pw)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = New(reg).Authenticate(msg)
		}(i)
	}
	wg.Wait()

	// one wins the registration, the other is a login with a different password
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrWrongPassword)
		}
	}
	assert.Equal(t, 1, ok)
}
