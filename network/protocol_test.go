package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	line, err := Encode(TagError, ErrorBody{Reason: ReasonWrongPassword})
	require.NoError(t, err)
	assert.Equal(t, `{"error":{"reason":"wrong password"}}`+"\n", string(line))

	line, err = Encode(TagGameOver, GameOver{Reason: WinnerReason("zeldo")})
	require.NoError(t, err)
	assert.Equal(t, `{"game-over":{"reason":"winner zeldo"}}`+"\n", string(line))
}

func TestEncode_NeverEmbedsNewline(t *testing.T) {
	line, err := Encode(TagAuth, Auth{Username: "multi\nline", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, countNewlines(line))
}

func TestEncode_UnknownTag(t *testing.T) {
	_, err := Encode("chat", "hello")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode(t *testing.T) {
	msg, err := Decode([]byte(`{"move":{"x":5,"y":6}}`))
	require.NoError(t, err)
	assert.Equal(t, TagMove, msg.Tag)
	assert.JSONEq(t, `{"x":5,"y":6}`, string(msg.Body))

	msg, err = Decode([]byte("{\"auth\":{\"username\":\"a\",\"password\":\"b\"}}\r"))
	require.NoError(t, err)
	assert.Equal(t, TagAuth, msg.Tag)
}

func TestDecode_ProtocolErrors(t *testing.T) {
	cases := map[string]string{
		"not json":       `hello`,
		"array":          `[1,2]`,
		"unknown tag":    `{"sub":5}`,
		"two tags":       `{"move":{},"auth":{}}`,
		"empty object":   `{}`,
		"truncated":      `{"move":{"x":1`,
		"bare string":    `"move"`,
		"embedded break": "{\"move\":\n{}}",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(line))
			assert.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestDecodeAuth(t *testing.T) {
	auth, err := DecodeAuth(json.RawMessage(`{"username":"erik","password":"secret"}`))
	require.NoError(t, err)
	assert.Equal(t, Auth{Username: "erik", Password: "secret"}, auth)

	auth, err = DecodeAuth(json.RawMessage(`{"username":"erik","password":""}`))
	require.NoError(t, err)
	assert.Equal(t, "", auth.Password)

	for _, body := range []string{
		`{"blarh":"user","password":"bleah"}`,
		`{"username":"user"}`,
		`{"username":"","password":"x"}`,
		`{"username":5,"password":"x"}`,
		`null`,
		`{"username":"evil\nname","password":"p"}`,
		`{"username":"evil\rname","password":"p"}`,
		`{"username":"erik","password":"two\nlines"}`,
		`{"username":"erik","password":"p\r\n"}`,
	} {
		_, err := DecodeAuth(json.RawMessage(body))
		assert.ErrorIs(t, err, ErrProtocol, body)
	}
}

func TestDecodeReason(t *testing.T) {
	reason, err := DecodeReason(json.RawMessage(`{"reason":"draw"}`))
	require.NoError(t, err)
	assert.Equal(t, ReasonDraw, reason)
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
