package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message tags. Every line on the wire is a JSON object with exactly one of these keys.
const (
	TagAuth     = "auth"
	TagYourTurn = "your-turn"
	TagMove     = "move"
	TagGameOver = "game-over"
	TagError    = "error"
)

// Reasons carried by error messages.
const (
	ReasonInvalidMove   = "invalid move"
	ReasonInvalidFormat = "invalid message format"
	ReasonWrongPassword = "wrong password"
)

const ReasonDraw = "draw"

var (
	ErrProtocol         = errors.New("protocol error")
	ErrLineTooLong      = fmt.Errorf("%w: line too long", ErrProtocol)
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

var knownTags = map[string]struct{}{
	TagAuth:     {},
	TagYourTurn: {},
	TagMove:     {},
	TagGameOver: {},
	TagError:    {},
}

// Message is one decoded line: the tag and its still-encoded body.
type Message struct {
	Tag  string
	Body json.RawMessage
}

type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type GameOver struct {
	Reason string `json:"reason"`
}

type ErrorBody struct {
	Reason string `json:"reason"`
}

// WinnerReason formats the game-over reason for a win.
func WinnerReason(username string) string {
	return "winner " + username
}

// Encode renders a tagged message as a single newline-terminated line.
func Encode(tag string, body any) ([]byte, error) {
	if _, ok := knownTags[tag]; !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", ErrProtocol, tag)
	}
	raw, err := json.Marshal(map[string]any{tag: body})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", tag, err)
	}
	return append(raw, '\n'), nil
}

// Decode parses one line (without its terminator) into a Message.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if bytes.IndexByte(line, '\n') >= 0 {
		return nil, fmt.Errorf("%w: embedded line terminator", ErrProtocol)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(fields) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one tag, got %d", ErrProtocol, len(fields))
	}
	msg := &Message{}
	for tag, body := range fields {
		msg.Tag, msg.Body = tag, body
	}
	if _, ok := knownTags[msg.Tag]; !ok {
		return nil, fmt.Errorf("%w: unknown tag %q", ErrProtocol, msg.Tag)
	}
	return msg, nil
}

// DecodeAuth reads the body of an auth message. Both fields must be present
// and the username must be non-empty. Neither may carry a line terminator,
// escaped or not.
func DecodeAuth(body json.RawMessage) (Auth, error) {
	var raw struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Auth{}, fmt.Errorf("%w: auth: %v", ErrProtocol, err)
	}
	if raw.Username == nil || raw.Password == nil {
		return Auth{}, fmt.Errorf("%w: auth requires username and password", ErrProtocol)
	}
	if *raw.Username == "" {
		return Auth{}, fmt.Errorf("%w: empty username", ErrProtocol)
	}
	if strings.ContainsAny(*raw.Username, "\r\n") || strings.ContainsAny(*raw.Password, "\r\n") {
		return Auth{}, fmt.Errorf("%w: embedded line terminator in auth", ErrProtocol)
	}
	return Auth{Username: *raw.Username, Password: *raw.Password}, nil
}

// DecodeReason reads the reason field shared by game-over and error bodies.
func DecodeReason(body json.RawMessage) (string, error) {
	var r ErrorBody
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return r.Reason, nil
}
