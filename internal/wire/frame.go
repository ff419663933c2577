// Package wire implements the Engine.IO / Socket.IO text frame codec this
// engine speaks: opening handshake, ping/pong, and the `42<n>["event",payload]`
// event envelope. It does not know about transports, sessions, or rooms.
package wire

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Engine.IO / Socket.IO frame prefixes.
const (
	EngineOpen   = "0" // Engine.IO open, followed by handshake JSON
	EnginePing   = "2"
	EnginePong   = "3"
	IOConnect    = "40" // Socket.IO connect / open marker
	IODisconnect = "41"
	IOEvent      = "42" // followed by ack id and ["event", payload]
)

// ErrMalformedFrame is returned when an inbound "42..." payload is missing
// its leading bracket or the comma separating event from payload. The
// caller is expected to close the session rather than propagate a panic.
var ErrMalformedFrame = errors.New("wire: malformed event frame")

// EIOVersion identifies which Engine.IO dialect a connecting client asked
// for via the `EIO` query parameter.
type EIOVersion int

const (
	EIOv3 EIOVersion = 3
	EIOv4 EIOVersion = 4
)

// ParseEIOVersion maps the raw `EIO` query value to a dialect. Any value
// other than "4" (including an absent parameter) selects v3.
func ParseEIOVersion(raw string) EIOVersion {
	if raw == "4" {
		return EIOv4
	}
	return EIOv3
}

// HandshakeData is the JSON body of the Engine.IO opening frame.
type HandshakeData struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// OpenFrame renders the Engine.IO opening frame: `0<json>`.
func OpenFrame(data HandshakeData) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return EngineOpen + string(body), nil
}

// ConnectFrame renders the Socket.IO connect frame for the given dialect.
// v3 emits a bare `40`; v4 attaches the sid as a JSON object.
func ConnectFrame(version EIOVersion, sessionID string) (string, error) {
	if version != EIOv4 {
		return IOConnect, nil
	}
	body, err := json.Marshal(struct {
		SID string `json:"sid"`
	}{SID: sessionID})
	if err != nil {
		return "", err
	}
	return IOConnect + string(body), nil
}

// FormatEvent renders an outbound event frame: `42<n>["<event>",<payload>]`.
// payload is emitted verbatim when it already looks like JSON (starts with
// `{` or `[`); otherwise it is wrapped in double quotes.
func FormatEvent(counter int, event, payload string) string {
	var b strings.Builder
	b.WriteString(IOEvent)
	b.WriteString(strconv.Itoa(counter))
	b.WriteString(`["`)
	b.WriteString(event)
	b.WriteString(`",`)
	b.WriteString(quoteIfNeeded(payload))
	b.WriteString(`]`)
	return b.String()
}

func quoteIfNeeded(payload string) string {
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		return payload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// payload is a plain Go string; Marshal only fails on types that
		// cannot be represented, which a string never triggers.
		return `"` + payload + `"`
	}
	return string(data)
}

// ParseEvent extracts (event, payload) from a raw "42..." frame body (the
// bytes after the "42" prefix, i.e. the ack-id digits immediately followed
// by the `[...]` array). It locates the first `[` and the first `,` after
// it, exactly as the original parser does, then strips a surrounding pair
// of quotes from the payload if present.
func ParseEvent(body string) (event, payload string, err error) {
	leadingBracket := strings.IndexByte(body, '[')
	if leadingBracket < 0 {
		return "", "", ErrMalformedFrame
	}
	commaSplit := strings.IndexByte(body[leadingBracket:], ',')
	if commaSplit < 0 {
		return "", "", ErrMalformedFrame
	}
	commaSplit += leadingBracket

	if leadingBracket+2 > commaSplit-1 || commaSplit-1 < 0 {
		return "", "", ErrMalformedFrame
	}
	event = body[leadingBracket+2 : commaSplit-1]

	if commaSplit+1 >= len(body) || len(body) == 0 {
		return "", "", ErrMalformedFrame
	}
	content := body[commaSplit+1 : len(body)-1]
	if len(content) >= 2 && content[0] == '"' && content[len(content)-1] == '"' {
		content = content[1 : len(content)-1]
	}
	return event, content, nil
}
