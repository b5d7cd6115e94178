package relay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed marks an object whose content does not split into the
// fields its key promises.
var ErrMalformed = errors.New("malformed payload")

func joinFields(head, tail string) []byte {
	return []byte(head + "\n" + tail)
}

// splitFields splits at the first newline. The tail may itself contain
// newlines; the head (an id or a URL) never does.
func splitFields(body []byte) (head, tail string, err error) {
	head, tail, ok := strings.Cut(string(body), "\n")
	if !ok {
		return "", "", fmt.Errorf("%w: missing field separator", ErrMalformed)
	}
	return head, tail, nil
}

func encodeRequest(channel int, sessionID string) []byte {
	return joinFields(strconv.Itoa(channel), sessionID)
}

// decodeRequest parses "{channel}\n{session}" and checks the channel is one
// of the directory's slots.
func decodeRequest(body []byte, channels int) (channel int, sessionID string, err error) {
	head, tail, err := splitFields(body)
	if err != nil {
		return 0, "", err
	}
	channel, err = strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, "", fmt.Errorf("%w: channel id %q", ErrMalformed, head)
	}
	if channel < 0 || channel >= channels {
		return 0, "", fmt.Errorf("%w: channel id %d out of range", ErrMalformed, channel)
	}
	sessionID = strings.TrimSpace(tail)
	if sessionID == "" || strings.ContainsAny(sessionID, "/\n") {
		return 0, "", fmt.Errorf("%w: session id %q", ErrMalformed, tail)
	}
	return channel, sessionID, nil
}

func encodeCommand(deleteCap, command string) []byte {
	return joinFields(deleteCap, command)
}

func decodeCommand(body []byte) (deleteCap, command string, err error) {
	head, tail, err := splitFields(body)
	if err != nil {
		return "", "", err
	}
	deleteCap = strings.TrimSpace(head)
	if deleteCap == "" {
		return "", "", fmt.Errorf("%w: empty delete capability", ErrMalformed)
	}
	return deleteCap, tail, nil
}
