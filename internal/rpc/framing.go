package rpc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MalformedMessageError reports an envelope or frame that could not be
// understood. It is recovered locally: logged, dropped, and never fatal to
// the session.
type MalformedMessageError struct {
	Raw    []byte
	Reason string
}

// Error implements the error interface
func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message (%s): %q", e.Reason, truncate(e.Raw, 256))
}

// WriteMessage frames a message body with the LSP base-protocol header and
// writes it in a single call so concurrent writers cannot interleave frames.
func WriteMessage(w io.Writer, body []byte) error {
	frame := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	_, err := io.WriteString(w, frame)
	return err
}

// ReadMessage reads one framed message body from the reader. Unknown headers
// are skipped; a frame with no Content-Length yields a MalformedMessageError
// so the caller can drop it and keep reading.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &MalformedMessageError{Raw: []byte(line), Reason: "invalid header line"}
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, &MalformedMessageError{Raw: []byte(line), Reason: "invalid Content-Length"}
			}
			length = n
		}
	}
	if length < 0 {
		return nil, &MalformedMessageError{Reason: "missing Content-Length header"}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
