package client

import (
	"bufio"
	"io"
	"strings"
)

// scanSSE reads "data:"-prefixed records off a server-sent-event body and
// hands each payload to fn. Comment lines (keepalives) and blank separators
// are skipped. fn owns payload validation; an unparsable record must not
// stop the scan.
func scanSSE(body io.Reader, fn func(payload string)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "" {
			continue
		}
		fn(payload)
	}
	return scanner.Err()
}
