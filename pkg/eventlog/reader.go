package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLine bounds a single JSONL line.
const maxLine = 4 << 20

// Read decodes every record from r, calling fn for each. Blank lines are
// skipped. Decoding stops at the first malformed line or fn error.
func Read(r io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("eventlog: line %d: %w", line, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
