package cmd

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/3leaps/spoolwatch/pkg/status"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var jsonLineEncoder = json.NewEncoder(os.Stdout)

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatLabels(l status.LabelSet) string {
	if len(l) == 0 {
		return "-"
	}
	return strings.Join(l, ",")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// parseJobIDs accepts "5,7 9" style lists.
func parseJobIDs(args []string) ([]int, error) {
	var ids []int
	for _, arg := range args {
		for _, part := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.Atoi(part)
			if err != nil || id <= 0 {
				return nil, &invalidJobIDError{raw: part}
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type invalidJobIDError struct{ raw string }

func (e *invalidJobIDError) Error() string { return "invalid job id " + strconv.Quote(e.raw) }
