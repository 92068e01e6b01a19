package cups

import (
	"bytes"
	"context"
	"os/exec"
)

// Runner executes a CUPS client tool and returns its combined output.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools from PATH, or from Dir when set.
type ExecRunner struct {
	Dir string
}

// Run executes name with args, feeding stdin when non-nil.
func (r ExecRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	bin := name
	if r.Dir != "" {
		bin = r.Dir + "/" + name
	}
	// #nosec G204 -- binary names are fixed by this package; args are device/job identifiers
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
