// Package cups implements the provider interface on top of the CUPS
// command-line clients (lpstat, lp, cancel, cupsenable, cupsdisable).
//
// lpstat does not report page counters, so PagesPrinted and TotalPages are
// always zero for jobs read through this provider.
package cups

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// Config configures a CUPS provider.
type Config struct {
	// BinDir overrides PATH lookup for the CUPS client tools.
	BinDir string

	// Server is passed as -h to every tool when set (host[:port]).
	Server string

	// User is passed as -U when set.
	User string
}

// Provider drives CUPS through its client tools.
type Provider struct {
	cfg    Config
	runner Runner

	mu      sync.Mutex
	open    map[uint64]string
	nextTok uint64
}

// Ensure Provider implements the interfaces.
var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.RawSubmitter = (*Provider)(nil)
	_ provider.Pinger       = (*Provider)(nil)
)

// New creates a provider using os/exec.
func New(cfg Config) *Provider {
	return NewWithRunner(cfg, ExecRunner{Dir: cfg.BinDir})
}

// NewWithRunner creates a provider with an injected runner.
func NewWithRunner(cfg Config, r Runner) *Provider {
	return &Provider{cfg: cfg, runner: r, open: make(map[uint64]string)}
}

// Kind returns provider.KindCUPS.
func (p *Provider) Kind() provider.Kind { return provider.KindCUPS }

// Ping checks that the scheduler answers.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.run(ctx, nil, "lpstat", "-r"); err != nil {
		return p.wrapError("Ping", "", 0, err)
	}
	return nil
}

// ListDevices enumerates printers from `lpstat -v` and `lpstat -l -p`.
func (p *Provider) ListDevices(ctx context.Context) ([]provider.DeviceEntry, error) {
	out, err := p.run(ctx, nil, "lpstat", "-v")
	if err != nil {
		return nil, p.wrapError("ListDevices", "", 0, err)
	}
	uris := parseDeviceURIs(out)

	details := map[string]printerInfo{}
	if out, err := p.run(ctx, nil, "lpstat", "-l", "-p"); err == nil {
		for _, pi := range parsePrinters(out) {
			details[pi.Name] = pi
		}
	}

	entries := make([]provider.DeviceEntry, 0, len(uris))
	for _, u := range uris {
		pi := details[u.Name]
		entries = append(entries, provider.DeviceEntry{
			Name:        u.Name,
			FullName:    u.Name + "," + u.URI,
			Description: pi.Description,
			Flags:       attributesFor(u.URI),
		})
	}
	return entries, nil
}

// Open checks the destination exists and issues a handle.
func (p *Provider) Open(ctx context.Context, device string) (provider.Handle, error) {
	if strings.TrimSpace(device) == "" || strings.ContainsAny(device, " \t/") {
		return provider.Handle{}, p.wrapError("Open", device, 0, provider.ErrDeviceNotFound)
	}
	if _, err := p.run(ctx, nil, "lpstat", "-p", device); err != nil {
		return provider.Handle{}, p.wrapError("Open", device, 0, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTok++
	p.open[p.nextTok] = device
	return provider.Handle{Device: device, Token: p.nextTok}, nil
}

// Close forgets a handle.
func (p *Provider) Close(ctx context.Context, h provider.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.open[h.Token]; !ok {
		return provider.ErrHandleClosed
	}
	delete(p.open, h.Token)
	return nil
}

// EnumerateJobs lists queued jobs in request order.
func (p *Provider) EnumerateJobs(ctx context.Context, h provider.Handle) ([]provider.RawJob, error) {
	if err := p.check(h); err != nil {
		return nil, p.wrapError("EnumerateJobs", h.Device, 0, err)
	}
	out, err := p.run(ctx, nil, "lpstat", "-o", h.Device)
	if err != nil {
		return nil, p.wrapError("EnumerateJobs", h.Device, 0, err)
	}

	active := 0
	if pout, err := p.run(ctx, nil, "lpstat", "-p", h.Device); err == nil {
		if ps := parsePrinters(pout); len(ps) > 0 {
			active = ps[0].ActiveJob
		}
	}

	queued := parseQueue(h.Device, out)
	jobs := make([]provider.RawJob, 0, len(queued))
	for _, q := range queued {
		j := provider.RawJob{
			ID:        q.ID,
			Document:  fmt.Sprintf("%s-%d", h.Device, q.ID),
			UserName:  q.User,
			Submitted: q.Submitted,
			DataType:  "application/octet-stream",
		}
		if q.ID == active {
			j.Status = status.JobPrinting
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// GetJob finds one job in the queue listing.
func (p *Provider) GetJob(ctx context.Context, h provider.Handle, jobID int) (*provider.RawJob, error) {
	jobs, err := p.EnumerateJobs(ctx, h)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == jobID {
			return &jobs[i], nil
		}
	}
	return nil, p.wrapError("GetJob", h.Device, jobID, provider.ErrJobNotFound)
}

// GetDeviceInfo reads `lpstat -l -p` for the device.
func (p *Provider) GetDeviceInfo(ctx context.Context, h provider.Handle) (*provider.RawDevice, error) {
	if err := p.check(h); err != nil {
		return nil, p.wrapError("GetDeviceInfo", h.Device, 0, err)
	}
	out, err := p.run(ctx, nil, "lpstat", "-l", "-p", h.Device)
	if err != nil {
		return nil, p.wrapError("GetDeviceInfo", h.Device, 0, err)
	}
	printers := parsePrinters(out)
	if len(printers) == 0 {
		return nil, p.wrapError("GetDeviceInfo", h.Device, 0, provider.ErrDeviceNotFound)
	}
	pi := printers[0]

	jobCount := 0
	if qout, err := p.run(ctx, nil, "lpstat", "-o", h.Device); err == nil {
		jobCount = len(parseQueue(h.Device, qout))
	}

	uri := ""
	if vout, err := p.run(ctx, nil, "lpstat", "-v", h.Device); err == nil {
		if us := parseDeviceURIs(vout); len(us) > 0 {
			uri = us[0].URI
		}
	}

	return &provider.RawDevice{
		Name:       pi.Name,
		Status:     pi.statusCode(),
		Attributes: attributesFor(uri),
		ServerName: p.cfg.Server,
		ShareName:  pi.Name,
		PortName:   uri,
		DriverName: pi.Interface,
		Location:   pi.Location,
		Comment:    pi.Description,
		JobCount:   jobCount,
	}, nil
}

// SetDeviceControl maps pause/resume/purge onto cupsdisable/cupsenable/cancel -a.
func (p *Provider) SetDeviceControl(ctx context.Context, h provider.Handle, cmd provider.DeviceCommand) error {
	if err := p.check(h); err != nil {
		return p.wrapError("SetDeviceControl", h.Device, 0, err)
	}
	var err error
	switch cmd {
	case provider.DevicePause:
		_, err = p.run(ctx, nil, "cupsdisable", h.Device)
	case provider.DeviceResume:
		_, err = p.run(ctx, nil, "cupsenable", h.Device)
	case provider.DevicePurge:
		_, err = p.run(ctx, nil, "cancel", "-a", h.Device)
	default:
		err = provider.ErrUnsupportedCommand
	}
	if err != nil {
		return p.wrapError("SetDeviceControl", h.Device, 0, err)
	}
	return nil
}

// SetJobControl maps job commands onto cancel and lp -H.
func (p *Provider) SetJobControl(ctx context.Context, h provider.Handle, jobID int, cmd provider.JobCommand) error {
	if err := p.check(h); err != nil {
		return p.wrapError("SetJobControl", h.Device, jobID, err)
	}
	req := h.Device + "-" + strconv.Itoa(jobID)
	var err error
	switch cmd {
	case provider.JobCancel:
		_, err = p.run(ctx, nil, "cancel", req)
	case provider.JobPause:
		_, err = p.run(ctx, nil, "lp", "-i", req, "-H", "hold")
	case provider.JobResume:
		_, err = p.run(ctx, nil, "lp", "-i", req, "-H", "resume")
	case provider.JobRestart:
		_, err = p.run(ctx, nil, "lp", "-i", req, "-H", "restart")
	default:
		err = provider.ErrUnsupportedCommand
	}
	if err != nil {
		return p.wrapError("SetJobControl", h.Device, jobID, err)
	}
	return nil
}

// SubmitRaw queues payload with `lp -o raw`.
func (p *Provider) SubmitRaw(ctx context.Context, h provider.Handle, document string, payload []byte) (int, error) {
	if err := p.check(h); err != nil {
		return 0, p.wrapError("SubmitRaw", h.Device, 0, err)
	}
	if payload == nil {
		payload = []byte{}
	}
	out, err := p.run(ctx, payload, "lp", "-d", h.Device, "-o", "raw", "-t", document)
	if err != nil {
		return 0, p.wrapError("SubmitRaw", h.Device, 0, err)
	}
	id := parseRequestID(out)
	if id == 0 {
		return 0, p.wrapError("SubmitRaw", h.Device, 0, fmt.Errorf("unexpected lp output: %q", strings.TrimSpace(string(out))))
	}
	return id, nil
}

func (p *Provider) check(h provider.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name, ok := p.open[h.Token]; !ok || name != h.Device {
		return provider.ErrHandleClosed
	}
	return nil
}

func (p *Provider) run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	var prefix []string
	if p.cfg.Server != "" {
		prefix = append(prefix, "-h", p.cfg.Server)
	}
	if p.cfg.User != "" {
		prefix = append(prefix, "-U", p.cfg.User)
	}
	out, err := p.runner.Run(ctx, stdin, name, append(prefix, args...)...)
	if err != nil {
		return out, &commandError{Name: name, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return out, nil
}

// commandError is a failed tool invocation.
type commandError struct {
	Name   string
	Output string
	Err    error
}

func (e *commandError) Error() string {
	if e.Output != "" {
		return e.Name + ": " + e.Output
	}
	return e.Name + ": " + e.Err.Error()
}

func (e *commandError) Unwrap() error { return e.Err }

// wrapError converts tool failures to provider errors with sentinel errors.
func (p *Provider) wrapError(op, device string, jobID int, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.KindCUPS, Device: device, JobID: jobID, Err: err}

	var cmdErr *commandError
	if !errors.As(err, &cmdErr) {
		return wrapped
	}
	if errors.Is(cmdErr.Err, exec.ErrNotFound) {
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, cmdErr)
		return wrapped
	}

	msg := strings.ToLower(cmdErr.Output)
	switch {
	case strings.Contains(msg, "unknown destination"), strings.Contains(msg, "invalid destination"):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrDeviceNotFound, cmdErr)
	case jobID != 0 && (strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found") ||
		strings.Contains(msg, "unknown job")):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrJobNotFound, cmdErr)
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrDeviceNotFound, cmdErr)
	case strings.Contains(msg, "forbidden"), strings.Contains(msg, "not-authorized"),
		strings.Contains(msg, "not authorized"), strings.Contains(msg, "permission denied"):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrAccessDenied, cmdErr)
	case strings.Contains(msg, "scheduler is not running"), strings.Contains(msg, "unable to connect"),
		strings.Contains(msg, "connection refused"):
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, cmdErr)
	}
	return wrapped
}

// attributesFor derives attribute bits from a device URI.
func attributesFor(uri string) uint32 {
	attrs := status.AttrQueued
	scheme, _, _ := strings.Cut(uri, ":")
	switch scheme {
	case "ipp", "ipps", "http", "https", "dnssd", "lpd", "socket", "smb":
		attrs |= status.AttrNetwork
		if scheme == "ipp" || scheme == "ipps" {
			attrs |= status.AttrIPPWSD
		}
	case "":
	default:
		attrs |= status.AttrLocal
	}
	return attrs
}
