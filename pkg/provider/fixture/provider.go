// Package fixture implements an in-memory spooler for tests and demos.
//
// The spooler holds devices and jobs in insertion order, accepts control
// commands, and can be mutated while monitor sessions read from it.
package fixture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// Operation names accepted by FailNext.
const (
	OpListDevices      = "ListDevices"
	OpOpen             = "Open"
	OpClose            = "Close"
	OpEnumerateJobs    = "EnumerateJobs"
	OpGetJob           = "GetJob"
	OpGetDeviceInfo    = "GetDeviceInfo"
	OpSetDeviceControl = "SetDeviceControl"
	OpSetJobControl    = "SetJobControl"
	OpSubmitRaw        = "SubmitRaw"
)

// Spooler is a scripted, concurrency-safe provider.
type Spooler struct {
	mu      sync.Mutex
	devices []*Device
	open    map[uint64]string
	nextTok uint64
	failing map[string][]error
	calls   map[string]int

	// Now stamps submitted jobs. Defaults to time.Now.
	Now func() time.Time
}

// Ensure Spooler implements the interfaces.
var (
	_ provider.Provider     = (*Spooler)(nil)
	_ provider.RawSubmitter = (*Spooler)(nil)
	_ provider.Pinger       = (*Spooler)(nil)
)

// New creates a spooler seeded from st. A nil state yields an empty spooler.
func New(st *State) *Spooler {
	s := &Spooler{
		open:    make(map[uint64]string),
		failing: make(map[string][]error),
		calls:   make(map[string]int),
		Now:     time.Now,
	}
	if st != nil {
		for _, d := range st.Devices {
			s.AddDevice(d)
		}
	}
	return s
}

// Kind returns provider.KindFixture.
func (s *Spooler) Kind() provider.Kind { return provider.KindFixture }

// AddDevice registers a device, replacing any device with the same name.
func (s *Spooler) AddDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := d
	cp.Jobs = append([]Job(nil), d.Jobs...)
	for i, existing := range s.devices {
		if existing.Name == d.Name {
			s.devices[i] = &cp
			return
		}
	}
	s.devices = append(s.devices, &cp)
}

// SetDeviceStatus overwrites a device's status code.
func (s *Spooler) SetDeviceStatus(device string, code uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device(device)
	if d == nil {
		return provider.ErrDeviceNotFound
	}
	d.Status = code
	return nil
}

// AddJob queues a job. A zero ID is assigned the next free id.
func (s *Spooler) AddJob(device string, job Job) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device(device)
	if d == nil {
		return 0, provider.ErrDeviceNotFound
	}
	if job.ID == 0 {
		job.ID = nextJobID(d)
	}
	if indexOf(d, job.ID) >= 0 {
		return 0, fmt.Errorf("job %d already queued on %s", job.ID, device)
	}
	if job.ID > d.lastID {
		d.lastID = job.ID
	}
	d.Jobs = append(d.Jobs, job)
	return job.ID, nil
}

// UpdateJob applies fn to a queued job.
func (s *Spooler) UpdateJob(device string, jobID int, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device(device)
	if d == nil {
		return provider.ErrDeviceNotFound
	}
	i := indexOf(d, jobID)
	if i < 0 {
		return provider.ErrJobNotFound
	}
	fn(&d.Jobs[i])
	d.Jobs[i].ID = jobID
	return nil
}

// RemoveJob dequeues a job.
func (s *Spooler) RemoveJob(device string, jobID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device(device)
	if d == nil {
		return provider.ErrDeviceNotFound
	}
	i := indexOf(d, jobID)
	if i < 0 {
		return provider.ErrJobNotFound
	}
	d.Jobs = append(d.Jobs[:i], d.Jobs[i+1:]...)
	return nil
}

// Jobs returns a copy of the device queue.
func (s *Spooler) Jobs(device string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device(device)
	if d == nil {
		return nil
	}
	return append([]Job(nil), d.Jobs...)
}

// FailNext makes the next call to op return err. Calls queue in order.
func (s *Spooler) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[op] = append(s.failing[op], err)
}

// Calls returns how many times op has been invoked.
func (s *Spooler) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// OpenHandles returns the number of handles not yet closed.
func (s *Spooler) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Advance moves every unpaused job on device forward one page. Jobs that
// reach their total page count are removed from the queue.
func (s *Spooler) Advance(device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.device(device)
	if d == nil {
		return provider.ErrDeviceNotFound
	}
	if d.Status&status.DevicePaused != 0 {
		return nil
	}

	kept := d.Jobs[:0]
	for _, j := range d.Jobs {
		if j.Status&status.JobPaused == 0 {
			j.Status |= status.JobPrinting
			j.PagesPrinted++
		}
		if j.TotalPages > 0 && j.PagesPrinted >= j.TotalPages {
			continue
		}
		kept = append(kept, j)
	}
	d.Jobs = kept
	return nil
}

// Simulate calls Advance on every device each interval until ctx is done.
func (s *Spooler) Simulate(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range s.deviceNames() {
				_ = s.Advance(name)
			}
		}
	}
}

// Ping always succeeds unless a failure is queued.
func (s *Spooler) Ping(ctx context.Context) error {
	return s.enter("Ping")
}

// ListDevices enumerates devices in insertion order.
func (s *Spooler) ListDevices(ctx context.Context) ([]provider.DeviceEntry, error) {
	if err := s.enter(OpListDevices); err != nil {
		return nil, s.wrap(OpListDevices, "", 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]provider.DeviceEntry, 0, len(s.devices))
	for _, d := range s.devices {
		full := d.FullName
		if full == "" {
			full = strings.Join([]string{d.Name, d.Driver, d.Location}, ",")
		}
		out = append(out, provider.DeviceEntry{
			Name:        d.Name,
			FullName:    full,
			Description: d.Description,
			Flags:       d.Attributes,
		})
	}
	return out, nil
}

// Open issues a handle for device.
func (s *Spooler) Open(ctx context.Context, device string) (provider.Handle, error) {
	if err := ctx.Err(); err != nil {
		return provider.Handle{}, err
	}
	if err := s.enter(OpOpen); err != nil {
		return provider.Handle{}, s.wrap(OpOpen, device, 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device(device) == nil {
		return provider.Handle{}, s.wrap(OpOpen, device, 0, provider.ErrDeviceNotFound)
	}
	s.nextTok++
	s.open[s.nextTok] = device
	return provider.Handle{Device: device, Token: s.nextTok}, nil
}

// Close releases a handle. Closing an unknown handle returns ErrHandleClosed.
func (s *Spooler) Close(ctx context.Context, h provider.Handle) error {
	if err := s.enter(OpClose); err != nil {
		return s.wrap(OpClose, h.Device, 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.open[h.Token]; !ok {
		return provider.ErrHandleClosed
	}
	delete(s.open, h.Token)
	return nil
}

// EnumerateJobs returns the queue in submission order.
func (s *Spooler) EnumerateJobs(ctx context.Context, h provider.Handle) ([]provider.RawJob, error) {
	if err := s.enter(OpEnumerateJobs); err != nil {
		return nil, s.wrap(OpEnumerateJobs, h.Device, 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.resolve(h)
	if err != nil {
		return nil, s.wrap(OpEnumerateJobs, h.Device, 0, err)
	}
	out := make([]provider.RawJob, 0, len(d.Jobs))
	for _, j := range d.Jobs {
		out = append(out, toRaw(j))
	}
	return out, nil
}

// GetJob returns one job.
func (s *Spooler) GetJob(ctx context.Context, h provider.Handle, jobID int) (*provider.RawJob, error) {
	if err := s.enter(OpGetJob); err != nil {
		return nil, s.wrap(OpGetJob, h.Device, jobID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.resolve(h)
	if err != nil {
		return nil, s.wrap(OpGetJob, h.Device, jobID, err)
	}
	i := indexOf(d, jobID)
	if i < 0 {
		return nil, s.wrap(OpGetJob, h.Device, jobID, provider.ErrJobNotFound)
	}
	raw := toRaw(d.Jobs[i])
	return &raw, nil
}

// GetDeviceInfo returns device identity and status.
func (s *Spooler) GetDeviceInfo(ctx context.Context, h provider.Handle) (*provider.RawDevice, error) {
	if err := s.enter(OpGetDeviceInfo); err != nil {
		return nil, s.wrap(OpGetDeviceInfo, h.Device, 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.resolve(h)
	if err != nil {
		return nil, s.wrap(OpGetDeviceInfo, h.Device, 0, err)
	}
	return &provider.RawDevice{
		Name:       d.Name,
		Status:     d.Status,
		Attributes: d.Attributes,
		ServerName: d.Server,
		ShareName:  d.Share,
		PortName:   d.Port,
		DriverName: d.Driver,
		Location:   d.Location,
		Comment:    d.Comment,
		JobCount:   len(d.Jobs),
	}, nil
}

// SetDeviceControl pauses, resumes, or purges the device.
func (s *Spooler) SetDeviceControl(ctx context.Context, h provider.Handle, cmd provider.DeviceCommand) error {
	if err := s.enter(OpSetDeviceControl); err != nil {
		return s.wrap(OpSetDeviceControl, h.Device, 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.resolve(h)
	if err != nil {
		return s.wrap(OpSetDeviceControl, h.Device, 0, err)
	}
	if d.ReadOnly {
		return s.wrap(OpSetDeviceControl, h.Device, 0, provider.ErrAccessDenied)
	}
	switch cmd {
	case provider.DevicePause:
		d.Status |= status.DevicePaused
	case provider.DeviceResume:
		d.Status &^= status.DevicePaused
	case provider.DevicePurge:
		d.Jobs = nil
	default:
		return s.wrap(OpSetDeviceControl, h.Device, 0, provider.ErrUnsupportedCommand)
	}
	return nil
}

// SetJobControl cancels, pauses, resumes, or restarts a job.
func (s *Spooler) SetJobControl(ctx context.Context, h provider.Handle, jobID int, cmd provider.JobCommand) error {
	if err := s.enter(OpSetJobControl); err != nil {
		return s.wrap(OpSetJobControl, h.Device, jobID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.resolve(h)
	if err != nil {
		return s.wrap(OpSetJobControl, h.Device, jobID, err)
	}
	if d.ReadOnly {
		return s.wrap(OpSetJobControl, h.Device, jobID, provider.ErrAccessDenied)
	}
	i := indexOf(d, jobID)
	if i < 0 {
		return s.wrap(OpSetJobControl, h.Device, jobID, provider.ErrJobNotFound)
	}
	switch cmd {
	case provider.JobCancel:
		d.Jobs = append(d.Jobs[:i], d.Jobs[i+1:]...)
	case provider.JobPause:
		d.Jobs[i].Status |= status.JobPaused
	case provider.JobResume:
		d.Jobs[i].Status &^= status.JobPaused
	case provider.JobRestart:
		d.Jobs[i].Status = status.JobRestart
		d.Jobs[i].PagesPrinted = 0
	default:
		return s.wrap(OpSetJobControl, h.Device, jobID, provider.ErrUnsupportedCommand)
	}
	return nil
}

// SubmitRaw queues a RAW job of one page.
func (s *Spooler) SubmitRaw(ctx context.Context, h provider.Handle, document string, payload []byte) (int, error) {
	if err := s.enter(OpSubmitRaw); err != nil {
		return 0, s.wrap(OpSubmitRaw, h.Device, 0, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.resolve(h)
	if err != nil {
		return 0, s.wrap(OpSubmitRaw, h.Device, 0, err)
	}
	now := s.Now().UTC()
	id := nextJobID(d)
	d.Jobs = append(d.Jobs, Job{
		ID:         id,
		Document:   document,
		Status:     status.JobSpooling,
		TotalPages: 1,
		Submitted:  &now,
		DataType:   "RAW",
		Priority:   1,
	})
	return id, nil
}

func (s *Spooler) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	queue := s.failing[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.failing[op] = queue[1:]
	return err
}

func (s *Spooler) wrap(op, device string, jobID int, err error) error {
	return &provider.ProviderError{Op: op, Provider: provider.KindFixture, Device: device, JobID: jobID, Err: err}
}

// resolve must be called with s.mu held.
func (s *Spooler) resolve(h provider.Handle) (*Device, error) {
	name, ok := s.open[h.Token]
	if !ok || name != h.Device {
		return nil, provider.ErrHandleClosed
	}
	d := s.device(name)
	if d == nil {
		return nil, provider.ErrDeviceNotFound
	}
	return d, nil
}

// device must be called with s.mu held.
func (s *Spooler) device(name string) *Device {
	for _, d := range s.devices {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func (s *Spooler) deviceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.Name)
	}
	return out
}

func indexOf(d *Device, jobID int) int {
	for i, j := range d.Jobs {
		if j.ID == jobID {
			return i
		}
	}
	return -1
}

// nextJobID never hands out an id lower than one already issued on d.
func nextJobID(d *Device) int {
	high := d.lastID
	for _, j := range d.Jobs {
		if j.ID > high {
			high = j.ID
		}
	}
	d.lastID = high + 1
	return d.lastID
}

func toRaw(j Job) provider.RawJob {
	var submitted *time.Time
	if j.Submitted != nil {
		t := *j.Submitted
		submitted = &t
	}
	return provider.RawJob{
		ID:           j.ID,
		Document:     j.Document,
		Status:       j.Status,
		PagesPrinted: j.PagesPrinted,
		TotalPages:   j.TotalPages,
		Submitted:    submitted,
		UserName:     j.User,
		MachineName:  j.Machine,
		DataType:     j.DataType,
		Priority:     j.Priority,
	}
}
