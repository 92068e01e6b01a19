package cups

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/spoolwatch/pkg/status"
)

// printerInfo is what `lpstat -l -p <name>` reports for one printer.
type printerInfo struct {
	Name        string
	State       string // idle, printing, disabled
	ActiveJob   int
	Reasons     []string
	Description string
	Location    string
	Connection  string
	Interface   string
}

// reasonBits maps CUPS printer-state-reasons keywords onto device status bits.
// Keywords may carry a -report, -warning or -error suffix.
var reasonBits = map[string]uint32{
	"paused":               status.DevicePaused,
	"media-empty":          status.DevicePaperOut,
	"media-needed":         status.DevicePaperOut,
	"media-jam":            status.DevicePaperJam,
	"media-low":            status.DevicePaperProblem,
	"offline":              status.DeviceOffline,
	"connecting-to-device": status.DeviceWaiting,
	"toner-low":            status.DeviceTonerLow,
	"marker-supply-low":    status.DeviceTonerLow,
	"toner-empty":          status.DeviceNoToner,
	"marker-supply-empty":  status.DeviceNoToner,
	"door-open":            status.DeviceDoorOpen,
	"cover-open":           status.DeviceDoorOpen,
	"output-area-full":     status.DeviceOutputBinFull,
	"moving-to-paused":     status.DevicePaused,
	"timed-out":            status.DeviceNotAvailable,
	"shutdown":             status.DeviceNotAvailable,
	"spool-area-full":      status.DeviceOutOfMemory,
	"other":                status.DeviceError,
	"cups-missing-filter":  status.DeviceError,
	"cups-insecure-filter": status.DeviceError,
	"manual-feed":          status.DeviceManualFeed,
	"input-tray-missing":   status.DevicePaperProblem,
	"interlock-open":       status.DeviceDoorOpen,
	"developer-low":        status.DeviceTonerLow,
	"opc-near-eol":         status.DeviceUserIntervention,
	"fuser-over-temp":      status.DeviceError,
	"fuser-under-temp":     status.DeviceWarmingUp,
	"power-save":           status.DevicePowerSave,
}

// statusCode folds a printerInfo into device status bits.
func (p printerInfo) statusCode() uint32 {
	var code uint32
	switch p.State {
	case "printing":
		code |= status.DevicePrinting
	case "disabled":
		code |= status.DevicePaused
	}
	for _, r := range p.Reasons {
		r = reasonKeyword(r)
		if r == "none" {
			continue
		}
		code |= reasonBits[r]
	}
	return code
}

func reasonKeyword(r string) string {
	for _, suffix := range []string{"-report", "-warning", "-error"} {
		if k, ok := strings.CutSuffix(r, suffix); ok {
			return k
		}
	}
	return r
}

// parsePrinters parses `lpstat -l -p` output.
//
//	printer Office is idle.  enabled since Mon 15 Jan 2024 10:00:00 AM UTC
//	printer Lab now printing Lab-12.  enabled since ...
//	printer Old disabled since Mon 15 Jan 2024 -
//		Paused
//		Alerts: media-empty-error offline-report
//		Description: Old laser
//		Location: Basement
//		Connection: direct
//		Interface: /etc/cups/ppd/Old.ppd
func parsePrinters(out []byte) []printerInfo {
	var printers []printerInfo
	var cur *printerInfo

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "printer ") {
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			printers = append(printers, printerInfo{Name: fields[1]})
			cur = &printers[len(printers)-1]
			switch {
			case fields[2] == "is" && len(fields) > 3 && strings.HasPrefix(fields[3], "idle"):
				cur.State = "idle"
			case fields[2] == "now" && len(fields) > 4 && fields[3] == "printing":
				cur.State = "printing"
				cur.ActiveJob = jobIDFromRequest(strings.TrimSuffix(fields[4], "."))
			case fields[2] == "disabled":
				cur.State = "disabled"
			}
			continue
		}
		if cur == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Alerts":
			cur.Reasons = append(cur.Reasons, strings.Fields(value)...)
		case "Description":
			cur.Description = value
		case "Location":
			cur.Location = value
		case "Connection":
			cur.Connection = value
		case "Interface":
			cur.Interface = value
		}
	}
	return printers
}

// deviceURI is one `lpstat -v` row.
type deviceURI struct {
	Name string
	URI  string
}

// parseDeviceURIs parses `lpstat -v` output.
//
//	device for Office: ipp://printhost/printers/Office
func parseDeviceURIs(out []byte) []deviceURI {
	var devices []deviceURI
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		rest, ok := strings.CutPrefix(line, "device for ")
		if !ok {
			continue
		}
		name, uri, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		devices = append(devices, deviceURI{Name: strings.TrimSpace(name), URI: strings.TrimSpace(uri)})
	}
	return devices
}

// queuedJob is one `lpstat -o` row.
type queuedJob struct {
	ID        int
	User      string
	Size      int64
	Submitted *time.Time
}

// lpstatTimeLayouts covers the common C and en_US locale date formats.
var lpstatTimeLayouts = []string{
	"Mon 02 Jan 2006 03:04:05 PM MST",
	"Mon Jan _2 15:04:05 2006",
	"Mon 02 Jan 2006 15:04:05 MST",
	"Mon _2 Jan 2006 03:04:05 PM MST",
}

// parseQueue parses `lpstat -o <dest>` output.
//
//	Office-12               alice             1024   Mon 15 Jan 2024 10:00:00 AM UTC
func parseQueue(dest string, out []byte) []queuedJob {
	var jobs []queuedJob
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		req := fields[0]
		if dest != "" && !strings.HasPrefix(req, dest+"-") {
			continue
		}
		id := jobIDFromRequest(req)
		if id <= 0 {
			continue
		}
		size, _ := strconv.ParseInt(fields[2], 10, 64)
		j := queuedJob{ID: id, User: fields[1], Size: size}
		if len(fields) > 3 {
			raw := strings.Join(fields[3:], " ")
			for _, layout := range lpstatTimeLayouts {
				if t, err := time.Parse(layout, raw); err == nil {
					utc := t.UTC()
					j.Submitted = &utc
					break
				}
			}
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// jobIDFromRequest extracts 12 from "Office-12".
func jobIDFromRequest(req string) int {
	i := strings.LastIndex(req, "-")
	if i < 0 || i == len(req)-1 {
		return 0
	}
	id, err := strconv.Atoi(req[i+1:])
	if err != nil {
		return 0
	}
	return id
}

// parseRequestID extracts the job id from `lp` output.
//
//	request id is Office-13 (1 file(s))
func parseRequestID(out []byte) int {
	s := string(out)
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "request id is ")
	if !ok {
		return 0
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0
	}
	return jobIDFromRequest(fields[0])
}
