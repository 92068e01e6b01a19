package status

// PaperStatus summarizes paper-related bits of a device status code.
type PaperStatus struct {
	Available bool `json:"paper_available"`
	Out       bool `json:"paper_out"`
	Jammed    bool `json:"paper_jam"`
	Low       bool `json:"paper_low"`
}

// Fault reports whether the status describes any paper problem.
func (p PaperStatus) Fault() bool {
	return !p.Available || p.Low
}

// PaperReport interprets the paper bits of a device status code.
//
// A paper-problem bit alone does not make paper unavailable; it is reported
// as low paper.
func PaperReport(code uint32) PaperStatus {
	p := PaperStatus{Available: true}
	if code&DevicePaperOut != 0 {
		p.Out = true
		p.Available = false
	}
	if code&DevicePaperJam != 0 {
		p.Jammed = true
		p.Available = false
	}
	if code&DevicePaperProblem != 0 {
		p.Low = true
	}
	return p
}
