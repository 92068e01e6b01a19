// Package spool holds typed job and device records and the reader that
// produces them from a provider.
package spool

import (
	"time"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// JobRecord is one job observed on a device.
type JobRecord struct {
	Device       string          `json:"device"`
	JobID        int             `json:"job_id"`
	DocumentName string          `json:"document_name"`
	UserName     string          `json:"user_name,omitempty"`
	MachineName  string          `json:"machine_name,omitempty"`
	DataType     string          `json:"data_type,omitempty"`
	StatusCode   uint32          `json:"status_code"`
	Status       status.LabelSet `json:"status"`
	PagesPrinted int             `json:"pages_printed"`
	TotalPages   int             `json:"total_pages"`
	Submitted    *time.Time      `json:"submitted,omitempty"`
	Priority     int             `json:"priority"`
}

// NewJobRecord converts a raw provider job.
func NewJobRecord(device string, raw provider.RawJob) JobRecord {
	var submitted *time.Time
	if raw.Submitted != nil {
		t := raw.Submitted.UTC()
		submitted = &t
	}
	return JobRecord{
		Device:       device,
		JobID:        raw.ID,
		DocumentName: raw.Document,
		UserName:     raw.UserName,
		MachineName:  raw.MachineName,
		DataType:     raw.DataType,
		StatusCode:   raw.Status,
		Status:       status.DecodeJob(raw.Status),
		PagesPrinted: raw.PagesPrinted,
		TotalPages:   raw.TotalPages,
		Submitted:    submitted,
		Priority:     raw.Priority,
	}
}

// DeviceStatus is a point-in-time view of a device.
//
// When the device could not be read, Available is false, Status holds the
// single label "Unknown" and Error carries the cause.
type DeviceStatus struct {
	Device         string          `json:"device"`
	Available      bool            `json:"available"`
	StatusCode     uint32          `json:"status_code"`
	Status         status.LabelSet `json:"status"`
	AttributesCode uint32          `json:"attributes_code"`
	Attributes     status.LabelSet `json:"attributes"`
	Online         bool            `json:"is_online"`
	Ready          bool            `json:"is_ready"`
	JobCount       int             `json:"job_count"`
	ServerName     string          `json:"server_name"`
	ShareName      string          `json:"share_name"`
	PortName       string          `json:"port_name"`
	DriverName     string          `json:"driver_name"`
	Location       string          `json:"location"`
	Comment        string          `json:"comment"`
	CheckedAt      time.Time       `json:"checked_at"`
	Error          string          `json:"error,omitempty"`
}

// LabelUnknown is reported for devices that could not be read.
const LabelUnknown = "Unknown"

// NotAvailable is the identity placeholder used for unreadable devices.
const NotAvailable = "not available"

// NewDeviceStatus converts raw device info.
func NewDeviceStatus(device string, raw *provider.RawDevice, at time.Time) DeviceStatus {
	return DeviceStatus{
		Device:         device,
		Available:      true,
		StatusCode:     raw.Status,
		Status:         status.DecodeDevice(raw.Status),
		AttributesCode: raw.Attributes,
		Attributes:     status.DecodeAttributes(raw.Attributes),
		Online:         status.Online(raw.Status),
		Ready:          status.Ready(raw.Status),
		JobCount:       raw.JobCount,
		ServerName:     raw.ServerName,
		ShareName:      raw.ShareName,
		PortName:       raw.PortName,
		DriverName:     raw.DriverName,
		Location:       raw.Location,
		Comment:        raw.Comment,
		CheckedAt:      at.UTC(),
	}
}

// UnavailableStatus is the fallback status for a device that cannot be read.
func UnavailableStatus(device string, err error, at time.Time) DeviceStatus {
	ds := DeviceStatus{
		Device:     device,
		Status:     status.LabelSet{LabelUnknown},
		Attributes: status.LabelSet{},
		ServerName: NotAvailable,
		ShareName:  NotAvailable,
		PortName:   NotAvailable,
		DriverName: NotAvailable,
		Location:   NotAvailable,
		Comment:    NotAvailable,
		CheckedAt:  at.UTC(),
	}
	if err != nil {
		ds.Error = err.Error()
	}
	return ds
}

// Paper returns the paper interpretation of the status code.
func (d DeviceStatus) Paper() status.PaperStatus {
	return status.PaperReport(d.StatusCode)
}
