package status

// Device status bits as reported by the host spooler.
const (
	DevicePaused           uint32 = 0x00000001
	DeviceError            uint32 = 0x00000002
	DevicePendingDeletion  uint32 = 0x00000004
	DevicePaperJam         uint32 = 0x00000008
	DevicePaperOut         uint32 = 0x00000010
	DeviceManualFeed       uint32 = 0x00000020
	DevicePaperProblem     uint32 = 0x00000040
	DeviceOffline          uint32 = 0x00000080
	DeviceIOActive         uint32 = 0x00000100
	DeviceBusy             uint32 = 0x00000200
	DevicePrinting         uint32 = 0x00000400
	DeviceOutputBinFull    uint32 = 0x00000800
	DeviceNotAvailable     uint32 = 0x00001000
	DeviceWaiting          uint32 = 0x00002000
	DeviceProcessing       uint32 = 0x00004000
	DeviceInitializing     uint32 = 0x00008000
	DeviceWarmingUp        uint32 = 0x00010000
	DeviceTonerLow         uint32 = 0x00020000
	DeviceNoToner          uint32 = 0x00040000
	DevicePagePunt         uint32 = 0x00080000
	DeviceUserIntervention uint32 = 0x00100000
	DeviceOutOfMemory      uint32 = 0x00200000
	DeviceDoorOpen         uint32 = 0x00400000
	DeviceServerUnknown    uint32 = 0x00800000
	DevicePowerSave        uint32 = 0x01000000
)

// Device attribute bits.
const (
	AttrQueued          uint32 = 0x00000001
	AttrDirect          uint32 = 0x00000002
	AttrDefault         uint32 = 0x00000004
	AttrShared          uint32 = 0x00000008
	AttrNetwork         uint32 = 0x00000010
	AttrHidden          uint32 = 0x00000020
	AttrLocal           uint32 = 0x00000040
	AttrEnableDevQ      uint32 = 0x00000080
	AttrKeepPrintedJobs uint32 = 0x00000100
	AttrDoCompleteFirst uint32 = 0x00000200
	AttrWorkOffline     uint32 = 0x00000400
	AttrEnableBidi      uint32 = 0x00000800
	AttrRawOnly         uint32 = 0x00001000
	AttrPublished       uint32 = 0x00002000
	AttrFax             uint32 = 0x00004000
	AttrPushedUser      uint32 = 0x00008000
	AttrPushedMachine   uint32 = 0x00010000
	AttrMachine         uint32 = 0x00020000
	AttrFriendlyName    uint32 = 0x00040000
	AttrIPPWSD          uint32 = 0x00800000
)

// Job status bits.
const (
	JobPaused           uint32 = 0x00000001
	JobError            uint32 = 0x00000002
	JobDeleting         uint32 = 0x00000004
	JobSpooling         uint32 = 0x00000008
	JobPrinting         uint32 = 0x00000010
	JobOffline          uint32 = 0x00000020
	JobPaperOut         uint32 = 0x00000040
	JobPrinted          uint32 = 0x00000080
	JobDeleted          uint32 = 0x00000100
	JobBlockedDevQ      uint32 = 0x00000200
	JobUserIntervention uint32 = 0x00000400
	JobRestart          uint32 = 0x00000800
	JobComplete         uint32 = 0x00001000
)

// Sentinel labels.
const (
	LabelReady  = "Ready"
	LabelQueued = "Queued"
)

// DeviceStatusMapping decodes device status codes.
var DeviceStatusMapping = Mapping{
	Name:     "device_status",
	Sentinel: LabelReady,
	Flags: []Flag{
		{DevicePaused, "Paused"},
		{DeviceError, "Error"},
		{DevicePendingDeletion, "Pending Deletion"},
		{DevicePaperJam, "Paper Jam"},
		{DevicePaperOut, "Paper Out"},
		{DeviceManualFeed, "Manual Feed"},
		{DevicePaperProblem, "Paper Problem"},
		{DeviceOffline, "Offline"},
		{DeviceIOActive, "IO Active"},
		{DeviceBusy, "Busy"},
		{DevicePrinting, "Printing"},
		{DeviceOutputBinFull, "Output Bin Full"},
		{DeviceNotAvailable, "Not Available"},
		{DeviceWaiting, "Waiting"},
		{DeviceProcessing, "Processing"},
		{DeviceInitializing, "Initializing"},
		{DeviceWarmingUp, "Warming Up"},
		{DeviceTonerLow, "Toner Low"},
		{DeviceNoToner, "No Toner"},
		{DevicePagePunt, "Page Punt"},
		{DeviceUserIntervention, "User Intervention"},
		{DeviceOutOfMemory, "Out of Memory"},
		{DeviceDoorOpen, "Door Open"},
		{DeviceServerUnknown, "Server Unknown"},
		{DevicePowerSave, "Power Save"},
	},
}

// DeviceAttributeMapping decodes device attribute codes. It has no sentinel.
var DeviceAttributeMapping = Mapping{
	Name: "device_attributes",
	Flags: []Flag{
		{AttrQueued, "Queued"},
		{AttrDirect, "Direct"},
		{AttrDefault, "Default"},
		{AttrShared, "Shared"},
		{AttrNetwork, "Network"},
		{AttrHidden, "Hidden"},
		{AttrLocal, "Local"},
		{AttrEnableDevQ, "Enable DevQ"},
		{AttrKeepPrintedJobs, "Keep Printed Jobs"},
		{AttrDoCompleteFirst, "Do Complete First"},
		{AttrWorkOffline, "Work Offline"},
		{AttrEnableBidi, "Enable BIDI"},
		{AttrRawOnly, "Raw Only"},
		{AttrPublished, "Published"},
		{AttrFax, "Fax"},
		{AttrPushedUser, "Pushed User"},
		{AttrPushedMachine, "Pushed Machine"},
		{AttrMachine, "Machine"},
		{AttrFriendlyName, "Friendly Name"},
		{AttrIPPWSD, "IPP/WSD"},
	},
}

// JobStatusMapping decodes job status codes.
var JobStatusMapping = Mapping{
	Name:     "job_status",
	Sentinel: LabelQueued,
	Flags: []Flag{
		{JobPaused, "Paused"},
		{JobError, "Error"},
		{JobDeleting, "Deleting"},
		{JobSpooling, "Spooling"},
		{JobPrinting, "Printing"},
		{JobOffline, "Offline"},
		{JobPaperOut, "Paper Out"},
		{JobPrinted, "Printed"},
		{JobDeleted, "Deleted"},
		{JobBlockedDevQ, "Blocked DevQ"},
		{JobUserIntervention, "User Intervention"},
		{JobRestart, "Restart"},
		{JobComplete, "Complete"},
	},
}
