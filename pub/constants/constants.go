package constants

const ImportInprog = "In-Progress"
const ImportComplete = "Completed"
const ImportFail = "Failed"

// NACHA structural constants shared by the reader and writer.
const (
	NachaLineLength     = 94
	NachaBlockingFactor = 10
)

// Timestamp prefix shared by every file in a claims-system extract date group.
const ExtractTimestampFormat = "2006-01-02-15-04-05"

// Date format used in claims-system extract rows and the writeback file.
const ExtractDateFormat = "2006-01-02"

// This is set during compilation. See the build scripts in the ops repo.
var Version = "latest"
