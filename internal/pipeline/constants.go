package pipeline

// Limits applied to uploaded spreadsheets.
const (
	// PreviewRows is how many decoded rows a preview normalizes.
	PreviewRows = 10

	// DefaultMaxUploadBytes caps an upload when no limit is configured.
	DefaultMaxUploadBytes = 5 * 1024 * 1024
)

// AllowedExtensions lists the accepted spreadsheet file extensions.
var AllowedExtensions = []string{".xlsx", ".xls"}
