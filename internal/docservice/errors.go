package docservice

import "fmt"

// ConversionError is a permanent failure reported by the conversion service.
// Code is the remote error code so operators can match it against the
// document server's own logs.
type ConversionError struct {
	Code    int
	Message string
}

func (e *ConversionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("conversion failed: %s (code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("conversion failed with code %d", e.Code)
}

// conversionErrorMessages maps the conversion service's error codes to text.
var conversionErrorMessages = map[int]string{
	-1: "unknown error",
	-2: "conversion timeout",
	-3: "conversion error",
	-4: "error while downloading the document file to be converted",
	-5: "incorrect password",
	-6: "error while accessing the conversion result database",
	-7: "input error",
	-8: "invalid token",
	-9: "cannot automatically determine the output file format",
}

func newConversionError(code int) *ConversionError {
	return &ConversionError{Code: code, Message: conversionErrorMessages[code]}
}

// DownloadError is a failure to fetch document bytes. It is distinct from
// ConversionError so callers can produce different user-facing messages.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
