package track

// Status is an editing-lifecycle code reported by the document server.
type Status int

const (
	// StatusNotFound means the server has no record of the document key.
	StatusNotFound Status = 0
	// StatusEditing means the document is being edited.
	StatusEditing Status = 1
	// StatusMustSave means editing finished and the result must be saved.
	StatusMustSave Status = 2
	// StatusCorrupted means a save error occurred; the server still hands
	// over its last good copy, which is persisted like a normal save.
	StatusCorrupted Status = 3
	// StatusClosed means the document was closed without changes.
	StatusClosed Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "NotFound"
	case StatusEditing:
		return "Editing"
	case StatusMustSave:
		return "MustSave"
	case StatusCorrupted:
		return "Corrupted"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// RequiresSave reports whether the callback carries content that must be
// persisted.
func (s Status) RequiresSave() bool {
	return s == StatusMustSave || s == StatusCorrupted
}
