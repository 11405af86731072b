package bitmap

import "errors"

// Failure classes. Errors returned by this package wrap one of these and
// the underlying cause, so both can be matched with errors.Is.
var (
	// ErrResolution means the file or URL could not be found or reached.
	ErrResolution = errors.New("bitmap: source not resolved")

	// ErrDecode means the content is corrupt or in an unsupported format.
	ErrDecode = errors.New("bitmap: decode failed")

	// ErrFormatMismatch means an accessor did not match the buffer format.
	ErrFormatMismatch = errors.New("bitmap: pixel format mismatch")

	// ErrGPUUpload means the graphics device rejected the operation.
	ErrGPUUpload = errors.New("bitmap: gpu upload failed")

	// ErrPrecondition means the image is not in a state that allows the
	// operation, such as uploading with no pixel data present.
	ErrPrecondition = errors.New("bitmap: precondition failed")
)
