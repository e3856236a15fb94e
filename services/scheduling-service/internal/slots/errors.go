package slots

import "errors"

var (
	ErrUnsupportedDuration  = errors.New("duration is not a multiple of slot granularity")
	ErrConflict             = errors.New("slot already booked")
	ErrWindowNotCovered     = errors.New("window not covered by contiguous slots")
	ErrInvalidWindow        = errors.New("window end must be after start")
	ErrMissingAppointmentID = errors.New("appointment id is required")
	ErrInvalidClock         = errors.New("invalid time of day")
	ErrInvalidSelector      = errors.New("doctor, location and date are required")
)
