package reminder

import "errors"

var (
	ErrNotFound        = errors.New("event not found")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrDeliveryFailed  = errors.New("delivery failed")
	ErrEventExists     = errors.New("event already exists")
)
