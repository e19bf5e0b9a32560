package notifications

import "errors"

var (
	// ErrInvalidNotificationType is returned for a kind outside mention, like and reply
	ErrInvalidNotificationType = errors.New("invalid notification type")

	// ErrInvalidFrequency is returned for a digest frequency other than daily or weekly
	ErrInvalidFrequency = errors.New("invalid digest frequency")

	// ErrDelivery wraps email transport failures
	ErrDelivery = errors.New("email delivery failed")
)
