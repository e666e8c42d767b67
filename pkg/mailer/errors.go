package mailer

import "errors"

var (
	ErrFailedToSend  = errors.New("mailer.failed_to_send")
	ErrInvalidConfig = errors.New("mailer.invalid_config")
	ErrInvalidParams = errors.New("mailer.invalid_params")
)
