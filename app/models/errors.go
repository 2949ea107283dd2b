package models

import "errors"

// ErrNonPositiveAmount is returned when a Transaction would be stored with amount <= 0.
var ErrNonPositiveAmount = errors.New("amount must be greater than zero")
