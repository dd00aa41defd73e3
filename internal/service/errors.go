package service

import (
	"errors"

	"appideas.app/engine/internal/appstore"
)

var (
	ErrAppNotFound         = appstore.ErrAppNotFound
	ErrEmptyIdea           = errors.New("idea text is empty")
	ErrEntitlementExceeded = errors.New("monthly analysis limit reached")
	ErrRunInFlight         = errors.New("another analysis is already in progress")
	ErrUnsupportedSubject  = errors.New("unsupported subject kind")
)
