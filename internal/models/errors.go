package models

import "errors"

// ErrNotFound is returned by stores when a headline id does not exist.
var ErrNotFound = errors.New("headline not found")
