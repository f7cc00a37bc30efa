package config

import "github.com/faucetdb/schemaguard/internal/errs"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errs.ErrNotFound
