package database

import "errors"

// ErrNotReady indicates the database has not answered a ping since startup.
var ErrNotReady = errors.New("database not ready")
