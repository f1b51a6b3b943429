package storage

// Package storage keeps the capture and export history.
//
// Both drivers bound the history to the newest Keep entries per camera or
// export name; history is a diagnostic trail, not an archive.
