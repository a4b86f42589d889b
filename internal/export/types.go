// Package export renders lessons to PDF for offline distribution.
package export

import "errors"

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser runtime is not
// installed on this host.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
