// Package delivery hands a rendered report to the user: as a download and as
// one email per recipient.
package delivery

import (
	"github.com/joseph-ayodele/thesislens/constants"
)

// Document is anything that can produce the report bytes.
type Document interface {
	Bytes() []byte
}

// Download is what the HTTP surface streams back.
type Download struct {
	Bytes    []byte
	Filename string
	MimeType string
}

// AsDownload packages a document for download. It never fails and never
// depends on email delivery.
func AsDownload(doc Document) Download {
	return Download{
		Bytes:    doc.Bytes(),
		Filename: constants.ReportFilename,
		MimeType: constants.ReportMimeType,
	}
}
