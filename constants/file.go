package constants

const (
	// ReportFilename is the download and attachment name of the rendered report.
	ReportFilename = "Thesis_Report.pdf"
	ReportMimeType = "application/pdf"

	ReportEmailSubject = "Thesis Report"
	ReportEmailBody    = "Hello,\n\nPlease find attached the analysis report for the submitted thesis.\n"

	// PDFMagic is the header every PDF starts with.
	PDFMagic = "%PDF-"

	XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)
