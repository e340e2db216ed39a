// Package files manages task attachments and the service's two-phase
// file upload.
//
// Uploading is register-then-put: RegisterUpload creates a file record and
// returns a presigned URL, UploadContent PUTs the bytes before the URL
// expires. The expiry is checked locally (with a skew margin) before every
// network attempt, so a stale URL fails fast with UPLOAD_EXPIRED. Records
// are single-use.
//
// Attachment sources resolve to one of three wire shapes: a file ID from a
// prior upload, a URL the service fetches itself, or inline base64 data
// capped at MaxInlineSize.
//
//	mgr := files.NewManager(transport, state.NewMemoryStore())
//	fileID, err := mgr.Upload(ctx, "report.pdf", content)
//	att, err := mgr.ResolveAttachment(ctx, files.Source{FileID: fileID})
package files
