package files

import (
	"context"
	"encoding/base64"

	"github.com/vinayprograms/taskwatch/api"
	"github.com/vinayprograms/taskwatch/errors"
)

// MaxInlineSize is the ceiling for inline attachment data. Larger content
// must go through the two-phase upload instead.
const MaxInlineSize = 1 << 20 // 1 MiB

// Source describes one attachment a caller wants on a task. Exactly one
// of FileID, URL, or Data should be set; Filename is carried on every
// kind and is required for inline data.
type Source struct {
	// FileID references a previously uploaded file.
	FileID string

	// URL references content the service fetches itself.
	URL string

	// Data is inline content, base64-encoded onto the wire.
	Data     []byte
	Filename string
	MimeType string
}

// ResolveAttachment converts a source into its wire form. Inline data
// larger than MaxInlineSize fails with ATTACHMENT_TOO_LARGE before any
// bytes reach the wire; such content belongs in the two-phase upload.
func (m *Manager) ResolveAttachment(ctx context.Context, src Source) (*api.Attachment, error) {
	switch {
	case src.FileID != "":
		return &api.Attachment{FileID: src.FileID, Filename: src.Filename}, nil

	case src.URL != "":
		return &api.Attachment{URL: src.URL, Filename: src.Filename}, nil

	case len(src.Data) > 0:
		if src.Filename == "" {
			return nil, errors.InvalidInput("inline attachment needs a filename")
		}
		if len(src.Data) > MaxInlineSize {
			return nil, errors.AttachmentTooLarge(src.Filename, len(src.Data), MaxInlineSize)
		}
		return &api.Attachment{
			FileData: base64.StdEncoding.EncodeToString(src.Data),
			Filename: src.Filename,
			MimeType: src.MimeType,
		}, nil

	default:
		return nil, errors.InvalidInput("attachment source is empty")
	}
}

// ResolveAttachments converts a slice of sources, failing on the first
// invalid one.
func (m *Manager) ResolveAttachments(ctx context.Context, srcs []Source) ([]api.Attachment, error) {
	if len(srcs) == 0 {
		return nil, nil
	}
	out := make([]api.Attachment, 0, len(srcs))
	for _, src := range srcs {
		att, err := m.ResolveAttachment(ctx, src)
		if err != nil {
			return nil, err
		}
		out = append(out, *att)
	}
	return out, nil
}
