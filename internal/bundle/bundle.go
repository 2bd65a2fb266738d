// Package bundle renders a bucket as a plain-text summary or a zip archive.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/abduss/dropbucket/internal/blob"
	"github.com/abduss/dropbucket/internal/bucket"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

const (
	readmeName     = "README.md"
	maxReadmeBytes = 1 << 20
	timeLayout     = "2006-01-02 15:04:05Z"
)

type detailSource interface {
	Get(ctx context.Context, id string) (*bucket.Detail, error)
}

// Builder assembles summaries and archives from the lifecycle manager's view
// of a bucket and the stored content.
type Builder struct {
	buckets detailSource
	store   blob.Store
}

// NewBuilder constructs a Builder.
func NewBuilder(buckets detailSource, store blob.Store) *Builder {
	return &Builder{buckets: buckets, store: store}
}

// BuildSummary renders a markdown-flavoured text summary of a bucket. The
// boolean is false when the bucket does not exist.
func (b *Builder) BuildSummary(ctx context.Context, id string) (string, bool, error) {
	detail, err := b.buckets.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if detail == nil {
		return "", false, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", detail.Name)
	if detail.Description != nil && *detail.Description != "" {
		fmt.Fprintf(&sb, "%s\n", *detail.Description)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Bucket ID: %s\n", detail.ID)
	if detail.Purpose != nil && *detail.Purpose != "" {
		fmt.Fprintf(&sb, "Purpose: %s\n", *detail.Purpose)
	}
	fmt.Fprintf(&sb, "Created: %s\n", detail.CreatedAt.UTC().Format(timeLayout))
	if detail.ExpiresAt != nil {
		fmt.Fprintf(&sb, "Expires: %s\n", detail.ExpiresAt.UTC().Format(timeLayout))
	}
	fmt.Fprintf(&sb, "Files: %d\n", len(detail.Files))
	sb.WriteString("\n")

	sb.WriteString("## File Listing\n")
	readmePath := ""
	for _, rec := range detail.Files {
		fmt.Fprintf(&sb, "- %s (%s, %d bytes)\n", rec.Path, rec.ContentType, rec.SizeBytes)
		if readmePath == "" && strings.EqualFold(rec.Path, readmeName) {
			readmePath = rec.Path
		}
	}
	sb.WriteString("\n")

	if readmePath != "" {
		content, ok, err := b.readText(ctx, id, readmePath)
		if err != nil {
			return "", false, err
		}
		if ok {
			sb.WriteString("## README Content\n")
			sb.WriteString(content)
			sb.WriteString("\n")
		}
	}

	return sb.String(), true, nil
}

func (b *Builder) readText(ctx context.Context, bucketID, path string) (string, bool, error) {
	reader, err := b.store.Open(ctx, bucketID, path)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open %s: %w", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxReadmeBytes))
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), true, nil
}

// BuildArchive streams a zip of every file in the bucket, one entry per
// path. Files whose content is missing from storage are skipped. The
// boolean is false when the bucket does not exist. Callers must close the
// returned reader.
func (b *Builder) BuildArchive(ctx context.Context, id string) (io.ReadCloser, bool, error) {
	detail, err := b.buckets.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if detail == nil {
		return nil, false, nil
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(b.writeArchive(ctx, detail, pw))
	}()
	return pr, true, nil
}

func (b *Builder) writeArchive(ctx context.Context, detail *bucket.Detail, w io.Writer) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	log := zerolog.Ctx(ctx)
	for _, rec := range detail.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		reader, err := b.store.Open(ctx, detail.ID, rec.Path)
		if errors.Is(err, blob.ErrObjectNotFound) {
			log.Warn().Str("bucket_id", detail.ID).Str("path", rec.Path).Msg("archive skipped file with missing content")
			continue
		}
		if err != nil {
			return fmt.Errorf("open %s: %w", rec.Path, err)
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     rec.Path,
			Method:   zip.Deflate,
			Modified: rec.UploadedAt,
		})
		if err != nil {
			reader.Close()
			return fmt.Errorf("create entry %s: %w", rec.Path, err)
		}
		_, err = io.Copy(entry, reader)
		reader.Close()
		if err != nil {
			return fmt.Errorf("write entry %s: %w", rec.Path, err)
		}
	}
	return zw.Close()
}
