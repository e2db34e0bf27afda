// Package storage archives reconciler run reports to Cloud Storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/farmconnect/marketplace/internal/services"
)

type objectWriterFactory func(ctx context.Context, bucket, object string) io.WriteCloser

// ReportWriter writes each cleanup report as a JSON object under a date partitioned prefix.
type ReportWriter struct {
	bucket    string
	prefix    string
	newWriter objectWriterFactory
}

var _ services.CleanupReportWriter = (*ReportWriter)(nil)

// NewReportWriter constructs a writer for bucket. The prefix defaults to "reconciler/".
func NewReportWriter(client *gcs.Client, bucket, prefix string) (*ReportWriter, error) {
	if client == nil {
		return nil, errors.New("storage report writer: client is required")
	}
	return newReportWriter(bucket, prefix, func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		return w
	})
}

func newReportWriter(bucket, prefix string, factory objectWriterFactory) (*ReportWriter, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage report writer: bucket is required")
	}
	if prefix == "" {
		prefix = "reconciler/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ReportWriter{bucket: bucket, prefix: prefix, newWriter: factory}, nil
}

type reportDocument struct {
	Report services.CleanupReport `json:"report"`
	Groups []reportGroup          `json:"groups"`
}

type reportGroup struct {
	Key      string   `json:"key"`
	OrderIDs []string `json:"orderIds"`
}

// WriteCleanupReport uploads the report and returns its gs:// URI.
func (w *ReportWriter) WriteCleanupReport(ctx context.Context, report services.CleanupReport, groups []services.DuplicateGroup) (string, error) {
	doc := reportDocument{Report: report, Groups: make([]reportGroup, 0, len(groups))}
	for _, group := range groups {
		ids := make([]string, 0, len(group.Orders))
		for _, order := range group.Orders {
			ids = append(ids, order.ID)
		}
		doc.Groups = append(doc.Groups, reportGroup{Key: group.Key, OrderIDs: ids})
	}

	object := ReportObjectName(w.prefix, report.StartedAt, report.DryRun)
	writer := w.newWriter(ctx, w.bucket, object)
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: encode report %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: upload report %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", w.bucket, object), nil
}

// ReportObjectName returns prefix/YYYY/MM/DD/cleanup-<RFC3339 basic>[-dryrun].json.
func ReportObjectName(prefix string, startedAt time.Time, dryRun bool) string {
	startedAt = startedAt.UTC()
	suffix := ""
	if dryRun {
		suffix = "-dryrun"
	}
	return fmt.Sprintf("%s%s/cleanup-%s%s.json", prefix, startedAt.Format("2006/01/02"), startedAt.Format("20060102T150405Z"), suffix)
}
