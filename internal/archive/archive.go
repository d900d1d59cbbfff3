// Package archive keeps an immutable copy of every merge in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ideaflow/api/internal/store"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Snapshot is the archived form of one merge.
type Snapshot struct {
	History      HistoryRecord `json:"history"`
	Consolidated IdeaRecord    `json:"consolidated"`
	Sources      []IdeaRecord  `json:"sources"`
	ArchivedAt   time.Time     `json:"archivedAt"`
}

type HistoryRecord struct {
	ID           string    `json:"id"`
	FinalIdea    string    `json:"finalIdea"`
	MergedIdeas  []string  `json:"mergedIdeas"`
	MergedBy     string    `json:"mergedBy"`
	Contributors []string  `json:"contributors"`
	CreatedAt    time.Time `json:"createdAt"`
}

type IdeaRecord struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Domain             string   `json:"domain"`
	Tags               []string `json:"tags"`
	Status             string   `json:"status"`
	SubmittedBy        string   `json:"submittedBy"`
	Contributors       []string `json:"contributors"`
	OriginalSubmitters []string `json:"originalSubmitters,omitempty"`
	MergedInto         string   `json:"mergedInto,omitempty"`
	MergedFrom         []string `json:"mergedFrom,omitempty"`
	Comments           int      `json:"comments"`
}

type MinioArchive struct {
	client objectStore
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

func NewMinioArchive(cfg Config, logger *slog.Logger) (*MinioArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return newArchive(client, cfg.Bucket, logger), nil
}

func newArchive(client objectStore, bucket string, logger *slog.Logger) *MinioArchive {
	if logger == nil {
		logger = slog.Default()
	}
	return &MinioArchive{client: client, bucket: bucket, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureBucket creates the archive bucket when it is missing.
func (a *MinioArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("archive bucket created", "bucket", a.bucket)
	return nil
}

func ObjectKey(finalIdea, historyID string) string {
	return path.Join("merge-history", finalIdea, historyID+".json")
}

// ArchiveMerge uploads the snapshot and returns its object key.
func (a *MinioArchive) ArchiveMerge(ctx context.Context, history store.MergeHistory, consolidated store.Idea, sources []store.Idea) (string, error) {
	snapshot := NewSnapshot(history, consolidated, sources, a.now())
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode merge snapshot: %w", err)
	}

	key := ObjectKey(history.FinalIdea, history.ID)
	if _, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func NewSnapshot(history store.MergeHistory, consolidated store.Idea, sources []store.Idea, at time.Time) Snapshot {
	out := Snapshot{
		History: HistoryRecord{
			ID:           history.ID,
			FinalIdea:    history.FinalIdea,
			MergedIdeas:  history.MergedIdeas,
			MergedBy:     history.MergedBy,
			Contributors: history.Contributors,
			CreatedAt:    history.CreatedAt,
		},
		Consolidated: ideaRecord(consolidated),
		Sources:      make([]IdeaRecord, 0, len(sources)),
		ArchivedAt:   at,
	}
	for _, source := range sources {
		out.Sources = append(out.Sources, ideaRecord(source))
	}
	return out
}

func ideaRecord(idea store.Idea) IdeaRecord {
	return IdeaRecord{
		ID:                 idea.ID,
		Title:              idea.Title,
		Description:        idea.Description,
		Domain:             idea.Domain,
		Tags:               idea.Tags,
		Status:             idea.Status,
		SubmittedBy:        idea.SubmittedBy,
		Contributors:       idea.Contributors,
		OriginalSubmitters: idea.OriginalSubmitters,
		MergedInto:         idea.MergedInto,
		MergedFrom:         idea.MergedFrom,
		Comments:           len(idea.Comments),
	}
}
