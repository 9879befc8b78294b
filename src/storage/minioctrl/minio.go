package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"contextd/src/core/ingest"
)

const (
	RawDocumentsBucket = "raw-documents"
)

type MinioService struct {
	client *minio.Client
}

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %v", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return nil
}

// Archive stores a document's raw submitted content, keyed by its id.
func (s *MinioService) Archive(ctx context.Context, doc ingest.DocumentRecord, content string) error {
	objectName := fmt.Sprintf("%d.txt", doc.ID)
	data := []byte(content)
	_, err := s.client.PutObject(ctx, RawDocumentsBucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			"title":  doc.Title,
			"origin": doc.Origin,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive document %d: %v", doc.ID, err)
	}
	return nil
}

// RawDocument retrieves the archived content for a document id.
func (s *MinioService) RawDocument(ctx context.Context, documentID int64) ([]byte, error) {
	objectName := fmt.Sprintf("%d.txt", documentID)
	obj, err := s.client.GetObject(ctx, RawDocumentsBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get archived document: %v", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived document: %v", err)
	}

	return data, nil
}

func (s *MinioService) DeleteRawDocument(ctx context.Context, documentID int64) error {
	objectName := fmt.Sprintf("%d.txt", documentID)
	err := s.client.RemoveObject(ctx, RawDocumentsBucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete archived document: %v", err)
	}

	return nil
}
