package dte

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver keeps a copy of every built document blob in object storage.
// Archiving is best-effort: a failed upload never affects the invoice that
// produced the document.
type Archiver struct {
	client *minio.Client
	bucket string
}

func NewArchiver(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Store uploads a document blob and returns its object path.
func (a *Archiver) Store(ctx context.Context, tenantID string, dteType int, folio int64, blob []byte) (string, error) {
	objectName := fmt.Sprintf("%s/dte-%d/%d.xml", tenantID, dteType, folio)
	_, err := a.client.PutObject(ctx, a.bucket, objectName,
		bytes.NewReader(blob), int64(len(blob)),
		minio.PutObjectOptions{ContentType: "application/xml"})
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}
	return fmt.Sprintf("%s/%s", a.bucket, objectName), nil
}
