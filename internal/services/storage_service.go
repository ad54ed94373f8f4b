// internal/services/storage_service.go
package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/devmart/devmart-backend/internal/config"
)

var ErrStorageUnavailable = errors.New("file storage is not configured")

// StorageService wraps S3 for project archive storage. When no AWS
// credentials are configured it degrades to a stub so local development
// does not require a bucket.
type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
}

type UploadResult struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	if cfg.Storage.AccessKeyID == "" {
		return &StorageService{config: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Storage.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
	}, nil
}

// UploadArchive stores a project archive and returns the object key to
// attach to the project record.
func (s *StorageService) UploadArchive(file multipart.File, header *multipart.FileHeader, options UploadOptions) (*UploadResult, error) {
	if s.s3Client == nil {
		return nil, ErrStorageUnavailable
	}

	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize)
	}

	fileExt := strings.ToLower(filepath.Ext(header.Filename))
	if len(options.AllowedTypes) > 0 {
		allowed := false
		for _, allowedType := range options.AllowedTypes {
			if fileExt == allowedType {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("file type %s is not allowed", fileExt)
		}
	}

	buffer := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffer, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	folder := options.Folder
	if folder == "" {
		folder = "archives"
	}
	key := fmt.Sprintf("%s/%s%s", folder, uuid.New().String(), fileExt)

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.config.Storage.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buffer.Bytes()),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &UploadResult{
		Key:      key,
		Size:     header.Size,
		MimeType: mimeType,
	}, nil
}

// PresignDownload returns a short-lived URL for a stored archive.
func (s *StorageService) PresignDownload(key string) (string, error) {
	if s.s3Client == nil {
		return "", ErrStorageUnavailable
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.Storage.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(time.Duration(s.config.Storage.PresignTTL) * time.Minute)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}

	return url, nil
}

func (s *StorageService) DeleteArchive(key string) error {
	if s.s3Client == nil {
		return ErrStorageUnavailable
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Storage.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
