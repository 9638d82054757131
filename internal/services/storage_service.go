// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// StorageService keeps milestone evidence documents. Without AWS credentials
// it only fingerprints the upload and returns a local reference.
type StorageService struct {
	s3Client s3iface.S3API
	config   *config.Config
}

// EvidenceUpload describes a stored document. Reference is what gets passed
// to SubmitMilestoneEvidence.
type EvidenceUpload struct {
	Reference   string `json:"reference"`
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

var evidenceExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".json", ".csv", ".txt"}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		return &StorageService{config: config}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// NewStorageServiceWithClient is used by tests to plug in a fake S3.
func NewStorageServiceWithClient(config *config.Config, client s3iface.S3API) *StorageService {
	return &StorageService{s3Client: client, config: config}
}

// UploadEvidence stores one evidence document for a grant or loan milestone.
// A non-empty checksum is the uploader's blake2b-256 hex digest of the file
// and must match what was received.
func (s *StorageService) UploadEvidence(ctx context.Context, actor string, kind models.ScheduleOwnerKind, ownerID, filename, contentType, checksum string, body io.Reader) (*EvidenceUpload, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedEvidence(ext) {
		return nil, newError(CodeInvalidState, "evidence", filename, "file type %q is not allowed", ext)
	}

	limit := s.config.AWS.MaxEvidenceSize
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, newError(CodePayloadTooLarge, "evidence", filename, "evidence exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, newError(CodeInvalidAmount, "evidence", filename, "evidence is empty")
	}

	if checksum != "" && !utils.ValidateFileHash(data, strings.ToLower(checksum)) {
		return nil, newError(CodeVerificationFailed, "evidence", filename, "checksum does not match the received file")
	}

	hash := utils.HashBytes(data)
	key := fmt.Sprintf("evidence/%s/%s/%s_%s%s", kind, ownerID, time.Now().UTC().Format("20060102"), hash[:16], ext)
	upload := &EvidenceUpload{
		Key:         key,
		Hash:        hash,
		Size:        int64(len(data)),
		ContentType: contentType,
	}

	if s.s3Client == nil {
		upload.Reference = fmt.Sprintf("local://%s#blake2b=%s", key, hash)
		logrus.WithFields(logrus.Fields{"key": key, "actor": actor}).Debug("Evidence fingerprinted without S3")
		return upload, nil
	}

	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.EvidenceBucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(upload.Size),
		Metadata: map[string]*string{
			"blake2b":  aws.String(hash),
			"uploader": aws.String(actor),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	upload.Reference = fmt.Sprintf("s3://%s/%s#blake2b=%s", s.config.AWS.EvidenceBucket, key, hash)
	logrus.WithFields(logrus.Fields{
		"key":   key,
		"size":  upload.Size,
		"actor": actor,
	}).Info("Evidence uploaded")
	return upload, nil
}

// PresignEvidence returns a temporary download URL for a stored document.
func (s *StorageService) PresignEvidence(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.EvidenceBucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}

func allowedEvidence(ext string) bool {
	for _, allowed := range evidenceExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
