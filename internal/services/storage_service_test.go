// internal/services/storage_service_test.go
package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type fakeS3 struct {
	s3iface.S3API
	puts []*s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func storageConfig() *config.Config {
	cfg := testConfig()
	cfg.AWS.EvidenceBucket = "evidence-bucket"
	cfg.AWS.MaxEvidenceSize = 16
	return cfg
}

func TestUploadEvidenceToS3(t *testing.T) {
	cfg := storageConfig()
	fake := &fakeS3{}
	storage := NewStorageServiceWithClient(cfg, fake)

	data := []byte("harvest report")
	upload, err := storage.UploadEvidence(context.Background(), "coop-highland", models.ScheduleOwnerGrant, "g-1", "Report.PDF", "application/pdf", "", bytes.NewReader(data))
	require.NoError(t, err)

	hash := utils.HashBytes(data)
	assert.Equal(t, hash, upload.Hash)
	assert.EqualValues(t, len(data), upload.Size)
	assert.True(t, strings.HasPrefix(upload.Reference, "s3://evidence-bucket/evidence/grant/g-1/"))
	assert.True(t, strings.HasSuffix(upload.Reference, "#blake2b="+hash))

	require.Len(t, fake.puts, 1)
	assert.Equal(t, upload.Key, aws.StringValue(fake.puts[0].Key))
	assert.Equal(t, hash, aws.StringValue(fake.puts[0].Metadata["blake2b"]))
	assert.Equal(t, data, fake.body)
}

func TestUploadEvidenceRejects(t *testing.T) {
	cfg := storageConfig()
	storage := NewStorageServiceWithClient(cfg, &fakeS3{})
	ctx := context.Background()

	_, err := storage.UploadEvidence(ctx, "coop", models.ScheduleOwnerGrant, "g-1", "run.exe", "", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = storage.UploadEvidence(ctx, "coop", models.ScheduleOwnerGrant, "g-1", "big.txt", "", "", strings.NewReader(strings.Repeat("x", 17)))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = storage.UploadEvidence(ctx, "coop", models.ScheduleOwnerGrant, "g-1", "empty.txt", "", "", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	failing := NewStorageServiceWithClient(cfg, &fakeS3{err: errors.New("throttled")})
	_, err = failing.UploadEvidence(ctx, "coop", models.ScheduleOwnerGrant, "g-1", "ok.txt", "", "", strings.NewReader("x"))
	assert.ErrorContains(t, err, "throttled")
}

func TestUploadEvidenceChecksum(t *testing.T) {
	cfg := storageConfig()
	fake := &fakeS3{}
	storage := NewStorageServiceWithClient(cfg, fake)
	ctx := context.Background()
	data := []byte("yield 900kg")

	_, err := storage.UploadEvidence(ctx, "coop", models.ScheduleOwnerGrant, "g-1", "yield.csv", "text/csv", utils.HashBytes([]byte("yield 90kg")), bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Empty(t, fake.puts)

	upload, err := storage.UploadEvidence(ctx, "coop", models.ScheduleOwnerGrant, "g-1", "yield.csv", "text/csv", strings.ToUpper(utils.HashBytes(data)), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, utils.HashBytes(data), upload.Hash)
	assert.Len(t, fake.puts, 1)
}

func TestUploadEvidenceWithoutS3(t *testing.T) {
	cfg := storageConfig()
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	upload, err := storage.UploadEvidence(context.Background(), "coop", models.ScheduleOwnerLoan, "l-1", "photo.png", "image/png", "", strings.NewReader("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(upload.Reference, "local://evidence/loan/l-1/"))

	_, err = storage.PresignEvidence(upload.Key, 0)
	assert.Error(t, err)
}
