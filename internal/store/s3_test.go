package store

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/wafbackup/internal/config"
)

type mockPutter struct {
	mock.Mock
	bodies map[string]string
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(aws.ToString(params.Bucket), aws.ToString(params.Key))
	if m.bodies != nil {
		data, _ := io.ReadAll(params.Body)
		m.bodies[aws.ToString(params.Key)] = string(data)
	}
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestArchiver_Upload(t *testing.T) {
	d := NewDir(t.TempDir())
	require.NoError(t, d.WriteJSON(TemplatesFile, []string{}))
	require.NoError(t, d.WriteList("L1", "1.1.1.1"))

	putter := &mockPutter{bodies: map[string]string{}}
	putter.On("PutObject", "backups", "wafbackup/20260102T030405Z/templates.json").Return(&s3.PutObjectOutput{}, nil).Once()
	putter.On("PutObject", "backups", "wafbackup/20260102T030405Z/global_lists/L1").Return(&s3.PutObjectOutput{}, nil).Once()

	a := newArchiver(putter, "backups", "wafbackup", zerolog.Nop())
	prefix, err := a.Upload(context.Background(), d.Root, "20260102T030405Z")
	require.NoError(t, err)
	assert.Equal(t, "wafbackup/20260102T030405Z", prefix)
	assert.Equal(t, "1.1.1.1", putter.bodies["wafbackup/20260102T030405Z/global_lists/L1"])
	putter.AssertExpectations(t)
}

func TestArchiver_UploadError(t *testing.T) {
	d := NewDir(t.TempDir())
	require.NoError(t, d.WriteJSON(TemplatesFile, []string{}))

	putter := &mockPutter{}
	putter.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	a := newArchiver(putter, "backups", "p", zerolog.Nop())
	_, err := a.Upload(context.Background(), d.Root, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Contains(t, err.Error(), "s3://backups/p/x/templates.json")
}

func TestNewArchiver_DisabledWithoutBucket(t *testing.T) {
	assert.Nil(t, NewArchiver(config.S3Config{}, zerolog.Nop()))
	assert.NotNil(t, NewArchiver(config.S3Config{Bucket: "b", Region: "us-east-1", Endpoint: "http://localhost:9000"}, zerolog.Nop()))
}
