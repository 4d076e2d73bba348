package service

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestR2Service_Get(t *testing.T) {
	t.Parallel()
	client := new(MockS3Client)
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Bucket) == "images" && aws.ToString(in.Key) == "a.png"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("bytes")))}, nil)

	data, err := NewR2ServiceWithClient(client, "images").Get(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
	client.AssertExpectations(t)
}

func TestR2Service_GetMissing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
	}{
		{"typed NoSuchKey", &types.NoSuchKey{}},
		{"api NoSuchKey", &smithy.GenericAPIError{Code: "NoSuchKey"}},
		{"api NotFound", &smithy.GenericAPIError{Code: "NotFound"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := new(MockS3Client)
			client.On("GetObject", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := NewR2ServiceWithClient(client, "images").Get(context.Background(), "gone.png")
			assert.ErrorIs(t, err, ErrBlobNotFound)
		})
	}
}

func TestR2Service_GetOtherError(t *testing.T) {
	t.Parallel()
	client := new(MockS3Client)
	client.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied"})

	_, err := NewR2ServiceWithClient(client, "images").Get(context.Background(), "a.png")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlobNotFound)
}

func TestR2Service_PutAndDelete(t *testing.T) {
	t.Parallel()
	client := new(MockS3Client)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "a.png" && aws.ToString(in.ContentType) == "image/png"
	})).Return(&s3.PutObjectOutput{}, nil)
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "a.png"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	r2 := NewR2ServiceWithClient(client, "images")
	require.NoError(t, r2.Put(context.Background(), "a.png", []byte("x"), "image/png"))
	require.NoError(t, r2.Delete(context.Background(), "a.png"))
	client.AssertExpectations(t)
}
