package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	sdk "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      string

	putErr  error
	putKey  string
	putBody []byte
	putOpts sdk.PutObjectOptions

	getRC  io.ReadCloser
	getErr error

	statErr error
}

func (f *fakeObjects) BucketExists(context.Context, string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ sdk.MakeBucketOptions) error {
	f.madeBucket = bucket
	return f.makeBucketErr
}

func (f *fakeObjects) PutObject(_ context.Context, _ string, key string, r io.Reader, _ int64, opts sdk.PutObjectOptions) (sdk.UploadInfo, error) {
	if f.putErr != nil {
		return sdk.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return sdk.UploadInfo{}, err
	}
	f.putKey, f.putBody, f.putOpts = key, body, opts
	return sdk.UploadInfo{Key: key, Size: int64(len(body))}, nil
}

func (f *fakeObjects) GetObject(context.Context, string, string, sdk.GetObjectOptions) (io.ReadCloser, error) {
	return f.getRC, f.getErr
}

func (f *fakeObjects) StatObject(context.Context, string, string, sdk.StatObjectOptions) (sdk.ObjectInfo, error) {
	return sdk.ObjectInfo{}, f.statErr
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name       string
		api        *fakeObjects
		wantErr    bool
		wantCreate bool
	}{
		{name: "bucket exists", api: &fakeObjects{bucketExists: true}},
		{name: "bucket is created", api: &fakeObjects{}, wantCreate: true},
		{name: "existence check fails", api: &fakeObjects{bucketExistsErr: errors.New("boom")}, wantErr: true},
		{name: "create fails", api: &fakeObjects{makeBucketErr: errors.New("denied")}, wantErr: true, wantCreate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newClient(context.Background(), tt.api, "exports")
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, c)
				assert.Contains(t, err.Error(), "failed to ensure bucket exists")
			} else {
				require.NoError(t, err)
				assert.Equal(t, "exports", c.bucket)
			}
			if tt.wantCreate {
				assert.Equal(t, "exports", tt.api.madeBucket)
			} else {
				assert.Empty(t, tt.api.madeBucket)
			}
		})
	}
}

func TestClient_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores body and content type", func(t *testing.T) {
		api := &fakeObjects{}
		c := &Client{api: api, bucket: "b"}

		err := c.Upload(ctx, "exports/2024-05-01/x.pdf", bytes.NewReader([]byte("%PDF")), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, "exports/2024-05-01/x.pdf", api.putKey)
		assert.Equal(t, []byte("%PDF"), api.putBody)
		assert.Equal(t, "application/pdf", api.putOpts.ContentType)
	})

	t.Run("error", func(t *testing.T) {
		c := &Client{api: &fakeObjects{putErr: errors.New("put-fail")}, bucket: "b"}
		err := c.Upload(ctx, "k", bytes.NewReader(nil), "text/plain")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})
}

func TestClient_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		c := &Client{api: &fakeObjects{getRC: io.NopCloser(bytes.NewReader([]byte("abc")))}, bucket: "b"}
		rc, err := c.Download(ctx, "k")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), data)
	})

	t.Run("error", func(t *testing.T) {
		c := &Client{api: &fakeObjects{getErr: errors.New("get-fail")}, bucket: "b"}
		rc, err := c.Download(ctx, "k")
		require.Error(t, err)
		assert.Nil(t, rc)
	})
}

func TestClient_Exists(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		statErr error
		want    bool
		wantErr bool
	}{
		{name: "found", want: true},
		{name: "missing", statErr: sdk.ErrorResponse{Code: "NoSuchKey"}},
		{name: "other error", statErr: errors.New("timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{api: &fakeObjects{statErr: tt.statErr}, bucket: "b"}
			got, err := c.Exists(ctx, "k")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
