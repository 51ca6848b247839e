package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trail-go/internal/trail"
	"trail-go/internal/trail/storetest"
)

// fakeS3 is an in-process bucket honouring IfMatch/IfNoneMatch.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	seq     int
	// beforePut runs before a put is applied, outside the lock.
	beforePut func(key string)
	pageSize  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, etags: map[string]string{}, pageSize: 1000}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if f.beforePut != nil {
		f.beforePut(key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	etag, exists := f.etags[key]
	if in.IfNoneMatch != nil && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "object exists"}
	}
	if in.IfMatch != nil && (!exists || *in.IfMatch != etag) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "etag mismatch"}
	}
	f.seq++
	f.objects[key] = data
	f.etags[key] = fmt.Sprintf("%q", fmt.Sprint(f.seq))
	return &s3.PutObjectOutput{ETag: aws.String(f.etags[key])}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(append([]byte(nil), data...))),
		ETag: aws.String(f.etags[key]),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(f.etags[key])}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	delete(f.objects, key)
	delete(f.etags, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported")
}

var _ S3API = (*fakeS3)(nil)

func TestS3Store(t *testing.T) {
	storetest.Run(t, func(t *testing.T) trail.Store {
		return NewS3Store(newFakeS3(), "bucket", "trails", nil)
	})
}

func TestS3Store_KeyLayout(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewS3Store(fake, "bucket", "trails", nil)

	id, err := s.Create(ctx, "club", storetest.Walk("A", 0))
	require.NoError(t, err)

	want := "trails/" + scopeKey("club") + "/" + id + ".json"
	_, ok := fake.objects[want]
	assert.True(t, ok, "object %s not written; have %v", want, fake.objects)
}

func TestS3Store_ListPaginates(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.pageSize = 2
	s := NewS3Store(fake, "bucket", "", nil)

	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, "club", storetest.Walk(fmt.Sprintf("walk %d", i), 0))
		require.NoError(t, err)
	}

	got, err := s.List(ctx, "club")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestS3Store_UpdateRaceIsConflict(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewS3Store(fake, "bucket", "", nil)

	id, err := s.Create(ctx, "club", storetest.Walk("A", 0))
	require.NoError(t, err)

	// Another writer lands between our read and our write.
	raced := false
	fake.beforePut = func(key string) {
		if raced {
			return
		}
		raced = true
		fake.mu.Lock()
		fake.seq++
		fake.etags[key] = "\"other-writer\""
		fake.mu.Unlock()
	}

	name := "mine"
	err = s.Update(ctx, "club", id, trail.Patch{Name: &name})
	assert.ErrorIs(t, err, trail.ErrRevisionConflict)
}
