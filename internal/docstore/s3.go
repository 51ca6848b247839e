package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"trail-go/internal/trail"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps one JSON object per record under
// <prefix><scope key>/<id>.json. Updates are conditional on the object's
// ETag, so two writers racing on one trail cannot silently overwrite each
// other.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	ids      trail.IDGenerator
}

// NewS3Store creates a store over an existing client.
func NewS3Store(client S3API, bucket, prefix string, ids trail.IDGenerator) *S3Store {
	if ids == nil {
		ids = trail.UUIDGenerator{}
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		ids:      ids,
	}
}

// NewS3StoreFromOptions loads AWS configuration and builds the client.
// Static credentials are used when both keys are set; a custom endpoint
// switches to path-style addressing for S3-compatible servers.
func NewS3StoreFromOptions(ctx context.Context, opts S3Options, ids trail.IDGenerator) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, opts.Bucket, opts.Prefix, ids), nil
}

func (s *S3Store) scopePrefix(scope string) string {
	return s.prefix + scopeKey(scope) + "/"
}

func (s *S3Store) key(scope, id string) string {
	return s.scopePrefix(scope) + id + docExt
}

// Create uploads a new document; it never replaces an existing object.
func (s *S3Store) Create(ctx context.Context, scope string, rec *trail.Record) (string, error) {
	id := s.ids.New()
	data, err := encodeRecord(newDocument(scope, id, rec))
	if err != nil {
		return "", err
	}
	if err := s.put(ctx, s.key(scope, id), data, nil, aws.String("*")); err != nil {
		if isPreconditionFailed(err) {
			return "", fmt.Errorf("%w: trail %s already exists", trail.ErrConflict, id)
		}
		return "", err
	}
	return id, nil
}

// Get downloads the document with the given ID.
func (s *S3Store) Get(ctx context.Context, scope, id string) (*trail.Record, error) {
	if !validID(id) {
		return nil, trail.NotFoundError(id)
	}
	rec, _, err := s.get(ctx, scope, id)
	return rec, err
}

func (s *S3Store) get(ctx context.Context, scope, id string) (*trail.Record, *string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(scope, id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, trail.NotFoundError(id)
		}
		return nil, nil, fmt.Errorf("getting trail %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading trail %s: %w", id, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, nil, err
	}
	return rec, out.ETag, nil
}

// List downloads every document under the scope prefix, oldest first.
func (s *S3Store) List(ctx context.Context, scope string) ([]*trail.Record, error) {
	prefix := s.scopePrefix(scope)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	out := []*trail.Record{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing trails: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if strings.Contains(name, "/") || path.Ext(name) != docExt {
				continue
			}
			rec, _, err := s.get(ctx, scope, strings.TrimSuffix(name, docExt))
			if err != nil {
				if errors.Is(err, trail.ErrNotFound) {
					continue // deleted while listing
				}
				return nil, err
			}
			out = append(out, rec)
		}
	}
	sortByCreation(out)
	return out, nil
}

// Update rewrites the document if it still has the ETag that was read.
func (s *S3Store) Update(ctx context.Context, scope, id string, patch trail.Patch) error {
	if !validID(id) {
		return trail.NotFoundError(id)
	}
	current, etag, err := s.get(ctx, scope, id)
	if err != nil {
		return err
	}
	next, err := trail.ApplyPatch(current, patch)
	if err != nil {
		return err
	}
	data, err := encodeRecord(next)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.key(scope, id), data, etag, nil); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: trail %s changed during update", trail.ErrRevisionConflict, id)
		}
		return err
	}
	return nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ErrNotFound for a missing trail.
func (s *S3Store) Delete(ctx context.Context, scope, id string) error {
	if !validID(id) {
		return trail.NotFoundError(id)
	}
	key := s.key(scope, id)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return trail.NotFoundError(id)
		}
		return fmt.Errorf("checking trail %s: %w", id, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("deleting trail %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, ifMatch, ifNoneMatch *string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfMatch:     ifMatch,
		IfNoneMatch: ifNoneMatch,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

// Compile-time check that S3Store implements trail.Store interface
var _ trail.Store = (*S3Store)(nil)
