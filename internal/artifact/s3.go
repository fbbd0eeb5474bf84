package artifact

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PutObjectAPI is the part of the S3 client used to push artifacts.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load aws config")
	}

	return s3.NewFromConfig(cfg), nil
}

// S3Pusher uploads every present slot of a store to a bucket.
type S3Pusher struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

func NewS3Pusher(client PutObjectAPI, bucket, prefix string, logger *zap.Logger) *S3Pusher {
	return &S3Pusher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Push uploads the slots and returns the object keys written. Slots that were
// never written are skipped.
func (p *S3Pusher) Push(ctx context.Context, store Store) ([]string, error) {
	var pushed []string
	for _, key := range Keys {
		blob, err := store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			p.logger.Debug("skipping missing artifact", zap.String("key", string(key)))

			continue
		}
		if err != nil {
			return pushed, err
		}

		objectKey := path.Join(p.prefix, key.FileName())
		_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(objectKey),
			Body:   bytes.NewReader(blob),
		})
		if err != nil {
			return pushed, errors.Wrapf(err, "unable to push %s to s3://%s/%s", key, p.bucket, objectKey)
		}
		p.logger.Info("artifact pushed",
			zap.String("key", string(key)),
			zap.String("bucket", p.bucket),
			zap.String("object", objectKey),
			zap.Int("bytes", len(blob)),
		)
		pushed = append(pushed, objectKey)
	}

	return pushed, nil
}
