// Package media implements the optional attachment-body resolver: turning
// a MediaAttachment.URI that points at an s3:// location into a short-lived
// HTTPS URL a client can fetch directly, adapted from the teacher's S3
// client-construction idiom down to a presign-only use case (no bulk
// upload or sync is needed by this service).
package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/apperr"
	"github.com/briangormanly/momento/config"
)

var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Resolver produces a downloadable URL for an s3:// attachment URI.
type Resolver struct {
	client *s3.PresignClient
	bucket string
	prefix string
	ttl    time.Duration
	log    *logrus.Entry
}

// NewResolver builds a Resolver from cfg. accessKey/secretKey may be empty
// to use the default AWS credential chain (environment, shared config,
// instance role).
func NewResolver(ctx context.Context, cfg config.MediaConfig, accessKey, secretKey string, log *logrus.Entry) (*Resolver, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.HTTPClient = sharedHTTPClient
	})

	return &Resolver{
		client: s3.NewPresignClient(client),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		ttl:    15 * time.Minute,
		log:    log.WithField("component", "media_resolver"),
	}, nil
}

// Resolve returns a presigned, time-limited HTTPS URL for uri if it is an
// s3:// reference into this resolver's bucket; any other URI, including an
// s3:// reference into a different bucket, is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, uri string) (string, error) {
	key, ok := strings.CutPrefix(uri, "s3://"+r.bucket+"/")
	if !ok {
		return uri, nil
	}
	if r.prefix != "" && !strings.HasPrefix(key, r.prefix) {
		return "", apperr.New(apperr.KindValidation, "attachment key outside configured prefix: "+key)
	}

	req, err := r.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", apperr.Wrap(apperr.KindStoreUnavailable, "failed to presign attachment URL", err)
	}

	return req.URL, nil
}
