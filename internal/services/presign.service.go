package services

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

const amzDateFormat = "20060102T150405Z"

// CheckPresignedURL rejects URLs that are not absolute http(s) and S3-style
// presigned URLs whose signature has already expired. URLs that carry no
// expiry parameters are accepted as-is.
func CheckPresignedURL(raw string, now time.Time) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fail(ErrBadRequest, err, "Invalid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fail(ErrBadRequest, nil, "Invalid URL: expected absolute http(s) URL")
	}

	expiresAt, ok, err := presignedExpiry(u.Query())
	if err != nil {
		return fail(ErrBadRequest, err, "Invalid presigned URL")
	}
	if ok && !now.Before(expiresAt) {
		return fail(ErrURLExpired, nil, "Presigned URL expired at %s", expiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// presignedExpiry understands SigV4 (X-Amz-Date + X-Amz-Expires) and
// SigV2 (Expires as unix seconds) query parameters.
func presignedExpiry(q url.Values) (time.Time, bool, error) {
	if date := q.Get("X-Amz-Date"); date != "" {
		signedAt, err := time.Parse(amzDateFormat, date)
		if err != nil {
			return time.Time{}, false, errors.Wrap(err, "parse X-Amz-Date")
		}
		expires := q.Get("X-Amz-Expires")
		if expires == "" {
			return time.Time{}, false, nil
		}
		seconds, err := strconv.ParseInt(expires, 10, 64)
		if err != nil || seconds < 0 {
			return time.Time{}, false, errors.Errorf("invalid X-Amz-Expires %q", expires)
		}
		return signedAt.Add(time.Duration(seconds) * time.Second), true, nil
	}

	if expires := q.Get("Expires"); expires != "" && q.Get("Signature") != "" {
		unix, err := strconv.ParseInt(expires, 10, 64)
		if err != nil {
			return time.Time{}, false, errors.Errorf("invalid Expires %q", expires)
		}
		return time.Unix(unix, 0), true, nil
	}

	return time.Time{}, false, nil
}

// PresignOptions describes a PUT URL to mint for testing uploads
type PresignOptions struct {
	Region      string
	Bucket      string
	Key         string
	ContentType string
	Endpoint    string
	PathStyle   bool
	TTL         time.Duration
	// AccessKey/SecretKey override the default AWS credential chain
	AccessKey string
	SecretKey string
}

// PresignPut returns a presigned S3 PUT URL. The agent itself never needs AWS
// credentials; this exists so developers can exercise the upload path.
func PresignPut(opts PresignOptions) (string, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return "", errors.New("bucket and key are required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	awsConfig := &aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.PathStyle),
	}
	if opts.Endpoint != "" {
		awsConfig.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return "", errors.WithMessage(err, "create AWS session")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(opts.Bucket),
		Key:    aws.String(opts.Key),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	req, _ := s3.New(sess).PutObjectRequest(input)
	signed, err := req.Presign(opts.TTL)
	if err != nil {
		return "", errors.WithMessage(err, "presign put object")
	}
	return signed, nil
}
