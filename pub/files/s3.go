package files

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// S3FileHandler serves files from S3 buckets. Locations are s3:// URIs.
type S3FileHandler struct {
	Logger        logrus.FieldLogger
	Endpoint      string
	AssumeRoleArn string
}

var _ FileHandler = &S3FileHandler{}

func (handler *S3FileHandler) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	bucket, prefix := ParseS3URI(dir)

	sess, err := handler.createSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 session")
	}

	svc := s3.New(sess)
	handler.Logger.Infof("Listing objects in bucket %s, prefix %s", bucket, prefix)

	resp, err := svc.ListObjectsWithContext(ctx, &s3.ListObjectsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list objects in S3 bucket %s, prefix %s", bucket, prefix)
	}

	var result []FileInfo
	for _, obj := range resp.Contents {
		if strings.HasSuffix(*obj.Key, "/") {
			continue
		}
		result = append(result, FileInfo{
			Name:     path.Base(*obj.Key),
			Location: fmt.Sprintf("s3://%s/%s", bucket, *obj.Key),
		})
	}

	return result, nil
}

func (handler *S3FileHandler) OpenFile(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key := ParseS3URI(location)

	sess, err := handler.createSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 session")
	}

	downloader := s3manager.NewDownloader(sess)
	buff := &aws.WriteAtBuffer{}

	// Transient S3 failures shouldn't fail a whole batch run.
	download := func() error {
		_, err := downloader.DownloadWithContext(ctx, buff, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			handler.Logger.Warningf("Download of s3://%s/%s failed, retrying: %s", bucket, key, err)
		}
		return err
	}

	policy := backoff.WithContext(retryPolicy(), ctx)
	if err := backoff.Retry(download, policy); err != nil {
		return nil, errors.Wrapf(err, "failed to download bucket %s, key %s", bucket, key)
	}

	handler.Logger.Infof("Downloaded s3://%s/%s: size=%d", bucket, key, len(buff.Bytes()))
	return io.NopCloser(bytes.NewReader(buff.Bytes())), nil
}

func (handler *S3FileHandler) WriteFile(ctx context.Context, dir, name string, data []byte) (string, error) {
	bucket, prefix := ParseS3URI(dir)
	key := path.Join(prefix, name)

	sess, err := handler.createSession()
	if err != nil {
		return "", errors.Wrap(err, "failed to create S3 session")
	}

	uploader := s3manager.NewUploader(sess)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload bucket %s, key %s", bucket, key)
	}

	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// MoveFile is a server-side copy followed by a delete; S3 has no rename.
func (handler *S3FileHandler) MoveFile(ctx context.Context, location, destDir string) (string, error) {
	srcBucket, srcKey := ParseS3URI(location)
	destBucket, destPrefix := ParseS3URI(destDir)
	destKey := path.Join(destPrefix, path.Base(srcKey))

	sess, err := handler.createSession()
	if err != nil {
		return "", errors.Wrap(err, "failed to create S3 session")
	}

	svc := s3.New(sess)
	_, err = svc.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(destBucket),
		CopySource: aws.String(fmt.Sprintf("%s/%s", srcBucket, srcKey)),
		Key:        aws.String(destKey),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to copy s3://%s/%s", srcBucket, srcKey)
	}

	_, err = svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(srcBucket),
		Key:    aws.String(srcKey),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to delete s3://%s/%s after copy", srcBucket, srcKey)
	}

	return fmt.Sprintf("s3://%s/%s", destBucket, destKey), nil
}

func (handler *S3FileHandler) createSession() (*session.Session, error) {
	sess := session.Must(session.NewSession())

	config := aws.Config{
		Region: aws.String("us-east-1"),
	}

	if handler.Endpoint != "" {
		config.S3ForcePathStyle = aws.Bool(true)
		config.Endpoint = &handler.Endpoint
	}

	if handler.AssumeRoleArn != "" {
		config.Credentials = stscreds.NewCredentials(
			sess,
			handler.AssumeRoleArn,
		)
	}

	return session.NewSessionWithOptions(session.Options{
		Config: config,
	})
}

func retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	return policy
}

// ParseS3URI returns the bucket and key of an s3:// URI.
//
// @example:
//
//	input: s3://my-bucket/path/to/file
//	output: "my-bucket", "path/to/file"
func ParseS3URI(str string) (bucket string, key string) {
	workingString := strings.TrimPrefix(str, "s3://")
	resultArr := strings.SplitN(workingString, "/", 2)

	if len(resultArr) == 1 {
		return resultArr[0], ""
	}

	return resultArr[0], resultArr[1]
}
