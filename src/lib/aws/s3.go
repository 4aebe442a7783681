package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const PRESIGN_EXPIRES = 3600 * time.Second

func GetS3Client() *s3.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Could not load default config: %s\n", err.Error())
		return nil
	}
	svc := s3.NewFromConfig(cfg)
	return svc
}

type Attachment struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// S3AttachmentStore keeps message attachments under conversations/{conversationId}/.
type S3AttachmentStore struct {
	client *s3.Client
	bucket string
}

func NewS3AttachmentStore(client *s3.Client, bucket string) *S3AttachmentStore {
	return &S3AttachmentStore{client: client, bucket: bucket}
}

func AttachmentKey(conversationID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return path.Join("conversations", conversationID, uuid.NewString()+"-"+name)
}

func (s *S3AttachmentStore) Upload(ctx context.Context, conversationID, filename, contentType string, body io.Reader) (*Attachment, error) {
	key := AttachmentKey(conversationID, filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("Could not put object to S3 bucket: %s\n", err.Error())
		return nil, err
	}
	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, time.Minute)
	if err != nil {
		log.Printf("Failed attempt to wait for object %s to exist: %s\n", key, err.Error())
		return nil, err
	}
	log.Printf("Added object '%s' to bucket '%s'", key, s.bucket)
	url, err := s.Presign(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Attachment{Key: key, URL: url, ContentType: contentType, ExpiresAt: time.Now().Add(PRESIGN_EXPIRES)}, nil
}

// Presign returns a time-limited GET URL. A missing key yields an error wrapping types.NoSuchKey.
func (s *S3AttachmentStore) Presign(ctx context.Context, key string) (string, error) {
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("attachment %s: %w", key, &types.NoSuchKey{})
		}
		return "", err
	}
	pre := s3.NewPresignClient(s.client)
	r, err := pre.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = PRESIGN_EXPIRES
	})
	if err != nil {
		log.Printf("Could not generate presigned URL for object [%s]: %s\n", key, err.Error())
		return "", err
	}
	return r.URL, nil
}
