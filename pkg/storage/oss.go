package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/noah-isme/qr-attendance-gateway/pkg/config"
)

type objectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

// OSSUploader stores QR images in an Aliyun OSS bucket with public-read links.
type OSSUploader struct {
	bucket     objectPutter
	bucketName string
	host       string
	prefix     string
}

// NewOSSUploader connects to the configured bucket.
func NewOSSUploader(cfg config.StorageConfig) (*OSSUploader, error) {
	endpoint := normalizeEndpoint(cfg.OSSEndpoint)
	if endpoint == "" || cfg.OSSAccessKey == "" || cfg.OSSSecretKey == "" || cfg.OSSBucket == "" {
		return nil, fmt.Errorf("ALI_OSS_ENDPOINT, ALI_OSS_ACCESS_KEY, ALI_OSS_SECRET_KEY and ALI_OSS_BUCKET are required")
	}
	client, err := oss.New(endpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}
	return newOSSUploader(bucket, cfg.OSSBucket, endpoint, cfg.OSSPrefix)
}

func newOSSUploader(bucket objectPutter, bucketName, endpoint, prefix string) (*OSSUploader, error) {
	u, err := url.Parse(normalizeEndpoint(endpoint))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid oss endpoint %q", endpoint)
	}
	return &OSSUploader{
		bucket:     bucket,
		bucketName: bucketName,
		host:       u.Host,
		prefix:     strings.Trim(prefix, "/"),
	}, nil
}

// Upload implements Uploader.
func (u *OSSUploader) Upload(ctx context.Context, obj Object) (string, error) {
	if len(obj.Data) == 0 {
		return "", fmt.Errorf("empty object %q", obj.Key)
	}
	key := strings.TrimPrefix(path.Join(u.prefix, obj.Key), "/")
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	err := u.bucket.PutObject(key, bytes.NewReader(obj.Data),
		oss.ContentType(contentType),
		oss.ObjectACL(oss.ACLPublicRead),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return u.PublicURL(key), nil
}

// PublicURL returns the virtual-host style link for key.
func (u *OSSUploader) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", u.bucketName, u.host, strings.TrimPrefix(key, "/"))
}

func normalizeEndpoint(ep string) string {
	ep = strings.TrimSpace(ep)
	if ep == "" {
		return ep
	}
	if strings.HasPrefix(ep, "http://") || strings.HasPrefix(ep, "https://") {
		return ep
	}
	return "https://" + ep
}
