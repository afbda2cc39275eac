// Package s3 хранит слоты резервного хранилища объектами в S3-совместимом бакете.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const (
	defaultRegion = "us-east-1"
	contentType   = "application/json"
)

// Config — параметры бакета. Endpoint и PathStyle нужны для MinIO.
// Пустые AccessKey/SecretKey означают стандартную цепочку учётных данных AWS.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	PathStyle bool
	AccessKey string
	SecretKey string
}

// objectAPI — подмножество s3.Client, которое использует хранилище.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// SlotStore держит слот объектом <prefix>/<slot>.json.
// Слоты пишутся по очереди: S3 не даёт атомарной записи нескольких объектов.
type SlotStore struct {
	client objectAPI
	bucket string
	prefix string
}

// New создаёт клиент S3 по конфигурации.
func New(ctx context.Context, cfg Config) (*SlotStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(client objectAPI, bucket, prefix string) *SlotStore {
	return &SlotStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key возвращает ключ объекта для слота.
func (s *SlotStore) Key(slot domain.Slot) string {
	name := string(slot) + ".json"
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *SlotStore) Load(ctx context.Context, slot domain.Slot) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(slot)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3 get %s: %w", slot, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read %s: %w", slot, err)
	}
	return data, true, nil
}

func (s *SlotStore) Save(ctx context.Context, slots map[domain.Slot][]byte) error {
	for _, slot := range domain.Slots() {
		data, ok := slots[slot]
		if !ok {
			continue
		}
		if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.Key(slot)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		}); err != nil {
			return fmt.Errorf("s3 put %s: %w", slot, err)
		}
	}
	return nil
}

// Ping проверяет доступ к бакету.
func (s *SlotStore) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 head bucket: %w", err)
	}
	return nil
}

var _ domain.SlotStore = (*SlotStore)(nil)
