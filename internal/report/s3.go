// internal/report/s3.go
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/FairForge/rampart/internal/capacity"
)

// S3Config describes the bucket reports are archived to. Endpoint and
// path style cover S3-compatible stores like MinIO.
type S3Config struct {
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region       string `json:"region" yaml:"region"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	AccessKey    string `json:"accessKey,omitempty" yaml:"access_key,omitempty"`
	SecretKey    string `json:"secretKey,omitempty" yaml:"secret_key,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty" yaml:"use_path_style,omitempty"`
}

// S3Sink archives each report as a JSON object in a bucket.
type S3Sink struct {
	client *s3.Client
	cfg    S3Config
	logger *zap.Logger
}

// NewS3Sink builds the client. Static credentials are used when given;
// otherwise the default AWS chain applies.
func NewS3Sink(cfg S3Config, logger *zap.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "reports"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Sink{client: client, cfg: cfg, logger: logger}, nil
}

// Store uploads the report under <prefix>/<id>.json.
func (s *S3Sink) Store(ctx context.Context, rep *capacity.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	key := objectKey(s.cfg.Prefix, rep.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	s.logger.Info("report uploaded",
		zap.String("bucket", s.cfg.Bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return nil
}

func objectKey(prefix, id string) string {
	return path.Join(prefix, id+".json")
}
