package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/pqflash"
	"github.com/hupe1980/pqflash/blobstore"
	minioblob "github.com/hupe1980/pqflash/blobstore/minio"
	s3blob "github.com/hupe1980/pqflash/blobstore/s3"
)

func openStore(ctx context.Context, c StoreConfig) (blobstore.Store, error) {
	switch c.Kind {
	case "s3":
		return newS3Store(ctx, c)
	case "minio":
		client, err := minio.New(c.Endpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.Secure,
			Region: c.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioblob.NewStore(client, c.Bucket, c.RootPrefix), nil
	default:
		return blobstore.NewLocalStore(c.Dir, blobstore.WithMmap(c.Mmap)), nil
	}
}

func newS3Store(ctx context.Context, c StoreConfig) (*s3blob.Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(c.Region))
	}
	if c.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	})
	return s3blob.NewStore(client, c.Bucket, c.RootPrefix), nil
}

// openIndex opens the configured index, loading its cache list first when
// one is configured.
func openIndex(ctx context.Context, cfg Config, extra ...pqflash.Option) (*pqflash.DB, blobstore.Store, error) {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Index.Name == "" {
		return nil, nil, fmt.Errorf("no index name: set index.name, %s_INDEX_NAME or --index", envPrefix)
	}

	opts := cfg.options()
	if cfg.Index.CacheList != "" {
		ids, err := pqflash.ReadCacheList(ctx, store, cfg.Index.CacheList)
		if err != nil {
			return nil, nil, fmt.Errorf("cache list %s: %w", cfg.Index.CacheList, err)
		}
		opts = append(opts, pqflash.WithCacheList(ids))
	}

	db, err := pqflash.Open(ctx, store, cfg.Index.Name, append(opts, extra...)...)
	if err != nil {
		return nil, nil, err
	}
	return db, store, nil
}
