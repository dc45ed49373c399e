// Package s3 implements blobstore.Store on Amazon S3.
//
// Reads are ranged GetObject calls, so a sector read costs one request;
// wrap the store with blobstore.NewCachingStore to keep hot sectors local.
// Writes go through the S3 transfer manager.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "bucket", "indexes/")
package s3
