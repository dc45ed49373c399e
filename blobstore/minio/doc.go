// Package minio implements blobstore.Store with the MinIO client, for
// MinIO and other S3-compatible object stores (Ceph, Garage, SeaweedFS).
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store := minioblob.NewStore(client, "indexes", "sift/")
//	idx, err := pqflash.Open(ctx, store, "sift1m")
package minio
