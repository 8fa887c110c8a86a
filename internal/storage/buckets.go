package storage

// Bucket names shared by the api and worker binaries.
const (
	BucketPhotos      = "photos"
	BucketCredentials = "credentials"
)
