package blob

// S3Config configures the S3-compatible object store backend. Setting
// Endpoint switches the client to path-style addressing for minio and other
// S3-compatible stores.
type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}
