//go:build integration

package testutils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// MinioEnv is a running MinIO server with one bucket.
type MinioEnv struct {
	Container testcontainers.Container
	Bucket    string
	Endpoint  string
}

// BucketURL returns a gocloud URL for the bucket, optionally scoped to a
// key prefix such as "work/".
func (e *MinioEnv) BucketURL(prefix string) string {
	u := fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
		e.Bucket, e.Endpoint)
	if prefix != "" {
		u += "&prefix=" + prefix
	}
	return u
}

// OpenBucket opens the bucket, scoped to prefix.
func (e *MinioEnv) OpenBucket(ctx context.Context, prefix string) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, e.BucketURL(prefix))
}

// StartMinio starts MinIO, creates bucket, and points the AWS credential
// environment at it. Everything is torn down on test cleanup.
func StartMinio(t *testing.T, ctx context.Context, bucket string) *MinioEnv {
	t.Helper()

	networkName := fmt.Sprintf("datt-minio-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{Name: networkName},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(context.Background()) })

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:          "minio/minio:latest",
			ExposedPorts:   []string{"9000/tcp"},
			Networks:       []string{networkName},
			NetworkAliases: map[string][]string{networkName: {"minio"}},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	makeBucket(t, ctx, networkName, bucket)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("minio host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("minio port: %v", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", minioUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioPassword)

	return &MinioEnv{
		Container: container,
		Bucket:    bucket,
		Endpoint:  fmt.Sprintf("%s:%s", host, port.Port()),
	}
}

// makeBucket runs a one-shot mc container that creates bucket.
func makeBucket(t *testing.T, ctx context.Context, networkName, bucket string) {
	t.Helper()

	mc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "minio/mc:latest",
			Networks:   []string{networkName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd: []string{fmt.Sprintf(
				"/usr/bin/mc alias set local http://minio:9000 %s %s && /usr/bin/mc mb local/%s",
				minioUser, minioPassword, bucket,
			)},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}
	mc.Terminate(ctx)
}
