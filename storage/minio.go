package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"musicbox/config"
	"musicbox/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object prefixes used in the mirror bucket.
const (
	AudioPrefix = "audio/"
	CoverPrefix = "assets/"
)

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Mirror copies stored audio and cover files into a MinIO bucket.
type Mirror struct {
	client *minio.Client
	bucket string
}

// NewMirror 创建 MinIO 客户端，存储桶不存在时自动创建
func NewMirror(ctx context.Context, cfg *config.Config) (*Mirror, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("created mirror bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &Mirror{client: client, bucket: cfg.MinioBucket}, nil
}

// Bucket returns the mirror bucket name.
func (m *Mirror) Bucket() string {
	return m.bucket
}

// PutFile uploads the local file at filePath as prefix+base(filePath).
func (m *Mirror) PutFile(ctx context.Context, prefix, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filePath, err)
	}

	objectName := path.Join(prefix, filepath.Base(filePath))
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = m.client.PutObject(ctx, m.bucket, objectName, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传文件到 MinIO 失败 %s: %w", objectName, err)
	}
	return nil
}

// SyncDir uploads every regular file directly under dir. Files already
// present in the bucket with the same size are skipped, and so are dotfiles
// (uploads still being received).
func (m *Mirror) SyncDir(ctx context.Context, dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	existing := make(map[string]int64)
	objects, err := m.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, o := range objects {
		existing[o.Key] = o.Size
	}

	uploaded := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return uploaded, err
		}
		if size, ok := existing[path.Join(prefix, e.Name())]; ok && size == info.Size() {
			continue
		}
		if err := m.PutFile(ctx, prefix, filepath.Join(dir, e.Name())); err != nil {
			return uploaded, err
		}
		uploaded++
	}
	return uploaded, nil
}

// List 列出前缀下的所有对象
func (m *Mirror) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for object := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		out = append(out, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return out, nil
}
