// Package storage 提供了与对象存储服务（MinIO）交互的功能，用于归档已入库的源文件。
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kb-rag-go/internal/config"
	"kb-rag-go/pkg/log"
)

// SourceArchive 把源文件保存到 sources/{document_id}。
type SourceArchive struct {
	client *minio.Client
	bucket string
}

// NewMinIOClient 根据配置创建 MinIO 客户端。
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")
	return client, nil
}

// NewSourceArchive 创建归档器。
func NewSourceArchive(client *minio.Client, bucket string) *SourceArchive {
	return &SourceArchive{client: client, bucket: bucket}
}

// EnsureBucket 检查存储桶 (Bucket) 是否存在，如果不存在则创建
func (a *SourceArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", a.bucket)
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", a.bucket)
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
	}
	log.Infof("存储桶 '%s' 创建成功", a.bucket)
	return nil
}

// ObjectName 返回文档在桶中的对象名。
func ObjectName(documentID string) string {
	return path.Join("sources", documentID)
}

// Archive 上传 filePath 的当前内容，覆盖同一文档之前的归档。
func (a *SourceArchive) Archive(ctx context.Context, documentID, filePath string) error {
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := a.client.FPutObject(ctx, a.bucket, ObjectName(documentID), filePath, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"document-id": documentID},
	})
	if err != nil {
		return fmt.Errorf("上传源文件失败: %w", err)
	}
	log.Infof("[SourceArchive] 源文件已归档, document_id: %s, object: %s, size: %d", documentID, info.Key, info.Size)
	return nil
}
