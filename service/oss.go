package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"path/filepath"
	"time"

	"VideoRitz-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var MinioClient *minio.Client

// InitMinIO 初始化连接，在 main.go 中调用
func InitMinIO() {
	cfg := config.AppConfig.MinIO
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	log.Println("MinIO 连接成功")
}

// 对象键布局：videoritz/{project}/{category}/{artifact}
func RefKey(projectID string, i int) string {
	return fmt.Sprintf("videoritz/%s/refs/ref_%d.png", projectID, i)
}

func ImageKey(projectID string, shotIndex int) string {
	return fmt.Sprintf("videoritz/%s/images/shot_%d.png", projectID, shotIndex)
}

func UpscaledKey(projectID string, shotIndex int) string {
	return fmt.Sprintf("videoritz/%s/upscaled/shot_%d.png", projectID, shotIndex)
}

func VideoKey(projectID string, shotIndex int) string {
	return fmt.Sprintf("videoritz/%s/videos/shot_%d.mp4", projectID, shotIndex)
}

func MusicKey(projectID string) string {
	return fmt.Sprintf("videoritz/%s/music/track.mp3", projectID)
}

func StoryboardKey(projectID string) string {
	return fmt.Sprintf("videoritz/%s/storyboard.json", projectID)
}

func ProjectMetaKey(projectID string) string {
	return fmt.Sprintf("videoritz/%s/project.json", projectID)
}

func StateKey(projectID string) string {
	return fmt.Sprintf("videoritz/%s/pipeline-state.json", projectID)
}

func FinalKey(projectID string) string {
	return fmt.Sprintf("videoritz/%s/final.mp4", projectID)
}

func ensureBucket(ctx context.Context, bucketName string) error {
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		log.Printf("Bucket '%s' 已创建", bucketName)
	}
	return nil
}

// contentTypeFor 根据扩展名确定 ContentType
func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

// UploadToMinIO 通用上传函数，从 io.Reader 上传到 MinIO，返回可访问的 URL
// size 为 -1 表示未知大小
func UploadToMinIO(reader io.Reader, objectName string, size int64) (string, error) {
	ctx := context.Background()
	cfg := config.AppConfig.MinIO
	bucketName := cfg.Bucket

	if err := ensureBucket(ctx, bucketName); err != nil {
		return "", err
	}

	_, err := MinioClient.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", &PersistenceError{Op: "put", Key: objectName, Err: err}
	}

	log.Printf("文件已上传: %s", objectName)
	return PublicURL(objectName)
}

// PublicURL 配置了公开域名时直接拼接，否则生成 72 小时预签名 URL
func PublicURL(objectName string) (string, error) {
	cfg := config.AppConfig.MinIO
	if cfg.Domain != "" {
		return fmt.Sprintf("%s/%s", cfg.Domain, objectName), nil
	}
	expiry := time.Hour * 72
	presignedURL, err := MinioClient.PresignedGetObject(context.Background(), cfg.Bucket, objectName, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return presignedURL.String(), nil
}

// PutJSON 序列化后写入对象存储
func PutJSON(key string, obj interface{}) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	_, err = UploadToMinIO(bytes.NewReader(b), key, int64(len(b)))
	return err
}

// GetJSON 读取并反序列化；对象不存在时返回 (false, nil)，调用方自行决定是否致命
func GetJSON(key string, out interface{}) (bool, error) {
	b, err := GetObject(key)
	if err != nil {
		if err == ErrObjectNotFound {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, &PersistenceError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// GetObject 读取整个对象，未命中返回 ErrObjectNotFound
func GetObject(key string) ([]byte, error) {
	ctx := context.Background()
	cfg := config.AppConfig.MinIO
	obj, err := MinioClient.GetObject(ctx, cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &PersistenceError{Op: "get", Key: key, Err: err}
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, ErrObjectNotFound
		}
		return nil, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	return b, nil
}

// ObjectExists 存在性检查（upscale 阶段据此跳过已有产物）
func ObjectExists(key string) bool {
	ctx := context.Background()
	cfg := config.AppConfig.MinIO
	_, err := MinioClient.StatObject(ctx, cfg.Bucket, key, minio.StatObjectOptions{})
	return err == nil
}
