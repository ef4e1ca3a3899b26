package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"

	"jobMatch/internal/storage"
)

// objectStore 是 storage.Client 中存取 CV 所需的子集。
type objectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// ObjectCVSource 把 CV 存放在 MinIO，文件名即对象 Key。
type ObjectCVSource struct {
	objects objectStore
}

func NewObjectCVSource(objects objectStore) *ObjectCVSource {
	return &ObjectCVSource{objects: objects}
}

func (s *ObjectCVSource) ReadCV(ctx context.Context, filename string) ([]byte, error) {
	data, err := s.objects.ReadObject(ctx, filename)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			return nil, fmt.Errorf("cv object %q is missing: %w", filename, err)
		}
		return nil, err
	}
	return data, nil
}

func (s *ObjectCVSource) PutCV(ctx context.Context, filename string, r io.Reader, size int64, contentType string) error {
	_, err := s.objects.UploadFile(ctx, filename, r, size, contentType)
	return err
}

func (s *ObjectCVSource) DeleteCV(ctx context.Context, filename string) error {
	return s.objects.DeleteObject(ctx, filename)
}

// DirCVSource 把 CV 存放在本地上传目录。
type DirCVSource struct {
	dir string
}

func NewDirCVSource(dir string) *DirCVSource {
	return &DirCVSource{dir: dir}
}

// path 将数据库中的文件名限制在上传目录之内。
func (s *DirCVSource) path(filename string) string {
	return filepath.Join(s.dir, filepath.Clean(string(filepath.Separator)+filename))
}

func (s *DirCVSource) ReadCV(_ context.Context, filename string) ([]byte, error) {
	data, err := os.ReadFile(s.path(filename))
	if err != nil {
		return nil, fmt.Errorf("read cv file %q: %w", filename, err)
	}
	return data, nil
}

func (s *DirCVSource) PutCV(_ context.Context, filename string, r io.Reader, _ int64, _ string) error {
	path := s.path(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create cv dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create cv file %q: %w", filename, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write cv file %q: %w", filename, err)
	}
	return f.Close()
}

// DeleteCV 删除文件，文件不存在视为成功。
func (s *DirCVSource) DeleteCV(_ context.Context, filename string) error {
	if err := os.Remove(s.path(filename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cv file %q: %w", filename, err)
	}
	return nil
}
