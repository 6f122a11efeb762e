package watermark

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// exercise runs the common contract against a store.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("Load empty: ok=%v err=%v", ok, err)
	}
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if !got.Equal(want) {
		t.Fatalf("Load: want=%v got=%v", want, got)
	}

	later := want.Add(time.Hour)
	if err := s.Save(ctx, later); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if got, _, _ := s.Load(ctx); !got.Equal(later) {
		t.Fatalf("overwrite: want=%v got=%v", later, got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("Load after clear: ok=%v err=%v", ok, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear twice: %v", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "watermark.json")
	exercise(t, NewFileStore(path))
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watermark.json")
	s := NewFileStore(path)
	if err := s.Save(context.Background(), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `"last_successful_load_time": "2024-01-02T03:04:05Z"`) {
		t.Fatalf("file content: got=%s", b)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watermark.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := NewFileStore(path).Load(context.Background()); err == nil {
		t.Fatalf("Load: want error for corrupt file")
	}
}

func TestGormStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:watermark?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	exercise(t, NewGormStore(db, "portrait"))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	exercise(t, NewRedisStore(rdb, ""))
}

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	s, err := NewS3Store(&fakeObjects{objects: map[string][]byte{}}, "etl", "")
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	exercise(t, s)
	if _, err := NewS3Store(&fakeObjects{}, "", ""); err == nil {
		t.Fatalf("NewS3Store: want error without bucket")
	}
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}
