package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/socialhub/internal/apperror"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// =========================================================================
// PATH TESTS
// =========================================================================

func TestObjectPath(t *testing.T) {
	at := time.UnixMilli(1714564800123)

	tests := []struct {
		prefix, name, want string
	}{
		{"posts/u1", "cat.png", "posts/u1/1714564800123_cat.png"},
		{"/posts/u1/", "cat.png", "posts/u1/1714564800123_cat.png"},
		{"posts", `C:\Users\me\cat.png`, "posts/1714564800123_cat.png"},
		{"posts", "../../etc/passwd", "posts/1714564800123_passwd"},
		{"", "cat.png", "1714564800123_cat.png"},
		{"posts", "", "posts/1714564800123_file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectPath(tt.prefix, tt.name, at), "prefix=%q name=%q", tt.prefix, tt.name)
	}
}

// =========================================================================
// UPLOAD PROGRESS TESTS
// =========================================================================

// chunkyStore reads the body in small chunks so progress has steps to report.
type chunkyStore struct {
	putErr error
	got    []byte
}

func (s *chunkyStore) Put(_ context.Context, _ string, body io.ReadSeeker, _ int64, _ string) error {
	buf := make([]byte, 10)
	for {
		n, err := body.Read(buf)
		s.got = append(s.got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return s.putErr
}

func (s *chunkyStore) URL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (s *chunkyStore) Delete(context.Context, string) error { return nil }

func collect(up *Upload) []float64 {
	var got []float64
	for p := range up.Progress() {
		got = append(got, p)
	}
	return got
}

func TestUploadWithProgress_MonotonicAndEndsAt100(t *testing.T) {
	store := &chunkyStore{}
	u := NewUploader(store, testLogger)
	data := bytes.Repeat([]byte("x"), 100)

	up := u.UploadWithProgress(context.Background(), File{Name: "a.txt", Size: 100, Body: bytes.NewReader(data)}, "posts/u1")
	progress := collect(up)
	obj, err := up.Wait()

	require.NoError(t, err)
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards: %v", progress)
	}
	assert.Equal(t, 100.0, progress[len(progress)-1])
	assert.True(t, strings.HasPrefix(obj.Path, "posts/u1/"))
	assert.Equal(t, "https://cdn.test/"+obj.Path, obj.URL)
	assert.Equal(t, data, store.got)
}

func TestUploadWithProgress_FailureNeverReports100(t *testing.T) {
	u := NewUploader(&chunkyStore{putErr: errors.New("bucket gone")}, testLogger)

	up := u.UploadWithProgress(context.Background(), File{Name: "a.txt", Size: 50, Body: bytes.NewReader(make([]byte, 50))}, "p")
	progress := collect(up)
	_, err := up.Wait()

	require.Error(t, err)
	assert.NotContains(t, progress, 100.0)
}

func TestUploadWithProgress_UnreadProgressDoesNotBlock(t *testing.T) {
	u := NewUploader(&chunkyStore{}, testLogger)
	data := make([]byte, 10_000) // 1000 chunks, far more than the buffer

	up := u.UploadWithProgress(context.Background(), File{Name: "big.bin", Size: int64(len(data)), Body: bytes.NewReader(data)}, "p")

	select {
	case <-up.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("upload blocked on an unread progress channel")
	}
	progress := collect(up)
	assert.Equal(t, 100.0, progress[len(progress)-1])
}

func TestUploadWithProgress_RewindDoesNotGoBackwards(t *testing.T) {
	rewinding := &rewindStore{}
	u := NewUploader(rewinding, testLogger)

	up := u.UploadWithProgress(context.Background(), File{Name: "a", Size: 40, Body: bytes.NewReader(make([]byte, 40))}, "p")
	progress := collect(up)
	_, err := up.Wait()

	require.NoError(t, err)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

// rewindStore reads the body twice, like a signer hashing the payload first.
type rewindStore struct{ chunkyStore }

func (s *rewindStore) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, ct string) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return s.chunkyStore.Put(ctx, key, body, size, ct)
}

func TestUploadWithProgress_NilBody(t *testing.T) {
	u := NewUploader(&chunkyStore{}, testLogger)

	_, err := u.Upload(context.Background(), File{Name: "a"}, "p")

	assert.Error(t, err)
}

// =========================================================================
// LOCAL STORE TESTS
// =========================================================================

func TestLocalStore_PutURLDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "http://localhost:8080/blobs/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "posts/u1/1_cat pic.png", bytes.NewReader([]byte("meow")), 4, "image/png"))

	content, err := os.ReadFile(filepath.Join(dir, "posts", "u1", "1_cat pic.png"))
	require.NoError(t, err)
	assert.Equal(t, "meow", string(content))

	url, err := s.URL(ctx, "posts/u1/1_cat pic.png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/blobs/posts/u1/1_cat%20pic.png", url)

	require.NoError(t, s.Delete(ctx, "posts/u1/1_cat pic.png"))
	err = s.Delete(ctx, "posts/u1/1_cat pic.png")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/blobs")
	require.NoError(t, err)

	for _, key := range []string{"../x", "/etc/passwd", "a//b", ""} {
		err := s.Put(context.Background(), key, bytes.NewReader(nil), 0, "")
		assert.Error(t, err, "key %q", key)
	}
}

// =========================================================================
// S3 STORE TESTS
// =========================================================================

type fakeS3 struct {
	put     *s3.PutObjectInput
	deleted *s3.DeleteObjectInput
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = in
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	key string
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.key = *in.Key
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/bucket/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

func TestS3Store_Put(t *testing.T) {
	client := &fakeS3{}
	s := newS3Store(client, &fakePresigner{}, S3Config{Bucket: "media"})

	err := s.Put(context.Background(), "posts/u1/1_a.png", bytes.NewReader([]byte("png")), 3, "image/png")

	require.NoError(t, err)
	assert.Equal(t, "media", *client.put.Bucket)
	assert.Equal(t, "posts/u1/1_a.png", *client.put.Key)
	assert.Equal(t, int64(3), *client.put.ContentLength)
	assert.Equal(t, "image/png", *client.put.ContentType)
}

func TestS3Store_PutDeadlineIsTransient(t *testing.T) {
	s := newS3Store(&fakeS3{putErr: context.DeadlineExceeded}, &fakePresigner{}, S3Config{Bucket: "media"})

	err := s.Put(context.Background(), "k", bytes.NewReader(nil), 0, "")

	assert.ErrorIs(t, err, apperror.ErrTransient)
}

func TestS3Store_URLPrefersPublicBase(t *testing.T) {
	presign := &fakePresigner{}
	s := newS3Store(&fakeS3{}, presign, S3Config{Bucket: "media", PublicURL: "https://cdn.example.com/media/"})

	url, err := s.URL(context.Background(), "posts/1_a.png")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/posts/1_a.png", url)
	assert.Empty(t, presign.key, "presigner should not be called")
}

func TestS3Store_URLPresignsWithoutPublicBase(t *testing.T) {
	presign := &fakePresigner{}
	s := newS3Store(&fakeS3{}, presign, S3Config{Bucket: "media"})

	url, err := s.URL(context.Background(), "posts/1_a.png")

	require.NoError(t, err)
	assert.Contains(t, url, "X-Amz-Signature")
	assert.Equal(t, "posts/1_a.png", presign.key)
	assert.Equal(t, maxPresignTTL, s.cfg.PresignTTL)
}

func TestS3Store_Delete(t *testing.T) {
	client := &fakeS3{}
	s := newS3Store(client, &fakePresigner{}, S3Config{Bucket: "media"})

	require.NoError(t, s.Delete(context.Background(), "posts/1_a.png"))
	assert.Equal(t, "posts/1_a.png", *client.deleted.Key)
}
