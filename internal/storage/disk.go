package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Disk is a bucket backed by a directory <Root>/<bucket>. The bucket
// directory must exist; uploads never create it.
type Disk struct {
	Root   string
	bucket string
	signer *Signer
}

func NewDisk(root, bucket string, signer *Signer) *Disk {
	return &Disk{Root: root, bucket: bucket, signer: signer}
}

func (d *Disk) Name() string { return d.bucket }

func (d *Disk) dir() string { return filepath.Join(d.Root, d.bucket) }

// EnsureBucket creates the bucket directory.
func (d *Disk) EnsureBucket() error {
	return os.MkdirAll(d.dir(), 0o755)
}

func (d *Disk) Exists() bool {
	st, err := os.Stat(d.dir())
	return err == nil && st.IsDir()
}

func (d *Disk) Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	if !d.Exists() {
		return fmt.Errorf("upload %s: %w", clean, ErrBucketNotFound)
	}
	full := filepath.Join(d.dir(), filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	tmp := full + "." + uuid.NewString() + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	return os.Rename(tmp, full)
}

func (d *Disk) SignedURL(objectPath string, ttl time.Duration) (string, error) {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if _, err := d.Stat(clean); err != nil {
		return "", err
	}
	return d.signer.Sign(d.bucket, clean, ttl)
}

func (d *Disk) Stat(objectPath string) (fs.FileInfo, error) {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(filepath.Join(d.dir(), filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && st.IsDir()) {
		return nil, ErrObjectNotFound
	}
	return st, err
}

// Resolve verifies a signed request and returns the file to serve.
func (d *Disk) Resolve(token, objectPath string) (string, error) {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if err := d.signer.Verify(token, d.bucket, clean); err != nil {
		return "", err
	}
	if _, err := d.Stat(clean); err != nil {
		return "", err
	}
	return filepath.Join(d.dir(), filepath.FromSlash(clean)), nil
}
