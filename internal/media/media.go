// Package media stores uploaded house images.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var ErrUnsupportedType = errors.New("unsupported image type")

const MaxUploadSize = 10 << 20

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".avif": true}

// Store saves an image and returns its public URL.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

// StoredName builds img_<unix-ms>_<rand><ext>; files without an extension become .webp.
func StoredName(original string, now time.Time) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".webp"
	}
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}
	return fmt.Sprintf("img_%d_%d%s", now.UnixMilli(), rand.IntN(1_000_000), ext), nil
}

// Disk writes into Dir and serves from URLPrefix.
type Disk struct {
	Dir       string
	URLPrefix string
}

func (d *Disk) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name, err := StoredName(filename, time.Now())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(filepath.Join(d.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, io.LimitReader(r, MaxUploadSize)); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path.Join(d.URLPrefix, name), nil
}

// Cloudinary uploads into Folder and returns the secure URL.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	Folder string
}

func NewCloudinary(url, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld, Folder: folder}, nil
}

func (c *Cloudinary) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name, err := StoredName(filename, time.Now())
	if err != nil {
		return "", err
	}
	res, err := c.cld.Upload.Upload(ctx, io.LimitReader(r, MaxUploadSize), uploader.UploadParams{
		Folder:       c.Folder,
		PublicID:     strings.TrimSuffix(name, filepath.Ext(name)),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}
