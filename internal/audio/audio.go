// Package audio turns base64 audio payloads from the relay into playable
// local files.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrEmpty is returned for a payload made only of whitespace. The empty
// string is a valid encoding of a 0-byte clip.
var ErrEmpty = errors.New("audio payload is empty")

// Resource is a decoded clip on local disk. Its URL is only valid on this
// machine and only until the Decoder releases it.
type Resource struct {
	Path string
}

// URL returns a file:// handle for the clip.
func (r *Resource) URL() string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(r.Path)}
	return u.String()
}

// Bytes reads the clip back from disk.
func (r *Resource) Bytes() ([]byte, error) {
	return os.ReadFile(r.Path)
}

// Decoder writes decoded clips into Dir and remembers them for cleanup.
type Decoder struct {
	dir   string
	mu    sync.Mutex
	files []string
}

// NewDecoder stores clips in dir, or in the system temp dir when dir is empty.
func NewDecoder(dir string) (*Decoder, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Decoder{dir: dir}, nil
}

// Decode base64-decodes payload into a new file.
func (d *Decoder) Decode(payload string) (*Resource, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" && payload != "" {
		return nil, ErrEmpty
	}
	payload = trimmed
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	f, err := os.CreateTemp(d.dir, "voicechat_reply_*"+extension(data))
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close audio file: %w", err)
	}

	d.mu.Lock()
	d.files = append(d.files, f.Name())
	d.mu.Unlock()
	return &Resource{Path: f.Name()}, nil
}

// Release removes every file this decoder has written.
func (d *Decoder) Release() error {
	d.mu.Lock()
	files := d.files
	d.files = nil
	d.mu.Unlock()

	var errs []error
	for _, name := range files {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func extension(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ".wav"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return ".mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ".mp3"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return ".ogg"
	default:
		return ".bin"
	}
}
