// Package atomicfile writes files such that concurrent readers always see
// either the complete old contents or the complete new contents, never a
// partial write.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"ghostwriter/internal/ghosterr"
)

// Write places data at path by writing a sibling temp file, fsyncing it,
// renaming it over path, and fsyncing the parent directory.
//
// On failure the temp file may be left behind; the target at path is
// never left partially written.
func Write(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "" || dir == "." && filepath.Dir(path) != "." {
		return ghosterr.New(ghosterr.KindFileIO, "save "+path, fmt.Errorf("missing parent directory"))
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return ghosterr.New(ghosterr.KindFileIO, "save "+path, fmt.Errorf("missing file name"))
	}

	tmpName := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", base, uuid.NewString()))
	f, err := os.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return ghosterr.New(ghosterr.KindFileIO, "create temp file", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, werr := f.Write(data); werr != nil {
		_ = f.Close()
		return ghosterr.New(ghosterr.KindFileIO, "write temp file", werr)
	}
	if serr := f.Sync(); serr != nil {
		_ = f.Close()
		return ghosterr.New(ghosterr.KindFileIO, "sync temp file", serr)
	}
	if cerr := f.Close(); cerr != nil {
		return ghosterr.New(ghosterr.KindFileIO, "close temp file", cerr)
	}

	if rerr := os.Rename(tmpName, path); rerr != nil {
		err = ghosterr.New(ghosterr.KindFileIO, "rename into place", rerr)
		return err
	}

	if serr := syncDir(dir); serr != nil {
		return ghosterr.New(ghosterr.KindFileIO, "sync parent directory", serr)
	}
	return nil
}
