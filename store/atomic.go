package store

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	tempSuffix         = ".tmp"
	maxReplaceAttempts = 3
	replaceRetryDelay  = 25 * time.Millisecond
)

// writeFileAtomic writes data to path via path.tmp: the temp file is synced
// to disk, read back and validated before it replaces path. The temp file is
// removed on every failure path.
func writeFileAtomic(path string, data []byte, validate func([]byte) error) (err error) {
	tmp := path + tempSuffix
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn().Err(rmErr).Str("file", tmp).Msg("failed to clean up temp file")
			}
		}
	}()

	if dir := filepath.Dir(path); dir != "" {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "create data directory")
		}
	}

	if err = writeSynced(tmp, data); err != nil {
		return errors.Wrap(err, "write temp file")
	}

	written, err := os.ReadFile(tmp)
	if err != nil {
		return errors.Wrap(err, "re-read temp file")
	}
	if validate != nil {
		if err = validate(written); err != nil {
			return errors.Wrap(err, "validate temp file")
		}
	}

	if err = replaceFile(tmp, path); err != nil {
		return err
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// replaceFile moves tmp over target. A plain rename is tried first, then
// delete+rename, for up to maxReplaceAttempts; if all of them fail the temp
// file is copied over the target and removed.
func replaceFile(tmp, target string) error {
	op := func() error {
		if err := os.Rename(tmp, target); err == nil {
			return nil
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return err
		}
		return os.Rename(tmp, target)
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(replaceRetryDelay), maxReplaceAttempts-1)
	err := backoff.RetryNotify(op, bo, func(err error, _ time.Duration) {
		log.Warn().Err(err).Str("file", target).Msg("replace failed, retrying")
	})
	if err == nil {
		return nil
	}

	log.Warn().Err(err).Str("file", target).Msg("rename failed, falling back to copy")
	if err := copyFile(tmp, target); err != nil {
		return errors.Wrap(err, "copy temp file over target")
	}
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", tmp).Msg("failed to remove temp file after copy")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
