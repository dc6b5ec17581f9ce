package backup

import (
	"context"
	"fmt"
	"io"
	"os"
)

// copyFile copies the source verbatim into the destination directory.
func (e *Executor) copyFile(ctx context.Context, job Job) (uint64, uint64, error) {
	src, info, err := checkWAL(job)
	if err != nil {
		return 0, 0, err
	}
	dst := job.DestPath()
	e.logDestination(ctx, job.DestDir, uint64(info.Size()))

	in, err := e.openSource(src)
	if err != nil {
		return 0, 0, ioError("can't read backup file", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, 0, ioError("can't write backup file", err)
	}

	n, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		e.removePartial(dst)
		return 0, 0, ioError(fmt.Sprintf("can't copy file to %s", dst), err)
	}

	size, err := resultSize(dst)
	if err != nil {
		return 0, 0, err
	}
	return uint64(n), size, nil
}

// removePartial deletes a destination left incomplete by a failed write.
func (e *Executor) removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn().Err(err).Str("path", path).Msg("failed to remove incomplete backup file")
		return
	}
	e.logger.Debug().Str("path", path).Msg("removed incomplete backup file")
}
