package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

// archiveFile stores the source as the single, uncompressed entry of a zip
// archive named after the job's logical filename.
func (e *Executor) archiveFile(ctx context.Context, job Job) (uint64, uint64, error) {
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

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, 0, ioError("can't write backup file", err)
	}

	written, err := writeArchive(out, in, job.LogicalName(), info)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = ioError("can't write ZIP file", cerr)
	}
	if err != nil {
		e.removePartial(dst)
		return 0, 0, err
	}

	size, err := resultSize(dst)
	if err != nil {
		return 0, 0, err
	}
	return written, size, nil
}

// writeArchive writes r into a one-entry zip on w and returns the entry's byte count.
func writeArchive(w io.Writer, r io.Reader, name string, info os.FileInfo) (uint64, error) {
	zw := zip.NewWriter(w)

	hdr := &zip.FileHeader{
		Name:   name,
		Method: zip.Store,
	}
	if info != nil {
		hdr.Modified = info.ModTime()
		hdr.SetMode(info.Mode())
	}

	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, ioError("can't create ZIP file", err)
	}

	n, err := io.Copy(entry, r)
	if err != nil {
		return 0, ioError(fmt.Sprintf("can't write ZIP file after %d bytes", n), err)
	}

	if err := zw.Close(); err != nil {
		return 0, ioError("can't finish ZIP file", err)
	}
	return uint64(n), nil
}
