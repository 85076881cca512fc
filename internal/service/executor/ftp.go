package executor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

// FTPConn is the subset of an FTP control connection a transfer needs.
type FTPConn interface {
	Login(user, pass string) error
	Binary() error
	// Size returns the remote file size; exists is false when the server
	// reports the file missing.
	Size(path string) (size int64, exists bool, err error)
	RetrFrom(path string, offset uint64) (io.ReadCloser, error)
	Close() error
}

// FTPDialer opens a control connection to addr (host:port).
type FTPDialer func(ctx context.Context, addr string, timeout time.Duration) (FTPConn, error)

const ftpFileUnavailable = 550

type ftpConn struct {
	c *ftp.ServerConn
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (FTPConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return &ftpConn{c: c}, nil
}

func (f *ftpConn) Login(user, pass string) error {
	return f.c.Login(user, pass)
}

func (f *ftpConn) Binary() error {
	return f.c.Type(ftp.TransferTypeBinary)
}

func (f *ftpConn) Size(path string) (int64, bool, error) {
	size, err := f.c.FileSize(path)
	if isFTPNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return size, true, nil
}

func (f *ftpConn) RetrFrom(path string, offset uint64) (io.ReadCloser, error) {
	return f.c.RetrFrom(path, offset)
}

func (f *ftpConn) Close() error {
	_ = f.c.Logout()
	return f.c.Quit()
}

func isFTPNotFound(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == ftpFileUnavailable
}

func ftpSizeTag(size int64) string {
	return "ftp-size:" + strconv.FormatInt(size, 10)
}

// fetchFTP downloads u in passive binary mode, restarting at doneBytes
// when resuming.
func (e *Executor) fetchFTP(ctx context.Context, u *url.URL, dest string) error {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := e.f.dialFTP(ctx, addr, e.f.config.ConnectTimeout)
	if err != nil {
		if stopErr := e.checkStopped(ctx); stopErr != nil {
			return stopErr
		}
		return domain.NewTransferError(domain.OutcomeFailedConnectionRefused, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			e.logger.Debug("ftp close failed", zap.Error(err))
		}
	}()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return domain.NewTransferError(domain.OutcomeFailedFTPLoginError, err)
	}
	if err := conn.Binary(); err != nil {
		return err
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	var offset uint64
	resuming := e.state.Resuming()
	if resuming {
		// FTP has no entity tags; the remote size stands in as the resume validator.
		size, exists, err := conn.Size(path)
		switch {
		case err != nil:
			e.logger.Debug("ftp size unavailable, resuming unchecked", zap.Error(err))
		case !exists:
			return transferErrorf(domain.OutcomeFailedFileNotFound, "%s not found on %s", path, u.Hostname())
		case ftpSizeTag(size) != e.state.EntityTag():
			return transferErrorf(domain.OutcomeFailedCannotResume,
				"%s changed on %s: size is now %d", path, u.Hostname(), size)
		}
		offset = uint64(e.state.DoneBytes())
		e.listener.OnLengthKnown(e.state)
	} else {
		size, exists, err := conn.Size(path)
		if err != nil {
			return err
		}
		if !exists {
			return transferErrorf(domain.OutcomeFailedFileNotFound, "%s not found on %s", path, u.Hostname())
		}
		e.state.SetEntityTag(ftpSizeTag(size))
		e.state.SetTotalBytes(size)
		e.listener.OnLengthKnown(e.state)
		if err := e.ensureSpace(dest, size); err != nil {
			return err
		}
	}

	e.logger.Debug("ftp retrieve",
		zap.String("host", u.Hostname()), zap.String("path", path), zap.Uint64("offset", offset))

	body, err := conn.RetrFrom(path, offset)
	if err != nil {
		if isFTPNotFound(err) {
			return domain.NewTransferError(domain.OutcomeFailedFileNotFound, err)
		}
		return err
	}
	defer body.Close()

	return e.receive(ctx, body, dest, resuming)
}
