package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type sftpConn struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (c *sftpConn) Close() error {
	return errors.Join(c.sftp.Close(), c.ssh.Close())
}

// remote stores staged files on an SFTP file server. The session is dialed
// on first use and rebuilt after a broken connection.
type remote struct {
	base string
	conn *handle[*sftpConn]
}

func newSFTPDriver(cfg *RemoteConfig) (*remote, error) {
	sshCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := cfg.Addr()
	timeout := cfg.TimeoutDuration()

	dial := func(ctx context.Context) (*sftpConn, error) {
		d := net.Dialer{Timeout: timeout}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}

		// ssh.ClientConfig.Timeout only covers ssh.Dial, so the handshake
		// on an existing conn needs its own deadline.
		if timeout > 0 {
			_ = nc.SetDeadline(time.Now().Add(timeout))
		}
		c, chans, reqs, err := ssh.NewClientConn(nc, addr, sshCfg)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
		}
		_ = nc.SetDeadline(time.Time{})
		sc := ssh.NewClient(c, chans, reqs)

		fc, err := sftp.NewClient(sc)
		if err != nil {
			sc.Close()
			return nil, fmt.Errorf("open sftp session: %w", err)
		}
		return &sftpConn{ssh: sc, sftp: fc}, nil
	}

	return &remote{
		base: path.Clean(cfg.BasePath),
		conn: newHandle(dial, (*sftpConn).Close),
	}, nil
}

func clientConfig(cfg *RemoteConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if cfg.PrivateKey != "" {
		pem, err := os.ReadFile(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}

		var signer ssh.Signer
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if !cfg.InsecureHostKey {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.TimeoutDuration(),
	}, nil
}

func (r *remote) client(ctx context.Context) (*sftp.Client, error) {
	c, err := r.conn.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.sftp, nil
}

func (r *remote) connect(ctx context.Context) error {
	_, err := r.conn.get(ctx)
	return err
}

func (r *remote) reset() error { return r.conn.reset() }

func (r *remote) close() error { return r.conn.reset() }

func (r *remote) join(key string) string {
	if key == "" {
		return r.base
	}
	return path.Join(r.base, key)
}

func (r *remote) mkdirs(ctx context.Context, dirs []string) error {
	c, err := r.client(ctx)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := c.MkdirAll(dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// write uploads to a hidden temp name and renames it over the target.
func (r *remote) write(ctx context.Context, p string, data []byte) error {
	c, err := r.client(ctx)
	if err != nil {
		return err
	}

	tmp := path.Join(path.Dir(p), fmt.Sprintf(".tmp-%d-%s", time.Now().UnixNano(), path.Base(p)))

	f, err := c.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		c.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		c.Remove(tmp)
		return err
	}

	if err := rename(c, tmp, p); err != nil {
		c.Remove(tmp)
		return err
	}
	return nil
}

func (r *remote) move(ctx context.Context, src, dst string) error {
	c, err := r.client(ctx)
	if err != nil {
		return err
	}
	if err := c.MkdirAll(path.Dir(dst)); err != nil {
		return err
	}
	return rename(c, src, dst)
}

// rename prefers the posix-rename extension, which replaces an existing
// target. Servers without it get a plain rename.
func rename(c *sftp.Client, src, dst string) error {
	err := c.PosixRename(src, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) || isSFTPConnErr(err) {
		return err
	}
	return c.Rename(src, dst)
}

func (r *remote) read(ctx context.Context, p string) ([]byte, error) {
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	f, err := c.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func (r *remote) remove(ctx context.Context, p string) error {
	c, err := r.client(ctx)
	if err != nil {
		return err
	}
	return c.Remove(p)
}

func (r *remote) list(ctx context.Context, dir string) ([]FileInfo, error) {
	c, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := c.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Name:     e.Name(),
			Size:     e.Size(),
			Modified: e.ModTime().UTC(),
		})
	}
	return files, nil
}

func (r *remote) stat(ctx context.Context, p string) (bool, error) {
	c, err := r.client(ctx)
	if err != nil {
		return false, err
	}

	info, err := c.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (r *remote) probe(ctx context.Context) error {
	c, err := r.client(ctx)
	if err != nil {
		return err
	}

	info, err := c.Stat(r.base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.MkdirAll(r.base)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", r.base)
	}
	return nil
}

func (r *remote) isConnErr(err error) bool {
	return isSFTPConnErr(err)
}

func isSFTPConnErr(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, sftp.ErrSSHFxConnectionLost),
		errors.Is(err, sftp.ErrSSHFxNoConnection),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return isNetworkError(err)
}
