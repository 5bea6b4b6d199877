package backup

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const (
	filePrefix = "products-"
	fileSuffix = ".json"
	stampFmt   = "20060102-150405"
)

// Uploader copies a finished backup somewhere off the host.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Job writes the current products document to dated files and keeps the
// newest Keep of them.
type Job struct {
	store    catalog.Store
	dir      string
	keep     int
	uploader Uploader
	now      func() time.Time
}

type Option func(*Job)

func WithUploader(u Uploader) Option {
	return func(j *Job) { j.uploader = u }
}

func New(store catalog.Store, dir string, keep int, opts ...Option) *Job {
	j := &Job{store: store, dir: dir, keep: keep, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// FromConfig builds the job, with an SFTP uploader when a host is set.
func FromConfig(store catalog.Store, cfg *config.AppConfig) *Job {
	var opts []Option
	if cfg.Backup.Sftp.Host != "" {
		opts = append(opts, WithUploader(NewSFTPUploader(cfg.Backup.Sftp)))
	}
	return New(store, cfg.GetBackupDir(), cfg.Backup.Keep, opts...)
}

// Run writes one backup and returns its path.
func (j *Job) Run(ctx context.Context) (string, error) {
	snap, err := j.store.Load(ctx, catalog.LoadOptions{Force: true})
	if err != nil {
		return "", errors.Wrap(err, "load products for backup")
	}
	data, err := catalog.EncodeDocument(snap.Products)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create backup dir")
	}

	name := filePrefix + j.now().UTC().Format(stampFmt) + fileSuffix
	target := filepath.Join(j.dir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write backup")
	}
	zap.S().Infof("catalog backup written %s (%d products)", target, len(snap.Products))

	if err := j.prune(); err != nil {
		zap.S().Warnf("prune backups error %s", err.Error())
	}
	if j.uploader != nil {
		if err := j.uploader.Upload(ctx, name, data); err != nil {
			return target, errors.Wrap(err, "upload backup")
		}
	}
	return target, nil
}

// List returns the backup file names, newest first.
func (j *Job) List() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), fileSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (j *Job) prune() error {
	if j.keep <= 0 {
		return nil
	}
	names, err := j.List()
	if err != nil {
		return err
	}
	for i := j.keep; i < len(names); i++ {
		if err := os.Remove(filepath.Join(j.dir, names[i])); err != nil {
			return err
		}
	}
	return nil
}

// SFTPUploader stores backups on a remote host over SFTP.
type SFTPUploader struct {
	cfg     config.SftpConfig
	timeout time.Duration
}

func NewSFTPUploader(cfg config.SftpConfig) *SFTPUploader {
	return &SFTPUploader{cfg: cfg, timeout: 15 * time.Second}
}

func (u *SFTPUploader) clientConfig() (*ssh.ClientConfig, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if u.cfg.HostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(u.cfg.HostKey))
		if err != nil {
			return nil, errors.Wrap(err, "parse sftp host key")
		}
		hostKey = ssh.FixedHostKey(key)
	}
	return &ssh.ClientConfig{
		User:            u.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(u.cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         u.timeout,
	}, nil
}

func (u *SFTPUploader) Upload(ctx context.Context, name string, data []byte) error {
	sshConfig, err := u.clientConfig()
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(u.cfg.Host, strconv.Itoa(u.cfg.Port))
	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return errors.Wrapf(err, "ssh dial %s", addr)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return errors.Wrap(err, "open sftp session")
	}
	defer client.Close()

	dir := u.cfg.Path
	if dir == "" {
		dir = "."
	}
	if err := client.MkdirAll(dir); err != nil {
		return errors.Wrapf(err, "create remote dir %s", dir)
	}
	f, err := client.Create(client.Join(dir, name))
	if err != nil {
		return errors.Wrap(err, "create remote file")
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "write remote file")
	}
	zap.S().Infof("catalog backup uploaded to %s:%s", addr, client.Join(dir, name))
	return nil
}
