package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"wsiserve/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type sftpSession struct {
	ssh    *ssh.Client
	client *sftp.Client
	root   string
	addr   string

	mu   sync.Mutex
	made map[string]bool // remote directories already created
}

// OpenSFTP expects host, user, remotePath (the remote root directory) and
// either password or privateKey (base64 or raw PEM); port defaults to 22.
// hostKey, an authorized_keys style line, pins the server key.
func OpenSFTP(ctx context.Context, accessInfo map[string]string) (Session, error) {
	host := accessInfo["host"]
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	user := accessInfo["user"]
	remotePath := accessInfo["remotePath"]

	if host == "" || user == "" || remotePath == "" {
		return nil, fmt.Errorf("missing required accessInfo keys: host, user, remotePath")
	}

	var auths []ssh.AuthMethod
	if privateKey := accessInfo["privateKey"]; privateKey != "" {
		// try to decode as base64, fall back to raw
		keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			keyBytes = []byte(privateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if password := accessInfo["password"]; password != "" {
		auths = append(auths, ssh.Password(password))
	} else {
		return nil, fmt.Errorf("no auth method provided; set password or privateKey in accessInfo")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if hk := accessInfo["hostKey"]; hk != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hk))
		if err != nil {
			return nil, fmt.Errorf("parse hostKey: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	} else {
		logger.Warnf("sftp mirror %s: no hostKey configured, server key is not verified", host)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(host, port)

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("create sftp client: %w", err)
	}

	return &sftpSession{
		ssh:    sshClient,
		client: sftpClient,
		root:   remotePath,
		addr:   addr,
		made:   make(map[string]bool),
	}, nil
}

func (s *sftpSession) Put(ctx context.Context, relPath string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := objectKey("", relPath)
	if err != nil {
		return err
	}
	remote := path.Join(s.root, key)

	if err := s.ensureDir(path.Dir(remote)); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", path.Dir(remote), err)
	}

	f, err := s.client.Create(remote)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remote, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("copy to remote file %s: %w", remote, err)
	}

	logger.Debugf("Uploaded '%s' to %s", remote, s.addr)
	return nil
}

func (s *sftpSession) ensureDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.made[dir] {
		return nil
	}
	if err := mkdirAllSFTP(s.client, dir); err != nil {
		return err
	}
	s.made[dir] = true
	return nil
}

func (s *sftpSession) Close() error {
	err := s.client.Close()
	if cerr := s.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
