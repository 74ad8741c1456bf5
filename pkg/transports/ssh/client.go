// Package ssh provides the SSH implementation of transports.Conn, with SFTP
// file placement and sudo command execution.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/devforge/devforge/pkg/transports"
)

// Client implements transports.Conn over an SSH connection.
type Client struct {
	config *Config

	mu          sync.Mutex
	client      *ssh.Client
	isConnected bool
}

// NewClient creates a new SSH transport client. The connection is not
// established until Connect is called.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection to the remote host.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected && c.client != nil {
		return nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &transports.TransportError{
			Op:          "connect",
			Err:         err,
			IsAuthError: true,
		}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &transports.TransportError{
			Op:          "connect",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return &transports.TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: true,
		}
	case client := <-connChan:
		c.client = client
		c.isConnected = true
		log.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Target returns the host this connection is bound to.
func (c *Client) Target() string {
	return c.config.Host
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}

	log.Debug().Str("host", c.config.Host).Msg("closing SSH connection")

	err := c.client.Close()
	c.client = nil
	c.isConnected = false

	if err != nil {
		return &transports.TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Execute runs a command on the remote host.
func (c *Client) Execute(ctx context.Context, cmd string) (*transports.Result, error) {
	return c.run(ctx, cmd, false)
}

// ExecuteSudo runs a command on the remote host with sudo.
func (c *Client) ExecuteSudo(ctx context.Context, cmd string) (*transports.Result, error) {
	return c.run(ctx, cmd, true)
}

func (c *Client) run(ctx context.Context, cmd string, useSudo bool) (*transports.Result, error) {
	startTime := time.Now()

	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &transports.TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	finalCmd := cmd
	if useSudo {
		if c.config.SudoPassword != "" {
			session.Stdin = strings.NewReader(c.config.SudoPassword + "\n")
			finalCmd = fmt.Sprintf("sudo -S %s", cmd)
		} else {
			finalCmd = fmt.Sprintf("sudo %s", cmd)
		}
	}

	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(finalCmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	result := &transports.Result{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("command", cmd).
		Bool("sudo", useSudo).
		Dur("duration", result.Duration).
		Msg("command completed")

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			// The command ran; a non-zero exit code is the caller's to judge.
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, &transports.TransportError{
			Op:          "execute",
			Err:         execErr,
			IsTemporary: true,
		}
	}

	return result, nil
}

// Upload places a local file at remotePath via SFTP with the given mode.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	sshClient, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return &transports.TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	defer sftpClient.Close()

	localFile, err := os.Open(localPath)
	if err != nil {
		return &transports.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()

	remoteDir := filepath.Dir(remotePath)
	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return &transports.TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &transports.TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	if _, err := copyWithContext(ctx, remoteFile, localFile); err != nil {
		return &transports.TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to copy file: %w", err),
			IsTemporary: true,
		}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Str("path", remotePath).Msg("failed to set file permissions")
		}
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Msg("file uploaded")

	return nil
}

// getClient returns the underlying SSH client.
func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil, &transports.TransportError{
			Op:  "get-client",
			Err: fmt.Errorf("not connected"),
		}
	}
	return c.client, nil
}

// copyWithContext copies data from src to dst while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
