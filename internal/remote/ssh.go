package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/time/rate"
)

// Result is the output of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes shell commands on the remote host.
type Runner interface {
	Run(ctx context.Context, command string) (*Result, error)
}

// SSHConfig configures SSHClient.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyPath        string
	KnownHostsPath string

	// InsecureSkipHostKey disables host key verification. Tests only.
	InsecureSkipHostKey bool

	DialTimeout time.Duration

	// CommandsPerMinute throttles remote execution. Zero disables the limit.
	CommandsPerMinute int
}

// SSHClient runs commands over SSH, one session per command.
type SSHClient struct {
	cfg     SSHConfig
	client  *ssh.ClientConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSSHClient validates cfg and prepares authentication. No connection is
// made until Run.
func NewSSHClient(cfg SSHConfig, logger *zap.Logger) (*SSHClient, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	key, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing ssh key: %w", err)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if !cfg.InsecureSkipHostKey {
		if cfg.KnownHostsPath == "" {
			return nil, fmt.Errorf("ssh: known_hosts path is required")
		}
		hostKey, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.CommandsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.CommandsPerMinute)), 1)
	}

	return &SSHClient{
		cfg: cfg,
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKey,
			Timeout:         cfg.DialTimeout,
		},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Run executes command. A non-zero exit yields an *ExitError together with
// the captured output.
func (c *SSHClient) Run(ctx context.Context, command string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ssh rate limit: %w", err)
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, c.client)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.logger.Info("running remote command", zap.String("host", c.cfg.Host), zap.String("command", command))

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		client.Close()
		return nil, fmt.Errorf("remote command: %w", ctx.Err())
	case err = <-done:
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, &ExitError{Command: command, Code: res.ExitCode, Stderr: res.Stderr}
	}
	return res, fmt.Errorf("remote command: %w", err)
}
