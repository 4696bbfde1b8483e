// Package hostconn provides command execution on test hosts: over SSH for
// remote hosts and through os/exec for the host the engine itself runs on.
// Both satisfy netops.CommandRunner so the rest of the engine does not care
// where a host lives.
package hostconn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"golang.org/x/crypto/ssh"

	"github.com/haugr/bondvet/internal/logging"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	defaultCmdTimeout  = 30 * time.Second
)

// Runner executes a shell command on one host. It extends
// netops.CommandRunner with a liveness check and a closer.
type Runner interface {
	Run(cmd string) (string, error)
	CheckAlive() error
	Close() error
}

// --- SSH runner ---

// SSHConfig describes how to reach a remote host.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string

	// DialTimeout bounds TCP connection establishment. Zero means the
	// default.
	DialTimeout time.Duration

	// MaxRetries is how many times a failed dial is retried with backoff.
	MaxRetries int

	// RetryDelay is the initial delay between dial attempts; it doubles on
	// each retry.
	RetryDelay time.Duration

	// CommandTimeout bounds each remote command. Zero means the default.
	CommandTimeout time.Duration

	// HostKeyCallback handles host key verification. Nil means
	// ssh.InsecureIgnoreHostKey, which matches lab use where test hosts are
	// reimaged constantly.
	HostKeyCallback ssh.HostKeyCallback
}

// SSHRunner executes commands on a remote host over a persistent SSH
// connection, reconnecting when the connection drops.
type SSHRunner struct {
	config SSHConfig
	signer ssh.Signer
	log    *logging.Logger
	client *ssh.Client
}

// NewSSHRunner validates the key and config. No connection is made until
// the first command runs.
func NewSSHRunner(cfg SSHConfig, log *logging.Logger) (*SSHRunner, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user cannot be empty for %s", cfg.Host)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCmdTimeout
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}
	if log == nil {
		log = logging.Default()
	}

	key, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key for %s: %w", cfg.Host, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key for %s: %w", cfg.Host, err)
	}

	return &SSHRunner{
		config: cfg,
		signer: signer,
		log:    log.WithComponent("ssh").WithHost(cfg.Host),
	}, nil
}

// connect dials with capped exponential backoff. Lab hosts coming back from
// a reboot can take a few seconds to accept connections.
func (r *SSHRunner) connect() (*ssh.Client, error) {
	if r.client != nil {
		return r.client, nil
	}

	config := &ssh.ClientConfig{
		User:            r.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.signer)},
		HostKeyCallback: r.config.HostKeyCallback,
		Timeout:         r.config.DialTimeout,
	}
	addr := fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)

	var lastErr error
	delay := r.config.RetryDelay
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		client, err := ssh.Dial("tcp", addr, config)
		if err == nil {
			r.client = client
			return client, nil
		}
		lastErr = err
		r.log.Debug("ssh dial failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w",
		addr, r.config.MaxRetries+1, lastErr)
}

// Run executes a command on the remote host and returns combined output.
// Each command runs in its own session under CommandTimeout.
func (r *SSHRunner) Run(cmd string) (string, error) {
	client, err := r.connect()
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		// Stale connection; drop it so the next command redials.
		r.client.Close()
		r.client = nil
		return "", fmt.Errorf("failed to open session on %s: %w", r.config.Host, err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return string(res.out), fmt.Errorf("command failed on %s: %w (output: %s)",
				r.config.Host, res.err, strings.TrimSpace(string(res.out)))
		}
		return string(res.out), nil
	case <-time.After(r.config.CommandTimeout):
		session.Close()
		return "", fmt.Errorf("command timed out on %s after %s", r.config.Host, r.config.CommandTimeout)
	}
}

// CheckAlive pings the host and verifies a trivial command runs.
func (r *SSHRunner) CheckAlive() error {
	if err := CheckPingFunc(r.config.Host); err != nil {
		return fmt.Errorf("host %s unreachable: %w", r.config.Host, err)
	}
	if _, err := r.Run("true"); err != nil {
		return fmt.Errorf("host %s not accepting commands: %w", r.config.Host, err)
	}
	return nil
}

// Close tears down the SSH connection if one is open.
func (r *SSHRunner) Close() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// --- Local runner ---

// LocalRunner executes commands on the engine's own host through a shell.
type LocalRunner struct {
	timeout time.Duration
}

// NewLocalRunner returns a LocalRunner with the default per-command timeout.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{timeout: defaultCmdTimeout}
}

// Run executes cmd through sh -c and returns combined output.
func (r *LocalRunner) Run(cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", cmd).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w (output: %s)",
			err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// CheckAlive always succeeds for the local host.
func (r *LocalRunner) CheckAlive() error { return nil }

// Close is a no-op for the local host.
func (r *LocalRunner) Close() error { return nil }

// CheckPingFunc verifies ICMP reachability. A variable so tests can stub
// the network away.
var CheckPingFunc = func(host string) error {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("packet loss")
	}
	return nil
}
