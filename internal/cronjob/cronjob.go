// Package cronjob manages the single optimizer entry in the user crontab.
// The entry is keyed by a literal substring match against `crontab -l`
// output, so install and uninstall are idempotent without any state file.
package cronjob

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// MarkerFor returns the literal substring identifying the optimizer entry
// in crontab output, the same way the old shell installer keyed on the
// optimizer script path. Deriving it from the binary name keeps install and
// uninstall working when the binary is renamed.
func MarkerFor(binPath string) string {
	return filepath.Base(binPath) + " optimize"
}

// Entry renders the desired crontab line: run command on schedule from
// workDir and append its output to the cron log. Cron starts jobs in $HOME,
// so workDir anchors every relative path in the config to the directory the
// entry was installed from.
func Entry(schedule, workDir, command, logPath string) string {
	return fmt.Sprintf("%s cd %s && %s >> %s 2>&1", schedule, workDir, command, logPath)
}

// Crontab abstracts the crontab binary so install logic is testable.
type Crontab interface {
	// List returns the current crontab content, or "" when the user has
	// no crontab.
	List(ctx context.Context) (string, error)
	// Replace installs content as the full crontab.
	Replace(ctx context.Context, content string) error
	// Remove deletes the user crontab entirely.
	Remove(ctx context.Context) error
}

// SystemCrontab shells out to the real crontab binary.
type SystemCrontab struct{}

// NewSystemCrontab verifies the crontab binary exists.
func NewSystemCrontab() (*SystemCrontab, error) {
	if _, err := exec.LookPath("crontab"); err != nil {
		return nil, fmt.Errorf("crontab binary not found: %w", err)
	}
	return &SystemCrontab{}, nil
}

func (s *SystemCrontab) List(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "crontab", "-l")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// "no crontab for <user>" is an empty crontab, not a failure.
		if strings.Contains(stderr.String(), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("crontab -l failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

func (s *SystemCrontab) Replace(ctx context.Context, content string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "crontab", "-")
	cmd.Stdin = strings.NewReader(content)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("crontab - failed: %w: %s", err, stderr.String())
	}
	return nil
}

func (s *SystemCrontab) Remove(ctx context.Context) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "crontab", "-r")
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("crontab -r failed: %w: %s", err, stderr.String())
	}
	return nil
}

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(prompt string) bool

// StdinConfirm reads a y/yes answer from r.
func StdinConfirm(r io.Reader, out io.Writer) ConfirmFunc {
	reader := bufio.NewReader(r)
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

// Manager installs, removes and inspects the optimizer crontab entry.
type Manager struct {
	log     *zap.SugaredLogger
	tab     Crontab
	marker  string // literal substring identifying our entry
	entry   string // full desired crontab line
	confirm ConfirmFunc
}

// NewManager builds a manager for one crontab line. marker must be a
// substring of entry.
func NewManager(log *zap.SugaredLogger, tab Crontab, marker, entry string, confirm ConfirmFunc) (*Manager, error) {
	if !strings.Contains(entry, marker) {
		return nil, fmt.Errorf("marker %q is not a substring of entry %q", marker, entry)
	}
	return &Manager{log: log, tab: tab, marker: marker, entry: entry, confirm: confirm}, nil
}

// matching splits content into our lines and everything else.
func (m *Manager) matching(content string) (mine, others []string) {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, m.marker) {
			mine = append(mine, line)
		} else {
			others = append(others, line)
		}
	}
	return mine, others
}

// Install idempotently adds the entry. An existing identical entry is left
// alone; a conflicting entry is only replaced after confirmation. After
// writing, the crontab is re-read to verify the entry landed.
func (m *Manager) Install(ctx context.Context) error {
	current, err := m.tab.List(ctx)
	if err != nil {
		return err
	}
	mine, others := m.matching(current)

	if len(mine) == 1 && mine[0] == m.entry {
		m.log.Infof("✅ Cron entry already installed: %s", m.entry)
		return nil
	}
	if len(mine) > 0 {
		m.log.Warnf("⚠️ Found existing optimizer entry: %s", strings.Join(mine, " | "))
		if !m.confirm("Replace the existing optimizer cron entry?") {
			m.log.Info("ℹ️ Keeping the existing entry. Nothing changed.")
			return nil
		}
	}

	content := strings.Join(append(others, m.entry), "\n") + "\n"
	if err := m.tab.Replace(ctx, content); err != nil {
		return fmt.Errorf("installing cron entry: %w", err)
	}
	return m.verifyInstalled(ctx)
}

// verifyInstalled re-reads the crontab and checks exactly one matching line
// equal to the desired entry is present.
func (m *Manager) verifyInstalled(ctx context.Context) error {
	current, err := m.tab.List(ctx)
	if err != nil {
		return fmt.Errorf("re-reading crontab after install: %w", err)
	}
	mine, _ := m.matching(current)
	if len(mine) != 1 || mine[0] != m.entry {
		return fmt.Errorf("cron entry verification failed: expected exactly %q, found %d matching line(s)", m.entry, len(mine))
	}
	m.log.Infof("✅ Cron entry installed: %s", m.entry)
	return nil
}

// Uninstall removes every matching line. An empty resulting crontab is
// removed outright.
func (m *Manager) Uninstall(ctx context.Context) error {
	current, err := m.tab.List(ctx)
	if err != nil {
		return err
	}
	mine, others := m.matching(current)
	if len(mine) == 0 {
		m.log.Info("ℹ️ No optimizer cron entry installed. Nothing to do.")
		return nil
	}

	if len(others) == 0 {
		if err := m.tab.Remove(ctx); err != nil {
			return fmt.Errorf("removing crontab: %w", err)
		}
	} else {
		content := strings.Join(others, "\n") + "\n"
		if err := m.tab.Replace(ctx, content); err != nil {
			return fmt.Errorf("rewriting crontab: %w", err)
		}
	}
	m.log.Infof("✅ Removed %d matching cron line(s).", len(mine))
	return nil
}

// Status returns the installed matching lines.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	current, err := m.tab.List(ctx)
	if err != nil {
		return nil, err
	}
	mine, _ := m.matching(current)
	return mine, nil
}
