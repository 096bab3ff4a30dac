package cronjob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyops/internal/logging"
)

// fakeCrontab keeps the crontab content in memory.
type fakeCrontab struct {
	content string
	exists  bool
}

func (f *fakeCrontab) List(ctx context.Context) (string, error) {
	if !f.exists {
		return "", nil
	}
	return f.content, nil
}

func (f *fakeCrontab) Replace(ctx context.Context, content string) error {
	f.content = content
	f.exists = true
	return nil
}

func (f *fakeCrontab) Remove(ctx context.Context) error {
	f.content = ""
	f.exists = false
	return nil
}

const (
	testMarker = "polyops optimize"
	testEntry  = "*/30 * * * * cd /srv/polyops && /usr/local/bin/polyops optimize >> /srv/polyops/optimizer/cron.log 2>&1"
)

func confirmAlways(string) bool { return true }
func confirmNever(string) bool  { return false }

func newManager(t *testing.T, tab Crontab, confirm ConfirmFunc) *Manager {
	t.Helper()
	m, err := NewManager(logging.Nop(), tab, testMarker, testEntry, confirm)
	require.NoError(t, err)
	return m
}

func matchingLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, testMarker) {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestEntryContainsMarker(t *testing.T) {
	entry := Entry("*/30 * * * *", "/srv/polyops",
		"/usr/local/bin/polyops optimize", "/srv/polyops/optimizer/cron.log")
	assert.Equal(t, testEntry, entry)
	assert.Contains(t, entry, MarkerFor("/usr/local/bin/polyops"))
	assert.True(t, strings.HasPrefix(entry, "*/30 * * * * "))
}

func TestEntryAnchorsWorkDir(t *testing.T) {
	entry := Entry("0 * * * *", "/home/bot/project",
		"/home/bot/go/bin/polyops optimize --config /home/bot/project/polyops.yml",
		"/home/bot/project/optimizer/cron.log")
	// Cron starts jobs in $HOME; the embedded cd keeps relative config
	// paths pointing at the install directory.
	assert.Contains(t, entry, "cd /home/bot/project && ")
	assert.Contains(t, entry, "--config /home/bot/project/polyops.yml")
	assert.Contains(t, entry, ">> /home/bot/project/optimizer/cron.log 2>&1")
}

func TestMarkerForRenamedBinary(t *testing.T) {
	assert.Equal(t, "polyops optimize", MarkerFor("/usr/local/bin/polyops"))
	assert.Equal(t, "polyops-v2 optimize", MarkerFor("/opt/bot/polyops-v2"))
	// A renamed binary still produces a marker that is a substring of its
	// own entry, so NewManager accepts it.
	entry := Entry("* * * * *", "/srv", "/opt/bot/polyops-v2 optimize", "/srv/cron.log")
	_, err := NewManager(logging.Nop(), &fakeCrontab{}, MarkerFor("/opt/bot/polyops-v2"), entry, confirmNever)
	require.NoError(t, err)
}

func TestInstallIntoEmptyCrontab(t *testing.T) {
	tab := &fakeCrontab{}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Install(context.Background()))
	require.Len(t, matchingLines(tab.content), 1)
	assert.Equal(t, testEntry, matchingLines(tab.content)[0])
}

func TestInstallPreservesOtherEntries(t *testing.T) {
	tab := &fakeCrontab{exists: true, content: "0 4 * * * /usr/bin/certbot renew\n"}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Install(context.Background()))
	assert.Contains(t, tab.content, "certbot renew")
	assert.Len(t, matchingLines(tab.content), 1)
}

func TestInstallTwiceIsIdempotent(t *testing.T) {
	tab := &fakeCrontab{}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Install(context.Background()))
	require.NoError(t, m.Install(context.Background()))
	// Exactly one matching line after a double install.
	assert.Len(t, matchingLines(tab.content), 1)
}

func TestInstallConflictDeclinedKeepsOriginal(t *testing.T) {
	stale := "0 * * * * /old/path/polyops optimize >> old.log 2>&1"
	tab := &fakeCrontab{exists: true, content: stale + "\n"}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Install(context.Background()))
	// Declined confirmation: the original conflicting entry survives.
	require.Len(t, matchingLines(tab.content), 1)
	assert.Equal(t, stale, matchingLines(tab.content)[0])
}

func TestInstallConflictConfirmedReplaces(t *testing.T) {
	stale := "0 * * * * /old/path/polyops optimize >> old.log 2>&1"
	tab := &fakeCrontab{exists: true, content: stale + "\n"}
	m := newManager(t, tab, confirmAlways)

	require.NoError(t, m.Install(context.Background()))
	require.Len(t, matchingLines(tab.content), 1)
	assert.Equal(t, testEntry, matchingLines(tab.content)[0])
}

func TestUninstallRemovesAllMatching(t *testing.T) {
	tab := &fakeCrontab{exists: true, content: strings.Join([]string{
		"0 4 * * * /usr/bin/certbot renew",
		testEntry,
		"1 * * * * /old/polyops optimize >> x.log 2>&1",
	}, "\n") + "\n"}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Uninstall(context.Background()))
	assert.Empty(t, matchingLines(tab.content))
	assert.Contains(t, tab.content, "certbot renew")
}

func TestUninstallLastEntryDropsCrontab(t *testing.T) {
	tab := &fakeCrontab{exists: true, content: testEntry + "\n"}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Uninstall(context.Background()))
	assert.False(t, tab.exists, "crontab should be removed when empty")
}

func TestUninstallNoEntryIsNoop(t *testing.T) {
	tab := &fakeCrontab{exists: true, content: "0 4 * * * /usr/bin/certbot renew\n"}
	m := newManager(t, tab, confirmNever)

	require.NoError(t, m.Uninstall(context.Background()))
	assert.Contains(t, tab.content, "certbot renew")
}

func TestStatus(t *testing.T) {
	tab := &fakeCrontab{}
	m := newManager(t, tab, confirmNever)

	lines, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, m.Install(context.Background()))
	lines, err = m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, testEntry, lines[0])
}

func TestNewManagerRejectsForeignMarker(t *testing.T) {
	_, err := NewManager(logging.Nop(), &fakeCrontab{}, "something else", testEntry, confirmNever)
	require.Error(t, err)
}

func TestStdinConfirm(t *testing.T) {
	var out strings.Builder
	confirm := StdinConfirm(strings.NewReader("y\nn\nyes\n\n"), &out)
	assert.True(t, confirm("replace?"))
	assert.False(t, confirm("replace?"))
	assert.True(t, confirm("replace?"))
	assert.False(t, confirm("replace?"))
	assert.Contains(t, out.String(), "[y/N]")
}
