package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/aetherhost/internal/config"
	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/terminal"
)

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		if body.Password != "hunter22" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Incorrect email or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123", "token_type": "bearer"})
	})
	mux.HandleFunc("/compute/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]domain.Container{
			{ID: "abc123def456", Name: "aether_dev_nginx_1a2b3c4d", Image: "nginx", State: "running", Port: "32768"},
			{ID: "fff000eee111", Name: "aether_dev_redis_9f8e7d6c", Image: "redis", State: "exited"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLogin_SavesProfile(t *testing.T) {
	srv := apiServer(t)
	path := filepath.Join(t.TempDir(), "profile.yaml")

	out, err := execute(t, "hunter22\n", "--profile", path, "--api-url", srv.URL, "login", "--email", "Dev@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as dev@example.com")

	p, err := config.LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", p.Token)
	assert.Equal(t, "dev@example.com", p.Email)
	assert.Equal(t, srv.URL, p.APIURL)
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := apiServer(t)
	path := filepath.Join(t.TempDir(), "profile.yaml")

	_, err := execute(t, "nope\n", "--profile", path, "--api-url", srv.URL, "login", "--email", "dev@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")

	p, err := config.LoadProfile(path)
	require.NoError(t, err)
	assert.Empty(t, p.Token)
}

func TestLogin_RequiresEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	_, err := execute(t, "hunter22\n", "--profile", path, "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")
}

func TestList_PrintsTable(t *testing.T) {
	srv := apiServer(t)
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, config.SaveProfile(path, config.Profile{APIURL: srv.URL, Email: "dev@example.com", Token: "tok-123"}))

	out, err := execute(t, "", "--profile", path, "ls")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "aether_dev_nginx_1a2b3c4d")
	assert.Contains(t, lines[1], "32768")
	assert.Contains(t, lines[2], "exited")
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

func TestList_NotLoggedIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	_, err := execute(t, "", "--profile", path, "ls")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeTransport struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeTransport) Submit(_ context.Context, containerID, command string) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	f.mu.Unlock()
	if command == "ls" {
		return "a.txt\nb.txt\n", nil
	}
	return "", nil
}

func (f *fakeTransport) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

type fakeDirectory map[string]domain.Container

func (d fakeDirectory) GetContainer(_ context.Context, id string) (domain.Container, error) {
	for _, c := range d {
		if c.ID == id || c.Name == id {
			return c, nil
		}
	}
	return domain.Container{}, domain.ErrContainerNotFound
}

var testDirectory = fakeDirectory{
	"web": {ID: "abc123def456", Name: "web", State: domain.StateRunning},
	"db":  {ID: "fff000eee111", Name: "db", State: "exited"},
}

func TestRunShell_RunsCommandsUntilCtrlD(t *testing.T) {
	in, feed := io.Pipe()
	out := &syncBuffer{}
	transport := &fakeTransport{}

	done := make(chan error, 1)
	go func() {
		done <- runShell(context.Background(), shellConfig{
			ContainerID: "web",
			In:          in,
			Out:         out,
			Transport:   transport,
			Directory:   testDirectory,
			Options:     terminal.Options{Prompt: "$ ", ExecTimeout: time.Second},
		})
	}()

	_, err := feed.Write([]byte("ls\r"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "b.txt")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = feed.Write([]byte{keyEOF})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shell did not exit on Ctrl-D")
	}
	assert.Equal(t, []string{"ls"}, transport.Commands())
	assert.Contains(t, out.String(), "Connected to container: abc123def456")
	assert.Contains(t, out.String(), "a.txt\r\nb.txt")
}

func TestRunShell_PipedInputPrintsReplies(t *testing.T) {
	for name, input := range map[string]string{
		"eof":    "ls\r",
		"ctrl-d": "ls\recho done\r\x04",
	} {
		t.Run(name, func(t *testing.T) {
			transport := &fakeTransport{}
			out := &syncBuffer{}

			err := runShell(context.Background(), shellConfig{
				ContainerID: "web",
				In:          strings.NewReader(input),
				Out:         out,
				Transport:   transport,
				Directory:   testDirectory,
				Options:     terminal.Options{ExecTimeout: time.Second},
			})
			require.NoError(t, err)
			assert.Contains(t, out.String(), "$ ls\r\na.txt\r\nb.txt\r\n$ ")
			assert.True(t, strings.HasSuffix(out.String(), "$ \r\n"))
		})
	}
}

func TestRunShell_InputBeforeCtrlCIsKept(t *testing.T) {
	transport := &fakeTransport{}
	out := &syncBuffer{}

	err := runShell(context.Background(), shellConfig{
		ContainerID: "web",
		In:          strings.NewReader("echo hi\r\x03ignored\r"),
		Out:         out,
		Transport:   transport,
		Directory:   testDirectory,
		Options:     terminal.Options{ExecTimeout: time.Second},
	})
	require.NoError(t, err)
	// The submit was dispatched before exit and still reaches the transport.
	require.Eventually(t, func() bool {
		return len(transport.Commands()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"echo hi"}, transport.Commands())
}

func TestRunShell_RejectsStoppedContainer(t *testing.T) {
	err := runShell(context.Background(), shellConfig{
		ContainerID: "db",
		In:          strings.NewReader(""),
		Out:         io.Discard,
		Transport:   &fakeTransport{},
		Directory:   testDirectory,
	})
	assert.ErrorIs(t, err, domain.ErrContainerNotRunning)
}

func TestRunShell_UnknownContainer(t *testing.T) {
	err := runShell(context.Background(), shellConfig{
		ContainerID: "nope",
		In:          strings.NewReader(""),
		Out:         io.Discard,
		Transport:   &fakeTransport{},
		Directory:   testDirectory,
	})
	assert.ErrorIs(t, err, domain.ErrContainerNotFound)
}

func TestSplitIncompleteRune(t *testing.T) {
	full, rest := splitIncompleteRune([]byte("héllo"))
	assert.Equal(t, "héllo", string(full))
	assert.Nil(t, rest)

	cut := []byte("ab€")[:4] // first two bytes of the euro sign
	full, rest = splitIncompleteRune(cut)
	assert.Equal(t, "ab", string(full))
	assert.Equal(t, []byte("€")[:2], rest)

	full, rest = splitIncompleteRune(nil)
	assert.Empty(t, full)
	assert.Nil(t, rest)
}
