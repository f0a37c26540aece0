package node

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Gammanik/replistore/internal/protocol"
)

func newTestNode(t *testing.T, dir string) *Node {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	n, err := New(Config{
		ID:         1,
		Host:       "127.0.0.1",
		Dir:        dir,
		AcceptPoll: 50 * time.Millisecond,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func startTestNode(t *testing.T, dir string) *Node {
	t.Helper()
	n := newTestNode(t, dir)
	require.NoError(t, n.Start())
	return n
}

func exchange(addr string, req protocol.Request) (protocol.Response, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return protocol.Response{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if err := protocol.WriteRequest(conn, req, 0); err != nil {
		return protocol.Response{}, err
	}
	return protocol.ReadResponse(conn, 0)
}

func mustExchange(t *testing.T, n *Node, req protocol.Request) protocol.Response {
	t.Helper()
	resp, err := exchange(n.Addr(), req)
	require.NoError(t, err)
	return resp
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	n := startTestNode(t, "")

	contents := map[string][]byte{
		"report.txt": []byte("v1"),
		"binary.bin": {0x00, 0xff, 0x10, 0x80},
		"big.dat":    make([]byte, 1<<20),
	}
	for name, content := range contents {
		resp := mustExchange(t, n, protocol.Upload{Name: name, Content: content})
		assert.True(t, resp.IsOK(), name)

		resp = mustExchange(t, n, protocol.Download{Name: name})
		assert.Equal(t, content, resp.Payload, name)
	}

	// файл зеркалируется на диск
	data, err := os.ReadFile(filepath.Join(n.Dir(), "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
}

func TestUploadOverwrites(t *testing.T) {
	n := startTestNode(t, "")

	require.True(t, mustExchange(t, n, protocol.Upload{Name: "a.txt", Content: []byte("first, longer")}).IsOK())
	require.True(t, mustExchange(t, n, protocol.Upload{Name: "a.txt", Content: []byte("second")}).IsOK())

	resp := mustExchange(t, n, protocol.Download{Name: "a.txt"})
	assert.Equal(t, []byte("second"), resp.Payload)

	data, err := os.ReadFile(filepath.Join(n.Dir(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestUploadRejectsBadNames(t *testing.T) {
	n := startTestNode(t, "")

	for _, name := range []string{"", "../escape", "dir/file", ".upload-x"} {
		resp := mustExchange(t, n, protocol.Upload{Name: name, Content: []byte("x")})
		assert.False(t, resp.IsOK(), "name %q", name)
	}
	assert.Empty(t, n.Files())
}

func TestUploadDiskFailureKeepsMemory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	n := newTestNode(t, "")
	require.NoError(t, os.Chmod(n.Dir(), 0500))
	t.Cleanup(func() { os.Chmod(n.Dir(), 0755) })

	resp, err := n.Handle(protocol.Upload{Name: "a.txt", Content: []byte("x")})
	assert.Error(t, err)
	assert.False(t, resp.IsOK())

	// таблица уже изменена, диск нет
	assert.Equal(t, []string{"a.txt"}, n.Files())
}

func TestDownloadMissingIsEmpty(t *testing.T) {
	n := startTestNode(t, "")

	resp := mustExchange(t, n, protocol.Download{Name: "nope"})
	assert.Equal(t, protocol.KindPayload, resp.Kind)
	assert.Empty(t, resp.Payload)

	// пустой файл выглядит так же
	require.True(t, mustExchange(t, n, protocol.Upload{Name: "empty", Content: nil}).IsOK())
	resp = mustExchange(t, n, protocol.Download{Name: "empty"})
	assert.Empty(t, resp.Payload)
}

func TestListAndDelete(t *testing.T) {
	n := startTestNode(t, "")

	for _, name := range []string{"b", "a", "c"} {
		require.True(t, mustExchange(t, n, protocol.Upload{Name: name, Content: []byte(name)}).IsOK())
	}

	resp := mustExchange(t, n, protocol.List{})
	assert.Equal(t, protocol.KindNames, resp.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, resp.Names)

	assert.True(t, mustExchange(t, n, protocol.Delete{Name: "b"}).IsOK())
	assert.False(t, mustExchange(t, n, protocol.Delete{Name: "b"}).IsOK())
	assert.False(t, mustExchange(t, n, protocol.Delete{Name: "never"}).IsOK())

	resp = mustExchange(t, n, protocol.List{})
	assert.Equal(t, []string{"a", "c"}, resp.Names)

	_, err := os.Stat(filepath.Join(n.Dir(), "b"))
	assert.True(t, os.IsNotExist(err))
}

func TestListEmptyNode(t *testing.T) {
	n := startTestNode(t, "")
	resp := mustExchange(t, n, protocol.List{})
	assert.Equal(t, protocol.KindNames, resp.Kind)
	assert.Empty(t, resp.Names)
}

func TestMalformedRequestGetsFailure(t *testing.T) {
	n := startTestNode(t, "")

	for _, body := range [][]byte{
		[]byte("not json"),
		[]byte(`{"action":"rename","filename":"a"}`),
		[]byte(`{"action":"upload"}`),
	} {
		conn, err := net.DialTimeout("tcp", n.Addr(), time.Second)
		require.NoError(t, err)
		require.NoError(t, protocol.WriteFrame(conn, body, 0))

		resp, err := protocol.ReadResponse(conn, 0)
		conn.Close()
		require.NoError(t, err)
		assert.False(t, resp.IsOK())
	}

	// узел продолжает обслуживать
	assert.True(t, mustExchange(t, n, protocol.Upload{Name: "ok", Content: []byte("1")}).IsOK())
}

func TestClientHangupDoesNotStopNode(t *testing.T) {
	n := startTestNode(t, "")

	conn, err := net.DialTimeout("tcp", n.Addr(), time.Second)
	require.NoError(t, err)
	conn.Write([]byte{0, 0})
	conn.Close()

	assert.True(t, mustExchange(t, n, protocol.Upload{Name: "ok", Content: []byte("1")}).IsOK())
}

func TestStartStopIdempotent(t *testing.T) {
	n := newTestNode(t, "")
	assert.False(t, n.Running())

	n.Stop()
	require.NoError(t, n.Start())
	require.NoError(t, n.Start())
	assert.True(t, n.Running())
	port := n.Port()
	assert.NotZero(t, port)

	n.Stop()
	n.Stop()
	assert.False(t, n.Running())

	_, err := exchange(n.Addr(), protocol.List{})
	assert.Error(t, err)

	require.NoError(t, n.Start())
	assert.Equal(t, port, n.Port())
	resp := mustExchange(t, n, protocol.List{})
	assert.Equal(t, protocol.KindNames, resp.Kind)
}

func TestStopIsPrompt(t *testing.T) {
	n, err := New(Config{ID: 7, Host: "127.0.0.1", Dir: t.TempDir(), AcceptPoll: 10 * time.Second})
	require.NoError(t, err)
	require.NoError(t, n.Start())

	start := time.Now()
	n.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRestartKeepsFiles(t *testing.T) {
	dir := t.TempDir()
	n := startTestNode(t, dir)
	require.True(t, mustExchange(t, n, protocol.Upload{Name: "keep.txt", Content: []byte("kept")}).IsOK())

	n.Stop()
	require.NoError(t, n.Start())
	assert.Equal(t, []byte("kept"), mustExchange(t, n, protocol.Download{Name: "keep.txt"}).Payload)
	n.Stop()

	// новый процесс узла поднимает таблицу с диска
	reborn := startTestNode(t, dir)
	assert.Equal(t, []byte("kept"), mustExchange(t, reborn, protocol.Download{Name: "keep.txt"}).Payload)
}

func TestBootLoadSkipsDirsAndTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-123"), []byte("partial"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	n := newTestNode(t, dir)
	assert.Equal(t, []string{"a.txt"}, n.Files())
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "files", "node1")
	n := newTestNode(t, dir)
	assert.DirExists(t, n.Dir())

	_, err := New(Config{ID: 1})
	assert.Error(t, err)
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	n, err := New(Config{
		ID:   2,
		Host: "127.0.0.1",
		Port: ln.Addr().(*net.TCPAddr).Port,
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)

	assert.Error(t, n.Start())
	assert.False(t, n.Running())
}

func TestConcurrentClients(t *testing.T) {
	n := startTestNode(t, "")

	// медленный клиент не блокирует остальных
	slow, err := net.DialTimeout("tcp", n.Addr(), time.Second)
	require.NoError(t, err)
	defer slow.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("f%02d", i%8)
			resp, err := exchange(n.Addr(), protocol.Upload{Name: name, Content: []byte(name)})
			if assert.NoError(t, err) {
				assert.True(t, resp.IsOK())
			}
			_, err = exchange(n.Addr(), protocol.List{})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()
	assert.Len(t, n.Files(), 8)
	for _, name := range n.Files() {
		assert.Equal(t, []byte(name), mustExchange(t, n, protocol.Download{Name: name}).Payload)
	}
}
