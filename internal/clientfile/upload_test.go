package clientfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/vsockshell/vsockshell/internal/framing"
	"github.com/vsockshell/vsockshell/internal/protocol"
)

// fakeConn is a minimal Conn backed by an in-memory buffer: Write always
// succeeds, matching a vsock socket with room in its kernel buffer.
type fakeConn struct {
	bytes.Buffer
}

func (*fakeConn) Close() error { return nil }

// sendFileData must complete a multi-megabyte upload without dropping or
// corrupting a chunk, even though it issues far more cumulative enqueues
// than the ring's capacity over the life of the transfer.
func TestSendFileDataSurvivesMultiMegabyteUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	const size = 3 * 1 << 20 // 3 MiB, several times the ring capacity
	data := bytes.Repeat([]byte{0x99}, size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	conn := &fakeConn{}
	framer := framing.New()
	if err := sendFileData(framer, conn, f); err != nil {
		t.Fatalf("sendFileData: %v", err)
	}

	dec := framing.New()
	var got bytes.Buffer
	sawEnd := false
	if err := dec.Decode(conn.Bytes(), func(rec protocol.Record) error {
		switch rec.Type {
		case protocol.TypeFileData:
			got.Write(rec.Payload)
		case protocol.TypeFileDataEnd:
			sawEnd = true
		}
		return nil
	}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !sawEnd {
		t.Fatal("FILE_DATA_END never arrived")
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Fatalf("reassembled upload is %d bytes, want %d — data dropped or corrupted at a ring seam", got.Len(), len(data))
	}
}

func TestReplyIsOKExactTokenMatch(t *testing.T) {
	cases := []struct {
		reply string
		want  bool
	}{
		{"OK /tmp/src.bin /tmp/dst.bin", true},
		{"KO destination already exists", false},
		{"OKAY not actually ok", false},
		{"OK", true},
	}
	for _, c := range cases {
		if got := replyIsOK(c.reply); got != c.want {
			t.Errorf("replyIsOK(%q) = %v, want %v", c.reply, got, c.want)
		}
	}
}

func TestNulTerminated(t *testing.T) {
	if got := nulTerminated([]byte("hello\x00garbage")); got != "hello" {
		t.Errorf("nulTerminated = %q, want %q", got, "hello")
	}
	if got := nulTerminated([]byte("no-nul")); got != "no-nul" {
		t.Errorf("nulTerminated = %q, want %q", got, "no-nul")
	}
}

func TestValidateUploadPathRejectsMissing(t *testing.T) {
	if _, err := validateUploadPath(filepath.Join(t.TempDir(), "missing"), "/tmp"); err == nil {
		t.Fatal("expected error for missing local file")
	}
}

func TestValidateUploadPathJoinsRemoteDirAndBasename(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "file.bin")
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	remote, err := validateUploadPath(local, "/tmp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remote != "/tmp/file.bin" {
		t.Errorf("validateUploadPath remote = %q, want /tmp/file.bin", remote)
	}
}

func TestValidateDownloadPathRejectsExistingLocal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hostname"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := validateDownloadPath("/etc/hostname", dir); err == nil {
		t.Fatal("expected error for pre-existing local destination")
	}
}

func TestValidateDownloadPathAcceptsFreshDestination(t *testing.T) {
	dir := t.TempDir()
	local, err := validateDownloadPath("/etc/hostname", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if local != filepath.Join(dir, "hostname") {
		t.Errorf("validateDownloadPath = %q, want %q", local, filepath.Join(dir, "hostname"))
	}
}
