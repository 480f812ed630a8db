package report

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestPlainConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false)

	c.Announce("banner")
	c.Report("frame 1")
	c.Report("frame 2")
	c.Close()

	want := "banner\nframe 1\nframe 2\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestScreenConsoleRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, true)

	c.Report("frame 1")
	c.Report("frame 2")
	c.Announce("done")
	c.Close()

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Errorf("status lines should not scroll: %q", out)
	}
	if !strings.HasSuffix(out, clearLine+"done\n") {
		t.Errorf("announcement did not clear the status line: %q", out)
	}
}

func TestConsoleSerializesWriters(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Report("0123456789")
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		if line != "0123456789" {
			t.Fatalf("interleaved output line %q", line)
		}
	}
}
