package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ndbaker1/datt/internal/testutils"
)

func TestRunUsage(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("run() = %d, want %d", code, ExitInvalidArgs)
	}
	if code := run([]string{"help"}); code != ExitSuccess {
		t.Errorf("run(help) = %d, want %d", code, ExitSuccess)
	}
	if code := run([]string{"frobnicate"}); code != ExitInvalidArgs {
		t.Errorf("run(frobnicate) = %d, want %d", code, ExitInvalidArgs)
	}
}

func segmentArgs(server *testutils.SegmentServer, output, workDir string, extra ...string) []string {
	args := []string{
		"-url", server.BaseURL(),
		"-output", output,
		"-work-dir", workDir,
		"-chunk-size", "4",
		"-parallel", "2",
		"-retry-attempts", "0",
		"-log-level", "error",
	}
	return append(args, extra...)
}

func TestSegments(t *testing.T) {
	segs := testutils.GenerateSegments(23, 100)
	segs[9] = nil
	stream := testutils.Stream{First: 1, Segments: segs}
	server := testutils.StartSegmentServer(t, stream)

	dir := t.TempDir()
	output := filepath.Join(dir, "out.mp4")
	workDir := filepath.Join(dir, ".temp")

	if code := runSegments(segmentArgs(server, output, workDir)); code != ExitSuccess {
		t.Fatalf("segments exited %d", code)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, stream.Expected()) {
		t.Errorf("output is %d bytes, want %d", len(got), len(stream.Expected()))
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Error("work directory was not removed")
	}
}

func TestSegmentsKeepPlaylistMerge(t *testing.T) {
	segs := testutils.GenerateSegments(12, 50)
	stream := testutils.Stream{First: 1, Segments: segs}
	server := testutils.StartSegmentServer(t, stream)

	dir := t.TempDir()
	workDir := filepath.Join(dir, ".temp")

	first := filepath.Join(dir, "first.mp4")
	if code := runSegments(segmentArgs(server, first, workDir, "-keep")); code != ExitSuccess {
		t.Fatalf("segments exited %d", code)
	}
	if _, err := os.Stat(workDir); err != nil {
		t.Fatalf("work directory missing after -keep: %v", err)
	}

	// A second run over the kept work area refetches nothing.
	again := filepath.Join(dir, "again.mp4")
	if code := runSegments(segmentArgs(server, again, workDir, "-keep")); code != ExitSuccess {
		t.Fatalf("second segments run exited %d", code)
	}
	for i := 1; i <= 12; i++ {
		if server.Requests(i) != 1 {
			t.Errorf("index %d requested %d times over two runs, want 1", i, server.Requests(i))
		}
	}

	playlist := filepath.Join(dir, "index.m3u8")
	if code := runPlaylist([]string{"-work-dir", workDir, "-output", playlist}); code != ExitSuccess {
		t.Fatalf("playlist exited %d", code)
	}
	text, err := os.ReadFile(playlist)
	if err != nil {
		t.Fatalf("read playlist: %v", err)
	}
	for _, want := range []string{"#EXTM3U", "#EXT-X-PLAYLIST-TYPE:VOD", ".temp/00000001", ".temp/00000012", "#EXT-X-ENDLIST"} {
		if !strings.Contains(string(text), want) {
			t.Errorf("playlist missing %q\n%s", want, text)
		}
	}

	merged := filepath.Join(dir, "merged.mp4")
	if code := runMerge([]string{"-work-dir", workDir, "-output", merged}); code != ExitSuccess {
		t.Fatalf("merge exited %d", code)
	}
	got, err := os.ReadFile(merged)
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	if !bytes.Equal(got, stream.Expected()) {
		t.Error("merged output does not match the stream")
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Error("work directory was not removed by merge")
	}
}

func TestSegmentsOutputBucket(t *testing.T) {
	stream := testutils.Stream{First: 1, Segments: testutils.GenerateSegments(6, 10)}
	server := testutils.StartSegmentServer(t, stream)

	dir := t.TempDir()
	bucketDir := t.TempDir()
	output := filepath.Join(dir, "show.mp4")

	args := segmentArgs(server, output, filepath.Join(dir, ".temp"), "-output-bucket", "file://"+bucketDir)
	if code := runSegments(args); code != ExitSuccess {
		t.Fatalf("segments exited %d", code)
	}

	got, err := os.ReadFile(filepath.Join(bucketDir, "show.mp4"))
	if err != nil {
		t.Fatalf("read uploaded output: %v", err)
	}
	if !bytes.Equal(got, stream.Expected()) {
		t.Error("uploaded output does not match the stream")
	}
}

func TestSegmentsNoSegments(t *testing.T) {
	server := testutils.StartSegmentServer(t, testutils.Stream{})
	dir := t.TempDir()
	output := filepath.Join(dir, "out.mp4")
	workDir := filepath.Join(dir, ".temp")

	code := runSegments(segmentArgs(server, output, workDir))
	if code != ExitSourceNotAccess {
		t.Errorf("segments exited %d, want %d", code, ExitSourceNotAccess)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("output written for an empty stream")
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Errorf("empty work directory left behind, stat err = %v", err)
	}
}

func TestSegmentsInvalidArgs(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"missing url", []string{"-output", filepath.Join(dir, "o.mp4")}},
		{"missing output", []string{"-url", "https://cdn.example.com/hls"}},
		{"ftp url", []string{"-url", "ftp://cdn.example.com/hls", "-output", "o.mp4"}},
		{"zero chunk size", []string{"-url", "https://cdn.example.com/hls", "-output", "o.mp4", "-chunk-size", "0"}},
		{"bad template", []string{"-url", "https://cdn.example.com/hls", "-output", "o.mp4", "-template", "seg.ts"}},
		{"unknown flag", []string{"-bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := runSegments(tt.args); code != ExitInvalidArgs {
				t.Errorf("segments exited %d, want %d", code, ExitInvalidArgs)
			}
		})
	}
}

func TestSegmentsConfigFile(t *testing.T) {
	stream := testutils.Stream{First: 0, Segments: testutils.GenerateSegments(5, 10)}
	server := testutils.StartSegmentServer(t, stream)

	dir := t.TempDir()
	output := filepath.Join(dir, "out.mp4")
	configPath := filepath.Join(dir, "datt.yaml")
	yaml := "url: " + server.BaseURL() + "\n" +
		"output: " + output + "\n" +
		"work_dir: " + filepath.Join(dir, "work") + "\n" +
		"start: 0\n" +
		"chunk_size: 3\n" +
		"parallel: 1\n" +
		"log_level: error\n" +
		"retry:\n  attempts: 0\n"
	if err := os.WriteFile(configPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := runSegments([]string{"-config", configPath}); code != ExitSuccess {
		t.Fatalf("segments exited %d", code)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, stream.Expected()) {
		t.Error("output does not match the stream")
	}
}

func TestMergeCorruptWorkArea(t *testing.T) {
	dir := t.TempDir()
	workDir := filepath.Join(dir, ".temp")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"00000001": "a", "notes.txt": "b"} {
		if err := os.WriteFile(filepath.Join(workDir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	output := filepath.Join(dir, "out.mp4")
	if code := runMerge([]string{"-work-dir", workDir, "-output", output}); code != ExitCorruptWorkArea {
		t.Errorf("merge exited %d, want %d", code, ExitCorruptWorkArea)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("output written for a corrupt work area")
	}
	if _, err := os.Stat(filepath.Join(workDir, "00000001")); err != nil {
		t.Error("corrupt work area was modified")
	}
}

func TestMergeMissingWorkDir(t *testing.T) {
	dir := t.TempDir()
	code := runMerge([]string{"-work-dir", filepath.Join(dir, "nope"), "-output", filepath.Join(dir, "o.mp4")})
	if code != ExitStorageError {
		t.Errorf("merge exited %d, want %d", code, ExitStorageError)
	}
}

func TestCatalogInvalidArgs(t *testing.T) {
	if code := runCatalog([]string{"-url", "https://site.example/show-1"}); code != ExitInvalidArgs {
		t.Errorf("catalog without captcha exited %d, want %d", code, ExitInvalidArgs)
	}
	if code := runCatalog([]string{"-url", "noepisode", "-captcha", "x"}); code != ExitInvalidArgs {
		t.Errorf("catalog with bad url exited %d, want %d", code, ExitInvalidArgs)
	}
}
