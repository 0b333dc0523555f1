package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aos-sim/aos/internal/config"
)

func fileManagerFor(t *testing.T) (*Toolbox, *config.SystemConfig) {
	t.Helper()
	cfg := testConfig(t)
	tb, err := NewToolbox(context.Background(), "a1b2c3d4", cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tb, cfg
}

func TestFileManagerWriteReadRoundTrip(t *testing.T) {
	tb, _ := fileManagerFor(t)
	ctx := context.Background()

	result := tb.Execute(ctx, "file_manager", map[string]any{
		"operation": "write_file",
		"path":      "notes/draft.txt",
		"content":   "hello world",
	})
	if result["status"] != "success" {
		t.Fatalf("write result = %v", result)
	}

	result = tb.Execute(ctx, "file_manager", map[string]any{
		"operation": "read_file",
		"path":      "notes/draft.txt",
	})
	if result["content"] != "hello world" {
		t.Errorf("read result = %v", result)
	}

	result = tb.Execute(ctx, "file_manager", map[string]any{
		"operation": "list_files",
		"path":      "notes",
	})
	files, _ := result["files"].([]any)
	if len(files) != 1 || files[0] != "draft.txt" {
		t.Errorf("list result = %v", result)
	}
}

func TestFileManagerDeniesEscapes(t *testing.T) {
	tb, _ := fileManagerFor(t)
	ctx := context.Background()

	for _, path := range []string{"../escape.txt", "/etc/passwd", "a/../../b"} {
		result := tb.Execute(ctx, "file_manager", map[string]any{
			"operation": "write_file",
			"path":      path,
			"content":   "x",
		})
		if result["code"] != CodePermissionDenied {
			t.Errorf("write %q: code = %v, want %s", path, result["code"], CodePermissionDenied)
		}
	}
}

func TestFileManagerReadMissing(t *testing.T) {
	tb, _ := fileManagerFor(t)

	result := tb.Execute(context.Background(), "file_manager", map[string]any{
		"operation": "read_file",
		"path":      "nope.txt",
	})
	if result["code"] != CodeFileNotFound {
		t.Errorf("code = %v, want %s", result["code"], CodeFileNotFound)
	}
}

func TestFileManagerCopyToDelivery(t *testing.T) {
	tb, cfg := fileManagerFor(t)
	ctx := context.Background()

	tb.Execute(ctx, "file_manager", map[string]any{
		"operation": "write_file",
		"path":      "site/index.html",
		"content":   "<html></html>",
	})
	result := tb.Execute(ctx, "file_manager", map[string]any{
		"operation": "copy_to_delivery",
		"path":      "site/index.html",
	})
	if result["delivered"] != "index.html" {
		t.Fatalf("result = %v", result)
	}

	data, err := os.ReadFile(filepath.Join(cfg.DeliveryPath, "index.html"))
	if err != nil {
		t.Fatalf("delivered file missing: %v", err)
	}
	if string(data) != "<html></html>" {
		t.Errorf("delivered content = %q", data)
	}
}

func TestAPIClientRefusesPrivateTargets(t *testing.T) {
	tb, _ := fileManagerFor(t)
	ctx := context.Background()

	for _, url := range []string{
		"http://127.0.0.1:8765/admin",
		"http://localhost/secrets",
		"http://192.168.1.10/",
		"ftp://example.com/x",
		"not a url",
	} {
		result := tb.Execute(ctx, "api_client", map[string]any{"url": url})
		code := result["code"]
		if code != CodePermissionDenied && code != CodeInvalidArguments {
			t.Errorf("url %q: result = %v, want refusal", url, result)
		}
	}
}
