package s3_helper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/utils"
)

func TestExportKey(t *testing.T) {
	a, b := ExportKey(), ExportKey()
	if !strings.HasPrefix(a, ExportPrefix) || !strings.HasSuffix(a, ".json") {
		t.Fatalf("unexpected key %q", a)
	}
	if a == b {
		t.Fatal("keys should be unique")
	}
}

func TestExportRequiresBucket(t *testing.T) {
	prev := utils.S3_BUCKET_NAME
	utils.S3_BUCKET_NAME = ""
	defer func() { utils.S3_BUCKET_NAME = prev }()

	if _, err := ExportSnapshot(context.Background(), &snapshot.Snapshot{Label: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := FetchSnapshot(context.Background(), "snapshots/x.json"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
