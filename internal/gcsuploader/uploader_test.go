package gcsuploader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func TestObjectName(t *testing.T) {
	at := time.Date(2023, 1, 5, 10, 15, 0, 0, time.FixedZone("UTC+8", 8*3600))

	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "jan.xlsx", "uploads/2023/20230105_021500_jan.xlsx"},
		{"spaces kept", "my expenses.xls", "uploads/2023/20230105_021500_my expenses.xls"},
		{"unix path stripped", "../../etc/jan.xlsx", "uploads/2023/20230105_021500_jan.xlsx"},
		{"windows path stripped", `C:\Users\me\jan.xlsx`, "uploads/2023/20230105_021500_jan.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectName("2023", tt.filename, at); got != tt.want {
				t.Errorf("ObjectName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/uploads/2023/a.xlsx", "bucket", "uploads/2023/a.xlsx", false},
		{"gs://bucket/a.xlsx", "bucket", "a.xlsx", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"https://storage.googleapis.com/bucket/a.xlsx", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI() = (%q, %q)", bucket, object)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/uploads/2023/20230105_101500_jan.xlsx", "20230105_101500_jan.xlsx"},
		{"gs://bucket/file.xlsx", "file.xlsx"},
		{"gs://bucket", "bucket"},
	}

	for _, tt := range tests {
		if got := ExtractFilenameFromGCSURI(tt.uri); got != tt.want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("A.XLSX"); !strings.Contains(got, "spreadsheetml") {
		t.Errorf("unexpected xlsx content type %q", got)
	}
	if got := contentType("a.xls"); got != "application/vnd.ms-excel" {
		t.Errorf("unexpected xls content type %q", got)
	}
	if got := contentType("a.bin"); got != "application/octet-stream" {
		t.Errorf("unexpected fallback content type %q", got)
	}
}

func TestNewGCSStorageService_RequiresBucket(t *testing.T) {
	if _, err := NewGCSStorageService(context.Background(), "", zerolog.Nop()); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestListUploads(t *testing.T) {
	var gotPrefix string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/b/archive/o") {
			http.NotFound(w, r)
			return
		}
		gotPrefix = r.URL.Query().Get("prefix")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"storage#objects","items":[
			{"kind":"storage#object","bucket":"archive","name":"uploads/2023/20230105_101500_jan.xlsx"},
			{"kind":"storage#object","bucket":"archive","name":"uploads/2023/20230201_090000_feb.xlsx"}
		]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := NewGCSStorageService(ctx, "archive", zerolog.Nop(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewGCSStorageService failed: %v", err)
	}
	defer svc.Close()

	names, err := svc.ListUploads(ctx, "2023")
	if err != nil {
		t.Fatalf("ListUploads failed: %v", err)
	}
	if gotPrefix != "uploads/2023/" {
		t.Errorf("prefix = %q", gotPrefix)
	}
	if len(names) != 2 || names[1] != "uploads/2023/20230201_090000_feb.xlsx" {
		t.Errorf("unexpected names %v", names)
	}
}
