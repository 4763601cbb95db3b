package attachments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/workspace"
)

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{name: "base64", uri: "data:text/plain;base64,aGVsbG8=", want: "hello"},
		{name: "base64 unpadded", uri: "data:text/plain;base64,aGVsbG8", want: "hello"},
		{name: "base64 with newlines", uri: "data:text/csv;base64,YSxi\nCjEsMg==", want: "a,b\n1,2"},
		{name: "percent encoded", uri: "data:text/plain,hello%20world", want: "hello world"},
		{name: "no media type", uri: "data:,x", want: "x"},
		{name: "missing comma", uri: "data:text/plain;base64", wantErr: true},
		{name: "bad base64", uri: "data:;base64,!!!", wantErr: true},
		{name: "not data", uri: "http://example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.csv":
			w.Write([]byte("a,b\n1,2\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f := NewFetcher(zap.NewNop())

	data, err := f.Fetch(context.Background(), server.URL+"/data.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = f.Fetch(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	_, err = f.Fetch(context.Background(), "ftp://example.com/file")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestFetcher_Ingest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/logo.svg" {
			w.Write([]byte("<svg/>"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ws, err := workspace.Open(t.TempDir(), "ingest", 1)
	require.NoError(t, err)

	f := NewFetcher(zap.NewNop())
	files := f.Ingest(context.Background(), ws, []Attachment{
		{Name: "sample.txt", URL: "data:text/plain;base64,aGVsbG8="},
		{Name: "logo.svg", URL: server.URL + "/logo.svg"},
		{Name: "broken.png", URL: server.URL + "/broken.png"},
		{Name: "", URL: "data:,ignored"},
		{Name: "nourl.txt"},
	})

	assert.Equal(t, []string{"attachments/logo.svg", "attachments/sample.txt"}, files.Paths())
	assert.Equal(t, "hello", files["attachments/sample.txt"])

	data, err := os.ReadFile(filepath.Join(ws.AttachmentsDir(), "logo.svg"))
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))

	_, err = os.Stat(filepath.Join(ws.AttachmentsDir(), "broken.png"))
	assert.True(t, os.IsNotExist(err))
}
