package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDownloader allows private networks so httptest servers on loopback work.
func testDownloader(maxSize int64) *Downloader {
	return NewDownloader(Config{MaxSize: maxSize, AllowPrivateNetworks: true})
}

func pdfHandler(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}
}

func TestDownloadSuccess(t *testing.T) {
	body := []byte("%PDF-1.7 fake pdf content")
	server := httptest.NewServer(pdfHandler(body))
	defer server.Close()

	result, err := testDownloader(0).Download(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, body, result.Content)
	assert.Equal(t, int64(len(body)), result.SizeBytes)
	expected := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(expected[:]), result.ContentHash)
}

func TestDownloadRejectsNonPDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not a pdf</html>"))
	}))
	defer server.Close()

	_, err := testDownloader(0).Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.True(t, IsPermanent(err))
}

func TestDownloadTooLarge(t *testing.T) {
	server := httptest.NewServer(pdfHandler([]byte(strings.Repeat("x", 2048))))
	defer server.Close()

	_, err := testDownloader(1024).Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDownloadStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		permanent bool
	}{
		{name: "404 is gone", status: http.StatusNotFound, want: ErrGone, permanent: true},
		{name: "410 is gone", status: http.StatusGone, want: ErrGone, permanent: true},
		{name: "500 is retryable", status: http.StatusInternalServerError, want: ErrDownloadFailed, permanent: false},
		{name: "403 is retryable", status: http.StatusForbidden, want: ErrDownloadFailed, permanent: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := testDownloader(0).Download(context.Background(), server.URL)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestDownloadRejectsPrivateAddresses(t *testing.T) {
	d := NewDownloader(Config{})

	tests := []struct {
		name string
		url  string
	}{
		{name: "loopback", url: "http://127.0.0.1/paper.pdf"},
		{name: "rfc1918", url: "http://192.168.1.10/paper.pdf"},
		{name: "link local", url: "http://169.254.169.254/latest/meta-data"},
		{name: "file scheme", url: "file:///etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Download(context.Background(), tt.url)
			assert.ErrorIs(t, err, ErrSSRF)
		})
	}
}

func TestValidateURLNotPrivate(t *testing.T) {
	assert.ErrorIs(t, validateURLNotPrivate("http://127.0.0.1:9/paper.pdf"), ErrSSRF)
	assert.ErrorIs(t, validateURLNotPrivate("gopher://example.com/x"), ErrSSRF)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.0.1", true},
		{"8.8.8.8", false},
		{"127.0.0.1", true},
		{"::1", true},
		{"fc00::1", true},
		{"fe80::1", true},
		{"2001:4860:4860::8888", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}
