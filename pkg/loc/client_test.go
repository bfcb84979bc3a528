package loc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "locharvest/pkg/errors"
)

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results":[{"id":"a"},{"id":"b"}]}`)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil)

	var envelope pageEnvelope
	err := client.GetJSON(context.Background(), server.URL, &envelope)
	require.NoError(t, err)
	assert.Len(t, envelope.Results, 2)
	assert.Equal(t, "a", envelope.Results[0].String("id"))
}

func TestGetJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>not json</html>")
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil)

	err := client.GetJSON(context.Background(), server.URL, &pageEnvelope{})
	require.Error(t, err)

	apiErr, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.ErrorTypeParsing, apiErr.Type)
}

func TestGetJSONStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		wantType errs.ErrorType
	}{
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit},
		{http.StatusInternalServerError, errs.ErrorTypeServerError},
		{http.StatusBadGateway, errs.ErrorTypeServerError},
		{http.StatusTeapot, errs.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client := NewClient(5*time.Second, nil)
		err := client.GetJSON(context.Background(), server.URL, &pageEnvelope{})
		require.Error(t, err)

		apiErr, ok := err.(*errs.Error)
		require.True(t, ok)
		assert.Equal(t, tt.wantType, apiErr.Type)
		assert.Equal(t, tt.status, apiErr.Code)

		server.Close()
	}
}

func TestProbeAssetHeadOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "123")
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil)

	info, err := client.ProbeAsset(context.Background(), server.URL+"/test.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(123), info.Size)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.False(t, info.LastModified.IsZero())
	assert.Equal(t, 2015, info.LastModified.Year())
}

func TestProbeAssetHeadRejectedFallsBackToRangedGet(t *testing.T) {
	var sawRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			sawRange = r.Header.Get("Range")
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Content-Range", "bytes 0-0/10")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte{0x89})
		}
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil)

	info, err := client.ProbeAsset(context.Background(), server.URL+"/test2.png")
	require.NoError(t, err)
	assert.Equal(t, "bytes=0-0", sawRange)
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "image/png", info.ContentType)
}

func TestProbeAssetNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil)

	_, err := client.ProbeAsset(context.Background(), server.URL+"/missing.jpg")
	require.Error(t, err)

	apiErr, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.ErrorTypeNotFound, apiErr.Type)
}

func TestDownloadStreams(t *testing.T) {
	payload := []byte("fake image bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil)

	body, err := client.Download(context.Background(), server.URL+"/img.jpg")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}
