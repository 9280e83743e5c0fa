package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStore_Upload(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotType   string
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	endpoint := strings.TrimPrefix(srv.URL, "http://")
	store, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "attachments",
		Region:    "us-east-1",
		PublicURL: "https://cdn.example.com/attachments/",
	})
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "patients/p1/photo/1.jpg", []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/attachments/patients/p1/photo/1.jpg", url)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/attachments/patients/p1/photo/1.jpg", gotPath)
	assert.Equal(t, "image/jpeg", gotType)
	// plain-http uploads use aws-chunked streaming signatures
	assert.Contains(t, string(gotBody), "jpeg-bytes")
}

func TestObjectStore_UploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`))
	}))
	defer srv.Close()

	store, err := New(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "attachments",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "patients/p1/voice/1.ogg", []byte("ogg"), "audio/ogg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patients/p1/voice/1.ogg")
}

func TestNew_DefaultPublicURL(t *testing.T) {
	store, err := New(Config{Endpoint: "s3.example.com", Bucket: "media", UseSSL: true})
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/media", store.publicURL)
}
