package testserver

import (
	"bytes"
	"encoding/json"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octapulse/internal/payload"
)

const secret = "s3cr3t"

func newTarget(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(secret)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func upload(t *testing.T, url, key, sec string, file []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("keys", key))
	require.NoError(t, mw.WriteField("mode", "square"))
	if file != nil {
		part, err := mw.CreateFormFile("avatar", "bench.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Secret-Key", sec)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoot(t *testing.T) {
	_, ts := newTarget(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestAvatar_Deterministic(t *testing.T) {
	srv, ts := newTarget(t)

	get := func() []byte {
		resp, err := http.Get(ts.URL + "/avatar/alice?size=16")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		return buf.Bytes()
	}

	a, b := get(), get()
	assert.Equal(t, a, b)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(a))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, int64(2), srv.Counters().Reads)
}

func TestAvatar_BadSize(t *testing.T) {
	_, ts := newTarget(t)

	resp, err := http.Get(ts.URL + "/avatar/alice?size=99999")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload(t *testing.T) {
	srv, ts := newTarget(t)
	img, err := payload.JPEG(10, nil)
	require.NoError(t, err)

	resp := upload(t, ts.URL, "octapulse/one", secret, img)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "created", body["action"])

	resp = upload(t, ts.URL, "octapulse/one", secret, img)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "updated", body["action"])

	c := srv.Counters()
	assert.Equal(t, int64(1), c.Created)
	assert.Equal(t, int64(1), c.Updated)
}

func TestUpload_Rejections(t *testing.T) {
	_, ts := newTarget(t)
	img, err := payload.JPEG(10, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		key    string
		secret string
		file   []byte
		want   int
	}{
		{"wrong secret", "k", "nope", img, http.StatusForbidden},
		{"no key", " , ", secret, img, http.StatusBadRequest},
		{"too many keys", "a,b,c,d,e,f,g,h", secret, img, http.StatusBadRequest},
		{"missing file", "k", secret, nil, http.StatusBadRequest},
		{"not an image", "k", secret, []byte("plain text"), http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, ts.URL, tt.key, tt.secret, tt.file)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestUpload_WrongMethod(t *testing.T) {
	_, ts := newTarget(t)

	resp, err := http.Get(ts.URL + "/upload")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTarget(t)

	for _, code := range []int{200, 201, 400, 404, 500, 503} {
		resp, err := http.Get(ts.URL + "/status/" + strconv.Itoa(code))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, code, resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/status/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDelayEndpoint(t *testing.T) {
	_, ts := newTarget(t)

	start := time.Now()
	resp, err := http.Get(ts.URL + "/delay/50")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestFailRate(t *testing.T) {
	_, ts := newTarget(t)

	for _, tc := range []struct {
		rate string
		want int
	}{{"0", 200}, {"100", 500}} {
		resp, err := http.Get(ts.URL + "/fail-rate?rate=" + tc.rate)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode)
	}
}

func TestParseKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseKeys(" a, b ,a,,"))
	assert.Empty(t, parseKeys(""))
}
