package http

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"octapulse/internal/core"
	"octapulse/internal/data"
	"octapulse/internal/payload"
	"octapulse/internal/phase"
	"octapulse/internal/template"
)

const (
	// DefaultReadPath requests an avatar that cannot be cached yet.
	DefaultReadPath = "/avatar/${uuid()}"
	// DefaultUploadPath is where the write phase posts images.
	DefaultUploadPath = "/upload"
	// SecretHeader carries the upload secret.
	SecretHeader = "X-Secret-Key"
	// KeyPrefix marks uploads made by the harness.
	KeyPrefix = "octapulse/"
)

// Builders returns the built-in phase kinds backed by client.
func Builders(client *http.Client, debug *DebugLogger) phase.Registry {
	return phase.Registry{
		phase.KindRead: func(s phase.Spec, cfg core.RunConfig) (core.Factory, error) {
			if s.Path == "" {
				s.Path = DefaultReadPath
			}
			return GetFactory(client, cfg, s, debug)
		},
		phase.KindGet: func(s phase.Spec, cfg core.RunConfig) (core.Factory, error) {
			if s.Path == "" {
				return nil, fmt.Errorf("kind %q needs a path", phase.KindGet)
			}
			return GetFactory(client, cfg, s, debug)
		},
		phase.KindWrite: func(s phase.Spec, cfg core.RunConfig) (core.Factory, error) {
			return UploadFactory(client, cfg, s, debug)
		},
	}
}

func templateVars(cfg core.RunConfig) template.Vars {
	return template.Vars{"target": cfg.Target, "secret": cfg.Secret}
}

// withRow returns a copy of vars with row added as data.<column>.
func withRow(vars template.Vars, row data.Row) template.Vars {
	out := maps.Clone(vars)
	for k, v := range row {
		out["data."+k] = v
	}
	return out
}

// GetFactory produces GET requests to cfg.Target + s.Path. The path is a
// template expanded per operation, so ${uuid()} differs on every request.
// With s.Data set, each operation also takes the next row of the data file
// as ${data.<column>}.
func GetFactory(client *http.Client, cfg core.RunConfig, s phase.Spec, debug *DebugLogger) (core.Factory, error) {
	vars := templateVars(cfg)

	var src *data.Source
	if s.Data != "" {
		var err error
		if src, err = data.LoadFile(s.Data, data.Mode(s.DataMode), ""); err != nil {
			return nil, err
		}
		probe := make(data.Row)
		for _, col := range src.Columns() {
			probe[col] = ""
		}
		if err := template.Validate(s.Path, withRow(vars, probe)); err != nil {
			return nil, fmt.Errorf("path %q: %w", s.Path, err)
		}
	} else if err := template.Validate(s.Path, vars); err != nil {
		return nil, fmt.Errorf("path %q: %w", s.Path, err)
	}
	label := phaseLabel(s)

	return func() core.Operation {
		return func(ctx context.Context) (int, error) {
			start := time.Now()
			opVars := vars
			if src != nil {
				opVars = withRow(vars, src.Next())
			}
			path, err := template.Substitute(s.Path, opVars)
			if err != nil {
				debug.LogError(label, err, time.Since(start))
				return 0, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, JoinURL(cfg.Target, path), nil)
			if err != nil {
				debug.LogError(label, err, time.Since(start))
				return 0, err
			}
			return send(client, req, label, debug, start)
		}
	}, nil
}

// UploadFactory produces multipart POST requests carrying a synthetic JPEG.
// The image is encoded once; each request gets a fresh upload key.
func UploadFactory(client *http.Client, cfg core.RunConfig, s phase.Spec, debug *DebugLogger) (core.Factory, error) {
	img, err := payload.JPEG(s.ImageSize, nil)
	if err != nil {
		return nil, err
	}
	path := s.Path
	if path == "" {
		path = DefaultUploadPath
	}
	url := JoinURL(cfg.Target, path)
	label := phaseLabel(s)
	pool := &sync.Pool{
		New: func() any { return new(bytes.Buffer) },
	}

	return func() core.Operation {
		return func(ctx context.Context) (int, error) {
			start := time.Now()

			buf := pool.Get().(*bytes.Buffer)
			buf.Reset()
			contentType, err := writeUpload(buf, img)
			if err != nil {
				pool.Put(buf)
				debug.LogError(label, err, time.Since(start))
				return 0, err
			}

			body := &pooledBody{Reader: bytes.NewReader(buf.Bytes()), buf: buf, pool: pool}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
			if err != nil {
				_ = body.Close()
				debug.LogError(label, err, time.Since(start))
				return 0, err
			}
			req.ContentLength = int64(buf.Len())
			req.Header.Set("Content-Type", contentType)
			if cfg.Secret != "" {
				req.Header.Set(SecretHeader, cfg.Secret)
			}
			return send(client, req, label, debug, start)
		}
	}, nil
}

func writeUpload(buf *bytes.Buffer, img []byte) (string, error) {
	w := multipart.NewWriter(buf)
	fields := [][2]string{
		{"keys", KeyPrefix + uuid.NewString()},
		{"mode", "square"},
		{"size", "256"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="avatar"; filename="bench.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return w.FormDataContentType(), nil
}

func send(client *http.Client, req *http.Request, label string, debug *DebugLogger, start time.Time) (int, error) {
	debug.LogRequest(label, req)
	resp, err := do(client, req)
	if err != nil {
		debug.LogError(label, err, time.Since(start))
		return 0, err
	}
	debug.LogResponse(label, resp, time.Since(start))
	return resp.StatusCode, nil
}

func phaseLabel(s phase.Spec) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind
}

// pooledBody returns its buffer to the pool once the transport closes the
// request body. The transport may close it after Do has returned.
type pooledBody struct {
	*bytes.Reader
	buf    *bytes.Buffer
	pool   *sync.Pool
	closed atomic.Bool
}

func (b *pooledBody) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.pool.Put(b.buf)
	}
	return nil
}
