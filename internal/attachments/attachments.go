// Package attachments downloads the files a task request references and
// stores them in the round's workspace.
package attachments

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/workspace"
)

// MaxSize caps a single attachment.
const MaxSize = 10 << 20

// ErrUnsupportedScheme is returned for URLs that are neither data: nor http(s).
var ErrUnsupportedScheme = errors.New("unsupported attachment url scheme")

// Attachment is one entry of a task request's attachment list.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Fetcher resolves attachment URLs.
type Fetcher struct {
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewFetcher creates a fetcher with a bounded HTTP client.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tracer:     otel.Tracer("attachments"),
		logger:     logger,
	}
}

// Ingest saves every resolvable attachment into ws and returns them as a
// FileSet keyed attachments/<name>. Entries that fail are logged and skipped.
func (f *Fetcher) Ingest(ctx context.Context, ws *workspace.Workspace, list []Attachment) fileset.FileSet {
	ctx, span := f.tracer.Start(ctx, "attachments.ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("attachments.requested", len(list)))

	files := fileset.FileSet{}
	for _, att := range list {
		if att.Name == "" || att.URL == "" {
			continue
		}

		data, err := f.Fetch(ctx, att.URL)
		if err != nil {
			f.logger.Warn("skipping attachment", zap.String("name", att.Name), zap.Error(err))
			continue
		}

		p, err := ws.SaveAttachment(att.Name, data)
		if err != nil {
			f.logger.Warn("skipping attachment", zap.String("name", att.Name), zap.Error(err))
			continue
		}
		files[p] = string(data)
		f.logger.Debug("saved attachment", zap.String("path", p), zap.Int("bytes", len(data)))
	}

	span.SetAttributes(attribute.Int("attachments.saved", len(files)))
	return files
}

// Fetch returns the bytes an attachment URL points at.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(rawURL, "data:"):
		return DecodeDataURI(rawURL)
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return f.download(ctx, rawURL)
	default:
		return nil, ErrUnsupportedScheme
	}
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("attachment host returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("attachment exceeds %d bytes", MaxSize)
	}
	return data, nil
}

// DecodeDataURI decodes an RFC 2397 data URI, base64 or percent-encoded.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data uri")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri: missing comma")
	}

	if strings.HasSuffix(header, ";base64") {
		payload = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some producers drop padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
			}
		}
		return data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data uri payload: %w", err)
	}
	return []byte(decoded), nil
}
