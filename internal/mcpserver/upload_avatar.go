package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/encoder"
	"github.com/starford/evolve/internal/imagecrypt"
)

const maxAvatarSize = 5 << 20

var phoneRe = regexp.MustCompile(`^\+?[0-9]{4,20}$`)

type uploadResult struct {
	SavedPath string `json:"savedPath"`
	ImageRef  string `json:"imageRef,omitempty"`
	Encrypted bool   `json:"encrypted"`
}

func (s *Server) uploadAvatar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone_number")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	phone = strings.TrimSpace(phone)
	if !phoneRe.MatchString(phone) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid phone number: %q", phone)), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAvatarSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxAvatarSize)), nil
	}
	if mime := imagecrypt.DetectMIME(data); mime != imagecrypt.MIMEPNG {
		return mcp.NewToolResultError(fmt.Sprintf("avatar must be a PNG (detected: %s)", mime)), nil
	}

	name := phone + encoder.InputExt
	if err := s.deps.Uploads.Create(name, data); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("avatar already exists: %s", name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to save avatar: %v", err)), nil
	}

	res := uploadResult{SavedPath: name}
	if s.deps.Encoder != nil {
		report, err := s.deps.Encoder.Run(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("saved %s but encryption failed: %v", name, err)), nil
		}
		for _, m := range report.Encrypted {
			if m.PhoneNumber == phone {
				res.ImageRef = m.ImageRef
				res.Encrypted = true
			}
		}
	}
	out, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:image/png;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}
	if mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]; mime != imagecrypt.MIMEPNG {
		return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// fetchHTTP downloads an avatar from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}
