// Package backend talks to a remote question-bank service. Client
// implements taxonomy.Catalog, question.Repository and the image store
// consumed by the hydrator.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

// ErrStatus wraps every non-2xx response.
var ErrStatus = errors.New("unexpected backend status")

type Config struct {
	BaseURL      string
	TokenURL     string // empty disables oauth2
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
	MaxRetries   int
}

type Client struct {
	base       string
	http       *http.Client
	maxRetries int
	log        logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Client {
	var h *http.Client
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		h = cc.Client(context.Background())
	} else {
		h = &http.Client{}
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	} else {
		h.Timeout = 30 * time.Second
	}
	return NewWithHTTP(cfg.BaseURL, h, cfg.MaxRetries, log)
}

// NewWithHTTP uses h as is.
func NewWithHTTP(baseURL string, h *http.Client, maxRetries int, log logrus.FieldLogger) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{base: strings.TrimSuffix(baseURL, "/"), http: h, maxRetries: maxRetries, log: log}
}

type statusError struct {
	Op     string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %d", e.Op, e.Status)
}
func (e *statusError) Unwrap() error { return ErrStatus }

// StatusCode extracts the HTTP status from an error returned by Client.
func StatusCode(err error) (int, bool) {
	var se *statusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// do sends the request built by mk. Reads (idempotent) retry transport
// errors and 5xx/429 responses; writes fail on the first error because the
// server may already have committed them. mk is called once per attempt so
// bodies can be replayed.
func (c *Client) do(ctx context.Context, op string, idempotent bool, mk func() (*http.Request, error), out any) error {
	attempt := func() error {
		req, err := mk()
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		res, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || !idempotent {
				return backoff.Permanent(err)
			}
			return err
		}
		defer res.Body.Close()
		if res.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			serr := &statusError{Op: op, Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
			if idempotent && (res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests) {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if out == nil {
			return nil
		}
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		if err := decode(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decode response: %w", op, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 20 * time.Second
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithFields(logrus.Fields{"op": op, "wait": wait}).Warn("backend call failed; retrying")
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx), notify)
}

// decode accepts both bare JSON and the {"code":..,"message":..,"data":..}
// envelope.
func decode(body []byte, out any) error {
	var env struct {
		Code    *int            `json:"code"`
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &env) == nil && (env.Code != nil || env.Success != nil) {
		if env.Success != nil && !*env.Success {
			return fmt.Errorf("backend error: %s", env.Message)
		}
		if env.Code != nil && *env.Code != 0 && *env.Code != 200 {
			return fmt.Errorf("backend error %d: %s", *env.Code, env.Message)
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(trimmed, out)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		var body io.Reader
		if in != nil {
			b, err := json.Marshal(in)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return nil, err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// flexID accepts both numeric and string ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type node struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

/* ---------------- taxonomy.Catalog ---------------- */

func (c *Client) ListSubjects(ctx context.Context, includeInactive bool) ([]taxonomy.Subject, error) {
	var nodes []node
	path := "/api/subjects?includeInactive=" + strconv.FormatBool(includeInactive)
	if err := c.do(ctx, "list subjects", true, c.jsonRequest(ctx, http.MethodGet, path, nil), &nodes); err != nil {
		return nil, err
	}
	out := make([]taxonomy.Subject, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, taxonomy.Subject{ID: string(n.ID), Name: n.Name})
	}
	return out, nil
}

func (c *Client) CreateSubject(ctx context.Context, s taxonomy.NewSubject) (taxonomy.Subject, error) {
	var n node
	err := c.do(ctx, "create subject", false, c.jsonRequest(ctx, http.MethodPost, "/api/subjects", s), &n)
	return taxonomy.Subject{ID: string(n.ID), Name: n.Name}, err
}

func (c *Client) ListKnowledgePoints(ctx context.Context, subjectName string) ([]taxonomy.KnowledgePoint, error) {
	var nodes []node
	path := "/api/knowledge-points?subject=" + url.QueryEscape(subjectName)
	if err := c.do(ctx, "list knowledge points", true, c.jsonRequest(ctx, http.MethodGet, path, nil), &nodes); err != nil {
		return nil, err
	}
	out := make([]taxonomy.KnowledgePoint, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, taxonomy.KnowledgePoint{ID: string(n.ID), Name: n.Name})
	}
	return out, nil
}

func (c *Client) CreateKnowledgePoint(ctx context.Context, kp taxonomy.NewKnowledgePoint) (taxonomy.KnowledgePoint, error) {
	var n node
	err := c.do(ctx, "create knowledge point", false, c.jsonRequest(ctx, http.MethodPost, "/api/knowledge-points", kp), &n)
	return taxonomy.KnowledgePoint{ID: string(n.ID), Name: n.Name}, err
}

/* ---------------- question.Repository ---------------- */

func (c *Client) CheckDuplicateTitles(ctx context.Context, titles []string) (map[string]bool, error) {
	var found []string
	in := map[string][]string{"titles": titles}
	if err := c.do(ctx, "check duplicates", true, c.jsonRequest(ctx, http.MethodPost, "/api/questions/duplicates", in), &found); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(found))
	for _, t := range found {
		out[t] = true
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, p question.Payload) (string, error) {
	var n node
	if err := c.do(ctx, "create question", false, c.jsonRequest(ctx, http.MethodPost, "/api/questions", p), &n); err != nil {
		return "", err
	}
	return string(n.ID), nil
}

/* ---------------- image store ---------------- */

// Upload posts data as multipart field "file" and returns the stored URL.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	mk := func() (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/files/images", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, "upload image", false, mk, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload image %s: empty url in response", filename)
	}
	return out.URL, nil
}
