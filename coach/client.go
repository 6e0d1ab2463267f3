package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fono/audio"
)

const apiPrefix = "/api/sessao-treino"

// Identity is the authenticated user the client acts for. It is fixed for
// the lifetime of a Client.
type Identity struct {
	ClientID int64
	Name     string
	Token    string
}

type Config struct {
	BaseURL   string
	Identity  Identity
	UseGemini bool
	Timeout   time.Duration
}

// Client talks to the training service. It holds no session state.
type Client struct {
	cfg  Config
	base *url.URL
	http *tracedClient
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing service url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("service url %q must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, base: base, http: newTracedClient(cfg.Timeout)}, nil
}

func (c *Client) Identity() Identity { return c.cfg.Identity }

func (c *Client) BaseURL() string { return c.base.String() }

type StartRequest struct {
	ClientID     int64      `json:"clienteId"`
	SpecialistID int64      `json:"especialistaId"`
	Difficulty   Difficulty `json:"dificuldade"`
	Age          int        `json:"idade,omitempty"`
}

// Batch is the normalized response to one audio submission.
type Batch struct {
	Turns  []Turn
	Result *SessionResult // set when a turn ended the session
	Timing *Timing
}

// Terminal returns the first terminal turn in the batch.
// ServerError reports whether the service answered with an ERRO item and no
// terminal turn, which leaves it unclear whether the session still runs.
func (b Batch) ServerError() bool {
	if _, ok := b.Terminal(); ok || b.Result != nil {
		return false
	}
	for _, t := range b.Turns {
		if et, ok := t.(ErrorTurn); ok && et.Kind == KindError {
			return true
		}
	}
	return false
}

func (b Batch) Terminal() (TerminalTurn, bool) {
	for _, t := range b.Turns {
		if tt, ok := t.(TerminalTurn); ok {
			return tt, true
		}
	}
	return TerminalTurn{}, false
}

// Start opens a session and returns its opening turns and the assigned id.
// A zero ClientID in req is filled from the client identity.
func (c *Client) Start(ctx context.Context, req StartRequest) ([]Turn, string, error) {
	const op = "start session"
	if req.ClientID == 0 {
		req.ClientID = c.cfg.Identity.ClientID
	}
	if !req.Difficulty.Valid() {
		return nil, "", fmt.Errorf("%s: %w: %q", op, ErrUnknownDifficulty, req.Difficulty)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, "", err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint("iniciar"), bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(op, httpReq)
	if err != nil {
		return nil, "", err
	}
	turns, err := decodeTurns(op, resp.Body)
	if err != nil {
		return nil, "", err
	}
	if len(turns) == 0 {
		return nil, "", malformed(op, "empty message list")
	}
	id := turns[0].Meta().SessionID
	if id == "" {
		return nil, "", malformed(op, "first message has no sessaoId")
	}
	return turns, id, nil
}

// SubmitAudio uploads one recording and returns the service's reply batch.
func (c *Client) SubmitAudio(ctx context.Context, sessionID string, a *audio.Artifact) (Batch, error) {
	const op = "submit audio"
	if sessionID == "" {
		return Batch{}, fmt.Errorf("%s: empty session id", op)
	}
	if a == nil || a.Released() || len(a.Data) == 0 {
		return Batch{}, fmt.Errorf("%s: %w", op, ErrNoAudio)
	}

	body, contentType, err := multipartAudio(a)
	if err != nil {
		return Batch{}, err
	}

	u := c.endpoint(sessionID, "audio")
	u.RawQuery = url.Values{"usarGemini": {strconv.FormatBool(c.cfg.UseGemini)}}.Encode()
	httpReq, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Batch{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.do(op, httpReq)
	if err != nil {
		return Batch{}, err
	}
	turns, err := decodeTurns(op, resp.Body)
	if err != nil {
		return Batch{}, err
	}

	b := Batch{Turns: turns, Timing: resp.Timing}
	if tt, ok := b.Terminal(); ok {
		res := tt.Result.Clone()
		b.Result = &res
	}
	return b, nil
}

// Cancel abandons a session on the server.
func (c *Client) Cancel(ctx context.Context, sessionID string) (Status, error) {
	const op = "cancel session"
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint(sessionID, "cancelar"), nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.do(op, httpReq)
	if err != nil {
		return Status{}, err
	}
	return decodeStatus(op, resp.Body)
}

// State reports where the server thinks the session is.
func (c *Client) State(ctx context.Context, sessionID string) (Status, error) {
	const op = "session state"
	httpReq, err := c.newRequest(ctx, http.MethodGet, c.endpoint(sessionID, "estado"), nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := c.do(op, httpReq)
	if err != nil {
		return Status{}, err
	}
	return decodeStatus(op, resp.Body)
}

// History lists past sessions of a client. A zero id uses the client identity.
func (c *Client) History(ctx context.Context, clientID int64) ([]HistoryEntry, error) {
	const op = "fetch history"
	if clientID == 0 {
		clientID = c.cfg.Identity.ClientID
	}
	u := c.endpoint("historico", "cliente", strconv.FormatInt(clientID, 10))
	httpReq, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(op, httpReq)
	if err != nil {
		return nil, err
	}
	return decodeHistory(op, resp.Body)
}

// Ping checks that the service answers at all.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	d, err := c.http.Warm(ctx, c.base.String())
	if err != nil {
		return 0, transport("ping", err)
	}
	return d, nil
}

func (c *Client) endpoint(parts ...string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + apiPrefix + "/" + strings.Join(parts, "/")
	return &u
}

func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.cfg.Identity.Token; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) do(op string, req *http.Request) (*tracedResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var werr wireError
		_ = json.Unmarshal(resp.Body, &werr)
		return nil, rejected(op, resp.StatusCode, werr.Erro)
	}
	return resp, nil
}

func multipartAudio(a *audio.Artifact) ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := a.Filename
	if filename == "" {
		filename = "audio.flac"
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// IsRetryable reports whether err is worth retrying by the user as is.
func IsRetryable(err error) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == Transport || pe.Status >= 500
}
