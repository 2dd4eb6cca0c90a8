// Package sdgateway wraps the Stable Diffusion WebUI's /sdapi/v1 HTTP
// surface: model/sampler/LoRA listing, txt2img generation, progress polling,
// interruption, and the NudeNet censor pass.
package sdgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

// Client wraps *http.Client with a per-operation timeout table, adapted
// from the teacher's AnthropicProvider HTTP-client shape (functional
// options, baseURL trimming, a single doRequest/decode helper) generalized
// from a chat API to the SD engine's REST surface.
type Client struct {
	baseURL       string
	basicUser     string
	basicPass     string
	listClient    *http.Client
	genClient     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth enables HTTP basic auth on every request, for SD WebUI
// deployments fronted by `--api-auth`.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) { c.basicUser, c.basicPass = user, pass }
}

// New creates a Client. listTimeout bounds the short listing endpoints
// (models/samplers/loras/progress/interrupt); genTimeout bounds Txt2Img,
// which can legitimately run for minutes.
func New(baseURL string, listTimeout, genTimeout time.Duration, opts ...Option) *Client {
	if listTimeout <= 0 {
		listTimeout = 10 * time.Second
	}
	if genTimeout <= 0 {
		genTimeout = 5 * time.Minute
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		listClient: &http.Client{Timeout: listTimeout},
		genClient:  &http.Client{Timeout: genTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) doRequest(ctx context.Context, client *http.Client, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "marshal sd request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build sd request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.basicUser != "" {
		req.SetBasicAuth(c.basicUser, c.basicPass)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Timeout, "sd engine request timed out", err)
		}
		return nil, apperr.Wrap(apperr.Transport, "sd engine unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transport, "read sd response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Newf(apperr.Upstream, "sd engine %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// SDModel describes one checkpoint returned by /sdapi/v1/sd-models.
type SDModel struct {
	Title   string `json:"title"`
	ModelName string `json:"model_name"`
	Hash    string `json:"hash"`
}

// ListModels returns the checkpoints the engine has loaded.
func (c *Client) ListModels(ctx context.Context) ([]SDModel, error) {
	body, err := c.doRequest(ctx, c.listClient, http.MethodGet, "/sdapi/v1/sd-models", nil)
	if err != nil {
		return nil, err
	}
	var models []SDModel
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode sd-models response", err)
	}
	return models, nil
}

// Sampler describes one entry from /sdapi/v1/samplers.
type Sampler struct {
	Name string `json:"name"`
}

// ListSamplers returns available samplers.
func (c *Client) ListSamplers(ctx context.Context) ([]Sampler, error) {
	body, err := c.doRequest(ctx, c.listClient, http.MethodGet, "/sdapi/v1/samplers", nil)
	if err != nil {
		return nil, err
	}
	var samplers []Sampler
	if err := json.Unmarshal(body, &samplers); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode samplers response", err)
	}
	return samplers, nil
}

// LoRAListing is one raw entry from /sdapi/v1/loras, before LoRACatalog's
// categorization pipeline runs over it.
type LoRAListing struct {
	Name    string                 `json:"name"`
	Alias   string                 `json:"alias"`
	Path    string                 `json:"path"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ListLoRAs returns the LoRA models the engine has on disk.
func (c *Client) ListLoRAs(ctx context.Context) ([]LoRAListing, error) {
	body, err := c.doRequest(ctx, c.listClient, http.MethodGet, "/sdapi/v1/loras", nil)
	if err != nil {
		return nil, err
	}
	var loras []LoRAListing
	if err := json.Unmarshal(body, &loras); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode loras response", err)
	}
	return loras, nil
}

// Txt2ImgRequest is the subset of /sdapi/v1/txt2img's parameters spec §6
// requires the gateway to pass through.
type Txt2ImgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	CFGScale       float64 `json:"cfg_scale,omitempty"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	BatchSize      int     `json:"batch_size,omitempty"`
	OverrideSettings map[string]interface{} `json:"override_settings,omitempty"`
}

// Txt2ImgResponse carries the base64-encoded result images and engine info.
type Txt2ImgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// LoRASelection names a LoRA and the weight to apply, composed into the
// prompt as the `<lora:NAME:WEIGHT>` trigger syntax spec §4.1 mandates.
type LoRASelection struct {
	Name   string
	Weight float64
}

// ComposePrompt appends `<lora:NAME:WEIGHT>` trigger tags for each selection
// to prompt, per spec §4.1.
func ComposePrompt(prompt string, selections []LoRASelection) string {
	var b strings.Builder
	b.WriteString(prompt)
	for _, sel := range selections {
		fmt.Fprintf(&b, " <lora:%s:%g>", sel.Name, sel.Weight)
	}
	return b.String()
}

// Txt2Img submits a generation request and returns the decoded result. LoRA
// selections, if any, must already be composed into req.Prompt via
// ComposePrompt before calling.
func (c *Client) Txt2Img(ctx context.Context, req Txt2ImgRequest) (*Txt2ImgResponse, error) {
	body, err := c.doRequest(ctx, c.genClient, http.MethodPost, "/sdapi/v1/txt2img", req)
	if err != nil {
		return nil, err
	}
	var resp Txt2ImgResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode txt2img response", err)
	}
	return &resp, nil
}

// Progress reflects /sdapi/v1/progress.
type Progress struct {
	Progress    float64 `json:"progress"`
	ETASeconds  float64 `json:"eta_relative"`
	CurrentStep int     `json:"state"`
}

// Progress polls the engine's generation progress.
func (c *Client) Progress(ctx context.Context) (*Progress, error) {
	body, err := c.doRequest(ctx, c.listClient, http.MethodGet, "/sdapi/v1/progress", nil)
	if err != nil {
		return nil, err
	}
	var p Progress
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode progress response", err)
	}
	return &p, nil
}

// Interrupt cancels the engine's in-progress generation.
func (c *Client) Interrupt(ctx context.Context) error {
	_, err := c.doRequest(ctx, c.listClient, http.MethodPost, "/sdapi/v1/interrupt", struct{}{})
	return err
}
