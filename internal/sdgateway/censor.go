package sdgateway

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

// CensorConfig mirrors the NudeNet threshold/filter configuration object
// spec §6 sends to the engine's censor extension, keyed by detection class
// (e.g. "FEMALE_BREAST_EXPOSED", "FACE_FEMALE").
type CensorConfig struct {
	Thresholds        map[string]float64 `json:"thresholds"`
	NMSThreshold      float64            `json:"nms_threshold"`
	FilterType        string             `json:"filter_type"`
	BlurRadius        int                `json:"blur_radius,omitempty"`
	PixelationFactor  int                `json:"pixelation_factor,omitempty"`
	FillColor         string             `json:"fill_color,omitempty"`
	MaskShape         string             `json:"mask_shape"`
	MaskBlendRadius   int                `json:"mask_blend_radius,omitempty"`
	RectangleRounding int                `json:"rectangle_rounding,omitempty"`
	ExpansionFactor   float64            `json:"expansion_factor,omitempty"`
}

// CensorResult reports which detection classes triggered and the resulting
// (possibly filtered) image.
type CensorResult struct {
	ImageBase64     string          `json:"image"`
	Detections      []Detection     `json:"detections"`
	AnyAboveThreshold bool          `json:"-"`
}

// Detection is one NudeNet bounding-box detection.
type Detection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// Censor submits imageBase64 to the engine's censor/extras endpoint with
// cfg's per-class thresholds, per spec §6. A class whose threshold is 1.0
// is treated as "never censor"; a detected class with no entry in
// cfg.Thresholds is checked against 0.5.
func (c *Client) Censor(ctx context.Context, imageBase64 string, cfg CensorConfig) (*CensorResult, error) {
	payload := struct {
		Image string      `json:"image"`
		Censor CensorConfig `json:"censor"`
	}{Image: imageBase64, Censor: cfg}

	body, err := c.doRequest(ctx, c.listClient, http.MethodPost, "/sdapi/v1/censor", payload)
	if err != nil {
		return nil, err
	}

	var result CensorResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "decode censor response", err)
	}

	for _, d := range result.Detections {
		threshold, ok := cfg.Thresholds[d.Class]
		if !ok {
			threshold = 0.5
		}
		if threshold < 1.0 && d.Confidence >= threshold {
			result.AnyAboveThreshold = true
			break
		}
	}
	return &result, nil
}

// PreviewMask renders a local, in-process approximation of what a censor
// filter would do to img, for sanity-checking filter parameters (this
// package's unit tests call it) — never as the real censor decision,
// which always comes from the upstream engine's detections.
func PreviewMask(img image.Image, cfg CensorConfig) image.Image {
	switch cfg.FilterType {
	case "Pixelation":
		factor := cfg.PixelationFactor
		if factor <= 0 {
			factor = 8
		}
		bounds := img.Bounds()
		small := imaging.Resize(img, bounds.Dx()/factor, 0, imaging.NearestNeighbor)
		return imaging.Resize(small, bounds.Dx(), bounds.Dy(), imaging.NearestNeighbor)
	case "Solid fill":
		fillColor := parseHexColor(cfg.FillColor)
		return imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), fillColor)
	default: // "Variable blur"
		radius := float64(cfg.BlurRadius)
		if radius <= 0 {
			radius = 12
		}
		return imaging.Blur(img, radius)
	}
}

func parseHexColor(hex string) color.NRGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.NRGBA{A: 255}
	}
	r, err1 := hexByte(hex[1:3])
	g, err2 := hexByte(hex[3:5])
	b, err3 := hexByte(hex[5:7])
	if err1 != nil || err2 != nil || err3 != nil {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func hexByte(s string) (uint8, error) {
	var v uint8
	for _, ch := range s {
		v <<= 4
		switch {
		case ch >= '0' && ch <= '9':
			v |= uint8(ch - '0')
		case ch >= 'a' && ch <= 'f':
			v |= uint8(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			v |= uint8(ch-'A') + 10
		default:
			return 0, apperr.Newf(apperr.Validation, "invalid hex digit %q", ch)
		}
	}
	return v, nil
}
