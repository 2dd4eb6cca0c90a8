package sdgateway

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCensor_FlagsAboveThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CensorResult{
			ImageBase64: "out",
			Detections:  []Detection{{Class: "FACE_FEMALE", Confidence: 0.9}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, time.Second)
	result, err := c.Censor(context.Background(), "in", CensorConfig{
		Thresholds: map[string]float64{"FACE_FEMALE": 0.5},
	})
	if err != nil {
		t.Fatalf("Censor: %v", err)
	}
	if !result.AnyAboveThreshold {
		t.Fatalf("expected AnyAboveThreshold to be true")
	}
}

func TestCensor_ThresholdOfOneNeverCensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CensorResult{
			Detections: []Detection{{Class: "FACE_FEMALE", Confidence: 0.99}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, time.Second)
	result, err := c.Censor(context.Background(), "in", CensorConfig{
		Thresholds: map[string]float64{"FACE_FEMALE": 1.0},
	})
	if err != nil {
		t.Fatalf("Censor: %v", err)
	}
	if result.AnyAboveThreshold {
		t.Fatalf("expected a 1.0 threshold to never flag")
	}
}

func TestPreviewMask_SolidFillUsesParsedColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	out := PreviewMask(img, CensorConfig{FilterType: "Solid fill", FillColor: "#112233"})
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 4 {
		t.Fatalf("unexpected output bounds: %v", out.Bounds())
	}
}

func TestPreviewMask_InvalidHexFallsBackToOpaqueBlack(t *testing.T) {
	got := parseHexColor("not-a-color")
	if got.A != 255 || got.R != 0 || got.G != 0 || got.B != 0 {
		t.Fatalf("got %+v, want opaque black fallback", got)
	}
}

func TestHexByte_RejectsInvalidDigits(t *testing.T) {
	if _, err := hexByte("zz"); err == nil {
		t.Fatalf("expected error for invalid hex digits")
	}
}
