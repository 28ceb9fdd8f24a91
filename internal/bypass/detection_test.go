package bypass

import (
	"net/http"
	"testing"
)

func TestDetectCloudflare(t *testing.T) {
	res := &Response{
		StatusCode: 200,
		Headers:    http.Header{"Server": {"nginx"}},
		Body:       []byte("OK"),
	}
	if detected, _ := detectCloudflare(res); detected {
		t.Errorf("expected not detected")
	}

	res = &Response{
		StatusCode: 403,
		Headers:    http.Header{"Server": {"cloudflare"}},
		Body:       []byte("Access Denied"),
	}
	if detected, vendor := detectCloudflare(res); !detected || vendor != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}

	res = &Response{
		StatusCode: 503,
		Headers:    http.Header{},
		Body:       []byte("<div id=\"cf-turnstile\"></div>"),
	}
	if detected, _ := detectCloudflare(res); !detected {
		t.Errorf("expected Cloudflare detection by body signature")
	}
}

func TestDetectAkamai(t *testing.T) {
	res := &Response{
		StatusCode: 403,
		Headers:    http.Header{},
		Body:       []byte("Access Denied. Reference #18.abc123"),
	}
	if detected, vendor := detectAkamai(res); !detected || vendor != "Akamai" {
		t.Errorf("expected Akamai detection by reference block page")
	}

	res = &Response{
		StatusCode: 200,
		Headers:    http.Header{"Server": {"AkamaiGHost"}},
		Body:       []byte("OK"),
	}
	if detected, _ := detectAkamai(res); detected {
		t.Errorf("expected no detection on 200")
	}
}

func TestDetectDataDome(t *testing.T) {
	res := &Response{
		StatusCode: 403,
		Headers:    http.Header{"X-Datadome": {"protected"}},
		Body:       []byte(""),
	}
	if detected, vendor := detectDataDome(res); !detected || vendor != "DataDome" {
		t.Errorf("expected DataDome detection by header")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	res := &Response{
		StatusCode: 403,
		Headers:    http.Header{},
		Body:       []byte("<script src=\"https://client.perimeterx.net/px.js\"></script>"),
	}
	if detected, vendor := detectPerimeterX(res); !detected || vendor != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by body signature")
	}
}

func TestAnalyze(t *testing.T) {
	detectors := DefaultDetectors()

	res := &Response{
		StatusCode: 200,
		Headers:    http.Header{"Server": {"nginx"}},
		Body:       []byte("<html>regular content</html>"),
	}
	if detected, vendor := Analyze(res, detectors); detected || vendor != "" {
		t.Errorf("Analyze = (%v, %q), want clean", detected, vendor)
	}

	res = &Response{
		StatusCode: 403,
		Headers:    http.Header{"Server": {"cloudflare"}},
		Body:       []byte("checking your browser"),
	}
	detected, vendor := Analyze(res, detectors)
	if !detected || vendor != "Cloudflare" {
		t.Errorf("Analyze = (%v, %q), want Cloudflare", detected, vendor)
	}

	if detected, _ := Analyze(nil, detectors); detected {
		t.Errorf("nil response should not detect")
	}
}
