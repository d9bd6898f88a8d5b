package playback

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// Capabilities describes what a viewer's runtime can do. It is computed once
// when a session opens and never consulted from ambient state afterwards.
type Capabilities struct {
	// NativeHLS is true when the runtime decodes HLS itself (Apple stacks)
	NativeHLS bool `json:"native_hls"`
	// MediaSource is true when a script engine can feed media buffers
	MediaSource bool `json:"media_source"`
	// EmbeddedWrapper is true inside in-app web views, where native
	// adaptive audio tracks are unreliable
	EmbeddedWrapper bool `json:"embedded_wrapper"`
}

// CapabilityHints lets a client override individual probe results
type CapabilityHints struct {
	NativeHLS       *bool `json:"native_hls,omitempty"`
	MediaSource     *bool `json:"media_source,omitempty"`
	EmbeddedWrapper *bool `json:"embedded_wrapper,omitempty"`
}

// Apply returns c with every non-nil hint applied
func (c Capabilities) Apply(h *CapabilityHints) Capabilities {
	if h == nil {
		return c
	}
	if h.NativeHLS != nil {
		c.NativeHLS = *h.NativeHLS
	}
	if h.MediaSource != nil {
		c.MediaSource = *h.MediaSource
	}
	if h.EmbeddedWrapper != nil {
		c.EmbeddedWrapper = *h.EmbeddedWrapper
	}
	return c
}

// PreferredEngine picks the engine for a session. Native playback is used
// when the runtime supports it outside an embedded wrapper; the script
// engine otherwise. A wrapper without media source support still gets the
// native engine, since nothing else can play there.
func (c Capabilities) PreferredEngine() (models.EngineKind, error) {
	switch {
	case c.NativeHLS && !c.EmbeddedWrapper:
		return models.EngineNative, nil
	case c.MediaSource:
		return models.EngineFallback, nil
	case c.NativeHLS:
		return models.EngineNative, nil
	}
	return "", ErrEngineUnsupported
}

// ProbeUserAgent derives capabilities from a User-Agent header
func ProbeUserAgent(ua string) Capabilities {
	if strings.TrimSpace(ua) == "" {
		return Capabilities{}
	}

	iphone := strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPod")
	native := isSafariBrowser(ua) || isIOSLike(ua)

	return Capabilities{
		NativeHLS:       native,
		MediaSource:     !iphone && !isNativeAppleClient(ua),
		EmbeddedWrapper: isEmbeddedWrapper(ua),
	}
}

// isSafariBrowser detects Safari on macOS/iOS.
// Safari has "Safari/" and "AppleWebKit/", but not "Chrome/".
func isSafariBrowser(ua string) bool {
	hasSafari := strings.Contains(ua, "Safari/")
	hasChrome := strings.Contains(ua, "Chrome/") || strings.Contains(ua, "Chromium/")
	hasWebKit := strings.Contains(ua, "AppleWebKit/")
	return hasWebKit && hasSafari && !hasChrome
}

// isNativeAppleClient detects AVFoundation based players
func isNativeAppleClient(ua string) bool {
	return strings.Contains(ua, "AppleCoreMedia") ||
		strings.Contains(ua, "CFNetwork") ||
		strings.Contains(ua, "VideoToolbox")
}

func isIOSLike(ua string) bool {
	return strings.Contains(ua, "iPhone") ||
		strings.Contains(ua, "iPad") ||
		strings.Contains(ua, "iPod") ||
		isNativeAppleClient(ua)
}

var wrapperMarkers = []string{"FBAN/", "FBAV/", "Instagram", "Line/", "MicroMessenger", "; wv)", "GSA/"}

// isEmbeddedWrapper detects in-app web views. On iOS a WebKit view without
// the "Safari/" token is a WKWebView.
func isEmbeddedWrapper(ua string) bool {
	for _, m := range wrapperMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	if isIOSLike(ua) && strings.Contains(ua, "AppleWebKit/") && !strings.Contains(ua, "Safari/") {
		return true
	}
	return false
}
