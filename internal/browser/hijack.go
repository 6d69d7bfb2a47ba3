package browser

import (
	"net/http"
	"strings"

	"multiview/internal/captions"
	"multiview/internal/events"
	"multiview/internal/inspect"
	"multiview/internal/netguard"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Pipeline is the per-response processing shared by every view: one
// interception decision per request, then optional body work (caption
// capture, manifest rewriting, JSON stripping) for responses worth
// fetching.
type Pipeline struct {
	interceptor *netguard.Interceptor
	inspector   *inspect.Inspector
	rewriter    *inspect.ManifestRewriter
	captions    *captions.Extractor
	bus         *events.Bus
	logger      *zap.Logger

	// client fetches hijacked response bodies.
	client *http.Client
}

// NewPipeline wires the network-side collaborators together. Any of them
// may be nil; the corresponding stage is skipped.
func NewPipeline(
	interceptor *netguard.Interceptor,
	inspector *inspect.Inspector,
	rewriter *inspect.ManifestRewriter,
	extractor *captions.Extractor,
	bus *events.Bus,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		interceptor: interceptor,
		inspector:   inspector,
		rewriter:    rewriter,
		captions:    extractor,
		bus:         bus,
		logger:      logger,
		client:      http.DefaultClient,
	}
}

// Attach installs the hijack router on the page and starts serving it.
// pageURL supplies the view's current top-level URL for third-party
// classification.
func (p *Pipeline) Attach(agentID string, page *rod.Page, pageURL func() string) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		p.handle(agentID, pageURL(), h)
	}); err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

func (p *Pipeline) handle(agentID, pageURL string, h *rod.Hijack) {
	reqURL := h.Request.URL().String()
	req := &netguard.InterceptRequest{
		URL:          reqURL,
		Method:       h.Request.Method(),
		ResourceType: string(h.Request.Type()),
		PageURL:      pageURL,
		Headers:      h.Request.Req().Header,
	}

	if p.interceptor != nil {
		decision := p.interceptor.Decide(agentID, req)
		if decision.Block {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			p.publish(events.Event{
				Type:    events.RequestBlocked,
				AgentID: agentID,
				URL:     reqURL,
				Detail:  decision.RuleID,
			})
			return
		}
		for name, value := range decision.HeaderMods {
			if value == "" {
				h.Request.Req().Header.Del(name)
			} else {
				h.Request.Req().Header.Set(name, value)
			}
		}
	}

	if !p.wantsBody(reqURL, h.Request.URL().Path, h.Request.Type()) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}

	if err := h.LoadResponse(p.client, true); err != nil {
		p.logger.Debug("load response failed", zap.String("url", reqURL), zap.Error(err))
		h.Response.Fail(proto.NetworkErrorReasonFailed)
		return
	}

	contentType := h.Response.Headers().Get("Content-Type")
	body := h.Response.Body()

	// Caption bodies are captured, never modified.
	if p.captions != nil && p.captions.Matches(reqURL) {
		if key, ok := p.captions.HandleResponse(agentID, reqURL, []byte(body)); ok {
			p.publish(events.Event{
				Type:    events.TranscriptAvailable,
				AgentID: agentID,
				URL:     reqURL,
				Detail:  key.VideoID,
			})
		}
		return
	}

	if p.rewriter != nil && inspect.IsManifest(contentType, body) {
		if res := p.rewriter.Rewrite(contentType, body); res.Modified {
			h.Response.SetBody(res.Content)
		}
		return
	}

	if p.inspector != nil {
		if res := p.inspector.Inspect(h.Request.URL().Path, contentType, []byte(body)); res.Modified {
			h.Response.SetBody(res.Body)
		}
	}
}

// wantsBody decides whether the response body is worth fetching through the
// hijack. Everything else continues natively in the browser.
func (p *Pipeline) wantsBody(rawURL, urlPath string, resType proto.NetworkResourceType) bool {
	if p.captions != nil && p.captions.Matches(rawURL) {
		return true
	}
	if p.inspector != nil && p.inspector.Watches(urlPath) &&
		(resType == proto.NetworkResourceTypeXHR || resType == proto.NetworkResourceTypeFetch) {
		return true
	}
	if p.rewriter != nil && looksLikeManifestURL(urlPath) {
		return true
	}
	return false
}

func looksLikeManifestURL(urlPath string) bool {
	lower := strings.ToLower(urlPath)
	return strings.HasSuffix(lower, ".m3u8") || strings.HasSuffix(lower, ".mpd") ||
		strings.Contains(lower, "/manifest")
}

func (p *Pipeline) publish(ev events.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}
