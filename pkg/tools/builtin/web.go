package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/tools"
	"github.com/vango-go/nova-live/pkg/tools/safety"
)

var youtubeVideoID = regexp.MustCompile(`/watch\?v=([a-zA-Z0-9_-]{11})`)

func webTools(d *Deps) []tools.Handler {
	if d.HTTP == nil {
		d.HTTP = safety.Guard{}.NewRestrictedHTTPClient(&http.Client{Timeout: d.HTTPTimeout})
	}
	return []tools.Handler{
		httpRequest(d),
		playYouTube(d),
		startNavigation(d),
	}
}

func httpRequest(d *Deps) tools.Handler {
	methods := []string{"GET", "POST", "PUT", "DELETE", "PATCH"}
	return handler(&genai.FunctionDeclaration{
		Name:        "http_request",
		Description: "Makes an HTTP request to a URL. Useful for APIs or fetching web data.",
		Parameters: object([]string{"url"}, map[string]*genai.Schema{
			"url":     str("The URL to request"),
			"method":  str("HTTP method (default: GET)", methods...),
			"headers": {Type: genai.TypeObject, Description: "Optional request headers"},
			"body":    str("Request body (for POST/PUT)"),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		target, err := tools.String(call.Args, "url", true)
		if err != nil {
			return tools.Result{}, err
		}
		if _, err := safety.CheckURL(target); err != nil {
			return tools.Result{}, err
		}
		method, err := tools.String(call.Args, "method", false)
		if err != nil {
			return tools.Result{}, err
		}
		method = strings.ToUpper(strings.TrimSpace(method))
		if method == "" {
			method = http.MethodGet
		}
		if !slices.Contains(methods, method) {
			return tools.Result{}, core.NewValidationError("unsupported method "+method, "method")
		}
		headers, err := tools.Object(call.Args, "headers", false)
		if err != nil {
			return tools.Result{}, err
		}
		body, err := tools.String(call.Args, "body", false)
		if err != nil {
			return tools.Result{}, err
		}

		var reader io.Reader
		if body != "" && method != http.MethodGet {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return tools.Result{}, core.NewValidationError("invalid url: "+err.Error(), "url")
		}
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
		resp, err := d.HTTP.Do(req)
		if err != nil {
			return tools.Result{}, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		data, truncated, err := safety.ReadBody(resp, safety.MaxBodyBytes)
		if err != nil {
			return tools.Result{}, err
		}

		respHeaders := make(map[string]any, len(resp.Header))
		for k := range resp.Header {
			respHeaders[strings.ToLower(k)] = resp.Header.Get(k)
		}
		out := map[string]any{
			"success": resp.StatusCode >= 200 && resp.StatusCode < 300,
			"status":  resp.StatusCode,
			"data":    string(data),
			"headers": respHeaders,
		}
		if truncated {
			out["truncated"] = true
		}
		return tools.Payload(out), nil
	})
}

func playYouTube(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "play_youtube_video",
		Description: "Searches for a video on YouTube and plays it directly inside the app's visual player.",
		Parameters: object([]string{"query"}, map[string]*genai.Schema{
			"query": str(`The search query for the video (e.g., "lofi hip hop", "SpaceX launch").`),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		query, err := tools.String(call.Args, "query", true)
		if err != nil {
			return tools.Result{}, err
		}
		id, err := FindYouTubeVideo(ctx, d.Web, d.YouTubeSearchURL, query)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "youtube", map[string]any{"videoId": id, "query": query})
		if d.Host != nil {
			if err := d.Host.Open(ctx, "https://www.youtube.com/watch?v="+id); err != nil {
				d.Logger.Warn("open youtube video failed", "video_id", id, "error", err)
			}
		}
		return tools.Payload(map[string]any{
			"result":  "Video found and playing in the app player.",
			"videoId": id,
		}), nil
	})
}

// FindYouTubeVideo returns the first video id on the search results page for query.
func FindYouTubeVideo(ctx context.Context, client *http.Client, searchURL, query string) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("search_query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("youtube search failed: status %d", resp.StatusCode)
	}
	page, _, err := safety.ReadBody(resp, safety.MaxBodyBytes)
	if err != nil {
		return "", err
	}
	m := youtubeVideoID.FindSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("no video found for %q", query)
	}
	return string(m[1]), nil
}

func startNavigation(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "start_navigation",
		Description: "Opens a real-time map navigation to a specific destination in the Visual Intelligence Hub.",
		Parameters: object([]string{"destination"}, map[string]*genai.Schema{
			"destination": str("The address or place name to navigate to."),
		}),
	}, func(ctx context.Context, call tools.Call) (tools.Result, error) {
		dest, err := tools.String(call.Args, "destination", true)
		if err != nil {
			return tools.Result{}, err
		}
		emitArtifact(d, "navigation", map[string]any{"destination": dest})
		if d.Host != nil {
			link := strings.TrimRight(d.MapsURL, "/") + "/?api=1&destination=" + url.QueryEscape(dest)
			if err := d.Host.Open(ctx, link); err != nil {
				d.Logger.Warn("open maps failed", "destination", dest, "error", err)
			}
		}
		return tools.Reply(fmt.Sprintf("Navigation to %s started. The map is now visible on screen.", dest)), nil
	})
}
