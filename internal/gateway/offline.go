package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

const (
	offlineAPIMessage  = "You're offline right now. Check your internet connection and try again!"
	offlinePageTitle   = "You're offline"
	offlinePageMessage = "Your buddy can't reach the internet right now. Check your connection and tap the button to try again."
)

type offlineBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

var offlinePage = template.Must(template.New("offline").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;flex-direction:column;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#fff7e6;color:#333;text-align:center;padding:1rem}
h1{font-size:2rem;margin-bottom:.5rem}
p{font-size:1.2rem;max-width:28rem}
button{font-size:1.2rem;padding:.8rem 2rem;border:none;border-radius:2rem;background:#ff8c42;color:#fff;cursor:pointer}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<button onclick="location.reload()">Try again</button>
</body>
</html>
`))

// synthesize builds the offline response for r: JSON for API paths, an HTML
// page with a retry button for everything else.
func (g *Gateway) synthesize(r *http.Request) (resp *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, &Error{Kind: KindSynthesis, Op: "synthesize", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if g.rules.IsAPI(r.URL.Path) {
		return offlineJSON(g.now())
	}
	return offlineHTML()
}

func offlineJSON(now time.Time) (*Response, error) {
	b, err := json.Marshal(offlineBody{
		Error:     "offline",
		Message:   offlineAPIMessage,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return nil, &Error{Kind: KindSynthesis, Op: "offline json", Err: err}
	}
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"X-Offline":    []string{"true"},
		},
		Body:   b,
		Source: SourceOffline,
	}, nil
}

func offlineHTML() (*Response, error) {
	var buf bytes.Buffer
	err := offlinePage.Execute(&buf, map[string]string{
		"Title":   offlinePageTitle,
		"Message": offlinePageMessage,
	})
	if err != nil {
		return nil, &Error{Kind: KindSynthesis, Op: "offline html", Err: err}
	}
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{
			"Content-Type":  []string{"text/html; charset=utf-8"},
			"Cache-Control": []string{"no-store"},
			"X-Offline":     []string{"true"},
		},
		Body:   buf.Bytes(),
		Source: SourceOffline,
	}, nil
}
