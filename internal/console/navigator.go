package console

import (
	"fmt"
	"html/template"
	"math"
	"net/http"
	"sync"
	"time"
)

// Navigation is a pending browser move.
type Navigation struct {
	URL   string        `json:"url"`
	Delay time.Duration `json:"-"`
	// DelayMs mirrors Delay for JSON clients.
	DelayMs int64 `json:"delayMs"`
}

func newNavigation(target string, delay time.Duration) *Navigation {
	return &Navigation{URL: target, Delay: delay, DelayMs: delay.Milliseconds()}
}

// ResponseNavigator collects the navigation decided while serving one
// request. The last call wins.
type ResponseNavigator struct {
	next *Navigation
}

func (n *ResponseNavigator) Navigate(target string) {
	n.next = newNavigation(target, 0)
}

func (n *ResponseNavigator) NavigateAfter(target string, delay time.Duration) {
	n.next = newNavigation(target, delay)
}

// Pending returns the collected navigation, or nil.
func (n *ResponseNavigator) Pending() *Navigation {
	return n.next
}

var delayedPage = template.Must(template.New("delayed").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta http-equiv="refresh" content="{{.Seconds}};url={{.URL}}"><title>Conductor</title></head>
<body><p>{{.Message}}</p><p>Redirecting in {{.Seconds}} seconds.</p></body>
</html>
`))

// Write sends the navigation to the browser: an immediate move is a 302,
// a delayed one is a page that refreshes to the target.
func (n *ResponseNavigator) Write(w http.ResponseWriter, r *http.Request, message string) {
	if n.next == nil {
		return
	}
	if n.next.Delay <= 0 {
		http.Redirect(w, r, n.next.URL, http.StatusFound)
		return
	}
	seconds := int(math.Ceil(n.next.Delay.Seconds()))
	w.Header().Set("Refresh", fmt.Sprintf("%d;url=%s", seconds, n.next.URL))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = delayedPage.Execute(w, struct {
		Seconds int
		URL     string
		Message string
	}{seconds, n.next.URL, message})
}

// DeferredNavigator holds a navigation decided outside any request, such as
// an inactivity logout, until the browser next asks for it.
type DeferredNavigator struct {
	mu   sync.Mutex
	next *Navigation
}

func (n *DeferredNavigator) Navigate(target string) {
	n.set(newNavigation(target, 0))
}

func (n *DeferredNavigator) NavigateAfter(target string, delay time.Duration) {
	n.set(newNavigation(target, delay))
}

func (n *DeferredNavigator) set(nav *Navigation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next = nav
}

// Take returns the held navigation and forgets it.
func (n *DeferredNavigator) Take() *Navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	nav := n.next
	n.next = nil
	return nav
}
