package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/gwtrigger/internal/events"
	"github.com/mattjoyce/gwtrigger/internal/queue"
	"github.com/mattjoyce/gwtrigger/internal/webhook"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg webhook.HealthResponse

type pendingMsg []*queue.Build

type refreshMsg time.Time

type errMsg struct{ err error }

type sseDisconnectedMsg struct{}

type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents streams {path}/events into ch. It returns
// sseDisconnectedMsg when the stream ends.
func subscribeToEvents(url string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(url)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("events: %s", resp.Status)}
		}
		readSSE(resp.Body, ch)
		return sseDisconnectedMsg{}
	}
}

// readSSE parses server-sent events from r until EOF.
func readSSE(r io.Reader, ch chan<- events.Event) {
	scanner := bufio.NewScanner(r)
	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(cur.Data) > 0 {
				cur.At = time.Now()
				ch <- cur
			}
			cur = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = events.Type(line[7:])
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(line[6:])
		}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func refreshEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func fetchHealth(client *http.Client, url string) tea.Msg {
	var h webhook.HealthResponse
	if err := getJSON(client, url, &h); err != nil {
		return errMsg{err}
	}
	return healthMsg(h)
}

func fetchPending(client *http.Client, url string) tea.Msg {
	var p webhook.PendingResponse
	if err := getJSON(client, url, &p); err != nil {
		return errMsg{err}
	}
	return pendingMsg(p.Builds)
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
