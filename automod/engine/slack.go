package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SlackSink posts events to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
type SlackSink struct {
	WebhookURL string
	Client     *http.Client
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackSink) Send(ctx context.Context, evt *Event) error {
	return n.sendSlackMsg(ctx, slackBody(evt))
}

func slackBody(evt *Event) string {
	var sb strings.Builder
	sb.WriteString("⚠️ Canvas Moderation ⚠️\n")
	fmt.Fprintf(&sb, "`%s` group at (%d, %d), %dx%d cells, %d blocks\n", evt.Kind, evt.Group.X, evt.Group.Y, evt.Group.W, evt.Group.H, len(evt.Group.Blocks))
	if evt.Result != nil {
		fmt.Fprintf(&sb, "Rating: `%s`\n", evt.Result.Rating)
		for _, cat := range evt.Result.Categories() {
			fmt.Fprintf(&sb, "%s: `%.2f`\n", cat, evt.Result.Scores[cat])
		}
	}
	if evt.Author != nil {
		fmt.Fprintf(&sb, "Author: `%s`\n", evt.Author)
	}
	if evt.Cached {
		sb.WriteString("(cached result)\n")
	}
	if len(evt.Footprint) > 0 {
		pts := make([]string, 0, len(evt.Footprint))
		for _, pt := range evt.Footprint {
			pts = append(pts, pt.String())
		}
		fmt.Fprintf(&sb, "Blocks: %s\n", strings.Join(pts, " "))
	}
	return sb.String()
}

func (n *SlackSink) sendSlackMsg(ctx context.Context, msg string) error {
	// loosely based on: https://golangcode.com/send-slack-messages-without-a-library/

	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

