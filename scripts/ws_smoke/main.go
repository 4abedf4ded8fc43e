package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/campus-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	email := flag.String("email", "smoke@example.com", "account email (registered if missing)")
	password := flag.String("password", "smoke-password", "account password")
	channel := flag.String("channel", "general", "channel slug")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := login(ctx, *base, *email, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws/channels/" + url.PathEscape(*channel) + "?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	payload, err := json.Marshal(proto.CreatePayload{Text: *text})
	if err != nil {
		return fmt.Errorf("marshal create: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeCreate, Payload: payload}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received outbound: type=%s\n", outbound.Type)

		if outbound.Type != proto.EventTypeCreated {
			continue
		}
		var evt proto.MessageCreated
		if err := json.Unmarshal(outbound.Payload, &evt); err != nil {
			fmt.Printf("Raw payload: %s\n", string(outbound.Payload))
			return fmt.Errorf("unmarshal message: %w", err)
		}
		fmt.Printf("MessageCreated: id=%d channel=%d user=%d text=%q at=%s\n",
			evt.ID, evt.ChannelID, evt.UserID, evt.Text, evt.CreatedAt.Format(time.RFC3339))
		if evt.Text == *text {
			return nil
		}
	}
}

// login registers the account when needed and returns an access token.
func login(ctx context.Context, base, email, password string) (string, error) {
	creds := map[string]string{"email": email, "password": password}

	resp, err := postJSON(ctx, base+"/auth/register", creds)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusBadRequest {
		return "", fmt.Errorf("register: unexpected status %s", resp.Status)
	}

	resp, err = postJSON(ctx, base+"/auth/login", creds)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: unexpected status %s", resp.Status)
	}

	var tokens struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", fmt.Errorf("decode tokens: %w", err)
	}
	return tokens.Access, nil
}

func postJSON(ctx context.Context, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	return resp, nil
}
