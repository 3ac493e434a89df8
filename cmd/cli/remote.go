package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"novelrank/internal/feed"
	"novelrank/pkg/models"
)

type tokenData struct {
	Token string `json:"token"`
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

var httpClient = &http.Client{Timeout: 10 * time.Minute}

func LoginAction(c *cli.Context) error {
	payload := map[string]string{"username": c.String("username"), "password": c.String("password")}
	var resp tokenData
	if err := doJSON(c.Context, http.MethodPost, c.String("api")+"/auth/login", "", payload, &resp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := saveToken(c.String("token"), resp.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Println("✅ logged in")
	return nil
}

func LogoutAction(c *cli.Context) error {
	if err := clearToken(c.String("token")); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Println("✅ logged out")
	return nil
}

func ScheduleAction(c *cli.Context) error {
	var out json.RawMessage
	if err := doJSON(c.Context, http.MethodGet, c.String("api")+"/api/schedule", "", nil, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func SetScheduleAction(c *cli.Context) error {
	token, err := mustToken(c.String("token"))
	if err != nil {
		return err
	}
	payload := map[string]any{"time": c.String("time"), "enabled": c.Bool("enabled")}
	var out json.RawMessage
	if err := doJSON(c.Context, http.MethodPut, c.String("api")+"/api/schedule", token, payload, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func RemoteRefreshAction(c *cli.Context) error {
	token, err := mustToken(c.String("token"))
	if err != nil {
		return err
	}
	endpoint := c.String("api") + "/api/refresh"
	if c.Bool("force") {
		endpoint += "?force=true"
	}
	var out json.RawMessage
	if err := doJSON(c.Context, http.MethodPost, endpoint, token, nil, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func WatchAction(c *cli.Context) error {
	wsURL, err := websocketURL(c.String("api"), "/ws")
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(c.Context, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[watch] connected to %s", wsURL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}

// TailAction follows the TCP feed, redialling on drops, until interrupted.
func TailAction(c *cli.Context) error {
	client := feed.NewClient(c.String("feed"), nil)
	client.Retry = c.Duration("retry")
	err := client.Subscribe(c.Context, func(ev feed.Event) {
		if ev.Type == feed.EventRefreshFinished && ev.Summary != nil && !c.Bool("raw") {
			printSummary(os.Stdout, *ev.Summary)
			return
		}
		b, _ := json.Marshal(ev)
		fmt.Println(string(b))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printSummary(w io.Writer, sum models.RefreshSummary) {
	fmt.Fprintf(w, "refresh %s: %s, %d records on %s\n", sum.RunID, sum.Status, sum.Total, sum.Date)
	for _, r := range sum.Results {
		fmt.Fprintf(w, "  %-10s %-8s %d %s\n", r.Source, r.Outcome, r.Count, r.Error)
	}
}

// doJSON calls the API and unwraps the {code, data, msg} envelope into out.
func doJSON(ctx context.Context, method, endpoint, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s %s: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= 300 || env.Code != 0 {
		return fmt.Errorf("%s %s failed (%d): %s", method, endpoint, resp.StatusCode, env.Msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.novelrank-token.json"
	}
	return filepath.Join(home, ".novelrank", "token.json")
}

func saveToken(path, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	return strings.TrimSpace(td.Token), nil
}

func mustToken(path string) (string, error) {
	token, err := readToken(path)
	if err != nil {
		return "", fmt.Errorf("token not found, please login: %w", err)
	}
	if token == "" {
		return "", errors.New("token empty, please login")
	}
	return token, nil
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   path,
	}).String(), nil
}
