// Command inbox watches a user's notifications from the terminal. It polls
// the API, prints the unread badge and rings the bell when it grows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/badge"
	"github.com/tunehub/backend/internal/domain"
)

type envelope struct {
	Success bool                   `json:"success"`
	Data    []*domain.Notification `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	token := flag.String("token", os.Getenv("TUNEHUB_TOKEN"), "bearer token (default $TUNEHUB_TOKEN)")
	interval := flag.Duration("interval", badge.DefaultInterval, "poll interval")
	quiet := flag.Bool("quiet", false, "do not ring the bell")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "a token is required: pass -token or set TUNEHUB_TOKEN")
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := strings.TrimRight(*apiURL, "/") + "/api/v1/notifications"

	fetch := func(ctx context.Context) ([]*domain.Notification, error) {
		return fetchNotifications(ctx, client, endpoint, *token)
	}
	poller := badge.NewPoller(*interval, fetch, func(unread int, cue bool) {
		bell := ""
		if cue && !*quiet {
			bell = "\a"
		}
		fmt.Printf("%s[%s] unread: %d\n", bell, time.Now().Format("15:04:05"), unread)
	}, logger)

	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
}

func fetchNotifications(ctx context.Context, client *http.Client, endpoint, token string) ([]*domain.Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, errors.New(env.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return env.Data, nil
}
