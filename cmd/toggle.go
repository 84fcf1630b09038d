package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	infracontext "github.com/Siriusbar/SlopedIn/infrastructure/context"
	infraerrors "github.com/Siriusbar/SlopedIn/infrastructure/errors"
	infrahttp "github.com/Siriusbar/SlopedIn/infrastructure/http"
	"github.com/Siriusbar/SlopedIn/internal/api"
	"github.com/Siriusbar/SlopedIn/internal/bootstrap"
	"github.com/Siriusbar/SlopedIn/internal/config"
	"github.com/Siriusbar/SlopedIn/internal/preference"
)

const enabledPath = "/api/v1/preferences/enabled"

func newToggleCommand(opts *rootOptions) *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:       "toggle [on|off]",
		Short:     "Show or switch AI detection",
		ValidArgs: []string{"on", "off"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		Long: `Toggle shows whether detection is enabled, or switches it on or off.
With the Redis preference store the setting is written directly; otherwise
the running pipeline's API is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := infracontext.WithCommandTimeout(cmd.Context(), 0)
			defer cancel()

			var ts toggleStore
			if cfg.Preference.Store == config.PreferenceRedis {
				client, redisErr := bootstrap.OpenRedis(ctx, cfg, logger)
				if redisErr != nil {
					return redisErr
				}
				defer func() { _ = client.Close() }()
				ts = storeToggle{store: preference.NewRedisStore(client, logger)}
			} else {
				if apiURL == "" {
					apiURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
				}
				ts = apiToggle{baseURL: strings.TrimRight(apiURL, "/"), client: infrahttp.NewClient(infrahttp.ClientConfig{Timeout: infrahttp.DefaultTimeout})}
			}

			var enabled bool
			if len(args) == 1 {
				enabled, err = ts.set(ctx, args[0] == "on")
			} else {
				enabled, err = ts.get(ctx)
			}
			if err != nil {
				return err
			}
			state := "off"
			if enabled {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "AI detection is %s\n", state)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "", "pipeline API base URL (default http://localhost:<server.port>)")
	return cmd
}

type toggleStore interface {
	get(ctx context.Context) (bool, error)
	set(ctx context.Context, enabled bool) (bool, error)
}

type storeToggle struct {
	store preference.Store
}

func (s storeToggle) get(ctx context.Context) (bool, error) {
	return preference.Enabled(ctx, s.store)
}

func (s storeToggle) set(ctx context.Context, enabled bool) (bool, error) {
	if err := preference.SetEnabled(ctx, s.store, enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

type apiToggle struct {
	baseURL string
	client  *http.Client
}

func (a apiToggle) get(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+enabledPath, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	return a.do(req)
}

func (a apiToggle) set(ctx context.Context, enabled bool) (bool, error) {
	body, err := json.Marshal(api.EnabledRequest{Enabled: &enabled})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+enabledPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a apiToggle) do(req *http.Request) (bool, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("pipeline API: %w", err)
	}
	defer resp.Body.Close()

	if err = infraerrors.ParseHTTPError(resp); err != nil {
		return false, fmt.Errorf("pipeline API: %w", err)
	}

	var out api.EnabledResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return out.Enabled, nil
}
