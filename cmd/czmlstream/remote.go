package main

import (
	"czmlstream/internal/api"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"
)

var (
	jsonFlag = cli.BoolFlag{
		Name:  "json",
		Usage: "print the raw JSON response",
	}

	remoteFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr, a",
			Usage: "base URL of a running server",
			Value: "http://localhost:8080",
		},
	}
)

var remoteClient = &http.Client{Timeout: 5 * time.Second}

// call sends a request to the server and decodes a JSON response into v.
// The raw body is returned for --json output.
func call(ctx *cli.Context, method, path string, v any) ([]byte, error) {
	target := strings.TrimRight(ctx.String("addr"), "/") + path
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	resp, err := remoteClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return body, nil
}

func printStatus(w io.Writer, view api.StatusView) {
	state := "paused"
	if view.Animating {
		state = "animating"
	}
	fmt.Fprintf(w, "%s at %.1fs (%s, %s), generation %d\n",
		view.Name, view.Offset, view.CurrentTime.UTC().Format(time.RFC3339), state, view.Generation)
	for _, seg := range view.Segments {
		fmt.Fprintf(w, "%s - %s", seg.Source, seg.Text)
		if seg.Error != "" {
			fmt.Fprintf(w, " (failed: %s)", seg.Error)
		}
		fmt.Fprintln(w)
	}
}

func status(ctx *cli.Context) error {
	var view api.StatusView
	body, err := call(ctx, http.MethodGet, "/status", &view)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if ctx.Bool("json") {
		fmt.Fprint(ctx.App.Writer, string(body))
		return nil
	}
	printStatus(ctx.App.Writer, view)
	return nil
}

func reset(ctx *cli.Context) error {
	var view api.StatusView
	if _, err := call(ctx, http.MethodPost, "/reset", &view); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	printStatus(ctx.App.Writer, view)
	return nil
}

func seek(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	offset, err := strconv.ParseFloat(ctx.Args().First(), 64)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid offset %q", ctx.Args().First()), 1)
	}
	var view api.StatusView
	path := "/seek?offset=" + url.QueryEscape(strconv.FormatFloat(offset, 'f', -1, 64))
	if _, err := call(ctx, http.MethodPost, path, &view); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	printStatus(ctx.App.Writer, view)
	return nil
}

func animate(run bool) func(ctx *cli.Context) error {
	path := "/pause"
	if run {
		path = "/resume"
	}
	return func(ctx *cli.Context) error {
		var view api.StatusView
		if _, err := call(ctx, http.MethodPost, path, &view); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		printStatus(ctx.App.Writer, view)
		return nil
	}
}

func devices(ctx *cli.Context) error {
	var view api.DevicesView
	body, err := call(ctx, http.MethodGet, "/devices", &view)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	w := ctx.App.Writer
	if ctx.Bool("json") {
		fmt.Fprint(w, string(body))
		return nil
	}
	for _, d := range view.Devices {
		active := ""
		if d.Active {
			active = " *"
		}
		fmt.Fprintf(w, "%-10s %-16s %-8s%s\n", d.ID, d.Type, d.Status, active)
	}
	fmt.Fprintf(w, "%d connected, %d active\n", view.ConnectedDevices, view.ActiveConnections)
	return nil
}
