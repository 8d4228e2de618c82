package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Value:   "http://localhost:9080",
		Usage:   "calboard base URL",
		EnvVars: []string{"CALBOARD_SERVER"},
	}
}

type importAck struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type importStatus struct {
	ID      string   `json:"id"`
	State   string   `json:"state"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped"`
	Error   string   `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Upload an ICS file to a calboard server.",
		ArgsUsage: "FILE.ics",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{Name: "owner", Required: true},
			&cli.StringFlag{Name: "project"},
			&cli.StringFlag{Name: "project-name"},
			&cli.DurationFlag{Name: "wait", Usage: "poll the job until it finishes, at most this long"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("import needs exactly one ICS file")
			}
			body, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}

			q := url.Values{}
			q.Set("owner", c.String("owner"))
			if p := c.String("project"); p != "" {
				q.Set("project", p)
				q.Set("project_name", c.String("project-name"))
			}
			endpoint := c.String("server") + "/imports?" + q.Encode()

			req, err := http.NewRequestWithContext(c.Context, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "text/calendar")
			var ack importAck
			if err := doJSON(req, &ack); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "import %s %s\n", ack.ID, ack.Status)

			if c.Duration("wait") <= 0 {
				return nil
			}
			st, err := waitImport(c, ack.ID, c.Duration("wait"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s: created=%d updated=%d skipped=%d\n", st.State, st.Created, st.Updated, len(st.Skipped))
			if st.State == "failed" {
				return fmt.Errorf("import failed: %s", st.Error)
			}
			return nil
		},
	}
}

func waitImport(c *cli.Context, id string, limit time.Duration) (importStatus, error) {
	deadline := time.Now().Add(limit)
	for {
		req, err := http.NewRequestWithContext(c.Context, http.MethodGet, c.String("server")+"/imports/"+url.PathEscape(id), nil)
		if err != nil {
			return importStatus{}, err
		}
		var st importStatus
		if err := doJSON(req, &st); err != nil {
			return st, err
		}
		if st.State == "done" || st.State == "failed" {
			return st, nil
		}
		if time.Now().After(deadline) {
			return st, fmt.Errorf("import %s still %s after %s", id, st.State, limit)
		}
		select {
		case <-c.Context.Done():
			return st, c.Context.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Download an owner's calendar as ICS.",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{Name: "owner", Required: true},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			endpoint := c.String("server") + "/calendar.ics?owner=" + url.QueryEscape(c.String("owner"))
			req, err := http.NewRequestWithContext(c.Context, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusOK {
				return responseError(resp)
			}

			out := c.App.Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			_, err = io.Copy(out, resp.Body)
			return err
		},
	}
}

func doJSON(req *http.Request, v any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func responseError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s (%s)", resp.Status, e.Message, e.Code)
}
