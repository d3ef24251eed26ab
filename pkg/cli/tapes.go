package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/getmockd/tapedeck/pkg/cli/internal/output"
	"github.com/getmockd/tapedeck/pkg/cli/internal/parse"
	"github.com/getmockd/tapedeck/pkg/store"
	"github.com/getmockd/tapedeck/pkg/tape"
)

// TapeSummary is the JSON form of one tape in list and verify output.
type TapeSummary struct {
	Name         string `json:"name"`
	Interactions int    `json:"interactions"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
}

// InteractionSummary is the JSON form of one interaction in show and seek
// output. Bodies are reported as text when they are valid UTF-8.
type InteractionSummary struct {
	ID         string      `json:"id"`
	Recorded   time.Time   `json:"recorded"`
	Duration   string      `json:"duration"`
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       string      `json:"body,omitempty"`
	BodyLength int         `json:"bodyLength"`
}

func newTapesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tapes",
		Short: "List, inspect and edit tapes",
	}
	cmd.AddCommand(
		newTapesListCmd(g),
		newTapesShowCmd(g),
		newTapesVerifyCmd(g),
		newTapesSeekCmd(g),
		newTapesDeleteCmd(g),
	)
	return cmd
}

func newTapesListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list [glob]",
		Short: "List tape names, optionally filtered by a doublestar glob",
		Example: `  tapedeck tapes list
  tapedeck tapes list 'github/**'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return g.withStore(cmd.Context(), func(s *store.TapeStore) error {
				names, err := s.List(cmd.Context(), pattern)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if g.jsonOutput {
					if names == nil {
						names = []string{}
					}
					return output.JSON(w, names)
				}
				if len(names) == 0 {
					_, _ = fmt.Fprintln(w, "No tapes found")
					return nil
				}
				for _, n := range names {
					_, _ = fmt.Fprintln(w, n)
				}
				return nil
			})
		},
	}
}

func newTapesShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the interactions recorded on a tape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return g.withStore(cmd.Context(), func(s *store.TapeStore) error {
				t, err := s.Get(cmd.Context(), name, tape.WithMode(tape.ModeReadOnlyArchive))
				if err != nil {
					return err
				}
				ins := t.Interactions()
				w := cmd.OutOrStdout()
				if g.jsonOutput {
					out := make([]InteractionSummary, 0, len(ins))
					for _, in := range ins {
						out = append(out, summarize(in, false))
					}
					return output.JSON(w, out)
				}

				if len(ins) == 0 {
					_, _ = fmt.Fprintf(w, "Tape %s has no interactions\n", name)
					return nil
				}
				tw := output.Table(w)
				_, _ = fmt.Fprintln(tw, "ID\tMETHOD\tURL\tSTATUS\tDURATION\tRECORDED")
				for _, in := range ins {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\t%s\n",
						in.ID, in.Request.Method, in.Request.URL, in.Response.StatusCode,
						in.Duration, in.Recorded.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func newTapesVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [glob]",
		Short: "Load every matching tape and report the ones that cannot be read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return g.withStore(cmd.Context(), func(s *store.TapeStore) error {
				names, err := s.List(cmd.Context(), pattern)
				if err != nil {
					return err
				}

				results := make([]TapeSummary, 0, len(names))
				failed := 0
				for _, name := range names {
					r := TapeSummary{Name: name, OK: true}
					t, err := s.Get(cmd.Context(), name, tape.WithMode(tape.ModeReadOnlyArchive))
					if err != nil {
						r.OK, r.Error = false, err.Error()
						failed++
						g.log.Warn("tape failed verification", "tape", name, "error", err)
					} else {
						r.Interactions = t.Len()
					}
					results = append(results, r)
				}

				w := cmd.OutOrStdout()
				if g.jsonOutput {
					if err := output.JSON(w, results); err != nil {
						return err
					}
				} else {
					tw := output.Table(w)
					_, _ = fmt.Fprintln(tw, "TAPE\tSTATUS\tINTERACTIONS")
					for _, r := range results {
						status := "ok"
						if !r.OK {
							status = "FAILED: " + r.Error
						}
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Name, status, r.Interactions)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}

				if failed > 0 {
					return fmt.Errorf("%d of %d tapes failed verification", failed, len(names))
				}
				return nil
			})
		},
	}
}

func newTapesSeekCmd(g *globals) *cobra.Command {
	var (
		method  string
		url     string
		headers []string
		body    string
	)

	cmd := &cobra.Command{
		Use:   "seek <name>",
		Short: "Find the recorded response a request would replay",
		Example: `  tapedeck tapes seek github/repos --url https://api.github.com/repos/x/y
  tapedeck tapes seek payments --method POST --url https://api.example.com/charges \
    --header 'Content-Type: application/json' --body '{"amount":100}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			h, err := parse.Header(headers)
			if err != nil {
				return err
			}
			req := tape.Request{
				Method:  strings.ToUpper(method),
				URL:     url,
				Headers: h,
			}
			if body != "" {
				req.Body = []byte(body)
			}

			return g.withStore(cmd.Context(), func(s *store.TapeStore) error {
				t, err := s.Get(cmd.Context(), name, tape.WithMode(tape.ModeReadOnlyArchive))
				if err != nil {
					return err
				}
				in, ok := t.Seek(req)
				if !ok {
					return fmt.Errorf("no interaction on tape %s matches %s %s", name, req.Method, req.URL)
				}

				w := cmd.OutOrStdout()
				sum := summarize(in, true)
				if g.jsonOutput {
					return output.JSON(w, sum)
				}
				_, _ = fmt.Fprintf(w, "Interaction %s (recorded %s, took %s)\n", sum.ID, sum.Recorded.Format(time.RFC3339), sum.Duration)
				_, _ = fmt.Fprintf(w, "%d %s\n", sum.Status, http.StatusText(sum.Status))
				_ = sum.Headers.Write(w)
				if sum.Body != "" {
					_, _ = fmt.Fprintf(w, "\n%s\n", sum.Body)
				} else if sum.BodyLength > 0 {
					_, _ = fmt.Fprintf(w, "\n<%d bytes of binary body>\n", sum.BodyLength)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&method, "method", http.MethodGet, "Request method")
	cmd.Flags().StringVar(&url, "url", "", "Request URL")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "Request header as 'Name: value' (repeatable)")
	cmd.Flags().StringVar(&body, "body", "", "Request body")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newTapesDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name> <interaction-id>",
		Short: "Remove one interaction from a tape and save it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, id := args[0], args[1]
			return g.withStore(cmd.Context(), func(s *store.TapeStore) error {
				if _, err := s.Get(cmd.Context(), name, tape.WithMode(tape.ModeReadWrite)); err != nil {
					return err
				}
				err := s.With(cmd.Context(), name, func(t *tape.MemoryTape) error {
					if err := t.Delete(id); err != nil {
						if errors.Is(err, tape.ErrInteractionNotFound) {
							return fmt.Errorf("tape %s: interaction %s not found", name, id)
						}
						return err
					}
					return nil
				})
				if err != nil {
					return err
				}
				if err := s.Save(cmd.Context(), name); err != nil {
					return err
				}

				g.log.Info("deleted interaction", "tape", name, "id", id)
				w := cmd.OutOrStdout()
				if g.jsonOutput {
					return output.JSON(w, map[string]string{"tape": name, "deleted": id})
				}
				_, _ = fmt.Fprintf(w, "Deleted interaction %s from tape %s\n", id, name)
				return nil
			})
		},
	}
}

// summarize flattens an interaction for display. Response headers are only
// included when withHeaders is set.
func summarize(in tape.Interaction, withHeaders bool) InteractionSummary {
	s := InteractionSummary{
		ID:         in.ID,
		Recorded:   in.Recorded,
		Duration:   in.Duration.String(),
		Method:     in.Request.Method,
		URL:        in.Request.URL,
		Status:     in.Response.StatusCode,
		BodyLength: len(in.Response.Body),
	}
	if withHeaders {
		s.Headers = in.Response.Headers
	}
	if utf8.Valid(in.Response.Body) {
		s.Body = string(in.Response.Body)
	}
	return s
}
