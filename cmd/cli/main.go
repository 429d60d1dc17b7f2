// Command conote is a command-line client for the conote service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/and161185/conote/internal/convert"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// globals are the persistent flags shared by every command.
type globals struct {
	addr     string
	caPath   string
	insecure bool
}

func (g *globals) anon() (*client, error) {
	tlsCfg, err := loadTLS(g.caPath, g.insecure)
	if err != nil {
		return nil, err
	}
	return newClient(g.addr, "", tlsCfg), nil
}

func (g *globals) authed() (*client, error) {
	tok, err := loadToken()
	if err != nil {
		return nil, err
	}
	c, err := g.anon()
	if err != nil {
		return nil, err
	}
	c.token = tok
	return c, nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "conote",
		Short:         "conote CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.addr, "addr", "http://localhost:8080", "server base URL")
	pf.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "conote %s (%s)\n", version, buildDate)
			},
		},
		registerCmd(g), loginCmd(g), meCmd(g),
		listCmd(g), sharedCmd(g), pendingCmd(g), sharedByMeCmd(g), searchCmd(g),
		getCmd(g), addCmd(g), editCmd(g), rmCmd(g),
		revisionsCmd(g), restoreCmd(g),
		shareCmd(g), acceptCmd(g), declineCmd(g), revokeCmd(g),
	)
	return root
}

// authedRun builds a RunE that calls fn with an authenticated client.
func authedRun(g *globals, fn func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := g.authed()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), cmd, c, args)
	}
}

// fetch GETs path and prints the decoded data.
func fetch[T any](path string) func(context.Context, *cobra.Command, *client, []string) error {
	return func(ctx context.Context, cmd *cobra.Command, c *client, _ []string) error {
		var out T
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
}

func saveSession(s convert.Session) error {
	if s.AccessToken == "" {
		return errors.New("server returned no token")
	}
	return saveToken(s.AccessToken, s.ExpiresAt)
}

func registerCmd(g *globals) *cobra.Command {
	var req convert.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store its token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.anon()
			if err != nil {
				return err
			}
			var s convert.Session
			if err := c.do(cmd.Context(), http.MethodPost, "/auth/register", req, &s); err != nil {
				return err
			}
			if err := saveSession(s); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.User)
		},
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&req.Email, "email", "u", "", "email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd(g *globals) *cobra.Command {
	var req convert.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.anon()
			if err != nil {
				return err
			}
			var s convert.Session
			if err := c.do(cmd.Context(), http.MethodPost, "/auth/login", req, &s); err != nil {
				return err
			}
			if err := saveSession(s); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Email, "email", "u", "", "email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func meCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the current account",
		RunE:  authedRun(g, fetch[convert.User]("/auth/me")),
	}
}

func listCmd(g *globals) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List owned notes",
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			path := "/notes"
			if archived {
				path += "?includeArchived=true"
			}
			return fetch[[]convert.Note](path)(ctx, cmd, c, args)
		}),
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived notes")
	return cmd
}

func sharedCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "shared",
		Short: "List notes shared with you",
		RunE:  authedRun(g, fetch[[]convert.Note]("/notes/shared")),
	}
}

func pendingCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List invitations waiting for you",
		RunE:  authedRun(g, fetch[[]convert.Note]("/notes/pending-shares")),
	}
}

func sharedByMeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "shared-by-me",
		Short: "List your notes that have live shares",
		RunE:  authedRun(g, fetch[[]convert.Note]("/notes/shared-by-me")),
	}
}

func searchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search owned and shared notes",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			q := url.Values{"q": {args[0]}}
			return fetch[[]convert.Note]("/notes/search?"+q.Encode())(ctx, cmd, c, args)
		}),
	}
}

func notePath(id string, rest ...string) string {
	p := "/notes/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

func getCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			return fetch[convert.Note](notePath(args[0]))(ctx, cmd, c, args)
		}),
	}
}

func addCmd(g *globals) *cobra.Command {
	var title, file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a note",
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, _ []string) error {
			req := convert.CreateNoteRequest{Title: title}
			if file != "" {
				b, err := readAll(file)
				if err != nil {
					return err
				}
				req.Content = string(b)
			}
			var n convert.Note
			if err := c.do(ctx, http.MethodPost, "/notes", req, &n); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), n)
		}),
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "note title")
	cmd.Flags().StringVarP(&file, "file", "f", "", "content file, - for stdin")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func editCmd(g *globals) *cobra.Command {
	var title, file string
	var archive bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note's title, content or archive flag",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			var req convert.UpdateNoteRequest
			fl := cmd.Flags()
			if fl.Changed("title") {
				req.Title = &title
			}
			if fl.Changed("file") {
				b, err := readAll(file)
				if err != nil {
					return err
				}
				content := string(b)
				req.Content = &content
			}
			if fl.Changed("archive") {
				req.IsArchived = &archive
			}
			var n convert.Note
			if err := c.do(ctx, http.MethodPut, notePath(args[0]), req, &n); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), n)
		}),
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&file, "file", "f", "", "new content file, - for stdin")
	cmd.Flags().BoolVar(&archive, "archive", false, "set the archive flag (--archive=false restores)")
	return cmd
}

func rmCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note with its history and shares",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			if err := c.do(ctx, http.MethodDelete, notePath(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}),
	}
}

func revisionsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <id>",
		Short: "List earlier versions of a note",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			return fetch[[]convert.Revision](notePath(args[0], "revisions"))(ctx, cmd, c, args)
		}),
	}
}

func restoreCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id> <revision-id>",
		Short: "Make an earlier version the current content",
		Args:  cobra.ExactArgs(2),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			var n convert.Note
			if err := c.do(ctx, http.MethodPost, notePath(args[0], "revisions", args[1], "restore"), nil, &n); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), n)
		}),
	}
}

func shareCmd(g *globals) *cobra.Command {
	var req convert.ShareRequest
	cmd := &cobra.Command{
		Use:   "share <id>",
		Short: "Invite someone to a note",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			var rc convert.ShareReceipt
			if err := c.do(ctx, http.MethodPost, notePath(args[0], "share"), req, &rc); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rc)
		}),
	}
	cmd.Flags().StringVarP(&req.Email, "email", "u", "", "recipient email")
	cmd.Flags().StringVar(&req.Permission, "perm", "read", "read or edit")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func tokenCmd(g *globals, use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <token>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			var n convert.Note
			if err := c.do(ctx, http.MethodPost, "/notes/share/"+action+"/"+url.PathEscape(args[0]), nil, &n); err != nil {
				return err
			}
			if n.ID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), n)
		}),
	}
}

func acceptCmd(g *globals) *cobra.Command {
	return tokenCmd(g, "accept", "Accept an invitation", "accept")
}

func declineCmd(g *globals) *cobra.Command {
	return tokenCmd(g, "decline", "Decline an invitation", "decline")
}

func revokeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <share-id>",
		Short: "Revoke a share you granted",
		Args:  cobra.ExactArgs(1),
		RunE: authedRun(g, func(ctx context.Context, cmd *cobra.Command, c *client, args []string) error {
			if err := c.do(ctx, http.MethodPost, "/notes/share/"+url.PathEscape(args[0])+"/revoke", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}),
	}
}
