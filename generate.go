package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"ai_blog_generator/client"
	"ai_blog_generator/config"
	"ai_blog_generator/export"
	"ai_blog_generator/generator"
)

var genOpts struct {
	title       string
	keywords    string
	perspective string
	server      string
	format      string
	out         string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a post through a running server",
	Long: `Send one generate request to a running server, show the text while it
streams in, then write the finished post.

Ctrl-C stops the generation; whatever arrived so far is still written.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genOpts.title, "title", "", "blog title")
	f.StringVar(&genOpts.keywords, "keywords", "", "comma-separated keywords")
	f.StringVar(&genOpts.perspective, "perspective", string(generator.DefaultPerspective), "writing perspective")
	f.StringVar(&genOpts.server, "server", "", "base URL of the blog generator server (defaults to server_addr from config)")
	f.StringVar(&genOpts.format, "format", "text", "output format: text, markdown, html or json")
	f.StringVarP(&genOpts.out, "out", "o", "", "write the post to this file instead of stdout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genOpts.title == "" && strings.TrimSpace(genOpts.keywords) == "" {
		return errors.New("--title or --keywords is required")
	}
	format, err := export.ParseFormat(genOpts.format)
	if err != nil {
		return err
	}
	perspective, err := generator.ParsePerspective(genOpts.perspective)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	base := genOpts.server
	if base == "" {
		base = serverURL(cfg.ServerAddr)
	}

	req := generator.GenerationRequest{
		Title:       genOpts.title,
		Keywords:    client.ParseKeywords(genOpts.keywords),
		Perspective: string(perspective),
	}
	c := client.New(base, client.WithLogger(logger))

	sigCtx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stopSignals()
	stopOnSignal := context.AfterFunc(sigCtx, c.Stop)
	defer stopOnSignal()

	preview := cmd.ErrOrStderr()
	shown := ""
	err = c.Generate(cmd.Context(), req, func(display string) {
		var delta string
		delta, shown = previewDelta(shown, display)
		fmt.Fprint(preview, delta)
	})
	fmt.Fprintln(preview)

	switch {
	case err == nil:
	case errors.Is(err, client.ErrStopped):
		fmt.Fprintln(preview, client.MessageStopped)
		if strings.TrimSpace(c.Raw()) == "" {
			return nil
		}
	default:
		fmt.Fprintln(preview, client.MessageFailed)
		return err
	}

	post, err := export.NewPost(req, c.Raw(), time.Now())
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if genOpts.out != "" {
		file, err := os.Create(genOpts.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return export.Write(w, post, format)
}

// serverURL turns a listen address such as ":8080" into a base URL the
// client can dial.
func serverURL(addr string) string {
	if addr == "" {
		addr = config.DefaultServerAddr
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// previewDelta returns what to print so the preview follows display, and the
// new printed state. Re-formatting can rewrite text already shown (a "--"
// becomes part of "---" and is stripped); printing then resumes after the
// common prefix.
func previewDelta(shown, display string) (string, string) {
	if strings.HasPrefix(display, shown) {
		return display[len(shown):], display
	}
	n := 0
	for n < len(shown) && n < len(display) && shown[n] == display[n] {
		n++
	}
	for n > 0 && n < len(display) && !utf8.RuneStart(display[n]) {
		n--
	}
	return display[n:], display
}
