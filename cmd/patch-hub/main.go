package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lkml-tools/patch-hub/internal/app"
	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("patch-hub %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(app.ExitCode(err))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: patch-hub <command> [options]

Commands:
  lists [--page N] [--count M]            print mailing lists
  feed <list> [--page N] [--count M]      print a list's patch feed
  patch <list> <message-id> [--html]      print one patch body
  tui                                     interactive browser

Options:
  -v, --version    print version
`)
}

func run(args []string) error {
	a, err := app.Bootstrap()
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx := context.Background()
	switch args[0] {
	case "lists":
		fs := flag.NewFlagSet("lists", flag.ExitOnError)
		page := fs.Int("page", 0, "page number")
		count := fs.Int("count", domain.PageSize, "items per page")
		fs.Parse(args[1:])
		out, err := a.ListsCommand(ctx, *page, *count)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case "feed":
		if len(args) < 2 {
			return fmt.Errorf("feed requires a mailing list name")
		}
		fs := flag.NewFlagSet("feed", flag.ExitOnError)
		page := fs.Int("page", 0, "page number")
		count := fs.Int("count", domain.PageSize, "items per page")
		fs.Parse(args[2:])
		out, err := a.FeedCommand(ctx, args[1], *page, *count)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case "patch":
		if len(args) < 3 {
			return fmt.Errorf("patch requires a mailing list name and a message id")
		}
		fs := flag.NewFlagSet("patch", flag.ExitOnError)
		html := fs.Bool("html", false, "render to HTML")
		fs.Parse(args[3:])
		out, err := a.PatchCommand(ctx, args[1], args[2], *html)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case "tui":
		h := a.Handles()
		return tui.Run(tui.Deps{
			Lists:   h.Lists,
			Feeds:   h.Feeds,
			Patches: h.Patches,
			Seen:    h.Seen,
			Logger:  h.Logger,
		})

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
