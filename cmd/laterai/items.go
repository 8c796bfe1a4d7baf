package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"laterai/internal/capture"
	"laterai/internal/domain"
	"laterai/internal/items"
	"laterai/internal/pipeline"
)

func captureCMD(cfgPath *string) *cobra.Command {
	var ev capture.RawEvent
	var wait bool
	var save = &cobra.Command{
		Use:   "capture",
		Short: "Save a link, text, image or page",
		Long: "Save a link, text, image or page. When several are given, text wins over\n" +
			"the link, the link over the image, and the page is saved when nothing else is.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			store, err := a.deviceSession(ctx)
			if err != nil {
				return err
			}
			orch := a.orchestrator(store)
			// Enrichment must land before the database closes.
			defer orch.Wait()

			out := cmd.OutOrStdout()
			if wait {
				unsubscribe := orch.Subscribe(func(e pipeline.Event) {
					if e.Type == pipeline.EventItemClassified {
						fmt.Fprintf(out, "Classified as %s %s\n", e.Item.Category, strings.Join(e.Item.Tags, ", "))
					}
				})
				defer unsubscribe()
			}

			ev.Surface = capture.SurfaceCLI
			if ev.SrcURL != "" {
				ev.MediaType = "image"
			}
			item, err := orch.Capture(ctx, capture.Normalize(ev))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s %q\n", item.ID, item.Title)
			if wait {
				orch.Wait()
			}
			return nil
		},
	}
	f := save.Flags()
	f.StringVar(&ev.LinkURL, "url", "", "link to save")
	f.StringVar(&ev.SelectionText, "text", "", "text to save")
	f.StringVar(&ev.SrcURL, "image", "", "image URL to save")
	f.StringVar(&ev.Title, "title", "", "title for the item")
	f.StringVar(&ev.Content, "note", "", "note stored with the item")
	f.StringVar(&ev.PageURL, "page-url", "", "page the capture comes from")
	f.StringVar(&ev.PageTitle, "page-title", "", "title of that page")
	f.BoolVar(&wait, "wait", false, "print the classification once it lands")
	return save
}

func listCMD(cfgPath *string) *cobra.Command {
	var limit int
	var starred bool
	var list = &cobra.Command{
		Use:   "list",
		Short: "List saved items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			store, err := a.deviceSession(ctx)
			if err != nil {
				return err
			}
			owner, err := a.owner(ctx, store)
			if err != nil {
				return err
			}
			library := items.NewStore(owner, a.repo, limit, a.log)
			if err := library.Load(ctx); err != nil {
				return err
			}

			var shown []domain.SavedItem
			for _, item := range library.Items() {
				if !starred || item.IsStarred {
					shown = append(shown, item)
				}
			}
			printItems(cmd.OutOrStdout(), shown)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of items, 0 for all")
	list.Flags().BoolVar(&starred, "starred", false, "only starred items")
	return list
}

func printItems(out io.Writer, list []domain.SavedItem) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t\tCATEGORY\tTITLE\tTAGS\tURL")
	for _, item := range list {
		star := ""
		if item.IsStarred {
			star = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, star, item.Category, item.Title, strings.Join(item.Tags, ","), item.URL)
	}
	_ = w.Flush()
}

// itemCMD builds a command acting on one item of the signed-in user.
func itemCMD(cfgPath *string, use, short string, run func(cmd *cobra.Command, library *items.Store, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			store, err := a.deviceSession(ctx)
			if err != nil {
				return err
			}
			owner, err := a.owner(ctx, store)
			if err != nil {
				return err
			}
			library := items.NewStore(owner, a.repo, 0, a.log)
			if err := library.Load(ctx); err != nil {
				return err
			}
			return run(cmd, library, args[0])
		},
	}
}

func starCMD(cfgPath *string) *cobra.Command {
	return itemCMD(cfgPath, "star", "Toggle the star on an item", func(cmd *cobra.Command, library *items.Store, id string) error {
		starred, err := library.ToggleStar(cmd.Context(), id)
		if err != nil {
			return err
		}
		if starred {
			fmt.Fprintf(cmd.OutOrStdout(), "Starred %s\n", id)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Unstarred %s\n", id)
		}
		return nil
	})
}

func deleteCMD(cfgPath *string) *cobra.Command {
	return itemCMD(cfgPath, "delete", "Delete an item", func(cmd *cobra.Command, library *items.Store, id string) error {
		if err := library.Remove(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		return nil
	})
}

func reclassifyCMD(cfgPath *string) *cobra.Command {
	var reclassify = &cobra.Command{
		Use:   "reclassify <id>",
		Short: "Classify an item again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*cfgPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			store, err := a.deviceSession(ctx)
			if err != nil {
				return err
			}
			item, err := a.orchestrator(store).Reclassify(ctx, store, args[0])
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), []domain.SavedItem{item})
			return nil
		},
	}
	return reclassify
}
