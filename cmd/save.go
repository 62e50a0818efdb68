package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

func newSaveCmd() *cobra.Command {
	var (
		collection string
		htmlFile   string
	)
	cmd := &cobra.Command{
		Use:   "save <url>",
		Short: "Archive a single page and bookmark it",
		Long: `Fetches the page (or reads it from --html-file), stores the archived copy
and creates a bookmark in the given collection. Prints the shareable link.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req := archive.Request{URL: args[0], CollectionID: collection}
			if htmlFile != "" {
				data, err := os.ReadFile(htmlFile)
				if err != nil {
					return fmt.Errorf("read html file: %w", err)
				}
				req.HTML = string(data)
			}

			result, err := appInstance.Archiver().Save(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("save %s: %w", args[0], err)
			}
			appInstance.Logger().Info("page archived",
				zap.String("path", result.Path),
				zap.String("bookmark_id", result.BookmarkID),
				zap.Bool("used_headless", result.UsedHeadless))
			fmt.Fprintln(cmd.OutOrStdout(), result.Link)
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Raindrop collection id (required)")
	cmd.Flags().StringVar(&htmlFile, "html-file", "", "archive this HTML instead of fetching the URL")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}
