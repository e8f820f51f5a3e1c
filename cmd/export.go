/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/db"
	"github.com/kedevs/blogapi/internal/services"
	"github.com/kedevs/blogapi/internal/storage"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/spf13/cobra"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON snapshot of all posts to object storage",
	Long: `Write a JSON snapshot of all posts to the bucket configured by
STORAGE_BACKEND (minio or gcs). The object key is printed on success.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		objects, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer objects.Close()

		exporter := services.NewExportService(store.NewPostRepository(conn), objects)
		result, err := exporter.ExportPosts(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d posts to %s/%s\n", result.Count, result.Bucket, result.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
