package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	ingestServerURL string
	ingestOrigin    string
	ingestDocType   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Bulk-ingest text files into a running server",
	Long: `The ingest command reads the given text files and submits each one to
the documents endpoint of a running server, using the file name as title.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	settingDefaultConfig()

	ingestCmd.Flags().StringVar(&ingestServerURL, "url", "http://localhost:8080", "base URL of the running server")
	ingestCmd.Flags().StringVar(&ingestOrigin, "origin", "cli", "origin recorded for every document")
	ingestCmd.Flags().StringVar(&ingestDocType, "doc-type", "document", "doc type recorded for every document")
}

func runIngest(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Minute}
	endpoint := strings.TrimRight(ingestServerURL, "/") + "/api/v1/documents"

	bar := progressbar.Default(int64(len(args)), "ingesting")
	var failed []string
	for _, path := range args {
		if err := ingestFile(client, endpoint, path); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", path, err))
		}
		bar.Add(1)
	}

	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d files failed:\n", len(failed), len(args))
		for _, failure := range failed {
			fmt.Fprintln(os.Stderr, "  "+failure)
		}
		return fmt.Errorf("%d files failed to ingest", len(failed))
	}
	return nil
}

func ingestFile(client *http.Client, endpoint, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	body, err := json.Marshal(map[string]interface{}{
		"documents": []map[string]interface{}{{
			"title":    title,
			"content":  string(content),
			"origin":   ingestOrigin,
			"doc_type": ingestDocType,
			"metadata": map[string]interface{}{"file": path},
		}},
	})
	if err != nil {
		return err
	}

	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
