package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// manifest mirrors static/cards.json.
type manifest struct {
	BaseURL string         `json:"base_url"`
	Folders map[string]int `json:"folders"`
}

func main() {
	manifestPath := flag.String("manifest", "static/cards.json", "path to the card manifest")
	outDir := flag.String("out", "static/images/cards", "directory for the downloaded images")
	verify := flag.Bool("verify", false, "check that every image responds instead of downloading")
	flag.Parse()

	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		fmt.Printf("Error reading manifest: %v\n", err)
		os.Exit(1)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		fmt.Printf("Error parsing manifest: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Card storage: %s\n", m.BaseURL)

	client := &http.Client{Timeout: 30 * time.Second}
	failures := 0

	for folder, count := range m.Folders {
		if !*verify {
			if err := os.MkdirAll(filepath.Join(*outDir, folder), 0755); err != nil {
				fmt.Printf("Error creating directory: %v\n", err)
				os.Exit(1)
			}
		}
		for n := 1; n <= count; n++ {
			imageURL := fmt.Sprintf("%s/%s/%d.jpg", m.BaseURL, folder, n)

			if *verify {
				resp, err := client.Head(imageURL)
				if err != nil {
					fmt.Printf("FAIL %s: %v\n", imageURL, err)
					failures++
					continue
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					fmt.Printf("FAIL %s: HTTP %d\n", imageURL, resp.StatusCode)
					failures++
				}
				continue
			}

			outputPath := filepath.Join(*outDir, folder, fmt.Sprintf("%d.jpg", n))
			if _, err := os.Stat(outputPath); err == nil {
				continue
			}

			fmt.Printf("Downloading %s/%d...\n", folder, n)
			resp, err := client.Get(imageURL)
			if err != nil {
				fmt.Printf("Error downloading %s: %v\n", imageURL, err)
				failures++
				continue
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				fmt.Printf("Error downloading %s: HTTP %d\n", imageURL, resp.StatusCode)
				failures++
				continue
			}

			file, err := os.Create(outputPath)
			if err != nil {
				resp.Body.Close()
				fmt.Printf("Error creating file: %v\n", err)
				failures++
				continue
			}
			_, err = io.Copy(file, resp.Body)
			resp.Body.Close()
			file.Close()
			if err != nil {
				fmt.Printf("Error writing %s: %v\n", outputPath, err)
				failures++
				continue
			}

			time.Sleep(100 * time.Millisecond)
		}
	}

	if failures > 0 {
		fmt.Printf("\nDone with %d failures\n", failures)
		os.Exit(1)
	}
	fmt.Println("\nDone")
}
