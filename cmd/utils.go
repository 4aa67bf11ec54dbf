package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/surge-downloader/trickle/internal/utils"
)

// batchFile is the YAML form of a batch file
type batchFile struct {
	URLs []string `yaml:"urls"`
}

// readURLsFromFile reads URLs from a file. Plain text files hold one URL per
// line with # comments; .yaml and .yml files hold a `urls:` list.
func readURLsFromFile(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return readURLsFromYAML(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for long URLs (default is 64KB, increase to 1MB)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return urls, nil
}

func readURLsFromYAML(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	var batch batchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	urls := make([]string, 0, len(batch.URLs))
	for _, u := range batch.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// urlsFromText extracts http(s) URLs from pasted text, one per line.
func urlsFromText(text string) []string {
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}
	return urls
}

// dedupe drops repeated URLs, keeping the first occurrence.
func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0:0]
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// parseSizeFlag accepts a plain byte count or a formatted size like "8.0 MB".
// "unlimited" and negative numbers disable the limit.
func parseSizeFlag(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unlimited") {
		return -1, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return -1, nil
		}
		return n, nil
	}
	n, err := utils.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// shortID trims a download ID for display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
