package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/testutil"
)

func TestFetchText_NormalizesLineEndings(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithData([]byte("<html>\r\n<body>hi</body>\n</html>")),
		testutil.WithContentType("text/html"),
	)

	text, err := FetchText(context.Background(), NewHTTPClient(nil), server.URL(), nil)
	if err != nil {
		t.Fatalf("FetchText failed: %v", err)
	}

	want := "<html>\n<body>hi</body>\n</html>\n"
	if text != want {
		t.Errorf("Expected %q, got %q", want, text)
	}
}

func TestFetchText_Empty(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithData([]byte{}))

	text, err := FetchText(context.Background(), NewHTTPClient(nil), server.URL(), nil)
	if err != nil {
		t.Fatalf("FetchText failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}
}

func TestFetchText_InvalidUTF8(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithData([]byte("ok\xffok\n")))

	text, err := FetchText(context.Background(), NewHTTPClient(nil), server.URL(), nil)
	if err != nil {
		t.Fatalf("FetchText failed: %v", err)
	}
	if text != "ok\uFFFDok\n" {
		t.Errorf("Expected replacement character, got %q", text)
	}
}

func TestFetchText_ErrorStatus(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithStatus(http.StatusNotFound))

	_, err := FetchText(context.Background(), NewHTTPClient(nil), server.URL(), nil)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
	if fetchErr.URL != server.URL() {
		t.Errorf("Expected URL %s in error, got %s", server.URL(), fetchErr.URL)
	}
}

func TestFetchText_TooLarge(t *testing.T) {
	body := strings.Repeat("abcdefghi\n", 100) // 1000 bytes
	server := testutil.NewMockServerT(t, testutil.WithData([]byte(body)))

	runtime := &types.RuntimeConfig{FetchMaxBytes: 999}
	_, err := FetchText(context.Background(), NewHTTPClient(runtime), server.URL(), runtime)
	if !errors.Is(err, ErrFetchTooLarge) {
		t.Fatalf("Expected ErrFetchTooLarge, got %v", err)
	}

	runtime.FetchMaxBytes = 1000
	text, err := FetchText(context.Background(), NewHTTPClient(runtime), server.URL(), runtime)
	if err != nil {
		t.Fatalf("Body at the cap should be accepted: %v", err)
	}
	if text != body {
		t.Error("Text differs from body")
	}
}

func TestFetchText_Unlimited(t *testing.T) {
	body := strings.Repeat("x", 4096) + "\n"
	server := testutil.NewMockServerT(t, testutil.WithData([]byte(body)))

	runtime := &types.RuntimeConfig{FetchMaxBytes: -1}
	text, err := FetchText(context.Background(), NewHTTPClient(runtime), server.URL(), runtime)
	if err != nil {
		t.Fatalf("FetchText failed: %v", err)
	}
	if len(text) != len(body) {
		t.Errorf("Expected %d bytes, got %d", len(body), len(text))
	}
}

func TestFetchText_Unreachable(t *testing.T) {
	server := testutil.NewMockServerT(t)
	url := server.URL()
	server.Close()

	_, err := FetchText(context.Background(), NewHTTPClient(nil), url, nil)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
}
