package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// fakeRunner answers pdftotext, pdftoppm and tesseract without the binaries.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string

	pdfText    string
	pdfTextErr error
	// ocrPages is how many page images pdftoppm "renders".
	ocrPages  int
	ppmErr    error
	ocrText   func(page int) string
	ocrFailOn map[int]bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	switch name {
	case "pdftotext":
		if f.pdfTextErr != nil {
			return nil, []byte("Syntax Error"), f.pdfTextErr
		}
		return []byte(f.pdfText), nil, nil
	case "pdftoppm":
		if f.ppmErr != nil {
			return nil, []byte("render failed"), f.ppmErr
		}
		prefix := args[len(args)-1]
		for i := 1; i <= f.ocrPages; i++ {
			path := fmt.Sprintf("%s-%02d.png", prefix, i)
			if err := os.WriteFile(path, []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		page := 0
		if _, err := fmt.Sscanf(args[0][strings.LastIndex(args[0], "-")+1:], "%02d.png", &page); err != nil {
			return nil, nil, err
		}
		if f.ocrFailOn[page] {
			return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
		}
		if f.ocrText == nil {
			return nil, nil, nil
		}
		return []byte(f.ocrText(page)), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func (f *fakeRunner) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}
