// Package export renders stored digests into office documents.
package export

import (
	"fmt"
	"strings"

	"github.com/gingfrederik/docx"

	"UpdatesDigest/internal/domain"
)

// WriteDigestDocx saves d as a Word document at path.
func WriteDigestDocx(path string, d domain.Digest) error {
	f := docx.NewFile()

	title := f.AddParagraph().AddText("Updates digest " + d.Date)
	title.Size(20)

	meta := f.AddParagraph().AddText(fmt.Sprintf("Items: %d | Sources: %s", d.ItemCount, strings.Join(d.Sources, ", ")))
	meta.Size(10)
	meta.Color("808080")
	f.AddParagraph()

	addParagraphs(f, d.Text)

	if d.TranslatedText != nil && strings.TrimSpace(*d.TranslatedText) != "" {
		f.AddParagraph().AddText("--------------------------------------------------")
		heading := f.AddParagraph().AddText("Translation")
		heading.Size(16)
		addParagraphs(f, *d.TranslatedText)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("save docx %s: %w", path, err)
	}
	return nil
}

func addParagraphs(f *docx.File, text string) {
	for _, block := range strings.Split(text, "\n\n") {
		for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				f.AddParagraph().AddText(line)
			}
		}
	}
}
