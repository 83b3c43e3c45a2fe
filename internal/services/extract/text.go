// -----------------------------------------------------------------------
// Plain Text Extraction - Best-effort UTF-8 decode for everything else
// -----------------------------------------------------------------------

package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlainText decodes bytes as UTF-8, replacing invalid sequences and
// dropping NULs, which show up when a binary file is misdeclared as text.
func extractPlainText(data []byte) []section {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\x00", "")

	return []section{{Location: "body", Text: text}}
}
