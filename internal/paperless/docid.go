package paperless

import (
	"regexp"
	"strconv"
)

var documentPathRe = regexp.MustCompile(`/documents/(\d+)/`)

// ExtractDocumentID pulls the document id out of a Paperless document URL such
// as https://host/api/documents/42/download/. Only positive ids are accepted.
func ExtractDocumentID(ref string) (int, bool) {
	if ref == "" {
		return 0, false
	}
	m := documentPathRe.FindStringSubmatch(ref)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
