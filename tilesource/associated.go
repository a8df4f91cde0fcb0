package tilesource

import (
	"image"
	"sort"
	"strings"
	"unicode"

	"github.com/rubedolife/large-image/lim"
)

// maxAssociatedDim bounds both pixel dimensions of directories accepted as
// associated images.
const maxAssociatedDim = 8192

// addAssociatedImage checks whether the directory at index holds a small
// non-tiled image with a sensible description token that can serve as an
// identifier, and stores the decoded image under that token if so.  This is
// strictly best-effort: every failure is swallowed, and only unexpected
// decode errors are logged.
func (s *Source) addAssociatedImage(index int) {
	h, err := s.be.OpenDirectory(index, false)
	if err != nil {
		lim.Debugf("directory %d is not usable as an associated image: %v\n", index, err)
		return
	}
	defer h.Close()

	fields := strings.Fields(h.Description())
	if len(fields) == 0 {
		return
	}
	key := strings.ToLower(fields[0])
	if !alnumToken(key) || len([]rune(key)) < 4 || len([]rune(key)) > 20 {
		return
	}
	if h.Width() > maxAssociatedDim || h.Height() > maxAssociatedDim {
		return
	}
	img, err := h.Image()
	if err != nil {
		lim.Warningf("could not use non-tiled directory %d as associated image %q: %v\n",
			index, key, err)
		return
	}
	s.associated[key] = img
}

func alnumToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// AssociatedImages lists the keys of all associated images: small labeled
// directories found during cataloging plus images embedded in the tiled
// directories themselves.
func (s *Source) AssociatedImages() []string {
	set := make(map[string]struct{})
	for key := range s.associated {
		set[key] = struct{}{}
	}
	for _, h := range s.pyr.handles {
		if h == nil {
			continue
		}
		for key := range h.EmbeddedImages() {
			set[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// AssociatedImage returns the associated image stored under key.  Embedded
// images take precedence over extracted non-tiled directories.
func (s *Source) AssociatedImage(key string) (image.Image, bool) {
	for _, h := range s.pyr.handles {
		if h == nil {
			continue
		}
		if img, found := h.EmbeddedImages()[key]; found {
			return img, true
		}
	}
	img, found := s.associated[key]
	return img, found
}
