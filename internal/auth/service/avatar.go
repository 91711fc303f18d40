package service

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"html"
	"strings"
	"unicode"
)

var avatarPalette = []string{
	"#e53935", "#8e24aa", "#3949ab", "#039be5",
	"#00897b", "#7cb342", "#fdd835", "#fb8c00",
	"#6d4c41", "#546e7a",
}

// InitialsAvatar renders a round SVG with up to two initials of name and
// returns it as a data URI. The colour is derived from name, so the same
// name always gets the same avatar.
func InitialsAvatar(name string) string {
	initials := initialsOf(name)

	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	bg := avatarPalette[h.Sum32()%uint32(len(avatarPalette))]

	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">`+
			`<circle cx="50" cy="50" r="50" fill="%s"/>`+
			`<text x="50" y="50" dy=".35em" text-anchor="middle" font-family="Arial,sans-serif" font-size="40" fill="#ffffff">%s</text>`+
			`</svg>`,
		bg, html.EscapeString(initials),
	)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func initialsOf(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				out = append(out, unicode.ToUpper(r))
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}
