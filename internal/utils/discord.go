package utils

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// FormatUserDisplayName formats a user label as "name#id", "name", or "ID:id".
func FormatUserDisplayName(name, id string) string {
	name = strings.TrimSpace(name)
	id = strings.TrimSpace(id)
	switch {
	case name != "" && id != "":
		return fmt.Sprintf("%s#%s", name, id)
	case name != "":
		return name
	case id != "":
		return fmt.Sprintf("ID:%s", id)
	default:
		return "-"
	}
}

// PNGAttachment wraps encoded PNG bytes as a discord file. The ".png"
// extension is added when missing.
func PNGAttachment(name string, data []byte) *discordgo.File {
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	return &discordgo.File{
		Name:        name,
		ContentType: "image/png",
		Reader:      bytes.NewReader(data),
	}
}
