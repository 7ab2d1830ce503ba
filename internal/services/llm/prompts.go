package llm

import (
	"embed"
	"fmt"
	"strings"

	"github.com/ternarybob/playforge/internal/models"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// SystemPrompt returns the instruction template for a mode. Unknown modes
// fall back to the auto-play template.
func SystemPrompt(mode models.Mode) string {
	name := models.ModeCreate
	if mode == models.ModePC || mode == models.ModeMobile {
		name = mode
	}

	return mustRead("prompts/base.md") + "\n\n" + mustRead(fmt.Sprintf("prompts/%s.md", name))
}

func mustRead(path string) string {
	data, err := promptFiles.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("missing embedded prompt %s: %v", path, err))
	}
	return strings.TrimSpace(string(data))
}
